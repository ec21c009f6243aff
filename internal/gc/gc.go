// Package gc implements the garbage collector of spec.md §4.8: sweeping
// orphaned work-dirs, stale hosts, and unreferenced snapshots/volumes,
// honoring a dry-run mode and an ErrorBehavior that governs whether one
// resource's failure aborts the whole sweep. It generalizes
// internal/session/pidtrack.go's KillTrackedPIDs shape (enumerate, verify,
// report, clean) from orphaned PIDs to orphaned filesystem/provider
// resources, and reuses internal/query's CEL machinery for snapshot/volume
// filtering the way internal/wasteland bookkeeps federation-wide resources
// against a config-driven predicate.
package gc

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/host"
	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/providers"
	"github.com/imbue-ai/mng/internal/query"
)

// DefaultDestroyedHostPersistedSeconds is the retention window Sweep uses
// for a provider that has no entry in
// SweepOptions.DestroyedHostPersistedSeconds. It repeats the value of
// procconfig.DefaultDestroyedHostPersistedSeconds as a literal, since this
// package does not import procconfig; the caller fills the SweepOptions map
// from procconfig.Config.
const DefaultDestroyedHostPersistedSeconds = 86400.0

// ResourceKind names one of the four sweepable resource classes.
type ResourceKind string

const (
	ResourceWorkDir   ResourceKind = "work_dir"
	ResourceHost      ResourceKind = "host"
	ResourceSnapshot  ResourceKind = "snapshot"
	ResourceVolume    ResourceKind = "volume"
)

// Finding is one resource the sweep identified as collectible.
type Finding struct {
	Kind      ResourceKind
	Ref       string // path, host id, snapshot id, or volume id
	HostID    ids.HostID
	Provider  string
	Reason    string
	Destroyed bool
	Error     error
}

// SweepOptions configures Sweep.
type SweepOptions struct {
	Kinds         []ResourceKind // empty means all four
	IsDryRun      bool
	ErrorBehavior enums.ErrorBehavior
	// DestroyedHostPersistedSeconds is the per-provider override (falls
	// back to DefaultDestroyedHostPersistedSeconds); keyed by provider name.
	DestroyedHostPersistedSeconds map[string]float64
	// SnapshotFilter/VolumeFilter are compiled CEL programs (see
	// internal/query) applied to candidate snapshots/volumes; nil means no
	// filtering.
	SnapshotFilter *query.Program
	VolumeFilter   *query.Program
}

// SweepResult is the accumulated outcome of one Sweep call.
type SweepResult struct {
	Findings []Finding
	Errors   []query.ItemError
}

// Sweeper drives GC across every registered provider.
type Sweeper struct {
	Providers map[string]providers.Provider
	// Bind resolves a host that doesn't itself implement host.StatefulHost
	// to one backed by this process's local state mirror; nil limits the
	// work-dir and host sweeps to hosts that are already stateful.
	Bind func(host.Host) (host.StatefulHost, error)
}

func New(provs map[string]providers.Provider) *Sweeper {
	return &Sweeper{Providers: provs}
}

func (s *Sweeper) stateful(h host.Host) (host.StatefulHost, bool) {
	if sh, ok := h.(host.StatefulHost); ok {
		return sh, true
	}
	if s.Bind != nil {
		if sh, err := s.Bind(h); err == nil {
			return sh, true
		}
	}
	return nil, false
}

func wantsKind(kinds []ResourceKind, k ResourceKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

// Sweep runs every requested resource-kind sweep across every registered
// provider, returning a SweepResult with one Finding per resource
// (destroyed, or would-be-destroyed under IsDryRun). ErrorBehaviorAbort
// stops at the first per-resource failure and returns it; ErrorBehaviorContinue
// accumulates failures into Errors and keeps sweeping.
func (s *Sweeper) Sweep(ctx context.Context, opts SweepOptions) (*SweepResult, error) {
	res := &SweepResult{}

	for name, p := range s.Providers {
		hosts, err := p.ListHosts(ctx, true)
		if err != nil {
			if !s.recordOrAbort(res, opts, name, "", err) {
				return res, err
			}
			continue
		}

		for _, h := range hosts {
			if wantsKind(opts.Kinds, ResourceWorkDir) {
				if err := s.sweepWorkDirs(ctx, h, opts, res); err != nil && opts.ErrorBehavior == enums.ErrorBehaviorAbort {
					return res, err
				}
			}
			if wantsKind(opts.Kinds, ResourceSnapshot) && p.SupportsSnapshots() {
				if err := s.sweepSnapshots(ctx, p, name, h, opts, res); err != nil && opts.ErrorBehavior == enums.ErrorBehaviorAbort {
					return res, err
				}
			}
			if wantsKind(opts.Kinds, ResourceVolume) && p.SupportsVolumes() {
				if err := s.sweepVolumes(ctx, p, name, h, opts, res); err != nil && opts.ErrorBehavior == enums.ErrorBehaviorAbort {
					return res, err
				}
			}
		}

		if wantsKind(opts.Kinds, ResourceHost) {
			if err := s.sweepHosts(ctx, p, name, hosts, opts, res); err != nil && opts.ErrorBehavior == enums.ErrorBehaviorAbort {
				return res, err
			}
		}
	}

	return res, nil
}

func (s *Sweeper) recordOrAbort(res *SweepResult, opts SweepOptions, provider, ref string, err error) bool {
	res.Errors = append(res.Errors, query.ItemError{Provider: provider, Host: ref, Message: err.Error(), Type: "ProviderError"})
	return opts.ErrorBehavior != enums.ErrorBehaviorAbort
}

// sweepWorkDirs implements spec.md §4.8: the difference between
// CertifiedHostData.GeneratedWorkDirs and current agent records' work-dirs,
// deleted when the directory still exists and no live agent claims it. The
// whole diff-and-delete runs under the host lock so a concurrent create
// can't register a work-dir between the read and the registry rewrite.
func (s *Sweeper) sweepWorkDirs(ctx context.Context, h host.Host, opts SweepOptions, res *SweepResult) error {
	stateful, ok := s.stateful(h)
	if !ok {
		return nil // offline hosts have nothing locally to sweep
	}
	return stateful.LockCooperatively(ctx, func() error {
		return s.sweepWorkDirsLocked(stateful, opts, res)
	})
}

func (s *Sweeper) sweepWorkDirsLocked(h host.StatefulHost, opts SweepOptions, res *SweepResult) error {
	store := h.Store()

	data, err := store.ReadCertifiedData()
	if err != nil {
		return nil // never certified: nothing generated, nothing to sweep
	}

	claimed := map[string]bool{}
	agentIDs, err := store.ListAgentIDs()
	if err != nil {
		return err
	}
	for _, id := range agentIDs {
		rec, err := store.ReadAgentRecord(id)
		if err != nil {
			continue
		}
		claimed[rec.WorkDir.String()] = true
	}

	var remaining []string
	for _, dir := range data.GeneratedWorkDirs {
		if claimed[dir] {
			remaining = append(remaining, dir)
			continue
		}
		finding := Finding{Kind: ResourceWorkDir, Ref: dir, HostID: h.GetID(), Reason: "no agent claims this generated work dir"}
		if _, err := os.Stat(dir); err != nil {
			if os.IsNotExist(err) {
				// already gone: still drop from the registry below.
			} else {
				finding.Error = err
				res.Findings = append(res.Findings, finding)
				if !s.recordOrAbort(res, opts, "", dir, err) {
					return err
				}
				remaining = append(remaining, dir)
				continue
			}
		} else if !opts.IsDryRun {
			if err := os.RemoveAll(dir); err != nil {
				finding.Error = err
				res.Findings = append(res.Findings, finding)
				if !s.recordOrAbort(res, opts, "", dir, err) {
					return err
				}
				remaining = append(remaining, dir)
				continue
			}
		}
		finding.Destroyed = !opts.IsDryRun
		res.Findings = append(res.Findings, finding)
	}

	if !opts.IsDryRun && len(remaining) != len(data.GeneratedWorkDirs) {
		data.GeneratedWorkDirs = remaining
		if err := store.WriteCertifiedData(data); err != nil {
			return err
		}
	}
	return nil
}

// sweepHosts implements the machines class: hosts in STOPPED/DESTROYED
// older than the provider's retention window. Local hosts are never GC'd.
func (s *Sweeper) sweepHosts(ctx context.Context, p providers.Provider, providerName string, hosts []host.Host, opts SweepOptions, res *SweepResult) error {
	retention := DefaultDestroyedHostPersistedSeconds
	if v, ok := opts.DestroyedHostPersistedSeconds[providerName]; ok {
		retention = v
	}

	for _, h := range hosts {
		if h.IsLocal() {
			continue
		}
		state := h.State()
		if state != enums.HostStopped && state != enums.HostDestroyed {
			continue
		}

		stateful, ok := s.stateful(h)
		var updatedAt time.Time
		if ok {
			if data, err := stateful.Store().ReadCertifiedData(); err == nil {
				updatedAt = data.UpdatedAt
			}
		}
		if updatedAt.IsZero() || time.Since(updatedAt).Seconds() < retention {
			continue
		}

		finding := Finding{Kind: ResourceHost, Ref: string(h.GetID()), HostID: h.GetID(), Provider: providerName, Reason: fmt.Sprintf("stopped/destroyed for over %.0fs", retention)}
		if !opts.IsDryRun {
			if err := p.DestroyHost(ctx, h.GetID(), true); err != nil {
				finding.Error = err
				res.Findings = append(res.Findings, finding)
				if !s.recordOrAbort(res, opts, providerName, string(h.GetID()), err) {
					return err
				}
				continue
			}
			finding.Destroyed = true
		}
		res.Findings = append(res.Findings, finding)
	}
	return nil
}

func (s *Sweeper) sweepSnapshots(ctx context.Context, p providers.Provider, providerName string, h host.Host, opts SweepOptions, res *SweepResult) error {
	snaps, err := p.ListSnapshots(ctx, h.GetID())
	if err != nil {
		return s.abortOr(res, opts, providerName, "", err)
	}
	for _, snap := range snaps {
		if opts.SnapshotFilter != nil {
			match, err := opts.SnapshotFilter.EvalSnapshot(snap)
			if err != nil || !match {
				continue
			}
		}
		finding := Finding{Kind: ResourceSnapshot, Ref: string(snap.ID), HostID: h.GetID(), Provider: providerName, Reason: "matched snapshot filter"}
		if !opts.IsDryRun {
			if err := p.DeleteSnapshot(ctx, snap.ID); err != nil {
				finding.Error = err
				res.Findings = append(res.Findings, finding)
				if !s.recordOrAbort(res, opts, providerName, string(snap.ID), err) {
					return err
				}
				continue
			}
			finding.Destroyed = true
		}
		res.Findings = append(res.Findings, finding)
	}
	return nil
}

func (s *Sweeper) sweepVolumes(ctx context.Context, p providers.Provider, providerName string, h host.Host, opts SweepOptions, res *SweepResult) error {
	vols, err := p.ListVolumes(ctx, h.GetID())
	if err != nil {
		return s.abortOr(res, opts, providerName, "", err)
	}
	for _, vol := range vols {
		if opts.VolumeFilter != nil {
			match, err := opts.VolumeFilter.EvalVolume(vol)
			if err != nil || !match {
				continue
			}
		}
		finding := Finding{Kind: ResourceVolume, Ref: string(vol.ID), HostID: h.GetID(), Provider: providerName, Reason: "matched volume filter"}
		if !opts.IsDryRun {
			if err := p.DeleteVolume(ctx, vol.ID); err != nil {
				finding.Error = err
				res.Findings = append(res.Findings, finding)
				if !s.recordOrAbort(res, opts, providerName, string(vol.ID), err) {
					return err
				}
				continue
			}
			finding.Destroyed = true
		}
		res.Findings = append(res.Findings, finding)
	}
	return nil
}

func (s *Sweeper) abortOr(res *SweepResult, opts SweepOptions, provider, ref string, err error) error {
	if !s.recordOrAbort(res, opts, provider, ref, err) {
		return err
	}
	return nil
}

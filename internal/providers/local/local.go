// Package local implements the providers.Provider contract for the single
// machine mng itself runs on. There is exactly one local host, conventionally
// named "localhost", with no separate creation/connection step: its
// commands run as direct subprocesses, grounded on the teacher's direct
// os/exec use throughout internal/tmux rather than any remote transport.
package local

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/hoststore"
	"github.com/imbue-ai/mng/internal/host"
	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/providers"
)

// DefaultName is the conventional name for the single local host.
const DefaultName = "localhost"

// Host is the local machine's Host implementation: a thin shell around
// os/exec and the filesystem, with no network hop.
type Host struct {
	id      ids.HostID
	name    ids.HostName
	store   *hoststore.Store
	hostDir string
}

var _ host.Host = (*Host)(nil)

func (h *Host) IsLocal() bool { return true }

func (h *Host) ExecuteCommand(ctx context.Context, cmdline string, opts host.ExecuteOptions) (host.CommandResult, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if opts.TimeoutSeconds > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutSeconds*float64(time.Second)))
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "sh", "-c", cmdline)
	if opts.Cwd != "" {
		cmd.Dir = opts.Cwd
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return host.CommandResult{}, fmt.Errorf("local exec: starting %q: %w", cmdline, err)
	}
	runErr := cmd.Wait()

	return host.CommandResult{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Success: runErr == nil,
	}, nil
}

func (h *Host) ReadTextFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func (h *Host) WriteTextFile(ctx context.Context, path string, content string, mode uint32) error {
	return h.WriteFile(ctx, path, []byte(content), mode)
}

func (h *Host) WriteFile(ctx context.Context, path string, data []byte, mode uint32) error {
	if mode == 0 {
		mode = 0644
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating parent dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, os.FileMode(mode)); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (h *Host) GetAgentEnvPath(agent ids.AgentID) string { return h.store.AgentEnvPath(agent) }
func (h *Host) HostDir() string                          { return h.hostDir }
func (h *Host) GetName() ids.HostName                    { return h.name }
func (h *Host) GetID() ids.HostID                        { return h.id }
func (h *Host) State() enums.HostState                   { return enums.HostRunning }
func (h *Host) Store() *hoststore.Store                  { return h.store }

func (h *Host) LockCooperatively(ctx context.Context, fn func() error) error {
	return h.store.LockCooperatively(ctx, fn)
}

// Provider implements providers.Provider for the local machine.
type Provider struct {
	hostDir string
}

var _ providers.Provider = (*Provider)(nil)

// New returns a local Provider rooted at hostDir (conventionally ~/.mng).
func New(hostDir string) *Provider {
	return &Provider{hostDir: hostDir}
}

func (p *Provider) Name() string { return "local" }

func (p *Provider) open() (*Host, error) {
	store, err := hoststore.Open(p.hostDir)
	if err != nil {
		return nil, err
	}
	var id ids.HostID
	if data, err := store.ReadCertifiedData(); err == nil {
		id = data.ID
	} else {
		// First use: certify the host under the lock, re-checking for a
		// concurrent certifier that won the race.
		werr := store.LockCooperatively(context.Background(), func() error {
			if data, err := store.ReadCertifiedData(); err == nil {
				id = data.ID
				return nil
			}
			id = ids.NewHostID()
			return store.WriteCertifiedData(&hoststore.CertifiedHostData{
				ID:       id,
				Name:     ids.HostName(DefaultName),
				Provider: p.Name(),
				State:    enums.HostRunning,
			})
		})
		if werr != nil {
			return nil, werr
		}
	}
	return &Host{id: id, name: ids.HostName(DefaultName), store: store, hostDir: p.hostDir}, nil
}

// CreateHost is idempotent: the local machine has exactly one host, created
// lazily on first use and reused on every subsequent call regardless of
// opts.Name.
func (p *Provider) CreateHost(ctx context.Context, opts providers.CreateHostOptions) (host.Host, error) {
	return p.open()
}

func (p *Provider) StartHost(ctx context.Context, ref ids.HostID, snapshot ids.SnapshotID) (host.Host, error) {
	return p.open()
}

// StopHost is a no-op for the local host: there is no process to stop, only
// the agents running in it, which lifecycle.Stop handles per-agent.
func (p *Provider) StopHost(ctx context.Context, ref ids.HostID, opts providers.StopHostOptions) error {
	return nil
}

// DestroyHost refuses: the local host is never destroyed, only its agents.
func (p *Provider) DestroyHost(ctx context.Context, ref ids.HostID, deleteSnapshots bool) error {
	return &providers.ErrUnsupported{Provider: p.Name(), Operation: "destroy_host (the local host is permanent)"}
}

func (p *Provider) GetHost(ctx context.Context, idOrName string) (host.Host, error) {
	if idOrName != "" && idOrName != DefaultName && idOrName != "local" {
		return nil, fmt.Errorf("local provider has no host named %q", idOrName)
	}
	return p.open()
}

func (p *Provider) ListHosts(ctx context.Context, includeDestroyed bool) ([]host.Host, error) {
	h, err := p.open()
	if err != nil {
		return nil, err
	}
	return []host.Host{h}, nil
}

func (p *Provider) SupportsSnapshots() bool { return false }
func (p *Provider) ListSnapshots(ctx context.Context, hostID ids.HostID) ([]providers.Snapshot, error) {
	return nil, &providers.ErrUnsupported{Provider: p.Name(), Operation: "snapshots"}
}
func (p *Provider) CreateSnapshot(ctx context.Context, hostID ids.HostID) (providers.Snapshot, error) {
	return providers.Snapshot{}, &providers.ErrUnsupported{Provider: p.Name(), Operation: "snapshots"}
}
func (p *Provider) DeleteSnapshot(ctx context.Context, id ids.SnapshotID) error {
	return &providers.ErrUnsupported{Provider: p.Name(), Operation: "snapshots"}
}

func (p *Provider) SupportsVolumes() bool { return false }
func (p *Provider) ListVolumes(ctx context.Context, hostID ids.HostID) ([]providers.Volume, error) {
	return nil, &providers.ErrUnsupported{Provider: p.Name(), Operation: "volumes"}
}
func (p *Provider) DeleteVolume(ctx context.Context, id ids.VolumeID) error {
	return &providers.ErrUnsupported{Provider: p.Name(), Operation: "volumes"}
}

func (p *Provider) SupportsMutableTags() bool { return true }

func (p *Provider) SetHostTags(ctx context.Context, hostID ids.HostID, tags map[string]string) error {
	return p.mutateTags(func(d *hoststore.CertifiedHostData) { d.Tags = tags })
}

func (p *Provider) AddHostTags(ctx context.Context, hostID ids.HostID, tags map[string]string) error {
	return p.mutateTags(func(d *hoststore.CertifiedHostData) {
		if d.Tags == nil {
			d.Tags = map[string]string{}
		}
		for k, v := range tags {
			d.Tags[k] = v
		}
	})
}

func (p *Provider) RemoveHostTags(ctx context.Context, hostID ids.HostID, keys []string) error {
	return p.mutateTags(func(d *hoststore.CertifiedHostData) {
		for _, k := range keys {
			delete(d.Tags, k)
		}
	})
}

func (p *Provider) mutateTags(fn func(*hoststore.CertifiedHostData)) error {
	h, err := p.open()
	if err != nil {
		return err
	}
	return h.store.LockCooperatively(context.Background(), func() error {
		data, err := h.store.ReadCertifiedData()
		if err != nil {
			return err
		}
		fn(data)
		return h.store.WriteCertifiedData(data)
	})
}

func (p *Provider) GetConnector(ctx context.Context, h host.Host) (providers.Connector, error) {
	return providers.Connector{Command: nil}, nil
}

func (p *Provider) SnapshotFunc() providers.SnapshotFunc { return nil }

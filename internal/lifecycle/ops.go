package lifecycle

import (
	"context"
	"fmt"
	"os"

	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/host"
	"github.com/imbue-ai/mng/internal/hoststore"
	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/mngerr"
)

// ResolveByName finds the agent record named name on h, or a NotFoundError.
func (e *Engine) ResolveByName(h host.StatefulHost, name ids.AgentName) (*hoststore.AgentData, error) {
	store := h.Store()
	agentIDs, err := store.ListAgentIDs()
	if err != nil {
		return nil, err
	}
	for _, id := range agentIDs {
		rec, err := store.ReadAgentRecord(id)
		if err != nil {
			continue
		}
		if rec.Name == name {
			return rec, nil
		}
	}
	return nil, &mngerr.NotFoundError{Kind: "agent", Ref: string(name)}
}

// CurrentState recomputes an agent's lifecycle state from live signals,
// per spec.md §3 invariant 3: RUNNING requires the host online, the
// session existing, and a running pane process. A running agent whose
// activity sources (for the engine's idle mode) have all been quiet for
// longer than the idle timeout is WAITING, per spec.md §4.5. This is the
// authoritative state — the persisted State field is a cache written by
// Create/Start/Stop; this call reads it but never writes it.
func (e *Engine) CurrentState(h host.StatefulHost, rec *hoststore.AgentData) (enums.AgentLifecycleState, error) {
	if rec.State == enums.StateDone || rec.State == enums.StateReplaced {
		return rec.State, nil
	}
	if h.State() != enums.HostRunning {
		return enums.StateStopped, nil
	}
	exists, err := e.Tmux.HasSession(rec.SessionName)
	if err != nil {
		return "", err
	}
	if !exists {
		return enums.StateStopped, nil
	}
	cmd, err := e.Tmux.GetPaneCommand(rec.SessionName)
	if err != nil || cmd == "" {
		return enums.StateStopped, nil
	}
	idle, err := host.NewActivityRecorder(h.Store()).IsIdle(rec.ID, e.IdleMode, e.IdleTimeout)
	if err != nil {
		return "", err
	}
	if idle {
		return enums.StateWaiting, nil
	}
	return enums.StateRunning, nil
}

// Start re-launches the tmux session for a STOPPED agent with the record's
// startup command and touches the START activity source. It installs no
// readiness hooks and does not wait for readiness. The whole
// operation runs under the host lock: it mutates the persisted record and
// must not interleave with a concurrent destroy/rename of the same agent.
func (e *Engine) Start(ctx context.Context, h host.StatefulHost, rec *hoststore.AgentData) error {
	return h.LockCooperatively(ctx, func() error {
		state, err := e.CurrentState(h, rec)
		if err != nil {
			return err
		}
		if state == enums.StateRunning || state == enums.StateWaiting {
			return nil // already running: start is idempotent.
		}
		if err := e.startSession(rec, rec.Command, rec.WorkDir.String(), nil); err != nil {
			return fmt.Errorf("starting session for %s: %w", rec.Name, err)
		}
		if err := h.Store().TouchActivity(rec.ID, string(enums.ActivityStart)); err != nil {
			return err
		}
		rec.State = enums.StateRunning
		return h.Store().WriteAgentRecord(rec)
	})
}

// Stop kills the tmux session but preserves persisted state, under the
// host lock. With isDryRun set, Stop returns nil without killing the
// session or writing the record.
func (e *Engine) Stop(ctx context.Context, h host.StatefulHost, rec *hoststore.AgentData, isDryRun bool) error {
	if isDryRun {
		return nil
	}
	return h.LockCooperatively(ctx, func() error {
		if err := e.Tmux.KillSession(rec.SessionName); err != nil {
			return fmt.Errorf("killing session for %s: %w", rec.Name, err)
		}
		rec.State = enums.StateStopped
		return h.Store().WriteAgentRecord(rec)
	})
}

// DestroyOptions configures Destroy.
type DestroyOptions struct {
	Force         bool
	NoCopyWorkDir bool // when true, the work-dir is left on disk (set by destroy --no-copy-work-dir)
}

// DestroyNotifier is the slice of plugin.Registry that Destroy/Migrate need:
// just enough to fire on_agent_destroyed without lifecycle importing the
// plugin package back (plugin already imports host/hoststore, and lifecycle
// imports plugin in lifecycle.go — this keeps the dependency one-directional
// at the call site by accepting the interface instead of the concrete type).
type DestroyNotifier interface {
	DispatchAgentDestroyed(ctx context.Context, agent *hoststore.AgentData, h host.Host) []error
}

// Destroy implements spec.md §3 invariant 7: kill the tmux session, delete
// the work-dir (unless NoCopyWorkDir), remove the per-agent store
// directory, and remove the work-dir from certified host data — in that
// order, so a crash mid-destroy leaves the agent listed as STOPPED rather
// than silently vanishing. Destroying an agent whose session is already
// gone succeeds (idempotent), matching the boundary behavior in spec.md §8.
func (e *Engine) Destroy(ctx context.Context, plugins DestroyNotifier, h host.StatefulHost, rec *hoststore.AgentData, opts DestroyOptions) error {
	store := h.Store()

	// Session kill through certified-data rewrite are one multi-file
	// mutation: the whole sequence holds the host lock so a concurrent
	// create/rename/GC sweep on the same host observes either the agent
	// fully present or fully gone, never a half-destroyed record.
	err := h.LockCooperatively(ctx, func() error {
		if err := e.Tmux.KillSession(rec.SessionName); err != nil && !opts.Force {
			return fmt.Errorf("killing session for %s: %w", rec.Name, err)
		}

		// in_place work-dirs are never mng-generated (Create skips
		// registering them in generated_work_dirs for the same reason) and
		// must not be deleted here: the work dir is the caller's own source
		// directory, not a copy mng made.
		if !opts.NoCopyWorkDir && rec.WorkDir != "" && rec.WorkDirMode != enums.WorkDirInPlace {
			if err := os.RemoveAll(rec.WorkDir.String()); err != nil && !opts.Force {
				return fmt.Errorf("removing work dir %s: %w", rec.WorkDir, err)
			}
		}

		if err := store.DestroyAgentRecord(rec.ID); err != nil && !opts.Force {
			return fmt.Errorf("removing agent record for %s: %w", rec.Name, err)
		}

		if rec.WorkDirMode != enums.WorkDirInPlace {
			e.unregisterWorkDir(store, rec.WorkDir.String())
		}
		return nil
	})
	if err != nil {
		return err
	}

	if plugins != nil {
		_ = plugins.DispatchAgentDestroyed(ctx, rec, h)
	}
	return nil
}

// Rename renames the tmux session and rewrites the persisted agent record
// atomically under the host lock.
func (e *Engine) Rename(ctx context.Context, h host.StatefulHost, rec *hoststore.AgentData, newName ids.AgentName) error {
	if err := newName.Validate(); err != nil {
		return &mngerr.UserInputError{Message: err.Error()}
	}
	return h.LockCooperatively(ctx, func() error {
		if existing, err := e.ResolveByName(h, newName); err == nil && existing.ID != rec.ID {
			return &mngerr.PreconditionFailedError{Message: fmt.Sprintf("agent name %q already in use on this host", newName)}
		}
		newSession := e.sessionName(newName)
		state, err := e.CurrentState(h, rec)
		if err != nil {
			return err
		}
		if state == enums.StateRunning || state == enums.StateWaiting {
			if err := e.Tmux.RenameSession(rec.SessionName, newSession); err != nil {
				return fmt.Errorf("renaming session %s -> %s: %w", rec.SessionName, newSession, err)
			}
		}
		rec.Name = newName
		rec.SessionName = newSession
		return h.Store().WriteAgentRecord(rec)
	})
}

// CloneOptions configures Clone. Unspecified fields inherit from the
// source agent's own record.
type CloneOptions struct {
	NewName    ids.AgentName
	IncludeGit bool
	Create     CreateOptions // base options; Name is always NewName; AgentType/Command/StartOnBoot/WorkDirSource come from the source unless set; WorkDirMode defaults to clone or copy_source by IncludeGit
}

// PrepareClone implements create() with work_dir_source = source_agent.
// work_dir, per spec.md §4.4: "clone(source_agent, new_name?, host_ref?,
// options) = create where work_dir_source is source_agent.work_dir and
// unspecified options inherit from the source." It resolves CloneOptions
// into a concrete CreateOptions; the caller passes the result to
// Engine.Create against the destination host, since Create needs the
// concurrency group the caller already owns.
func (e *Engine) PrepareClone(src *hoststore.AgentData, opts CloneOptions) (CreateOptions, error) {
	if opts.NewName == "" {
		return CreateOptions{}, &mngerr.UserInputError{Message: "clone requires a new agent name"}
	}
	create := opts.Create
	create.Name = opts.NewName
	if create.AgentType == "" {
		create.AgentType = src.AgentType
	}
	if create.Command == "" {
		create.Command = src.Command
	}
	if !create.StartOnBoot {
		create.StartOnBoot = src.StartOnBoot
	}
	if create.WorkDirSource == "" {
		create.WorkDirSource = src.WorkDir.String()
	}
	if create.WorkDirMode == "" {
		if opts.IncludeGit {
			create.WorkDirMode = enums.WorkDirClone
		} else {
			create.WorkDirMode = enums.WorkDirCopySource
		}
	}
	return create, nil
}

// Migrate is the destroy half of a migration: it runs Destroy(source,
// force=true). The caller creates the clone beforehand (PrepareClone, then
// Create); cloned is not read here. If destroy fails, the clone is kept and
// the error is surfaced to the caller rather than rolled back, per spec.md
// §4.4.
func (e *Engine) Migrate(ctx context.Context, plugins DestroyNotifier, srcHost host.StatefulHost, src *hoststore.AgentData, cloned *Result) error {
	return e.Destroy(ctx, plugins, srcHost, src, DestroyOptions{Force: true})
}

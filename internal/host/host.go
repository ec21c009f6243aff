// Package host defines the provider-independent Host interface that every
// backend (internal/providers/local, docker, ssh, remotemng) implements,
// and the small ActivityRecorder helper layered on internal/hoststore that
// lifecycle and runtime code use to report liveness signals.
package host

import (
	"context"
	"time"

	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/hoststore"
	"github.com/imbue-ai/mng/internal/ids"
)

// CommandResult is the outcome of ExecuteCommand.
type CommandResult struct {
	Stdout  string
	Stderr  string
	Success bool
}

// ExecuteOptions configures ExecuteCommand. Zero value runs as the current
// user with no timeout in the host's default working directory.
type ExecuteOptions struct {
	User           string
	Cwd            string
	Env            []string
	TimeoutSeconds float64
}

// Host is the capability surface every provider backend exposes for a
// single machine, local or remote. Lifecycle, runtime, and sync code are
// written entirely against this interface so they work unmodified across
// backends.
type Host interface {
	// IsLocal reports whether commands run directly on the machine mng is
	// running on, without a network hop.
	IsLocal() bool

	// ExecuteCommand runs cmd as a shell command on the host.
	ExecuteCommand(ctx context.Context, cmd string, opts ExecuteOptions) (CommandResult, error)

	ReadTextFile(ctx context.Context, path string) (string, error)
	WriteTextFile(ctx context.Context, path string, content string, mode uint32) error
	WriteFile(ctx context.Context, path string, data []byte, mode uint32) error

	// GetAgentEnvPath returns the canonical env file location for agent.
	GetAgentEnvPath(agent ids.AgentID) string

	// HostDir is the root directory this host's store lives under.
	HostDir() string

	GetName() ids.HostName
	GetID() ids.HostID
	State() enums.HostState

	// LockCooperatively scopes mutual exclusion on the host's lock file
	// around fn; see hoststore.Store.LockCooperatively.
	LockCooperatively(ctx context.Context, fn func() error) error
}

// StatefulHost is implemented by hosts that can also provision and persist
// agent state directly, through the hoststore.Store returned by Store.
type StatefulHost interface {
	Host
	Store() *hoststore.Store
}

// ActivityRecorder records liveness signals for an agent by touching the
// corresponding activity file in the host's store.
type ActivityRecorder struct {
	store *hoststore.Store
}

func NewActivityRecorder(store *hoststore.Store) *ActivityRecorder {
	return &ActivityRecorder{store: store}
}

// Touch records that source fired for agent just now.
func (r *ActivityRecorder) Touch(agent ids.AgentID, source enums.ActivitySource) error {
	return r.store.TouchActivity(agent, string(source))
}

// LastActive returns the most recent activity time among sources, or the
// zero time if none of them have ever fired.
func (r *ActivityRecorder) LastActive(agent ids.AgentID, sources []enums.ActivitySource) (time.Time, error) {
	var latest time.Time
	for _, src := range sources {
		t, err := r.store.ActivityTime(agent, string(src))
		if err != nil {
			return time.Time{}, err
		}
		if t.After(latest) {
			latest = t
		}
	}
	return latest, nil
}

// IsIdle reports whether the agent has been inactive (across sources for
// mode) for longer than idleTimeout.
func (r *ActivityRecorder) IsIdle(agent ids.AgentID, mode enums.IdleMode, idleTimeout time.Duration) (bool, error) {
	last, err := r.LastActive(agent, mode.Sources())
	if err != nil {
		return false, err
	}
	if last.IsZero() {
		return false, nil
	}
	return time.Since(last) > idleTimeout, nil
}

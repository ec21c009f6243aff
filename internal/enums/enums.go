// Package enums defines the closed, string-backed vocabularies used across
// the orchestration engine, matching the pattern used elsewhere in this
// codebase for small controlled-vocabulary types (see internal/ids for the
// companion identifier types).
package enums

import "fmt"

// AgentLifecycleState is the totally-ordered-for-display state of an agent.
// Not every transition in this type is valid — see internal/lifecycle for
// the transition rules.
type AgentLifecycleState string

const (
	StateStopped  AgentLifecycleState = "STOPPED"
	StateRunning  AgentLifecycleState = "RUNNING"
	StateWaiting  AgentLifecycleState = "WAITING"
	StateReplaced AgentLifecycleState = "REPLACED"
	StateDone     AgentLifecycleState = "DONE"
)

// IsValid reports whether s is one of the declared lifecycle states.
func (s AgentLifecycleState) IsValid() bool {
	switch s {
	case StateStopped, StateRunning, StateWaiting, StateReplaced, StateDone:
		return true
	default:
		return false
	}
}

func (s AgentLifecycleState) String() string { return string(s) }

// AllAgentLifecycleStates returns every declared state, in display order.
func AllAgentLifecycleStates() []AgentLifecycleState {
	return []AgentLifecycleState{StateStopped, StateRunning, StateWaiting, StateReplaced, StateDone}
}

// HostState is the lifecycle state of a host. Local hosts are always
// HostStateRunning.
type HostState string

const (
	HostStarting  HostState = "STARTING"
	HostRunning   HostState = "RUNNING"
	HostStopping  HostState = "STOPPING"
	HostStopped   HostState = "STOPPED"
	HostDestroyed HostState = "DESTROYED"
)

func (s HostState) IsValid() bool {
	switch s {
	case HostStarting, HostRunning, HostStopping, HostStopped, HostDestroyed:
		return true
	default:
		return false
	}
}

func (s HostState) String() string { return string(s) }

// ActivitySource names a kind of liveness signal contributing to idle
// computation. Each source corresponds to an empty touch-file under
// agents/<id>/activity/<source> on the host.
type ActivitySource string

const (
	ActivityCreate  ActivitySource = "CREATE"
	ActivityStart   ActivitySource = "START"
	ActivityBoot    ActivitySource = "BOOT"
	ActivityUser    ActivitySource = "USER"
	ActivityAgent   ActivitySource = "AGENT"
	ActivitySSH     ActivitySource = "SSH"
	ActivityProcess ActivitySource = "PROCESS"
)

func (s ActivitySource) IsValid() bool {
	switch s {
	case ActivityCreate, ActivityStart, ActivityBoot, ActivityUser, ActivityAgent, ActivitySSH, ActivityProcess:
		return true
	default:
		return false
	}
}

func (s ActivitySource) String() string { return string(s) }

// AllActivitySources returns every declared activity source.
func AllActivitySources() []ActivitySource {
	return []ActivitySource{ActivityCreate, ActivityStart, ActivityBoot, ActivityUser, ActivityAgent, ActivitySSH, ActivityProcess}
}

// IdleMode is a policy declaring which activity sources count as "active".
type IdleMode string

const (
	// IdleModeUser considers only user-facing activity sources.
	IdleModeUser IdleMode = "USER"
	// IdleModeIO additionally considers agent/process I/O activity.
	IdleModeIO IdleMode = "IO"
)

func (m IdleMode) IsValid() bool {
	switch m {
	case IdleModeUser, IdleModeIO:
		return true
	default:
		return false
	}
}

func (m IdleMode) String() string { return string(m) }

// Sources returns the fixed set of ActivitySource values that count toward
// "active" under this idle mode, per spec: USER = {USER, SSH, CREATE,
// START, BOOT}; IO = USER ∪ {AGENT, PROCESS}.
func (m IdleMode) Sources() []ActivitySource {
	user := []ActivitySource{ActivityUser, ActivitySSH, ActivityCreate, ActivityStart, ActivityBoot}
	switch m {
	case IdleModeUser:
		return user
	case IdleModeIO:
		return append(append([]ActivitySource{}, user...), ActivityAgent, ActivityProcess)
	default:
		return nil
	}
}

// ErrorBehavior governs whether a bulk operation (list, gc, message)
// aborts on the first error or accumulates errors and continues.
type ErrorBehavior string

const (
	ErrorBehaviorAbort    ErrorBehavior = "ABORT"
	ErrorBehaviorContinue ErrorBehavior = "CONTINUE"
)

func (b ErrorBehavior) IsValid() bool {
	switch b {
	case ErrorBehaviorAbort, ErrorBehaviorContinue:
		return true
	default:
		return false
	}
}

func (b ErrorBehavior) String() string { return string(b) }

// CommandString is the shell command used to launch an agent's primary
// process. Kept as a distinct type (rather than a bare string) so lifecycle
// functions cannot accidentally transpose a command for a path — the same
// style the codebase uses for other semantically-distinct strings.
type CommandString string

func (c CommandString) String() string { return string(c) }

// IsEmpty reports whether the command string carries no command.
func (c CommandString) IsEmpty() bool { return c == "" }

// WorkDirPath is an absolute filesystem path to an agent's working
// directory on its host.
type WorkDirPath string

func (p WorkDirPath) String() string { return string(p) }

// Validate reports an error if the path is empty. Hosts may have different
// path conventions (Windows providers), so this rejects only the empty
// string; it does not check that the path is absolute.
func (p WorkDirPath) Validate() error {
	if p == "" {
		return fmt.Errorf("work dir path must not be empty")
	}
	return nil
}

// WorkDirMode selects how a new agent's work directory is prepared.
type WorkDirMode string

const (
	WorkDirInPlace    WorkDirMode = "in_place"
	WorkDirCopySource WorkDirMode = "copy_source"
	WorkDirWorktree   WorkDirMode = "worktree"
	WorkDirClone      WorkDirMode = "clone"
)

func (m WorkDirMode) IsValid() bool {
	switch m {
	case WorkDirInPlace, WorkDirCopySource, WorkDirWorktree, WorkDirClone:
		return true
	default:
		return false
	}
}

func (m WorkDirMode) String() string { return string(m) }

// UncommittedChangesPolicy governs sync behavior when a working tree is
// dirty.
type UncommittedChangesPolicy string

const (
	UncommittedFail  UncommittedChangesPolicy = "FAIL"
	UncommittedStash UncommittedChangesPolicy = "STASH"
	UncommittedForce UncommittedChangesPolicy = "FORCE"
)

func (p UncommittedChangesPolicy) IsValid() bool {
	switch p {
	case UncommittedFail, UncommittedStash, UncommittedForce:
		return true
	default:
		return false
	}
}

func (p UncommittedChangesPolicy) String() string { return string(p) }

// ConflictPolicy governs pair_files three-way reconciliation.
type ConflictPolicy string

const (
	ConflictNewer  ConflictPolicy = "NEWER"
	ConflictSource ConflictPolicy = "SOURCE"
	ConflictTarget ConflictPolicy = "TARGET"
	ConflictAsk    ConflictPolicy = "ASK"
)

func (p ConflictPolicy) IsValid() bool {
	switch p {
	case ConflictNewer, ConflictSource, ConflictTarget, ConflictAsk:
		return true
	default:
		return false
	}
}

// SyncDirection governs pair_files directionality.
type SyncDirection string

const (
	SyncBoth   SyncDirection = "BOTH"
	SyncSource SyncDirection = "SOURCE"
	SyncTarget SyncDirection = "TARGET"
)

func (d SyncDirection) IsValid() bool {
	switch d {
	case SyncBoth, SyncSource, SyncTarget:
		return true
	default:
		return false
	}
}

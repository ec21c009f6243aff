// Package mngerr defines the domain-meaningful error kinds the command
// entrypoint classifies into exit codes, per the error kinds enumerated for
// the orchestration engine: user input, not-found, precondition-failed,
// provider, plugin, binary/dependency, and lock errors. Concurrency and
// subprocess errors live in internal/concurrency since they're owned by
// that package's own contract; this package covers the domain-level kinds
// lifecycle, sync, gc, and query raise directly.
package mngerr

import "fmt"

// ExitCode is the process exit code a command entrypoint returns for a
// given error, per spec: 0 success, 1 general error, 2 bad CLI usage.
type ExitCode int

const (
	ExitSuccess ExitCode = 0
	ExitGeneral ExitCode = 1
	ExitUsage   ExitCode = 2
)

// UserInputError reports a malformed argument, a missing required field,
// or conflicting flags, detected before any side effect. Maps to ExitUsage.
type UserInputError struct {
	Message string
}

func (e *UserInputError) Error() string { return e.Message }

// NotFoundError reports that the named agent/host/snapshot/volume does not
// exist.
type NotFoundError struct {
	Kind string // "agent", "host", "snapshot", "volume"
	Ref  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Ref)
}

// PreconditionFailedError reports a precondition violation: a name already
// taken, a dirty working tree under UncommittedFail, an unsupported
// capability request.
type PreconditionFailedError struct {
	Message string
}

func (e *PreconditionFailedError) Error() string { return e.Message }

// ProviderError reports external system misbehavior: docker unreachable,
// SSH auth failure, a peer mng instance returning HTTP 500.
type ProviderError struct {
	Provider string
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %q: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider %q: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// PluginError reports that a plugin hook raised.
type PluginError struct {
	Plugin string
	Hook   string
	Cause  error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %q hook %q: %v", e.Plugin, e.Hook, e.Cause)
}

func (e *PluginError) Unwrap() error { return e.Cause }

// BinaryNotInstalledError reports that a required external binary (rsync,
// git, unison, tmux, docker, ssh) is missing, with a platform-specific
// install hint.
type BinaryNotInstalledError struct {
	Binary      string
	InstallHint string
}

func (e *BinaryNotInstalledError) Error() string {
	if e.InstallHint != "" {
		return fmt.Sprintf("required binary %q not found: %s", e.Binary, e.InstallHint)
	}
	return fmt.Sprintf("required binary %q not found on PATH", e.Binary)
}

// LockError reports that a protected operation was attempted without the
// host lock held.
type LockError struct {
	Message string
}

func (e *LockError) Error() string { return e.Message }

// ExitCodeFor classifies err into the exit code the command entrypoint
// should return. UserInputError maps to ExitUsage; everything else
// (including nil-adjacent sentinel cases the caller already handled) maps
// to ExitGeneral.
func ExitCodeFor(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	var uie *UserInputError
	if asUserInput(err, &uie) {
		return ExitUsage
	}
	return ExitGeneral
}

// asUserInput is a tiny errors.As wrapper kept local to avoid importing
// errors just for this one call site's readability.
func asUserInput(err error, target **UserInputError) bool {
	for err != nil {
		if uie, ok := err.(*UserInputError); ok {
			*target = uie
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

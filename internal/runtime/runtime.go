// Package runtime implements agent-runtime concerns layered on top of a
// tmux session: readiness polling and dialog-aware message delivery. Idle
// computation is not part of this package; internal/host's
// ActivityRecorder does it. It generalizes the teacher's
// tmux readiness/dialog-detection helpers (originally specific to a single
// agent CLI) into agent-type-parameterized hooks.
package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/imbue-ai/mng/internal/tmux"
)

// SendMessageError reports a failed message delivery: the target session
// does not exist, or checking, capturing or typing into it failed.
type SendMessageError struct {
	Session string
	Err     error
}

func (e *SendMessageError) Error() string {
	return fmt.Sprintf("sending message to session %q: %v", e.Session, e.Err)
}

func (e *SendMessageError) Unwrap() error { return e.Err }

// DialogDetectedError reports that send_message refused to type into a pane
// because an interactive dialog (permission prompt, confirmation) currently
// occupies it — typing now would interact with the dialog instead of the
// agent.
type DialogDetectedError struct {
	Session string
	Snippet string
}

func (e *DialogDetectedError) Error() string {
	return fmt.Sprintf("session %q shows an open dialog, refusing to send: %s", e.Session, e.Snippet)
}

// TimeoutError reports that WaitFor's condition never became true within
// its deadline.
type TimeoutError struct {
	Description string
	Timeout     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.Description)
}

// ReadinessCheck inspects current pane content (and any other agent-type
// specific signal) and reports whether the agent is ready to receive
// messages. DialogPatterns lists substrings whose presence in the pane
// indicates an open dialog rather than readiness.
type ReadinessCheck struct {
	// PrimaryPromptMarkers are substrings whose presence (any one) in the
	// pane indicates the agent has reached its primary, idle prompt.
	PrimaryPromptMarkers []string
	// DialogMarkers are substrings whose presence indicates an interactive
	// dialog is open and input would be misrouted.
	DialogMarkers []string
	// ReadinessFilePath, if set, must exist for the agent to be considered
	// ready (a hook script writes this once its own setup completes).
	ReadinessFilePath string
	FileExists        func(path string) bool
}

// Runtime drives a single tmux-backed agent session.
type Runtime struct {
	tm      *tmux.Tmux
	session string
}

func New(tm *tmux.Tmux, session string) *Runtime {
	return &Runtime{tm: tm, session: session}
}

// IsReady evaluates check against the current pane state.
func (r *Runtime) IsReady(check ReadinessCheck) (bool, error) {
	exists, err := r.tm.HasSession(r.session)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	content, err := r.tm.CapturePane(r.session, 60)
	if err != nil {
		return false, err
	}

	if containsAny(content, check.DialogMarkers) {
		return false, nil
	}
	if len(check.PrimaryPromptMarkers) > 0 && !containsAny(content, check.PrimaryPromptMarkers) {
		return false, nil
	}
	if check.ReadinessFilePath != "" && check.FileExists != nil && !check.FileExists(check.ReadinessFilePath) {
		return false, nil
	}
	return true, nil
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// WaitFor polls condition every pollInterval until it returns true or
// timeout elapses, returning a *TimeoutError on expiry.
func WaitFor(ctx context.Context, description string, timeout, pollInterval time.Duration, condition func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := condition()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return &TimeoutError{Description: description, Timeout: timeout}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// enterSubmissionWaitTimeout is how long SendMessage waits after pressing
// Enter for tmux to register the keystroke before returning.
const enterSubmissionWaitTimeout = 150 * time.Millisecond

// SendMessage captures the pane, refuses if a dialog is currently open,
// types text, submits with Enter, and waits briefly for submission to
// register.
func (r *Runtime) SendMessage(text string, dialogMarkers []string) error {
	exists, err := r.tm.HasSession(r.session)
	if err != nil {
		return &SendMessageError{Session: r.session, Err: err}
	}
	if !exists {
		return &SendMessageError{Session: r.session, Err: tmux.ErrSessionNotFound}
	}

	content, err := r.tm.CapturePane(r.session, 30)
	if err != nil {
		return &SendMessageError{Session: r.session, Err: err}
	}
	if containsAny(content, dialogMarkers) {
		return &DialogDetectedError{Session: r.session, Snippet: lastLine(content)}
	}

	if err := r.tm.SendKeys(r.session, text); err != nil {
		return &SendMessageError{Session: r.session, Err: err}
	}
	time.Sleep(enterSubmissionWaitTimeout)
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

package tmux

import "testing"

func TestWrapErrorClassifiesKnownStderr(t *testing.T) {
	tm := New()
	cases := []struct {
		stderr string
		want   error
	}{
		{"no server running on /tmp/tmux-0/default", ErrNoServer},
		{"duplicate session: foo", ErrSessionExists},
		{"can't find session: foo", ErrSessionNotFound},
	}
	for _, c := range cases {
		err := tm.wrapError(errSentinel, c.stderr, []string{"has-session"})
		if err != c.want {
			t.Errorf("wrapError(%q) = %v, want %v", c.stderr, err, c.want)
		}
	}
}

func TestWrapErrorFallsBackToRawStderr(t *testing.T) {
	tm := New()
	err := tm.wrapError(errSentinel, "some unrecognized failure", []string{"send-keys"})
	if err == nil || err == ErrNoServer || err == ErrSessionExists || err == ErrSessionNotFound {
		t.Fatalf("expected a generic wrapped error, got %v", err)
	}
}

var errSentinel = &testErr{}

type testErr struct{}

func (*testErr) Error() string { return "exit status 1" }

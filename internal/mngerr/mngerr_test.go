package mngerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCodeForNil(t *testing.T) {
	if got := ExitCodeFor(nil); got != ExitSuccess {
		t.Errorf("ExitCodeFor(nil) = %d, want ExitSuccess", got)
	}
}

func TestExitCodeForUserInputError(t *testing.T) {
	err := &UserInputError{Message: "bad flag"}
	if got := ExitCodeFor(err); got != ExitUsage {
		t.Errorf("ExitCodeFor(UserInputError) = %d, want ExitUsage", got)
	}
}

func TestExitCodeForWrappedUserInputError(t *testing.T) {
	err := fmt.Errorf("creating agent: %w", &UserInputError{Message: "bad flag"})
	if got := ExitCodeFor(err); got != ExitUsage {
		t.Errorf("ExitCodeFor(wrapped UserInputError) = %d, want ExitUsage", got)
	}
}

func TestExitCodeForOtherErrors(t *testing.T) {
	if got := ExitCodeFor(&NotFoundError{Kind: "agent", Ref: "x"}); got != ExitGeneral {
		t.Errorf("ExitCodeFor(NotFoundError) = %d, want ExitGeneral", got)
	}
	if got := ExitCodeFor(errors.New("boom")); got != ExitGeneral {
		t.Errorf("ExitCodeFor(plain error) = %d, want ExitGeneral", got)
	}
}

func TestNotFoundErrorMessage(t *testing.T) {
	err := &NotFoundError{Kind: "agent", Ref: "foo"}
	want := `agent "foo" not found`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestProviderErrorUnwrapAndMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ProviderError{Provider: "docker", Message: "create container", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("expected ProviderError to unwrap to its Cause")
	}
	want := `provider "docker": create container: connection refused`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestBinaryNotInstalledErrorWithAndWithoutHint(t *testing.T) {
	withHint := &BinaryNotInstalledError{Binary: "rsync", InstallHint: "apt install rsync"}
	if withHint.Error() != `required binary "rsync" not found: apt install rsync` {
		t.Errorf("Error() = %q", withHint.Error())
	}
	noHint := &BinaryNotInstalledError{Binary: "rsync"}
	if noHint.Error() != `required binary "rsync" not found on PATH` {
		t.Errorf("Error() = %q", noHint.Error())
	}
}

package concurrency

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunProcessToCompletionSuccess(t *testing.T) {
	res, err := RunProcessToCompletion(context.Background(), ProcessOptions{
		Cmd:            []string{"sh", "-c", "echo hello"},
		IsCheckedAfter: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d", res.ExitCode)
	}
	if res.Stdout != "hello\n" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}
}

func TestRunProcessToCompletionNonZeroExit(t *testing.T) {
	_, err := RunProcessToCompletion(context.Background(), ProcessOptions{
		Cmd:            []string{"sh", "-c", "echo oops >&2; exit 3"},
		IsCheckedAfter: true,
	})
	var pe *ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProcessError, got %T (%v)", err, err)
	}
	if pe.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", pe.ExitCode)
	}
}

func TestRunProcessToCompletionUncheckedDoesNotError(t *testing.T) {
	res, err := RunProcessToCompletion(context.Background(), ProcessOptions{
		Cmd: []string{"sh", "-c", "exit 9"},
	})
	if err != nil {
		t.Fatalf("unexpected error for unchecked exit: %v", err)
	}
	if res.ExitCode != 9 {
		t.Fatalf("expected exit code 9, got %d", res.ExitCode)
	}
}

func TestRunProcessToCompletionTimeout(t *testing.T) {
	_, err := RunProcessToCompletion(context.Background(), ProcessOptions{
		Cmd:     []string{"sleep", "5"},
		Timeout: 50 * time.Millisecond,
	})
	var te *ProcessTimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected *ProcessTimeoutError, got %T (%v)", err, err)
	}
}

func TestRunProcessToCompletionSetupError(t *testing.T) {
	_, err := RunProcessToCompletion(context.Background(), ProcessOptions{
		Cmd: []string{"definitely-not-a-real-binary-xyz"},
	})
	var se *ProcessSetupError
	if !errors.As(err, &se) {
		t.Fatalf("expected *ProcessSetupError, got %T (%v)", err, err)
	}
}

func TestRunProcessToCompletionEmptyCommand(t *testing.T) {
	_, err := RunProcessToCompletion(context.Background(), ProcessOptions{})
	var se *ProcessSetupError
	if !errors.As(err, &se) {
		t.Fatalf("expected *ProcessSetupError for empty command, got %T (%v)", err, err)
	}
}

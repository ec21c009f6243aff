package sync

import (
	"context"
	"os/exec"
	"testing"

	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/mngerr"
)

func requireUnison(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("unison"); err != nil {
		t.Skip("unison not installed, skipping integration test")
	}
}

func TestRemoteSpecLocalPath(t *testing.T) {
	got := remoteSpec("/remote/path", nil)
	if got != "/remote/path" {
		t.Fatalf("remoteSpec = %q, want /remote/path", got)
	}
}

func TestRemoteSpecSSHConnector(t *testing.T) {
	got := remoteSpec("/remote/path", []string{"ssh", "user@host"})
	want := "ssh://user@host//remote/path"
	if got != want {
		t.Fatalf("remoteSpec = %q, want %q", got, want)
	}
}

func TestPairFilesRejectsMissingConflictPolicy(t *testing.T) {
	requireUnison(t)
	_, err := PairFiles(context.Background(), t.TempDir(), t.TempDir(), nil, PairOptions{})
	if err == nil {
		t.Fatal("expected an error when Conflict is unset")
	}
	if _, ok := err.(*mngerr.UserInputError); !ok {
		t.Fatalf("expected a UserInputError, got %T: %v", err, err)
	}
}

func TestPairFilesRejectsUnknownConflictPolicy(t *testing.T) {
	requireUnison(t)
	_, err := PairFiles(context.Background(), t.TempDir(), t.TempDir(), nil, PairOptions{Conflict: enums.ConflictPolicy("bogus")})
	if err == nil {
		t.Fatal("expected an error for an unrecognized conflict policy")
	}
}

package sync

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/imbue-ai/mng/internal/enums"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed, skipping integration test")
	}
}

// gitRun runs a git command in dir with a deterministic committer identity,
// failing the test immediately on error since every call here is test
// fixture setup, not the code under test.
func gitRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=mng-test", "GIT_AUTHOR_EMAIL=mng-test@example.com",
		"GIT_COMMITTER_NAME=mng-test", "GIT_COMMITTER_EMAIL=mng-test@example.com",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return string(out)
}

func initRepoWithCommit(t *testing.T, branch, fileContent string) string {
	t.Helper()
	dir := t.TempDir()
	gitRun(t, dir, "init", "-b", branch)
	if err := os.WriteFile(filepath.Join(dir, "file.txt"), []byte(fileContent), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	gitRun(t, dir, "add", "file.txt")
	gitRun(t, dir, "commit", "-m", "initial")
	return dir
}

func TestHasUncommittedChangesDetectsDirtyTree(t *testing.T) {
	requireGit(t)
	dir := initRepoWithCommit(t, "main", "hello\n")

	dirty, err := HasUncommittedChanges(context.Background(), dir)
	if err != nil {
		t.Fatalf("HasUncommittedChanges: %v", err)
	}
	if dirty {
		t.Fatal("expected a freshly committed tree to be clean")
	}

	if err := os.WriteFile(filepath.Join(dir, "file.txt"), []byte("changed\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	dirty, err = HasUncommittedChanges(context.Background(), dir)
	if err != nil {
		t.Fatalf("HasUncommittedChanges: %v", err)
	}
	if !dirty {
		t.Fatal("expected the modified tree to be reported dirty")
	}
}

func TestEnforceUncommittedPolicyFail(t *testing.T) {
	requireGit(t)
	dir := initRepoWithCommit(t, "main", "hello\n")
	if err := os.WriteFile(filepath.Join(dir, "file.txt"), []byte("changed\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := EnforceUncommittedPolicy(context.Background(), dir, enums.UncommittedFail)
	var uce *UncommittedChangesError
	if !asUncommittedChangesError(err, &uce) {
		t.Fatalf("expected *UncommittedChangesError, got %T: %v", err, err)
	}
}

func asUncommittedChangesError(err error, target **UncommittedChangesError) bool {
	e, ok := err.(*UncommittedChangesError)
	if ok {
		*target = e
	}
	return ok
}

func TestEnforceUncommittedPolicyForceIgnoresDirtyTree(t *testing.T) {
	requireGit(t)
	dir := initRepoWithCommit(t, "main", "hello\n")
	if err := os.WriteFile(filepath.Join(dir, "file.txt"), []byte("changed\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	handle, err := EnforceUncommittedPolicy(context.Background(), dir, enums.UncommittedForce)
	if err != nil {
		t.Fatalf("EnforceUncommittedPolicy: %v", err)
	}
	if handle == nil || !handle.Empty {
		t.Fatalf("expected an empty stash handle under force policy, got %+v", handle)
	}
	got, err := os.ReadFile(filepath.Join(dir, "file.txt"))
	if err != nil || string(got) != "changed\n" {
		t.Fatalf("expected the dirty file to survive untouched, got %q, %v", got, err)
	}
}

func TestEnforceUncommittedPolicyStashAndRestore(t *testing.T) {
	requireGit(t)
	dir := initRepoWithCommit(t, "main", "hello\n")
	if err := os.WriteFile(filepath.Join(dir, "file.txt"), []byte("changed\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	handle, err := EnforceUncommittedPolicy(context.Background(), dir, enums.UncommittedStash)
	if err != nil {
		t.Fatalf("EnforceUncommittedPolicy: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "file.txt"))
	if err != nil || string(got) != "hello\n" {
		t.Fatalf("expected the stash to restore a clean tree, got %q, %v", got, err)
	}

	if err := handle.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got, err = os.ReadFile(filepath.Join(dir, "file.txt"))
	if err != nil || string(got) != "changed\n" {
		t.Fatalf("expected Restore to bring back the dirty edit, got %q, %v", got, err)
	}
}

func TestPushGitThenPullGitFastForwards(t *testing.T) {
	requireGit(t)
	origin := initRepoWithCommit(t, "main", "v1\n")

	bareDir := filepath.Join(t.TempDir(), "bare.git")
	gitRun(t, t.TempDir(), "init", "--bare", "-b", "main", bareDir)

	if _, err := PushGit(context.Background(), origin, bareDir, "main", GitOptions{TargetBranch: "main"}); err != nil {
		t.Fatalf("PushGit (initial): %v", err)
	}

	clone := t.TempDir()
	gitRun(t, t.TempDir(), "clone", bareDir, clone)

	if err := os.WriteFile(filepath.Join(origin, "file.txt"), []byte("v2\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	gitRun(t, origin, "add", "file.txt")
	gitRun(t, origin, "commit", "-m", "v2")

	if _, err := PushGit(context.Background(), origin, bareDir, "main", GitOptions{TargetBranch: "main"}); err != nil {
		t.Fatalf("PushGit (update): %v", err)
	}

	res, err := PullGit(context.Background(), clone, bareDir, "main", GitOptions{TargetBranch: "main", IsFastForwardOnly: true})
	if err != nil {
		t.Fatalf("PullGit: %v", err)
	}
	if !res.FastForwarded {
		t.Fatalf("expected a fast-forward pull, got %+v", res)
	}

	got, err := os.ReadFile(filepath.Join(clone, "file.txt"))
	if err != nil || string(got) != "v2\n" {
		t.Fatalf("expected the clone to see the pushed update, got %q, %v", got, err)
	}
}

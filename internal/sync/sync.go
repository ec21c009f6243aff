// Package sync implements the file/git synchronization primitives of
// spec.md §4.7: rsync-based push/pull, git branch push/pull, and a
// unison-style bidirectional pair_files, all shelling out to the external
// binaries they wrap — the same CLI-shelling idiom internal/doltserver uses
// for dolt/git rather than linking a client library, generalized here from
// dolt-specific sync bookkeeping (SyncOptions/SyncResult, HasRemote's
// shell-and-parse presence check) to rsync/git/unison.
package sync

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/imbue-ai/mng/internal/concurrency"
	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/mngerr"
)

// UncommittedChangesError reports that a sync operation refused to proceed
// because a working tree was dirty under UncommittedFail.
type UncommittedChangesError struct {
	Path string
}

func (e *UncommittedChangesError) Error() string {
	return fmt.Sprintf("%s has uncommitted changes; pass --uncommitted-changes=stash or =force to proceed", e.Path)
}

// TransferOptions configures PushFiles/PullFiles.
type TransferOptions struct {
	IsDelete          bool
	IsDryRun          bool
	UncommittedPolicy enums.UncommittedChangesPolicy
	ExtraArgs         []string
}

// TransferResult is rsync's reported effect, parsed from --stats output.
type TransferResult struct {
	FilesTransferred int
	BytesTransferred int64
}

func requireBinary(name string, hint string) error {
	if _, err := exec.LookPath(name); err != nil {
		return &mngerr.BinaryNotInstalledError{Binary: name, InstallHint: hint}
	}
	return nil
}

// PushFiles rsyncs localPath into remotePath on the agent's host, addressed
// through connectorCmd (an argv prefix like ["ssh", "user@host"], or nil for
// a local host where rsync runs without a remote-shell wrapper).
func PushFiles(ctx context.Context, localPath, remotePath string, connectorCmd []string, opts TransferOptions) (*TransferResult, error) {
	return runRsync(ctx, localPath, remotePath, connectorCmd, opts, false)
}

// PullFiles rsyncs remotePath on the agent's host into localPath.
func PullFiles(ctx context.Context, remotePath, localPath string, connectorCmd []string, opts TransferOptions) (*TransferResult, error) {
	return runRsync(ctx, remotePath, localPath, connectorCmd, opts, true)
}

func runRsync(ctx context.Context, src, dst string, connectorCmd []string, opts TransferOptions, isPull bool) (*TransferResult, error) {
	if err := requireBinary("rsync", "install rsync via your package manager (apt install rsync, brew install rsync)"); err != nil {
		return nil, err
	}

	args := []string{"-a", "--stats"}
	if opts.IsDelete {
		args = append(args, "--delete")
	}
	if opts.IsDryRun {
		args = append(args, "--dry-run")
	}
	if len(connectorCmd) > 0 {
		// connectorCmd ends with the remote address; rsync takes the rest
		// as its remote shell and the address as the remote side's prefix.
		remoteAddr := connectorCmd[len(connectorCmd)-1]
		args = append(args, "-e", strings.Join(connectorCmd[:len(connectorCmd)-1], " "))
		if isPull {
			src = remoteAddr + ":" + src
		} else {
			dst = remoteAddr + ":" + dst
		}
	}
	args = append(args, opts.ExtraArgs...)
	args = append(args, ensureTrailingSlash(src), ensureTrailingSlash(dst))

	result, err := concurrency.RunProcessToCompletion(ctx, concurrency.ProcessOptions{
		Cmd:            append([]string{"rsync"}, args...),
		IsCheckedAfter: true,
	})
	if err != nil {
		return nil, fmt.Errorf("rsync: %w", err)
	}
	return parseRsyncStats(result.Stdout), nil
}

func ensureTrailingSlash(p string) string {
	if p == "" || strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

var (
	reFilesTransferred = regexp.MustCompile(`Number of (?:regular )?files transferred: ([\d,]+)`)
	reBytesTransferred = regexp.MustCompile(`Total transferred file size: ([\d,]+) bytes`)
)

// parseRsyncStats extracts the two counters spec.md §4.7 requires from
// rsync's --stats text output.
func parseRsyncStats(stdout string) *TransferResult {
	res := &TransferResult{}
	if m := reFilesTransferred.FindStringSubmatch(stdout); m != nil {
		res.FilesTransferred, _ = strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	}
	if m := reBytesTransferred.FindStringSubmatch(stdout); m != nil {
		res.BytesTransferred, _ = strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
	}
	return res
}

// HasUncommittedChanges reports whether the git working tree at dir has any
// modified, staged, or untracked files, the same shell-and-parse idiom
// HasRemote uses for presence/config checks.
func HasUncommittedChanges(ctx context.Context, dir string) (bool, error) {
	if err := requireBinary("git", "install git via your package manager (apt install git, brew install git)"); err != nil {
		return false, err
	}
	result, err := concurrency.RunProcessToCompletion(ctx, concurrency.ProcessOptions{
		Cmd:            []string{"git", "-C", dir, "status", "--porcelain"},
		IsCheckedAfter: true,
	})
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return strings.TrimSpace(result.Stdout) != "", nil
}

// StashHandle records a stash created to satisfy UncommittedStash, so the
// caller can restore it once the sync operation that required a clean tree
// has completed.
type StashHandle struct {
	Dir   string
	Ref   string
	Empty bool
}

// EnforceUncommittedPolicy checks dir's working tree against policy,
// returning an UncommittedChangesError under UncommittedFail, stashing and
// returning a restorable StashHandle under UncommittedStash, or doing
// nothing under UncommittedForce.
func EnforceUncommittedPolicy(ctx context.Context, dir string, policy enums.UncommittedChangesPolicy) (*StashHandle, error) {
	dirty, err := HasUncommittedChanges(ctx, dir)
	if err != nil {
		return nil, err
	}
	if !dirty {
		return &StashHandle{Dir: dir, Empty: true}, nil
	}

	switch policy {
	case enums.UncommittedForce:
		return &StashHandle{Dir: dir, Empty: true}, nil
	case enums.UncommittedStash:
		if _, err := concurrency.RunProcessToCompletion(ctx, concurrency.ProcessOptions{
			Cmd:            []string{"git", "-C", dir, "stash", "push", "-u", "-m", "mng-sync-autostash"},
			IsCheckedAfter: true,
		}); err != nil {
			return nil, fmt.Errorf("stashing uncommitted changes in %s: %w", dir, err)
		}
		return &StashHandle{Dir: dir, Ref: "stash@{0}"}, nil
	case enums.UncommittedFail, "":
		return nil, &UncommittedChangesError{Path: dir}
	default:
		return nil, &mngerr.UserInputError{Message: fmt.Sprintf("unknown uncommitted changes policy %q", policy)}
	}
}

// Restore pops the stash this handle created, if any.
func (s *StashHandle) Restore(ctx context.Context) error {
	if s == nil || s.Empty || s.Ref == "" {
		return nil
	}
	_, err := concurrency.RunProcessToCompletion(ctx, concurrency.ProcessOptions{
		Cmd:            []string{"git", "-C", s.Dir, "stash", "pop"},
		IsCheckedAfter: true,
	})
	return err
}

package sync

import (
	"context"
	"fmt"

	"github.com/imbue-ai/mng/internal/concurrency"
	"github.com/imbue-ai/mng/internal/enums"
)

// GitOptions configures PushGit/PullGit/SyncGit.
type GitOptions struct {
	TargetBranch      string
	IsMirror          bool
	UncommittedPolicy enums.UncommittedChangesPolicy
	// IsFastForwardOnly, when true, rejects a merge commit: pull_git fast-
	// forwards target_branch instead of merging.
	IsFastForwardOnly bool
}

// GitResult reports what a git sync primitive did.
type GitResult struct {
	MergedCommit     string
	FastForwarded    bool
	Stash            *StashHandle
}

func runGit(ctx context.Context, dir string, args ...string) (*concurrency.ProcessResult, error) {
	return concurrency.RunProcessToCompletion(ctx, concurrency.ProcessOptions{
		Cmd:            append([]string{"git", "-C", dir}, args...),
		IsCheckedAfter: true,
	})
}

// SyncGit is the primitive both PushGit and PullGit build on: it fetches
// (or pushes) srcBranch between localDir and remote, then either merges or
// fast-forwards into target_branch, honoring the uncommitted-changes
// policy on localDir.
func SyncGit(ctx context.Context, localDir, remote, srcBranch string, opts GitOptions, isPush bool) (*GitResult, error) {
	if err := requireBinary("git", "install git via your package manager (apt install git, brew install git)"); err != nil {
		return nil, err
	}

	stash, err := EnforceUncommittedPolicy(ctx, localDir, opts.UncommittedPolicy)
	if err != nil {
		return nil, err
	}
	res := &GitResult{Stash: stash}

	if isPush {
		pushArgs := []string{"push"}
		if opts.IsMirror {
			pushArgs = append(pushArgs, "--mirror", remote)
		} else {
			pushArgs = append(pushArgs, remote, fmt.Sprintf("%s:%s", srcBranch, opts.TargetBranch))
		}
		if _, err := runGit(ctx, localDir, pushArgs...); err != nil {
			_ = stash.Restore(ctx)
			return nil, fmt.Errorf("git push: %w", err)
		}
		if err := stash.Restore(ctx); err != nil {
			return res, fmt.Errorf("restoring stash after push: %w", err)
		}
		return res, nil
	}

	if _, err := runGit(ctx, localDir, "fetch", remote, fmt.Sprintf("%s:refs/mng/fetch", srcBranch)); err != nil {
		_ = stash.Restore(ctx)
		return nil, fmt.Errorf("git fetch: %w", err)
	}

	if opts.TargetBranch != "" {
		if _, err := runGit(ctx, localDir, "checkout", opts.TargetBranch); err != nil {
			_ = stash.Restore(ctx)
			return nil, fmt.Errorf("git checkout %s: %w", opts.TargetBranch, err)
		}
	}

	if opts.IsFastForwardOnly {
		if _, err := runGit(ctx, localDir, "merge", "--ff-only", "refs/mng/fetch"); err != nil {
			_ = stash.Restore(ctx)
			return nil, fmt.Errorf("git fast-forward merge: %w", err)
		}
		res.FastForwarded = true
	} else {
		if _, err := runGit(ctx, localDir, "merge", "refs/mng/fetch", "-m", "mng sync merge"); err != nil {
			_ = stash.Restore(ctx)
			return nil, fmt.Errorf("git merge: %w", err)
		}
		headResult, err := runGit(ctx, localDir, "rev-parse", "HEAD")
		if err == nil {
			res.MergedCommit = trimNewline(headResult.Stdout)
		}
	}

	if err := stash.Restore(ctx); err != nil {
		return res, fmt.Errorf("restoring stash after pull: %w", err)
	}
	return res, nil
}

// PushGit pushes localDir's srcBranch to remote's TargetBranch (or mirrors
// the whole repository when IsMirror is set).
func PushGit(ctx context.Context, localDir, remote, srcBranch string, opts GitOptions) (*GitResult, error) {
	return SyncGit(ctx, localDir, remote, srcBranch, opts, true)
}

// PullGit fetches remote's srcBranch into a local mirror ref, then either
// merges into TargetBranch or fast-forwards it, per IsFastForwardOnly.
func PullGit(ctx context.Context, localDir, remote, srcBranch string, opts GitOptions) (*GitResult, error) {
	return SyncGit(ctx, localDir, remote, srcBranch, opts, false)
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/imbue-ai/mng/internal/concurrency"
	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/mngerr"
)

// prepareWorkDir implements spec.md §4.4 step 3's four modes. dest is the
// freshly generated directory to use for every mode except in_place (which
// ignores dest and returns opts.WorkDirSource unchanged). branch is the new
// branch name for worktree/clone modes.
func prepareWorkDir(ctx context.Context, g *concurrency.Group, opts CreateOptions, dest, branch string) (string, error) {
	switch opts.WorkDirMode {
	case enums.WorkDirInPlace:
		if opts.WorkDirSource == "" {
			return "", &mngerr.UserInputError{Message: "in_place work dir mode requires a source path"}
		}
		return opts.WorkDirSource, nil

	case enums.WorkDirCopySource:
		if err := requireBinary("rsync"); err != nil {
			return "", err
		}
		if err := os.MkdirAll(dest, 0755); err != nil {
			return "", fmt.Errorf("creating work dir %s: %w", dest, err)
		}
		_, err := concurrency.RunProcessToCompletion(ctx, concurrency.ProcessOptions{
			Cmd:            []string{"rsync", "-a", ensureTrailingSlash(opts.WorkDirSource), ensureTrailingSlash(dest)},
			IsCheckedAfter: true,
		})
		if err != nil {
			return "", fmt.Errorf("copying source into work dir: %w", err)
		}
		return dest, nil

	case enums.WorkDirWorktree:
		if err := requireBinary("git"); err != nil {
			return "", err
		}
		if opts.BaseBranch == "" {
			return "", &mngerr.UserInputError{Message: "worktree work dir mode requires a base branch"}
		}
		args := []string{"-C", opts.WorkDirSource, "worktree", "add", dest, "-b", branch, opts.BaseBranch}
		if _, err := concurrency.RunProcessToCompletion(ctx, concurrency.ProcessOptions{Cmd: append([]string{"git"}, args...), IsCheckedAfter: true}); err != nil {
			return "", fmt.Errorf("creating git worktree: %w", err)
		}
		return dest, nil

	case enums.WorkDirClone:
		if err := requireBinary("git"); err != nil {
			return "", err
		}
		if _, err := concurrency.RunProcessToCompletion(ctx, concurrency.ProcessOptions{
			Cmd:            []string{"git", "clone", opts.WorkDirSource, dest},
			IsCheckedAfter: true,
		}); err != nil {
			return "", fmt.Errorf("cloning source: %w", err)
		}
		if branch != "" {
			if _, err := concurrency.RunProcessToCompletion(ctx, concurrency.ProcessOptions{
				Cmd:            []string{"git", "-C", dest, "checkout", "-b", branch},
				IsCheckedAfter: true,
			}); err != nil {
				return "", fmt.Errorf("checking out new branch: %w", err)
			}
		}
		return dest, nil

	default:
		return "", &mngerr.UserInputError{Message: fmt.Sprintf("unknown work dir mode %q", opts.WorkDirMode)}
	}
}

func ensureTrailingSlash(p string) string {
	if p == "" || p[len(p)-1] == '/' {
		return p
	}
	return p + "/"
}

// requireBinary reports a BinaryNotInstalledError with an install hint if
// name cannot be found on PATH, per spec.md §4.7's shared dependency-check
// contract (reused here since work-dir preparation shells the same
// binaries the sync engine does).
func requireBinary(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return &mngerr.BinaryNotInstalledError{Binary: name, InstallHint: installHint(name)}
	}
	return nil
}

func installHint(name string) string {
	switch name {
	case "rsync":
		return "install rsync via your package manager (apt install rsync, brew install rsync)"
	case "git":
		return "install git via your package manager (apt install git, brew install git)"
	case "unison":
		return "install unison via your package manager (apt install unison, brew install unison)"
	default:
		return fmt.Sprintf("install %s and ensure it is on PATH", name)
	}
}

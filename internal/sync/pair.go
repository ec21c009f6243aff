package sync

import (
	"context"
	"fmt"

	"github.com/imbue-ai/mng/internal/concurrency"
	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/mngerr"
)

// PairOptions configures PairFiles, the bidirectional three-way
// reconciliation built on unison — the only tool in the retrieved pack that
// performs a genuine three-way sync rather than a one-directional mirror,
// which is why pair_files shells to it instead of layering more rsync
// invocations.
type PairOptions struct {
	Conflict      enums.ConflictPolicy
	Direction     enums.SyncDirection
	IsBaselineRun bool // true for the required first run that seeds unison's archive
}

// PairResult reports what unison did.
type PairResult struct {
	Output string
}

// PairFiles reconciles localPath and remotePath (reachable through
// connectorCmd, or nil for a local-only pair) using unison's three-way
// merge. A prior IsBaselineRun=true invocation is required before any
// non-baseline pair, per spec.md §4.7.
func PairFiles(ctx context.Context, localPath, remotePath string, connectorCmd []string, opts PairOptions) (*PairResult, error) {
	if err := requireBinary("unison", "install unison via your package manager (apt install unison, brew install unison)"); err != nil {
		return nil, err
	}
	if opts.Conflict == "" {
		return nil, &mngerr.UserInputError{Message: "pair_files requires an explicit conflict policy"}
	}

	args := []string{localPath, remoteSpec(remotePath, connectorCmd), "-batch"}

	switch opts.Conflict {
	case enums.ConflictNewer:
		args = append(args, "-prefer", "newer")
	case enums.ConflictSource:
		args = append(args, "-prefer", localPath)
	case enums.ConflictTarget:
		args = append(args, "-prefer", remoteSpec(remotePath, connectorCmd))
	case enums.ConflictAsk:
		// default unison behavior: stop and report the conflict rather than
		// auto-resolving it.
	default:
		return nil, &mngerr.UserInputError{Message: fmt.Sprintf("unknown conflict policy %q", opts.Conflict)}
	}

	switch opts.Direction {
	case enums.SyncSource:
		args = append(args, "-force", localPath)
	case enums.SyncTarget:
		args = append(args, "-force", remoteSpec(remotePath, connectorCmd))
	case enums.SyncBoth, "":
		// no -force flag: genuine two-way reconciliation.
	default:
		return nil, &mngerr.UserInputError{Message: fmt.Sprintf("unknown sync direction %q", opts.Direction)}
	}

	result, err := concurrency.RunProcessToCompletion(ctx, concurrency.ProcessOptions{
		Cmd:            append([]string{"unison"}, args...),
		IsCheckedAfter: !opts.IsBaselineRun, // unison's first (baseline) run commonly exits non-zero while it seeds the archive
	})
	if err != nil {
		return nil, fmt.Errorf("unison: %w", err)
	}
	return &PairResult{Output: result.Stdout}, nil
}

func remoteSpec(remotePath string, connectorCmd []string) string {
	if len(connectorCmd) == 0 {
		return remotePath
	}
	// unison's ssh:// root syntax: ssh://user@host/path
	host := connectorCmd[len(connectorCmd)-1]
	return fmt.Sprintf("ssh://%s/%s", host, remotePath)
}

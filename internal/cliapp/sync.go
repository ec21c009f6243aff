package cliapp

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/mngerr"
	"github.com/imbue-ai/mng/internal/sync"
)

var (
	pushProvider      string
	pushLocalPath     string
	pushDelete        bool
	pushDryRun        bool
	pushUncommitted   string

	pullProvider    string
	pullLocalPath   string
	pullDelete      bool
	pullDryRun      bool
	pullUncommitted string

	pairProvider  string
	pairLocalPath string
	pairConflict  string
	pairDirection string
	pairBaseline  bool
)

var pushCmd = &cobra.Command{
	Use:     "push NAME",
	GroupID: GroupMaintenance,
	Short:   "rsync a local directory to an agent's work dir",
	Args:    cobra.ExactArgs(1),
	RunE:    runPush,
}

var pullCmd = &cobra.Command{
	Use:     "pull NAME",
	GroupID: GroupMaintenance,
	Short:   "rsync an agent's work dir to a local directory",
	Args:    cobra.ExactArgs(1),
	RunE:    runPull,
}

var pairCmd = &cobra.Command{
	Use:     "pair NAME",
	GroupID: GroupMaintenance,
	Short:   "bidirectionally reconcile a local directory with an agent's work dir",
	Long: `Three-way reconciliation via unison. A --baseline run is required
before any subsequent non-baseline pair to seed unison's archive.`,
	Args: cobra.ExactArgs(1),
	RunE: runPair,
}

func init() {
	pushCmd.Flags().StringVar(&pushProvider, "provider", "", "provider the agent's host belongs to (default: local)")
	pushCmd.Flags().StringVar(&pushLocalPath, "local", ".", "local directory pushed to the agent")
	pushCmd.Flags().BoolVar(&pushDelete, "delete", false, "mirror deletions (rsync --delete)")
	pushCmd.Flags().BoolVar(&pushDryRun, "dry-run", false, "rsync --dry-run")
	pushCmd.Flags().StringVar(&pushUncommitted, "uncommitted-changes", "fail", "fail|stash|force")

	pullCmd.Flags().StringVar(&pullProvider, "provider", "", "provider the agent's host belongs to (default: local)")
	pullCmd.Flags().StringVar(&pullLocalPath, "local", ".", "local directory the agent's work dir is pulled into")
	pullCmd.Flags().BoolVar(&pullDelete, "delete", false, "mirror deletions (rsync --delete)")
	pullCmd.Flags().BoolVar(&pullDryRun, "dry-run", false, "rsync --dry-run")
	pullCmd.Flags().StringVar(&pullUncommitted, "uncommitted-changes", "fail", "fail|stash|force")

	pairCmd.Flags().StringVar(&pairProvider, "provider", "", "provider the agent's host belongs to (default: local)")
	pairCmd.Flags().StringVar(&pairLocalPath, "local", ".", "local directory paired with the agent's work dir")
	pairCmd.Flags().StringVar(&pairConflict, "conflict", "newer", "newer|source|target|ask")
	pairCmd.Flags().StringVar(&pairDirection, "direction", "both", "both|source|target")
	pairCmd.Flags().BoolVar(&pairBaseline, "baseline", false, "seed unison's archive on a first run")

	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pairCmd)
}

func uncommittedPolicy(s string) (enums.UncommittedChangesPolicy, error) {
	switch s {
	case "fail", "":
		return enums.UncommittedFail, nil
	case "stash":
		return enums.UncommittedStash, nil
	case "force":
		return enums.UncommittedForce, nil
	default:
		return "", &mngerr.UserInputError{Message: fmt.Sprintf("invalid --uncommitted-changes %q", s)}
	}
}

// resolveSyncTarget looks up the agent and its host's connector, returning
// the agent's work dir and the argv prefix (nil for a local host) that
// reaches it.
func resolveSyncTarget(cmd *cobra.Command, providerName, agentName string) (workDir string, connectorCmd []string, err error) {
	ctx := cmd.Context()
	providerInstance, p, err := current.resolveProvider(providerName)
	if err != nil {
		return "", nil, err
	}
	sh, err := resolveAgentHost(ctx, current, providerInstance)
	if err != nil {
		return "", nil, err
	}
	rec, err := current.Engine.ResolveByName(sh, ids.AgentName(agentName))
	if err != nil {
		return "", nil, err
	}
	if sh.IsLocal() {
		return rec.WorkDir.String(), nil, nil
	}
	conn, err := p.GetConnector(ctx, sh)
	if err != nil {
		return "", nil, err
	}
	return rec.WorkDir.String(), conn.Command, nil
}

func runPush(cmd *cobra.Command, args []string) error {
	policy, err := uncommittedPolicy(pushUncommitted)
	if err != nil {
		return err
	}
	remoteDir, connectorCmd, err := resolveSyncTarget(cmd, pushProvider, args[0])
	if err != nil {
		return err
	}
	res, err := sync.PushFiles(cmd.Context(), pushLocalPath, remoteDir, connectorCmd, sync.TransferOptions{
		IsDelete: pushDelete, IsDryRun: pushDryRun, UncommittedPolicy: policy,
	})
	if err != nil {
		return err
	}
	fmt.Printf("pushed %d file(s), %d byte(s)\n", res.FilesTransferred, res.BytesTransferred)
	return nil
}

func runPull(cmd *cobra.Command, args []string) error {
	policy, err := uncommittedPolicy(pullUncommitted)
	if err != nil {
		return err
	}
	remoteDir, connectorCmd, err := resolveSyncTarget(cmd, pullProvider, args[0])
	if err != nil {
		return err
	}
	res, err := sync.PullFiles(cmd.Context(), remoteDir, pullLocalPath, connectorCmd, sync.TransferOptions{
		IsDelete: pullDelete, IsDryRun: pullDryRun, UncommittedPolicy: policy,
	})
	if err != nil {
		return err
	}
	fmt.Printf("pulled %d file(s), %d byte(s)\n", res.FilesTransferred, res.BytesTransferred)
	return nil
}

func runPair(cmd *cobra.Command, args []string) error {
	var conflict enums.ConflictPolicy
	switch pairConflict {
	case "newer", "":
		conflict = enums.ConflictNewer
	case "source":
		conflict = enums.ConflictSource
	case "target":
		conflict = enums.ConflictTarget
	case "ask":
		conflict = enums.ConflictAsk
	default:
		return &mngerr.UserInputError{Message: fmt.Sprintf("invalid --conflict %q", pairConflict)}
	}
	var direction enums.SyncDirection
	switch pairDirection {
	case "both", "":
		direction = enums.SyncBoth
	case "source":
		direction = enums.SyncSource
	case "target":
		direction = enums.SyncTarget
	default:
		return &mngerr.UserInputError{Message: fmt.Sprintf("invalid --direction %q", pairDirection)}
	}

	remoteDir, connectorCmd, err := resolveSyncTarget(cmd, pairProvider, args[0])
	if err != nil {
		return err
	}
	res, err := sync.PairFiles(cmd.Context(), pairLocalPath, remoteDir, connectorCmd, sync.PairOptions{
		Conflict: conflict, Direction: direction, IsBaselineRun: pairBaseline,
	})
	if err != nil {
		return err
	}
	fmt.Print(res.Output)
	return nil
}

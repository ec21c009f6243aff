package cliapp

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/gc"
	"github.com/imbue-ai/mng/internal/mngerr"
	"github.com/imbue-ai/mng/internal/query"
	"github.com/imbue-ai/mng/internal/style"
)

var (
	gcKinds          []string
	gcDryRun         bool
	gcOnError        string
	gcSnapshotFilter string
	gcVolumeFilter   string
)

var gcCmd = &cobra.Command{
	Use:     "gc",
	GroupID: GroupMaintenance,
	Short:   "Sweep orphaned work dirs, stale hosts, snapshots, and volumes",
	Long: fmt.Sprintf(`--kinds selects which resource classes to sweep (work_dir, host,
snapshot, volume); the default sweeps all four. --dry-run lists what
would be destroyed without any side effect. Destroyed or stopped hosts
are kept for %.0f seconds by default; config can override this globally
or per provider.`, gc.DefaultDestroyedHostPersistedSeconds),
	RunE: runGC,
}

func init() {
	gcCmd.Flags().StringSliceVar(&gcKinds, "kinds", nil, "work_dir,host,snapshot,volume (default: all)")
	gcCmd.Flags().BoolVar(&gcDryRun, "dry-run", false, "report findings without destroying anything")
	gcCmd.Flags().StringVar(&gcOnError, "on-error", "continue", "abort|continue")
	gcCmd.Flags().StringVar(&gcSnapshotFilter, "snapshot-filter", "", "CEL predicate restricting swept snapshots")
	gcCmd.Flags().StringVar(&gcVolumeFilter, "volume-filter", "", "CEL predicate restricting swept volumes")

	rootCmd.AddCommand(gcCmd)
}

func runGC(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	errBehavior := enums.ErrorBehaviorContinue
	switch gcOnError {
	case "abort":
		errBehavior = enums.ErrorBehaviorAbort
	case "continue", "":
	default:
		return &mngerr.UserInputError{Message: fmt.Sprintf("invalid --on-error %q", gcOnError)}
	}

	var kinds []gc.ResourceKind
	for _, k := range gcKinds {
		kinds = append(kinds, gc.ResourceKind(k))
	}

	var snapFilter, volFilter *query.Program
	if gcSnapshotFilter != "" {
		p, err := query.Compile(gcSnapshotFilter)
		if err != nil {
			return &mngerr.UserInputError{Message: err.Error()}
		}
		snapFilter = p
	}
	if gcVolumeFilter != "" {
		p, err := query.Compile(gcVolumeFilter)
		if err != nil {
			return &mngerr.UserInputError{Message: err.Error()}
		}
		volFilter = p
	}

	destroyedHostSeconds := map[string]float64{}
	for name := range current.Providers {
		destroyedHostSeconds[name] = current.Config.DestroyedHostRetention(name)
	}

	sweeper := gc.New(current.Providers)
	sweeper.Bind = bindCurrentHost
	res, err := sweeper.Sweep(ctx, gc.SweepOptions{
		Kinds:                         kinds,
		IsDryRun:                      gcDryRun,
		ErrorBehavior:                 errBehavior,
		DestroyedHostPersistedSeconds: destroyedHostSeconds,
		SnapshotFilter:                snapFilter,
		VolumeFilter:                  volFilter,
	})
	if err != nil {
		return err
	}

	fmt.Println(style.FindingTable(res.Findings).Render())
	fmt.Println(style.FormatCount("finding", len(res.Findings)))
	for _, e := range res.Errors {
		fmt.Println(style.RenderError(fmt.Sprintf("%s/%s: %s", e.Provider, e.Host, e.Message)))
	}
	return nil
}

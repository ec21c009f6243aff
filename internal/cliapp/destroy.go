package cliapp

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/lifecycle"
)

var (
	destroyProvider      string
	destroyForce         bool
	destroyNoCopyWorkDir bool
)

var destroyCmd = &cobra.Command{
	Use:     "destroy NAME",
	GroupID: GroupAgents,
	Short:   "Destroy an agent: kill its session, delete its work dir and record",
	Long: `Destroy is terminal but idempotent: destroying an agent whose tmux
session is already gone still succeeds. Pass --no-copy-work-dir to leave
the work directory on disk (e.g. right after a migrate clones it onto a
new agent).`,
	Args: cobra.ExactArgs(1),
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().StringVar(&destroyProvider, "provider", "", "provider the agent's host belongs to (default: local)")
	destroyCmd.Flags().BoolVar(&destroyForce, "force", false, "ignore errors killing the session, removing the work dir, or removing the record")
	destroyCmd.Flags().BoolVar(&destroyNoCopyWorkDir, "no-copy-work-dir", false, "leave the work directory on disk")

	rootCmd.AddCommand(destroyCmd)
}

func runDestroy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := ids.AgentName(args[0])
	sh, err := resolveAgentHost(ctx, current, destroyProvider)
	if err != nil {
		return err
	}
	rec, err := current.Engine.ResolveByName(sh, name)
	if err != nil {
		return err
	}
	opts := lifecycle.DestroyOptions{Force: destroyForce, NoCopyWorkDir: destroyNoCopyWorkDir}
	if err := current.Engine.Destroy(ctx, current.Plugins, sh, rec, opts); err != nil {
		return err
	}
	fmt.Printf("destroyed agent %s\n", name)
	return nil
}

package cliapp

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imbue-ai/mng/internal/ids"
)

var (
	migrateSourceProvider string
	migrateDestProvider   string
	migrateDestHost       string
	migrateIncludeGit     bool
)

var migrateCmd = &cobra.Command{
	Use:     "migrate SOURCE_NAME NEW_NAME",
	GroupID: GroupAgents,
	Short:   "Clone an agent onto a new host, then destroy the source",
	Long: `migrate = clone followed by destroy(source, force=true). If the clone
succeeds but the destroy fails (e.g. a concurrent lock holder), the error
is surfaced and the clone is kept rather than rolled back.`,
	Args: cobra.ExactArgs(2),
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateSourceProvider, "provider", "", "provider the source agent's host belongs to (default: local)")
	migrateCmd.Flags().StringVar(&migrateDestProvider, "dest-provider", "", "provider for the destination host (default: same as source)")
	migrateCmd.Flags().StringVar(&migrateDestHost, "dest-host", "", "existing host id/name for the destination (default: source's host)")
	migrateCmd.Flags().BoolVar(&migrateIncludeGit, "include-git", true, "carry the source's git history instead of a plain copy")

	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	sourceName, newName := args[0], args[1]

	res, err := doClone(cmd, sourceName, newName, migrateSourceProvider, migrateDestProvider, migrateDestHost, migrateIncludeGit)
	if err != nil {
		return fmt.Errorf("migrate: clone failed: %w", err)
	}
	fmt.Printf("cloned agent %s -> %s (%s)\n", sourceName, res.Agent.Name, res.Agent.ID)

	ctx := cmd.Context()
	srcHostSH, err := resolveAgentHost(ctx, current, migrateSourceProvider)
	if err != nil {
		return fmt.Errorf("migrate: clone succeeded but locating source host failed: %w", err)
	}
	src, err := current.Engine.ResolveByName(srcHostSH, ids.AgentName(sourceName))
	if err != nil {
		return fmt.Errorf("migrate: clone succeeded but re-resolving source agent failed: %w", err)
	}

	if err := current.Engine.Migrate(ctx, current.Plugins, srcHostSH, src, res); err != nil {
		return fmt.Errorf("migrate: clone kept, but destroying source %s failed: %w", sourceName, err)
	}
	fmt.Printf("destroyed source agent %s\n", sourceName)
	return nil
}

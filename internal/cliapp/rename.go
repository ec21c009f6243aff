package cliapp

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imbue-ai/mng/internal/ids"
)

var renameProvider string

var renameCmd = &cobra.Command{
	Use:     "rename OLD_NAME NEW_NAME",
	GroupID: GroupAgents,
	Short:   "Rename an agent, renaming its tmux session to match",
	Args:    cobra.ExactArgs(2),
	RunE:    runRename,
}

func init() {
	renameCmd.Flags().StringVar(&renameProvider, "provider", "", "provider the agent's host belongs to (default: local)")
	rootCmd.AddCommand(renameCmd)
}

func runRename(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	oldName, newName := ids.AgentName(args[0]), ids.AgentName(args[1])
	sh, err := resolveAgentHost(ctx, current, renameProvider)
	if err != nil {
		return err
	}
	rec, err := current.Engine.ResolveByName(sh, oldName)
	if err != nil {
		return err
	}
	if err := current.Engine.Rename(ctx, sh, rec, newName); err != nil {
		return err
	}
	fmt.Printf("renamed agent %s -> %s (id %s unchanged)\n", oldName, newName, rec.ID)
	return nil
}

package cliapp

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/lifecycle"
	"github.com/imbue-ai/mng/internal/mngerr"
)

var startProvider string

var startCmd = &cobra.Command{
	Use:     "start NAME",
	GroupID: GroupAgents,
	Short:   "Re-launch a STOPPED agent's tmux session",
	Args:    cobra.ExactArgs(1),
	RunE:    runStart,
}

var (
	stopProvider       string
	stopDryRun         bool
	stopHostRef        string
	stopCreateSnapshot bool
	stopTimeout        float64
)

var stopCmd = &cobra.Command{
	Use:     "stop NAME",
	GroupID: GroupAgents,
	Short:   "Kill an agent's tmux session, preserving persisted state",
	Long: `Kill an agent's tmux session, preserving its persisted record so
start can relaunch it later. With --host, stop the named host itself
instead of an agent; --create-snapshot snapshots it first (a provider
with a remote snapshot-and-shutdown callable does both in one step).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStop,
}

func init() {
	startCmd.Flags().StringVar(&startProvider, "provider", "", "provider the agent's host belongs to (default: local)")
	stopCmd.Flags().StringVar(&stopProvider, "provider", "", "provider the agent's host belongs to (default: local)")
	stopCmd.Flags().BoolVar(&stopDryRun, "dry-run", false, "report what would happen without killing the session")
	stopCmd.Flags().StringVar(&stopHostRef, "host", "", "stop this host (id or name) instead of an agent")
	stopCmd.Flags().BoolVar(&stopCreateSnapshot, "create-snapshot", false, "snapshot the host before stopping it (requires --host)")
	stopCmd.Flags().Float64Var(&stopTimeout, "timeout", 0, "seconds to wait for the host to stop (requires --host)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := ids.AgentName(args[0])
	sh, err := resolveAgentHost(ctx, current, startProvider)
	if err != nil {
		return err
	}
	rec, err := current.Engine.ResolveByName(sh, name)
	if err != nil {
		return err
	}
	if err := current.Engine.Start(ctx, sh, rec); err != nil {
		return err
	}
	fmt.Printf("started agent %s (session %s)\n", rec.Name, rec.SessionName)
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if stopHostRef != "" {
		return runStopHost(cmd)
	}
	if len(args) != 1 {
		return &mngerr.UserInputError{Message: "stop requires an agent name (or --host)"}
	}
	name := ids.AgentName(args[0])
	sh, err := resolveAgentHost(ctx, current, stopProvider)
	if err != nil {
		return err
	}
	rec, err := current.Engine.ResolveByName(sh, name)
	if err != nil {
		return err
	}
	if err := current.Engine.Stop(ctx, sh, rec, stopDryRun); err != nil {
		return err
	}
	if stopDryRun {
		fmt.Printf("would stop agent %s (session %s)\n", rec.Name, rec.SessionName)
	} else {
		fmt.Printf("stopped agent %s\n", rec.Name)
	}
	return nil
}

func runStopHost(cmd *cobra.Command) error {
	ctx := cmd.Context()
	providerName, p, err := current.resolveProvider(stopProvider)
	if err != nil {
		return err
	}
	h, err := p.GetHost(ctx, stopHostRef)
	if err != nil {
		return err
	}
	if stopDryRun {
		fmt.Printf("would stop host %s (%s) on %s\n", h.GetName(), h.GetID(), providerName)
		return nil
	}
	snapID, err := lifecycle.StopHost(ctx, p, h, stopCreateSnapshot, stopTimeout)
	if err != nil {
		return err
	}
	if snapID != "" {
		fmt.Printf("stopped host %s (snapshot %s)\n", h.GetName(), snapID)
	} else {
		fmt.Printf("stopped host %s\n", h.GetName())
	}
	return nil
}

package cliapp

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/runtime"
)

var (
	messageProvider      string
	messageDialogMarkers []string
)

var messageCmd = &cobra.Command{
	Use:     "message NAME TEXT...",
	GroupID: GroupAgents,
	Short:   "Send a message to an agent's tmux session",
	Long: `Captures the pane, refuses with an error if an interactive dialog is
currently visible (so text isn't misrouted into e.g. a trust prompt),
types TEXT, then submits with Enter.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runMessage,
}

func init() {
	messageCmd.Flags().StringVar(&messageProvider, "provider", "", "provider the agent's host belongs to (default: local)")
	messageCmd.Flags().StringArrayVar(&messageDialogMarkers, "dialog-marker", nil, "substring that, if present in the pane, means a dialog is open")

	rootCmd.AddCommand(messageCmd)
}

func runMessage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := ids.AgentName(args[0])
	text := strings.Join(args[1:], " ")

	sh, err := resolveAgentHost(ctx, current, messageProvider)
	if err != nil {
		return err
	}
	rec, err := current.Engine.ResolveByName(sh, name)
	if err != nil {
		return err
	}

	rt := runtime.New(current.Tmux, rec.SessionName)
	if err := rt.SendMessage(text, messageDialogMarkers); err != nil {
		return err
	}
	if err := sh.Store().TouchActivity(rec.ID, string(enums.ActivityUser)); err != nil {
		return err
	}
	fmt.Printf("sent message to agent %s\n", name)
	return nil
}

package cliapp

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/imbue-ai/mng/internal/ids"
)

var connectProvider string

var connectCmd = &cobra.Command{
	Use:     "connect NAME",
	GroupID: GroupAgents,
	Short:   "Attach to a running agent's tmux session",
	Args:    cobra.ExactArgs(1),
	RunE:    runConnect,
}

func init() {
	connectCmd.Flags().StringVar(&connectProvider, "provider", "", "provider the agent's host belongs to (default: local)")
	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := ids.AgentName(args[0])
	sh, err := resolveAgentHost(ctx, current, connectProvider)
	if err != nil {
		return err
	}
	rec, err := current.Engine.ResolveByName(sh, name)
	if err != nil {
		return err
	}
	return attachToTmuxSession(rec.SessionName)
}

// attachToTmuxSession replaces the current process with tmux attached to
// session, so the terminal is wired directly rather than through a
// buffered subprocess. -u forces UTF-8 regardless of locale.
func attachToTmuxSession(session string) error {
	tmuxPath, err := exec.LookPath("tmux")
	if err != nil {
		return fmt.Errorf("tmux not found: %w", err)
	}
	var args []string
	if os.Getenv("TMUX") != "" {
		args = []string{"tmux", "-u", "switch-client", "-t", session}
	} else {
		args = []string{"tmux", "-u", "attach-session", "-t", session}
	}
	return syscall.Exec(tmuxPath, args, os.Environ())
}

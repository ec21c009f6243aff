package cliapp

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/host"
	"github.com/imbue-ai/mng/internal/ids"
)

var (
	execProvider string
	execTimeout  float64
)

var execCmd = &cobra.Command{
	Use:     "exec NAME COMMAND...",
	GroupID: GroupAgents,
	Short:   "Run a shell command on an agent's host, in its work dir",
	Args:    cobra.MinimumNArgs(2),
	RunE:    runExec,
}

func init() {
	execCmd.Flags().StringVar(&execProvider, "provider", "", "provider the agent's host belongs to (default: local)")
	execCmd.Flags().Float64Var(&execTimeout, "timeout", 0, "seconds before the command is killed (0 = no timeout)")

	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := ids.AgentName(args[0])
	command := strings.Join(args[1:], " ")

	sh, err := resolveAgentHost(ctx, current, execProvider)
	if err != nil {
		return err
	}
	rec, err := current.Engine.ResolveByName(sh, name)
	if err != nil {
		return err
	}

	res, err := sh.ExecuteCommand(ctx, command, host.ExecuteOptions{
		Cwd:            rec.WorkDir.String(),
		TimeoutSeconds: execTimeout,
	})
	if err != nil {
		return err
	}
	if terr := sh.Store().TouchActivity(rec.ID, string(enums.ActivityProcess)); terr != nil {
		return terr
	}
	fmt.Print(res.Stdout)
	if res.Stderr != "" {
		fmt.Print(res.Stderr)
	}
	if !res.Success {
		return fmt.Errorf("command exited non-zero on agent %s", name)
	}
	return nil
}

package cliapp

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/imbue-ai/mng/internal/cmdlog"
	"github.com/imbue-ai/mng/internal/mngerr"
	"github.com/imbue-ai/mng/internal/style"
)

// Command groups mirror the teacher's GroupID convention (boot.go's
// GroupAgents), separating lifecycle verbs from maintenance verbs in
// --help output.
const (
	GroupAgents      = "agents"
	GroupMaintenance = "maintenance"
)

// invoked is the leaf command that actually ran this process, recorded by
// PersistentPreRunE for the log stream and the completion refresh check.
var invoked string

// commandLog is this invocation's JSON-lines log stream; nil when the log
// directory could not be opened (logging never fails a command).
var commandLog *cmdlog.Logger

var rootCmd = &cobra.Command{
	Use:           "mng",
	Short:         "Orchestrate autonomous coding agents across local, Docker, SSH, and remote-sandbox hosts",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if current == nil {
			app, err := newApp()
			if err != nil {
				return err
			}
			current = app
		}
		applyEnvFlagDefaults(cmd)
		invoked = cmd.Name()
		if l, err := cmdlog.Open(filepath.Join(current.Config.HostDir, "logs"), invoked); err == nil {
			commandLog = l
			commandLog.Log("args", map[string]any{"args": args})
		}
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupAgents, Title: "Agent lifecycle:"},
		&cobra.Group{ID: GroupMaintenance, Title: "Maintenance:"},
	)
}

// applyEnvFlagDefaults fills in flags the user did not set on the command
// line from MNG_COMMANDS_<COMMANDNAME>_<PARAMNAME> environment variables.
// Command names are single words precisely so this mapping parses
// unambiguously: the first underscore-delimited segment after MNG_COMMANDS_
// is the command, the rest is the flag with dashes flattened.
func applyEnvFlagDefaults(cmd *cobra.Command) {
	prefix := "MNG_COMMANDS_" + strings.ToUpper(cmd.Name()) + "_"
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		key := prefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if v, ok := os.LookupEnv(key); ok {
			_ = f.Value.Set(v)
		}
	})
}

// Execute runs the command tree and returns the process exit code, per
// mngerr.ExitCodeFor: 0 on success, 2 on malformed usage, 1 on any other
// failure. cmd/mng's entrypoint calls os.Exit(cliapp.Execute()) directly,
// the same func main() { os.Exit(cmd.Execute()) } shape the teacher uses.
func Execute() int {
	attachAgentNameCompletion(rootCmd)
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, style.RenderError(err.Error()))
	}
	if commandLog != nil {
		commandLog.Close(err)
	}
	maybeRefreshCompletions(invoked)
	return int(mngerr.ExitCodeFor(err))
}

// Commands in this file are deliberately thin per spec.md §1's scoping:
// config-file parsing/merging detail, plugin discovery, and TUIs beyond the
// one streaming list view are out of core scope. Each verb still exists so
// the CLI surface in spec.md §6 is complete; they call straight through to
// the already-resolved App rather than adding new parsing/rendering logic.
package cliapp

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/imbue-ai/mng/internal/ids"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: GroupMaintenance,
	Short:   "Print the resolved process configuration",
	RunE:    runConfig,
}

var pluginCmd = &cobra.Command{
	Use:     "plugin",
	GroupID: GroupMaintenance,
	Short:   "List registered provider backends, agent types, and CLI commands",
	RunE:    runPlugin,
}

var logsCmd = &cobra.Command{
	Use:     "logs",
	GroupID: GroupMaintenance,
	Short:   "Show the local host's command-scope log directory",
	RunE:    runLogs,
}

var openCmd = &cobra.Command{
	Use:     "open NAME",
	GroupID: GroupAgents,
	Short:   "Open an agent's work dir in $EDITOR",
	Args:    cobra.ExactArgs(1),
	RunE:    runOpen,
}

func init() {
	rootCmd.AddCommand(configCmd, pluginCmd, logsCmd, openCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := current.Config
	fmt.Printf("host_dir: %s\n", cfg.HostDir)
	fmt.Printf("prefix: %s\n", cfg.Prefix)
	fmt.Printf("root_name: %s\n", cfg.RootName)
	fmt.Printf("completion_cache_dir: %s\n", cfg.CompletionCacheDir)
	fmt.Printf("gc.destroyed_host_persisted_seconds: %.0f\n", cfg.GC.DestroyedHostPersistedSeconds)
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("providers.%s.kind: %s\n", name, cfg.Providers[name].Kind)
	}
	return nil
}

func runPlugin(cmd *cobra.Command, args []string) error {
	for _, name := range current.Plugins.ProviderBackendNames() {
		fmt.Printf("provider backend: %s\n", name)
	}
	for _, name := range current.Plugins.AgentTypeNames() {
		fmt.Printf("agent type: %s\n", name)
	}
	for _, c := range current.Plugins.CLICommands() {
		fmt.Printf("cli command: %s - %s\n", c.Name, c.Description)
	}
	return nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	local, ok := current.Providers["local"]
	if !ok {
		fmt.Println(filepath.Join(current.Config.HostDir, "logs"))
		return nil
	}
	h, err := local.GetHost(cmd.Context(), "localhost")
	if err != nil {
		return err
	}
	fmt.Println(filepath.Join(h.HostDir(), "logs"))
	return nil
}

func runOpen(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sh, err := resolveAgentHost(ctx, current, "")
	if err != nil {
		return err
	}
	rec, err := current.Engine.ResolveByName(sh, ids.AgentName(args[0]))
	if err != nil {
		return err
	}
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	c := exec.Command(editor, rec.WorkDir.String())
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	return c.Run()
}

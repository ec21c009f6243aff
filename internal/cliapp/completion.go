package cliapp

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/imbue-ai/mng/internal/completion"
	"github.com/imbue-ai/mng/internal/concurrency"
	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/query"
)

// refreshCompletionsCmd regenerates both completion caches. It is the
// fire-and-forget target completion.RefreshInBackground relaunches after a
// command notices the agent-name cache has gone stale; hidden because users
// never need to run it by hand. The name is a single word on purpose: every
// subcommand must parse unambiguously out of MNG_COMMANDS_<NAME>_<PARAM>
// environment variables.
var refreshCompletionsCmd = &cobra.Command{
	Use:    "refreshcompletions",
	Hidden: true,
	RunE:   runRefreshCompletions,
}

func init() {
	rootCmd.AddCommand(refreshCompletionsCmd)
}

func runRefreshCompletions(cmd *cobra.Command, args []string) error {
	dir := current.Config.CompletionCacheDir
	if err := completion.WriteCommandCompletions(dir, buildCommandCompletions(rootCmd)); err != nil {
		return err
	}

	var names []string
	err := concurrency.Run("refreshcompletions", 30, func(g *concurrency.Group) error {
		res, err := query.ListAgents(g.Context(), g, current.Providers, query.ListOptions{
			ErrorBehavior: enums.ErrorBehaviorContinue,
			Bind:          bindCurrentHost,
		})
		if err != nil {
			return err
		}
		for _, v := range res.Agents {
			names = append(names, string(v.Agent.Name))
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(names)
	return completion.WriteAgentCompletions(dir, names)
}

// optionChoices enumerates the closed-set flag values completion can offer;
// cobra keeps per-flag completion funcs private, so the enum-valued flags
// are listed here where the cache is built.
var optionChoices = map[string][]string{
	"create.--work-dir-mode": {"in_place", "copy_source", "worktree", "clone"},
	"list.--on-error":        {"abort", "continue"},
	"gc.--on-error":          {"abort", "continue"},
	"message.--on-error":     {"abort", "continue"},
	"push.--uncommitted-changes": {"fail", "stash", "force"},
	"pull.--uncommitted-changes": {"fail", "stash", "force"},
	"pair.--conflict":            {"newer", "source", "target", "ask"},
	"pair.--direction":           {"both", "source", "target"},
}

func buildCommandCompletions(root *cobra.Command) *completion.CommandCompletions {
	c := &completion.CommandCompletions{
		Aliases:             map[string]string{},
		SubcommandByCommand: map[string][]string{},
		OptionsByCommand:    map[string][]string{},
		OptionChoices:       optionChoices,
	}
	for _, cmd := range root.Commands() {
		if cmd.Hidden {
			continue
		}
		c.Commands = append(c.Commands, cmd.Name())
		for _, alias := range cmd.Aliases {
			c.Aliases[alias] = cmd.Name()
		}
		for _, sub := range cmd.Commands() {
			c.SubcommandByCommand[cmd.Name()] = append(c.SubcommandByCommand[cmd.Name()], sub.Name())
		}
		var opts []string
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			opts = append(opts, "--"+f.Name)
		})
		if len(opts) > 0 {
			c.OptionsByCommand[cmd.Name()] = opts
		}
		if takesAgentName(cmd) {
			c.AgentNameArguments = append(c.AgentNameArguments, cmd.Name())
		}
	}
	sort.Strings(c.Commands)
	sort.Strings(c.AgentNameArguments)
	return c
}

// takesAgentName reports whether a command's positional arguments include an
// existing agent's name, keyed off the Use line's argument placeholder.
// create is the one NAME-taking command whose argument is a new name, so
// completing existing agents there would only offer collisions.
func takesAgentName(cmd *cobra.Command) bool {
	return cmd.Name() != "create" && strings.Contains(cmd.Use, "NAME")
}

// attachAgentNameCompletion installs a cache-backed ValidArgsFunction on
// every command whose positionals are agent names. The cache read never
// blocks on a live list; a stale or absent file just completes nothing.
func attachAgentNameCompletion(root *cobra.Command) {
	for _, cmd := range root.Commands() {
		if cmd.Hidden || !takesAgentName(cmd) || cmd.ValidArgsFunction != nil {
			continue
		}
		cmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if current == nil {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			cached := completion.ReadAgentCompletions(current.Config.CompletionCacheDir)
			var out []string
			for _, name := range cached.Names {
				if strings.HasPrefix(name, toComplete) {
					out = append(out, name)
				}
			}
			return out, cobra.ShellCompDirectiveNoFileComp
		}
	}
}

// maybeRefreshCompletions kicks off the background agent-name refresh when
// the cache has gone stale, after the invoked command has already finished —
// the refresh must never add latency to the command itself.
func maybeRefreshCompletions(invoked string) {
	if current == nil || invoked == refreshCompletionsCmd.Name() {
		return
	}
	if completion.ReadAgentCompletions(current.Config.CompletionCacheDir).Stale(completion.DefaultMaxAge) {
		completion.RefreshInBackground(refreshCompletionsCmd.Name())
	}
}

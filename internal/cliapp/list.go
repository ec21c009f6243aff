package cliapp

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/imbue-ai/mng/internal/concurrency"
	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/mngerr"
	"github.com/imbue-ai/mng/internal/query"
	"github.com/imbue-ai/mng/internal/style"
	"github.com/imbue-ai/mng/internal/tui"
)

var (
	listInclude   string
	listExclude   string
	listOnError   string
	listJSON      bool
	listJSONLines bool
	listStream    bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: GroupAgents,
	Short:   "List agents across every configured provider",
	Long: `Aggregates agents across every provider in parallel, applying the
--include/--exclude CEL filters per agent. --on-error continue (the
default) accumulates per-provider/host/agent errors without aborting the
rest of the list; --on-error abort rethrows the first one before any
further enumeration.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listInclude, "include", "", "CEL predicate an agent must satisfy to be listed")
	listCmd.Flags().StringVar(&listExclude, "exclude", "", "CEL predicate that excludes a matching agent")
	listCmd.Flags().StringVar(&listOnError, "on-error", "continue", "abort|continue")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "emit one JSON object for the whole result")
	listCmd.Flags().BoolVar(&listJSONLines, "jsonl", false, "emit one JSON object per agent, newline-delimited")
	listCmd.Flags().BoolVar(&listStream, "stream", false, "render a live-updating view as agents are discovered")

	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	var include, exclude *query.Program
	if listInclude != "" {
		p, err := query.Compile(listInclude)
		if err != nil {
			return &mngerr.UserInputError{Message: err.Error()}
		}
		include = p
	}
	if listExclude != "" {
		p, err := query.Compile(listExclude)
		if err != nil {
			return &mngerr.UserInputError{Message: err.Error()}
		}
		exclude = p
	}

	errBehavior := enums.ErrorBehaviorContinue
	switch listOnError {
	case "abort":
		errBehavior = enums.ErrorBehaviorAbort
	case "continue", "":
	default:
		return &mngerr.UserInputError{Message: fmt.Sprintf("invalid --on-error %q", listOnError)}
	}

	opts := query.ListOptions{
		ErrorBehavior: errBehavior,
		Include:       include,
		Exclude:       exclude,
		Bind:          bindCurrentHost,
		StateOf:       current.Engine.CurrentState,
	}

	var res *query.ListResult
	err := concurrency.Run("list", 30, func(g *concurrency.Group) error {
		var listErr error
		if listStream && !listJSON && !listJSONLines {
			res, listErr = tui.RunStreamingList(g.Context(), g, current.Providers, opts)
		} else {
			res, listErr = query.ListAgents(g.Context(), g, current.Providers, opts)
		}
		return listErr
	})
	if err != nil {
		return err
	}

	return renderList(res)
}

func renderList(res *query.ListResult) error {
	switch {
	case listJSONLines:
		enc := json.NewEncoder(os.Stdout)
		for _, v := range res.Agents {
			if err := enc.Encode(v.Agent); err != nil {
				return err
			}
		}
	case listJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	default:
		if !listStream {
			fmt.Println(style.AgentTable(res.Agents).Render())
			fmt.Println(style.FormatCount("agent", len(res.Agents)))
		}
	}
	for _, e := range res.Errors {
		fmt.Fprintln(os.Stderr, style.RenderError(fmt.Sprintf("%s/%s/%s: %s", e.Provider, e.Host, e.Agent, e.Message)))
	}
	return nil
}

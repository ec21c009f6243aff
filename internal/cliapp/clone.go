package cliapp

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imbue-ai/mng/internal/concurrency"
	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/lifecycle"
)

var (
	cloneSourceProvider string
	cloneDestProvider   string
	cloneDestHost       string
	cloneIncludeGit     bool
)

var cloneCmd = &cobra.Command{
	Use:     "clone SOURCE_NAME NEW_NAME",
	GroupID: GroupAgents,
	Short:   "Create a new agent whose work dir is derived from an existing agent's",
	Long: `clone(source, new_name) = create() with work_dir_source =
source.work_dir; unspecified options inherit from the source. Pass
--dest-provider/--dest-host to clone across providers or hosts.`,
	Args: cobra.ExactArgs(2),
	RunE: runClone,
}

func init() {
	cloneCmd.Flags().StringVar(&cloneSourceProvider, "provider", "", "provider the source agent's host belongs to (default: local)")
	cloneCmd.Flags().StringVar(&cloneDestProvider, "dest-provider", "", "provider for the clone's host (default: same as source)")
	cloneCmd.Flags().StringVar(&cloneDestHost, "dest-host", "", "existing host id/name for the clone (default: source's host)")
	cloneCmd.Flags().BoolVar(&cloneIncludeGit, "include-git", false, "clone mode carries the source's git history instead of a plain copy")

	rootCmd.AddCommand(cloneCmd)
}

func doClone(cmd *cobra.Command, sourceName, newName string, sourceProvider, destProvider, destHost string, includeGit bool) (*lifecycle.Result, error) {
	ctx := cmd.Context()
	srcHostSH, err := resolveAgentHost(ctx, current, sourceProvider)
	if err != nil {
		return nil, err
	}
	src, err := current.Engine.ResolveByName(srcHostSH, ids.AgentName(sourceName))
	if err != nil {
		return nil, err
	}

	destProviderName := destProvider
	if destProviderName == "" {
		destProviderName = sourceProvider
	}
	destProviderName, p, err := current.resolveProvider(destProviderName)
	if err != nil {
		return nil, err
	}
	destSH, err := ensureHost(ctx, current, destProviderName, p, destHost)
	if err != nil {
		return nil, err
	}

	createOpts, err := current.Engine.PrepareClone(src, lifecycle.CloneOptions{
		NewName:    ids.AgentName(newName),
		IncludeGit: includeGit,
		Create:     lifecycle.CreateOptions{ProviderName: destProviderName},
	})
	if err != nil {
		return nil, err
	}

	var res *lifecycle.Result
	err = concurrency.Run("clone", 30, func(g *concurrency.Group) error {
		var createErr error
		res, createErr = current.Engine.Create(g.Context(), g, destSH, createOpts)
		return createErr
	})
	return res, err
}

func runClone(cmd *cobra.Command, args []string) error {
	res, err := doClone(cmd, args[0], args[1], cloneSourceProvider, cloneDestProvider, cloneDestHost, cloneIncludeGit)
	if err != nil {
		return err
	}
	fmt.Printf("cloned agent %s -> %s (%s)\n", args[0], res.Agent.Name, res.Agent.ID)
	return nil
}

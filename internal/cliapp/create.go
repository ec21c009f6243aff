package cliapp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/imbue-ai/mng/internal/concurrency"
	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/host"
	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/lifecycle"
	"github.com/imbue-ai/mng/internal/mngerr"
	"github.com/imbue-ai/mng/internal/providers"
)

var (
	createProvider      string
	createHostRef       string
	createAgentType     string
	createCommand       string
	createWorkDirSource string
	createWorkDirMode   string
	createBaseBranch    string
	createBranchPattern string
	createEnvFile       string
	createPassEnv       []string
	createEnvKV         []string
	createAddCommands   []string
	createAwaitReady    bool
	createReadyTimeout  time.Duration
	createConnect       bool
	createStartOnBoot   bool
)

var createCmd = &cobra.Command{
	Use:     "create NAME",
	GroupID: GroupAgents,
	Short:   "Create and start a new agent",
	Long: `Create a new agent on a host, provision its work directory, and start
its tmux session.

Work-dir modes (--work-dir-mode): in_place (use --work-dir-source
directly), copy_source (rsync a copy), worktree (a new git worktree off
--base-branch), clone (a fresh git clone). Defaults to worktree.`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createProvider, "provider", "", "provider instance to create the host on (default: local)")
	createCmd.Flags().StringVar(&createHostRef, "host", "", "existing host id or name to create the agent on")
	createCmd.Flags().StringVar(&createAgentType, "type", "bash", "agent type (plugin-defined; bash/claude/codex/...)")
	createCmd.Flags().StringVar(&createCommand, "command", "", "shell command launched in the agent's tmux session")
	createCmd.Flags().StringVar(&createWorkDirSource, "work-dir-source", "", "source path/repo the work dir is derived from")
	createCmd.Flags().StringVar(&createWorkDirMode, "work-dir-mode", "worktree", "in_place|copy_source|worktree|clone")
	createCmd.Flags().StringVar(&createBaseBranch, "base-branch", "main", "base branch for worktree/clone modes")
	createCmd.Flags().StringVar(&createBranchPattern, "branch-pattern", "", "branch name pattern, e.g. {prefix}{name}")
	createCmd.Flags().StringVar(&createEnvFile, "env-file", "", "KEY=VALUE file to seed the agent's env")
	createCmd.Flags().StringSliceVar(&createPassEnv, "pass-env", nil, "environment variable names to copy from this process")
	createCmd.Flags().StringArrayVar(&createEnvKV, "env", nil, "KEY=VALUE pair to set in the agent's env (repeatable)")
	createCmd.Flags().StringArrayVar(&createAddCommands, "add-command", nil, "extra command run in an additional tmux window")
	createCmd.Flags().BoolVar(&createAwaitReady, "await-ready", false, "block until the agent reports ready")
	createCmd.Flags().DurationVar(&createReadyTimeout, "ready-timeout", 60*time.Second, "timeout for --await-ready")
	createCmd.Flags().BoolVar(&createConnect, "connect", false, "attach to the new session after creation")
	createCmd.Flags().BoolVar(&createStartOnBoot, "start-on-boot", false, "relaunch this agent's session when its host boots")

	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	name := ids.AgentName(args[0])
	mode := enums.WorkDirMode(createWorkDirMode)
	if !mode.IsValid() {
		return &mngerr.UserInputError{Message: fmt.Sprintf("invalid --work-dir-mode %q", createWorkDirMode)}
	}

	envKV := map[string]string{}
	for _, kv := range createEnvKV {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return &mngerr.UserInputError{Message: fmt.Sprintf("--env %q must be KEY=VALUE", kv)}
		}
		envKV[k] = v
	}

	ctx := cmd.Context()
	providerName, p, err := current.resolveProvider(createProvider)
	if err != nil {
		return err
	}

	sh, err := ensureHost(ctx, current, providerName, p, createHostRef)
	if err != nil {
		return err
	}

	opts := lifecycle.CreateOptions{
		Name:          name,
		ProviderName:  providerName,
		StartOnBoot:   createStartOnBoot,
		AgentType:     createAgentType,
		Command:       enums.CommandString(createCommand),
		WorkDirSource: createWorkDirSource,
		WorkDirMode:   mode,
		BaseBranch:    createBaseBranch,
		BranchPattern: createBranchPattern,
		Env: lifecycle.EnvSource{
			EnvFile: createEnvFile,
			PassEnv: createPassEnv,
			EnvKV:   envKV,
		},
		AddCommands:  createAddCommands,
		AwaitReady:   createAwaitReady,
		ReadyTimeout: createReadyTimeout,
		Connect:      createConnect,
	}

	var res *lifecycle.Result
	err = concurrency.Run("create", 30, func(g *concurrency.Group) error {
		var createErr error
		res, createErr = current.Engine.Create(g.Context(), g, sh, opts)
		return createErr
	})
	if err != nil {
		return err
	}

	fmt.Printf("created agent %s (%s) on host %s via %s, session %s\n",
		res.Agent.Name, res.Agent.ID, sh.GetName(), providerName, res.Session)
	return nil
}

// ensureHost resolves hostRef on p if given, otherwise reuses the
// provider's first existing host, and only falls back to CreateHost when
// the provider has none yet (e.g. a freshly configured docker/ssh
// provider instance with no hosts created under it so far). This is
// spec.md §4.4 step 2: "Resolve or create the host."
func ensureHost(ctx context.Context, a *App, providerName string, p providers.Provider, hostRef string) (host.StatefulHost, error) {
	if hostRef != "" {
		h, err := p.GetHost(ctx, hostRef)
		if err != nil {
			return nil, err
		}
		h, err = lifecycle.EnsureHostStarted(ctx, p, h)
		if err != nil {
			return nil, err
		}
		return bindHost(a.Config, h)
	}

	hosts, err := p.ListHosts(ctx, false)
	if err == nil && len(hosts) > 0 {
		h, err := lifecycle.EnsureHostStarted(ctx, p, hosts[0])
		if err != nil {
			return nil, err
		}
		return bindHost(a.Config, h)
	}

	h, err := p.CreateHost(ctx, providers.CreateHostOptions{Name: ids.HostName(providerName + "-host")})
	if err != nil {
		return nil, fmt.Errorf("creating host on provider %q: %w", providerName, err)
	}
	return bindHost(a.Config, h)
}

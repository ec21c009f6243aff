// Package lifecycle orchestrates the agent+host state machine described in
// spec.md §4.4: create -> provision -> start -> attach -> stop -> destroy,
// plus rename/clone/migrate, with retries, reuse detection, and
// partial-failure cleanup. It generalizes the teacher's
// internal/session/lifecycle.go (StartSession/StopSession/
// KillExistingSession): the same numbered-step function bodies, the same
// large-options-struct-plus-"failed? clean up partial state" shape, now
// driven against the provider-abstract host.Host interface instead of one
// hardcoded session type.
package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/imbue-ai/mng/internal/concurrency"
	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/host"
	"github.com/imbue-ai/mng/internal/hoststore"
	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/mngerr"
	"github.com/imbue-ai/mng/internal/plugin"
	"github.com/imbue-ai/mng/internal/runtime"
	"github.com/imbue-ai/mng/internal/tmux"
)

// Engine drives lifecycle operations against a tmux session controller and
// a plugin registry, independent of which provider a given host belongs
// to — every method takes the already-resolved host.StatefulHost.
type Engine struct {
	Tmux    *tmux.Tmux
	Plugins *plugin.Registry
	Prefix  string

	// AwaitReadyPollInterval is how often Create polls the readiness
	// condition when AwaitReady is set.
	AwaitReadyPollInterval time.Duration

	// IdleMode selects which activity sources keep a running agent out of
	// WAITING; IdleTimeout is how long all of them must stay quiet before
	// CurrentState reports WAITING instead of RUNNING.
	IdleMode    enums.IdleMode
	IdleTimeout time.Duration
}

// New returns an Engine with the default poll interval and idle policy.
func New(tm *tmux.Tmux, plugins *plugin.Registry, prefix string) *Engine {
	if plugins == nil {
		plugins = plugin.NewRegistry()
	}
	return &Engine{
		Tmux:                   tm,
		Plugins:                plugins,
		Prefix:                 prefix,
		AwaitReadyPollInterval: 500 * time.Millisecond,
		IdleMode:               enums.IdleModeUser,
		IdleTimeout:            5 * time.Minute,
	}
}

func (e *Engine) sessionName(name ids.AgentName) string {
	return e.Prefix + string(name)
}

// EnvSource describes one source of environment variables to write into an
// agent's env file, applied in order so later sources override earlier
// ones: --env-file, then --pass-env (copied from the invoking process),
// then --env K=V (explicit, highest precedence).
type EnvSource struct {
	EnvFile string
	PassEnv []string
	EnvKV   map[string]string
}

// CreateOptions configures Engine.Create.
type CreateOptions struct {
	Name      ids.AgentName
	AgentType string
	Command   enums.CommandString

	// ProviderName is recorded in the agent's persisted host reference so a
	// later process can resolve the owning provider without re-probing every
	// backend.
	ProviderName string

	// StartOnBoot marks the agent for relaunch when its host boots.
	StartOnBoot bool

	WorkDirSource string
	WorkDirMode   enums.WorkDirMode
	BaseBranch    string
	BranchPattern string // e.g. "{prefix}{name}"; "" defaults to Prefix+Name

	Env EnvSource

	AddCommands []string

	Readiness   runtime.ReadinessCheck
	AwaitReady  bool
	ReadyTimeout time.Duration

	Connect    bool
	AttachCmd  []string // default: ["tmux", "attach-session", "-t", session]
}

// Result is the outcome of Create/Clone.
type Result struct {
	Agent   *hoststore.AgentData
	Session string
}

// Create implements spec.md §4.4's ten-step create() sequence. g is the
// concurrency group that owns every subprocess/goroutine Create spawns
// (git, tmux, plugin hooks); the whole sequence runs under h's cooperative
// lock so two concurrent creates on the same host never race on name
// uniqueness.
func (e *Engine) Create(ctx context.Context, g *concurrency.Group, h host.StatefulHost, opts CreateOptions) (res *Result, err error) {
	if opts.Name == "" {
		return nil, &mngerr.UserInputError{Message: "agent name must not be empty"}
	}
	if err := ids.AgentName(opts.Name).Validate(); err != nil {
		return nil, &mngerr.UserInputError{Message: err.Error()}
	}

	store := h.Store()
	var created *hoststore.AgentData
	var workDirCreated string

	createErr := h.LockCooperatively(ctx, func() error {
		// Step 1: validate name unused on target host.
		if err := e.checkNameUnused(store, opts.Name); err != nil {
			return err
		}

		agentID := ids.NewAgentID()

		// Step 3: prepare work_dir.
		branch := e.branchName(opts)
		workDirBase := workDirBasePath(h, agentID)
		workDir, err := prepareWorkDir(ctx, g, opts, workDirBase, branch)
		if err != nil {
			return fmt.Errorf("preparing work dir: %w", err)
		}
		workDirCreated = workDir
		if opts.WorkDirMode == enums.WorkDirInPlace {
			// in_place agents use the source directly; it is not an
			// mng-generated directory and must not be swept by GC.
			workDirCreated = ""
		} else if err := e.registerWorkDir(store, workDir); err != nil {
			return err
		}

		// Step 4: persist the agent record.
		session := e.sessionName(opts.Name)
		data := &hoststore.AgentData{
			ID:          agentID,
			Name:        opts.Name,
			AgentType:   opts.AgentType,
			Command:     opts.Command,
			WorkDir:     enums.WorkDirPath(workDir),
			WorkDirMode: opts.WorkDirMode,
			StartOnBoot: opts.StartOnBoot,
			State:       enums.StateStopped,
			Host: hoststore.AgentHostRef{
				ID:           h.GetID(),
				Name:         h.GetName(),
				ProviderName: opts.ProviderName,
			},
			SessionName: session,
		}
		if err := store.CreateAgentRecord(data); err != nil {
			return fmt.Errorf("creating agent record: %w", err)
		}
		created = data

		env := resolveEnv(opts.Env)
		if err := store.WriteAgentEnv(agentID, env); err != nil {
			return fmt.Errorf("writing agent env: %w", err)
		}

		// Step 5: provision via plugins.
		pc := &plugin.ProvisionContext{Host: h, Agent: data, Env: env}
		if err := e.Plugins.Provision(ctx, pc); err != nil {
			return &mngerr.PluginError{Plugin: "provision", Hook: "Provision", Cause: err}
		}

		// Step 8: start the tmux session.
		if err := e.startSession(data, opts.Command, workDir, opts.AddCommands); err != nil {
			return fmt.Errorf("starting tmux session: %w", err)
		}
		if err := store.TouchActivity(agentID, string(enums.ActivityCreate)); err != nil {
			return err
		}
		if err := store.TouchActivity(agentID, string(enums.ActivityStart)); err != nil {
			return err
		}
		data.State = enums.StateRunning
		if err := store.WriteAgentRecord(data); err != nil {
			return fmt.Errorf("persisting running state: %w", err)
		}

		return nil
	})

	if createErr != nil {
		e.cleanupFailedCreate(ctx, h, store, created, workDirCreated)
		return nil, createErr
	}

	// Step 7: emit on_agent_created (best-effort; collected, not fatal).
	if errs := e.Plugins.DispatchAgentCreated(ctx, created, h); len(errs) > 0 {
		// Surfaced but the agent is already created — matches
		// spec.md §4.4: "emit of failure telemetry" without rollback.
		return &Result{Agent: created, Session: created.SessionName}, &concurrency.ExceptionGroup{Group: "on_agent_created", Errors: errs}
	}

	// Step 9: await readiness.
	if opts.AwaitReady {
		timeout := opts.ReadyTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		rt := runtime.New(e.Tmux, created.SessionName)
		if err := runtime.WaitFor(ctx, fmt.Sprintf("agent %s ready", opts.Name), timeout, e.AwaitReadyPollInterval, func() (bool, error) {
			return rt.IsReady(opts.Readiness)
		}); err != nil {
			return &Result{Agent: created, Session: created.SessionName}, err
		}
	}

	// Step 10: connect.
	if opts.Connect {
		attachCmd := opts.AttachCmd
		if len(attachCmd) == 0 {
			attachCmd = []string{"tmux", "attach-session", "-t", created.SessionName}
		}
		if _, err := concurrency.RunProcessToCompletion(ctx, concurrency.ProcessOptions{Cmd: attachCmd, IsCheckedAfter: false}); err != nil {
			return &Result{Agent: created, Session: created.SessionName}, err
		}
	}

	return &Result{Agent: created, Session: created.SessionName}, nil
}

func (e *Engine) checkNameUnused(store *hoststore.Store, name ids.AgentName) error {
	agentIDs, err := store.ListAgentIDs()
	if err != nil {
		return err
	}
	for _, id := range agentIDs {
		rec, err := store.ReadAgentRecord(id)
		if err != nil {
			continue
		}
		if rec.Name == name {
			return &mngerr.PreconditionFailedError{Message: fmt.Sprintf("agent name %q already in use on this host", name)}
		}
	}
	return nil
}

func (e *Engine) registerWorkDir(store *hoststore.Store, workDir string) error {
	data, err := store.ReadCertifiedData()
	if err != nil {
		return fmt.Errorf("reading certified host data: %w", err)
	}
	data.AddGeneratedWorkDir(workDir)
	return store.WriteCertifiedData(data)
}

func (e *Engine) unregisterWorkDir(store *hoststore.Store, workDir string) {
	data, err := store.ReadCertifiedData()
	if err != nil {
		return
	}
	data.RemoveGeneratedWorkDir(workDir)
	_ = store.WriteCertifiedData(data)
}

func (e *Engine) startSession(data *hoststore.AgentData, command enums.CommandString, workDir string, addCommands []string) error {
	if command.IsEmpty() {
		if err := e.Tmux.NewSession(data.SessionName, workDir); err != nil {
			return err
		}
	} else if err := e.Tmux.NewSessionWithCommand(data.SessionName, workDir, command.String()); err != nil {
		return err
	}
	if err := e.Tmux.SetEnvironment(data.SessionName, "MNG_AGENT_ID", string(data.ID)); err != nil {
		return err
	}
	for _, extra := range addCommands {
		// Side panes run in the same session's additional windows,
		// matching the teacher's multi-pane session shape.
		if _, err := concurrency.RunProcessToCompletion(context.Background(), concurrency.ProcessOptions{
			Cmd:            []string{"tmux", "new-window", "-t", data.SessionName, extra},
			IsCheckedAfter: true,
		}); err != nil {
			return err
		}
	}
	return nil
}

// cleanupFailedCreate runs after Create's locked section has already
// returned its error, so it reacquires the host lock for the record/
// registry removals it performs.
func (e *Engine) cleanupFailedCreate(ctx context.Context, h host.StatefulHost, store *hoststore.Store, created *hoststore.AgentData, workDir string) {
	_ = h.LockCooperatively(ctx, func() error {
		if created != nil {
			_ = e.Tmux.KillSession(created.SessionName)
			_ = store.DestroyAgentRecord(created.ID)
		}
		if workDir != "" {
			e.unregisterWorkDir(store, workDir)
		}
		return nil
	})
}

// branchName derives the new branch name a worktree/clone work-dir mode
// checks out, from opts.BranchPattern ("{prefix}{name}" by default) with
// {prefix}/{name} substituted.
func (e *Engine) branchName(opts CreateOptions) string {
	pattern := opts.BranchPattern
	if pattern == "" {
		pattern = "{prefix}{name}"
	}
	r := strings.NewReplacer("{prefix}", e.Prefix, "{name}", string(opts.Name))
	return r.Replace(pattern)
}

// workDirBasePath is where a freshly generated work-dir lives for
// copy_source/worktree/clone modes: <host_dir>/workdirs/<agent_id>. in_place
// agents never call this since they reuse the source path verbatim.
func workDirBasePath(h host.StatefulHost, agentID ids.AgentID) string {
	return filepath.Join(h.HostDir(), "workdirs", string(agentID))
}

func resolveEnv(src EnvSource) map[string]string {
	env := map[string]string{}
	if src.EnvFile != "" {
		for k, v := range parseEnvFile(src.EnvFile) {
			env[k] = v
		}
	}
	for _, name := range src.PassEnv {
		if v, ok := lookupEnv(name); ok {
			env[name] = v
		}
	}
	for k, v := range src.EnvKV {
		env[k] = v
	}
	return env
}

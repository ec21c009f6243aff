package lifecycle

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/imbue-ai/mng/internal/concurrency"
	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/hoststore"
	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/plugin"
	"github.com/imbue-ai/mng/internal/providers"
	"github.com/imbue-ai/mng/internal/providers/local"
	"github.com/imbue-ai/mng/internal/tmux"
)

func newTestEngine(prefix string) *Engine {
	return New(tmux.New(), plugin.NewRegistry(), prefix)
}

func TestBranchNameDefaultPattern(t *testing.T) {
	e := newTestEngine("mng-")
	got := e.branchName(CreateOptions{Name: ids.AgentName("foo")})
	if got != "mng-foo" {
		t.Fatalf("branchName = %q, want mng-foo", got)
	}
}

func TestBranchNameCustomPattern(t *testing.T) {
	e := newTestEngine("mng-")
	got := e.branchName(CreateOptions{Name: ids.AgentName("foo"), BranchPattern: "agents/{name}"})
	if got != "agents/foo" {
		t.Fatalf("branchName = %q, want agents/foo", got)
	}
}

func TestResolveEnvPrecedence(t *testing.T) {
	envFile, err := os.CreateTemp(t.TempDir(), "env")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if _, err := envFile.WriteString("A=from_file\nB=from_file\n"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	envFile.Close()

	t.Setenv("MNG_TEST_PASS_ENV_VAR", "from_process")

	env := resolveEnv(EnvSource{
		EnvFile: envFile.Name(),
		PassEnv: []string{"MNG_TEST_PASS_ENV_VAR"},
		EnvKV:   map[string]string{"B": "from_kv"},
	})

	if env["A"] != "from_file" {
		t.Errorf("A = %q, want from_file", env["A"])
	}
	if env["MNG_TEST_PASS_ENV_VAR"] != "from_process" {
		t.Errorf("MNG_TEST_PASS_ENV_VAR = %q, want from_process", env["MNG_TEST_PASS_ENV_VAR"])
	}
	// --env K=V must win over --env-file per spec.md §4.4 step 4.
	if env["B"] != "from_kv" {
		t.Errorf("B = %q, want from_kv (explicit --env beats --env-file)", env["B"])
	}
}

func testHost(t *testing.T) (*local.Host, func()) {
	t.Helper()
	p := local.New(t.TempDir())
	h, err := p.CreateHost(context.Background(), providers.CreateHostOptions{})
	if err != nil {
		t.Fatalf("CreateHost: %v", err)
	}
	lh := h.(*local.Host)
	return lh, func() {}
}

func TestCheckNameUnused(t *testing.T) {
	e := newTestEngine("mng-")
	h, cleanup := testHost(t)
	defer cleanup()

	if err := e.checkNameUnused(h.Store(), ids.AgentName("fresh")); err != nil {
		t.Fatalf("expected fresh name to be available, got %v", err)
	}

	rec := &hoststore.AgentData{
		ID:          ids.NewAgentID(),
		Name:        ids.AgentName("taken"),
		WorkDirMode: enums.WorkDirInPlace,
		State:       enums.StateStopped,
		SessionName: "mng-taken",
	}
	err := h.LockCooperatively(context.Background(), func() error {
		return h.Store().CreateAgentRecord(rec)
	})
	if err != nil {
		t.Fatalf("CreateAgentRecord: %v", err)
	}

	if err := e.checkNameUnused(h.Store(), ids.AgentName("taken")); err == nil {
		t.Fatal("expected a collision error for an already-used name")
	}
}

func TestRegisterAndUnregisterWorkDir(t *testing.T) {
	e := newTestEngine("mng-")
	h, cleanup := testHost(t)
	defer cleanup()

	dir := t.TempDir()
	err := h.LockCooperatively(context.Background(), func() error {
		return e.registerWorkDir(h.Store(), dir)
	})
	if err != nil {
		t.Fatalf("registerWorkDir: %v", err)
	}
	data, err := h.Store().ReadCertifiedData()
	if err != nil {
		t.Fatalf("ReadCertifiedData: %v", err)
	}
	found := false
	for _, d := range data.GeneratedWorkDirs {
		if d == dir {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s in generated_work_dirs, got %v", dir, data.GeneratedWorkDirs)
	}

	_ = h.LockCooperatively(context.Background(), func() error {
		e.unregisterWorkDir(h.Store(), dir)
		return nil
	})
	data, err = h.Store().ReadCertifiedData()
	if err != nil {
		t.Fatalf("ReadCertifiedData: %v", err)
	}
	for _, d := range data.GeneratedWorkDirs {
		if d == dir {
			t.Fatalf("expected %s to be removed from generated_work_dirs, got %v", dir, data.GeneratedWorkDirs)
		}
	}
}

func TestPrepareCloneInheritsUnsetFieldsFromSource(t *testing.T) {
	e := newTestEngine("mng-")
	src := &hoststore.AgentData{
		AgentType: "claude",
		Command:   enums.CommandString("claude --resume"),
		WorkDir:   enums.WorkDirPath("/work/src"),
	}

	create, err := e.PrepareClone(src, CloneOptions{NewName: ids.AgentName("clone1")})
	if err != nil {
		t.Fatalf("PrepareClone: %v", err)
	}
	if create.AgentType != "claude" {
		t.Errorf("AgentType = %q, want claude", create.AgentType)
	}
	if create.Command != src.Command {
		t.Errorf("Command = %q, want %q", create.Command, src.Command)
	}
	if create.WorkDirSource != "/work/src" {
		t.Errorf("WorkDirSource = %q, want /work/src", create.WorkDirSource)
	}
	if create.WorkDirMode != enums.WorkDirCopySource {
		t.Errorf("WorkDirMode = %q, want copy_source when IncludeGit is false", create.WorkDirMode)
	}
}

func TestPrepareCloneIncludeGitUsesCloneMode(t *testing.T) {
	e := newTestEngine("mng-")
	src := &hoststore.AgentData{WorkDir: enums.WorkDirPath("/work/src")}

	create, err := e.PrepareClone(src, CloneOptions{NewName: ids.AgentName("clone1"), IncludeGit: true})
	if err != nil {
		t.Fatalf("PrepareClone: %v", err)
	}
	if create.WorkDirMode != enums.WorkDirClone {
		t.Errorf("WorkDirMode = %q, want clone when IncludeGit is true", create.WorkDirMode)
	}
}

func TestPrepareCloneRequiresNewName(t *testing.T) {
	e := newTestEngine("mng-")
	_, err := e.PrepareClone(&hoststore.AgentData{}, CloneOptions{})
	if err == nil {
		t.Fatal("expected an error when NewName is empty")
	}
}

// The remaining tests exercise the full Create/Start/Stop/Destroy cycle
// against a real tmux server, matching the teacher's own integration-test
// gating for binaries that may not be present in the test sandbox.
func requireTmux(t *testing.T) {
	t.Helper()
	if !tmux.New().IsAvailable() {
		t.Skip("tmux not installed, skipping integration test")
	}
}

func TestCreateStartStopDestroyLifecycle(t *testing.T) {
	requireTmux(t)
	e := newTestEngine("mngtest-")
	h, cleanup := testHost(t)
	defer cleanup()

	g := concurrency.New("test", 5)
	res, err := e.Create(context.Background(), g, h, CreateOptions{
		Name:          ids.AgentName("a1"),
		AgentType:     "bash",
		Command:       enums.CommandString("sleep 9999"),
		WorkDirMode:   enums.WorkDirInPlace,
		WorkDirSource: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer e.Tmux.KillSession(res.Session)

	if res.Agent.State != enums.StateRunning {
		t.Fatalf("expected RUNNING after Create, got %s", res.Agent.State)
	}

	if err := e.Stop(context.Background(), h, res.Agent, false); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	state, err := e.CurrentState(h, res.Agent)
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if state != enums.StateStopped {
		t.Fatalf("expected STOPPED after Stop, got %s", state)
	}

	if err := e.Start(context.Background(), h, res.Agent); err != nil {
		t.Fatalf("Start: %v", err)
	}
	state, err = e.CurrentState(h, res.Agent)
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if state != enums.StateRunning {
		t.Fatalf("expected RUNNING after Start, got %s", state)
	}

	workDir := res.Agent.WorkDir.String()
	if err := e.Destroy(context.Background(), nil, h, res.Agent, DestroyOptions{Force: true}); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := e.ResolveByName(h, ids.AgentName("a1")); err == nil {
		t.Fatal("expected the agent to be gone after Destroy")
	}
	if _, err := os.Stat(workDir); err != nil {
		t.Fatalf("expected an in_place work dir to survive Destroy (it is the caller's own source, not a copy), stat err = %v", err)
	}

	data, err := h.Store().ReadCertifiedData()
	if err != nil {
		t.Fatalf("ReadCertifiedData: %v", err)
	}
	for _, d := range data.GeneratedWorkDirs {
		if d == res.Agent.WorkDir.String() {
			t.Fatalf("expected destroyed agent's work dir to leave generated_work_dirs, got %v", data.GeneratedWorkDirs)
		}
	}
}

func TestCurrentStateWaitingOnceIdle(t *testing.T) {
	requireTmux(t)
	e := newTestEngine("mngtest-")
	h, cleanup := testHost(t)
	defer cleanup()

	g := concurrency.New("test", 5)
	res, err := e.Create(context.Background(), g, h, CreateOptions{
		Name:          ids.AgentName("idler"),
		AgentType:     "bash",
		Command:       enums.CommandString("sleep 9999"),
		WorkDirMode:   enums.WorkDirInPlace,
		WorkDirSource: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer e.Tmux.KillSession(res.Session)

	// A generous timeout keeps the just-created agent RUNNING: Create
	// touched its CREATE/START activity files moments ago.
	e.IdleTimeout = time.Hour
	state, err := e.CurrentState(h, res.Agent)
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if state != enums.StateRunning {
		t.Fatalf("expected RUNNING under a long idle timeout, got %s", state)
	}

	// A zero timeout makes any elapsed time since the last activity count
	// as idle, so the same live session now reports WAITING.
	e.IdleTimeout = 0
	state, err = e.CurrentState(h, res.Agent)
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if state != enums.StateWaiting {
		t.Fatalf("expected WAITING once every activity source is stale, got %s", state)
	}
}

func TestRenameUpdatesSessionAndRecord(t *testing.T) {
	requireTmux(t)
	e := newTestEngine("mngtest-")
	h, cleanup := testHost(t)
	defer cleanup()

	g := concurrency.New("test", 5)
	res, err := e.Create(context.Background(), g, h, CreateOptions{
		Name:          ids.AgentName("x"),
		AgentType:     "bash",
		Command:       enums.CommandString("sleep 9999"),
		WorkDirMode:   enums.WorkDirInPlace,
		WorkDirSource: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer e.Tmux.KillSession(res.Session)

	if err := e.Rename(context.Background(), h, res.Agent, ids.AgentName("y")); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if res.Agent.SessionName != "mngtest-y" {
		t.Fatalf("expected session renamed to mngtest-y, got %s", res.Agent.SessionName)
	}
	exists, err := e.Tmux.HasSession("mngtest-x")
	if err != nil {
		t.Fatalf("HasSession: %v", err)
	}
	if exists {
		t.Fatal("expected the old session name to no longer exist")
	}

	byNewName, err := e.ResolveByName(h, ids.AgentName("y"))
	if err != nil {
		t.Fatalf("ResolveByName: %v", err)
	}
	if byNewName.ID != res.Agent.ID {
		t.Fatalf("expected the same agent id after rename, got %s want %s", byNewName.ID, res.Agent.ID)
	}
}

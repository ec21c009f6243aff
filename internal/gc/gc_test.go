package gc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/host"
	"github.com/imbue-ai/mng/internal/hoststore"
	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/providers"
	"github.com/imbue-ai/mng/internal/providers/local"
)

// registerWorkDir appends dir to the host's generated-work-dir registry
// under the lock the store's mutating methods require.
func registerWorkDir(t *testing.T, store *hoststore.Store, dir string) {
	t.Helper()
	err := store.LockCooperatively(context.Background(), func() error {
		data, err := store.ReadCertifiedData()
		if err != nil {
			return err
		}
		data.AddGeneratedWorkDir(dir)
		return store.WriteCertifiedData(data)
	})
	if err != nil {
		t.Fatalf("registering work dir %s: %v", dir, err)
	}
}

func TestSweepWorkDirsDeletesUnclaimedOrphan(t *testing.T) {
	p := local.New(t.TempDir())
	h, err := p.CreateHost(context.Background(), providers.CreateHostOptions{})
	if err != nil {
		t.Fatalf("CreateHost: %v", err)
	}
	store := h.(host.StatefulHost).Store()

	orphan := filepath.Join(t.TempDir(), "orphan-workdir")
	if err := os.MkdirAll(orphan, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	registerWorkDir(t, store, orphan)

	sweeper := New(map[string]providers.Provider{"local": p})
	res, err := sweeper.Sweep(context.Background(), SweepOptions{Kinds: []ResourceKind{ResourceWorkDir}})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(res.Findings) != 1 || !res.Findings[0].Destroyed {
		t.Fatalf("expected exactly one destroyed finding, got %+v", res.Findings)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Fatalf("expected orphan dir to be removed, stat err = %v", err)
	}

	after, err := store.ReadCertifiedData()
	if err != nil {
		t.Fatalf("ReadCertifiedData: %v", err)
	}
	if len(after.GeneratedWorkDirs) != 0 {
		t.Fatalf("expected generated_work_dirs to drop the orphan, got %v", after.GeneratedWorkDirs)
	}
}

func TestSweepWorkDirsDryRunLeavesFilesystemUntouched(t *testing.T) {
	p := local.New(t.TempDir())
	h, err := p.CreateHost(context.Background(), providers.CreateHostOptions{})
	if err != nil {
		t.Fatalf("CreateHost: %v", err)
	}
	store := h.(host.StatefulHost).Store()

	orphan := filepath.Join(t.TempDir(), "orphan-workdir")
	if err := os.MkdirAll(orphan, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	registerWorkDir(t, store, orphan)

	sweeper := New(map[string]providers.Provider{"local": p})
	res, err := sweeper.Sweep(context.Background(), SweepOptions{Kinds: []ResourceKind{ResourceWorkDir}, IsDryRun: true})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(res.Findings) != 1 || res.Findings[0].Destroyed {
		t.Fatalf("dry run must report but not destroy, got %+v", res.Findings)
	}
	if _, err := os.Stat(orphan); err != nil {
		t.Fatalf("expected orphan dir to survive a dry run, stat err = %v", err)
	}
	after, _ := store.ReadCertifiedData()
	if len(after.GeneratedWorkDirs) != 1 {
		t.Fatalf("dry run must not rewrite generated_work_dirs, got %v", after.GeneratedWorkDirs)
	}
}

func TestSweepWorkDirsSparesClaimedDirs(t *testing.T) {
	p := local.New(t.TempDir())
	h, err := p.CreateHost(context.Background(), providers.CreateHostOptions{})
	if err != nil {
		t.Fatalf("CreateHost: %v", err)
	}
	store := h.(host.StatefulHost).Store()

	claimed := filepath.Join(t.TempDir(), "claimed-workdir")
	if err := os.MkdirAll(claimed, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	agentID := ids.NewAgentID()
	rec := &hoststore.AgentData{
		ID:          agentID,
		Name:        ids.AgentName("alive"),
		WorkDir:     enums.WorkDirPath(claimed),
		WorkDirMode: enums.WorkDirCopySource,
		State:       enums.StateRunning,
		SessionName: "mng-alive",
	}
	err = store.LockCooperatively(context.Background(), func() error {
		return store.CreateAgentRecord(rec)
	})
	if err != nil {
		t.Fatalf("CreateAgentRecord: %v", err)
	}

	registerWorkDir(t, store, claimed)

	sweeper := New(map[string]providers.Provider{"local": p})
	res, err := sweeper.Sweep(context.Background(), SweepOptions{Kinds: []ResourceKind{ResourceWorkDir}})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(res.Findings) != 0 {
		t.Fatalf("expected no findings for a claimed work dir, got %+v", res.Findings)
	}
	if _, err := os.Stat(claimed); err != nil {
		t.Fatalf("expected claimed dir to survive, stat err = %v", err)
	}
}

func TestSweepLocalHostNeverGCd(t *testing.T) {
	p := local.New(t.TempDir())
	sweeper := New(map[string]providers.Provider{"local": p})
	res, err := sweeper.Sweep(context.Background(), SweepOptions{Kinds: []ResourceKind{ResourceHost}})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(res.Findings) != 0 {
		t.Fatalf("expected the local host to never be swept, got %+v", res.Findings)
	}
}

func TestSweepContinuesPastProviderError(t *testing.T) {
	sweeper := New(map[string]providers.Provider{"broken": brokenListProvider{}})
	res, err := sweeper.Sweep(context.Background(), SweepOptions{ErrorBehavior: enums.ErrorBehaviorContinue})
	if err != nil {
		t.Fatalf("expected ErrorBehaviorContinue to swallow the error, got %v", err)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 accumulated error, got %d", len(res.Errors))
	}
}

func TestSweepAbortsOnProviderError(t *testing.T) {
	sweeper := New(map[string]providers.Provider{"broken": brokenListProvider{}})
	_, err := sweeper.Sweep(context.Background(), SweepOptions{ErrorBehavior: enums.ErrorBehaviorAbort})
	if err == nil {
		t.Fatal("expected ErrorBehaviorAbort to surface the ListHosts error")
	}
}

type brokenListProvider struct {
	providers.Provider
}

func (brokenListProvider) Name() string { return "broken" }

func (brokenListProvider) ListHosts(ctx context.Context, includeDestroyed bool) ([]host.Host, error) {
	return nil, errBrokenProvider
}

var errBrokenProvider = providerUnreachable("provider unreachable")

type providerUnreachable string

func (e providerUnreachable) Error() string { return string(e) }

package hoststore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/ids"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

// locked runs fn under the store's cooperative lock, since every mutating
// Store method refuses to run outside one.
func locked(t *testing.T, s *Store, fn func() error) error {
	t.Helper()
	return s.LockCooperatively(context.Background(), fn)
}

func mustCreateAgent(t *testing.T, s *Store, data *AgentData) {
	t.Helper()
	if err := locked(t, s, func() error { return s.CreateAgentRecord(data) }); err != nil {
		t.Fatalf("CreateAgentRecord: %v", err)
	}
}

func mustWriteCertified(t *testing.T, s *Store, d *CertifiedHostData) {
	t.Helper()
	if err := locked(t, s, func() error { return s.WriteCertifiedData(d) }); err != nil {
		t.Fatalf("WriteCertifiedData: %v", err)
	}
}

func TestWriteAndReadCertifiedData(t *testing.T) {
	s := newTestStore(t)
	d := &CertifiedHostData{
		ID:    ids.NewHostID(),
		Name:  ids.HostName("my-host"),
		State: enums.HostRunning,
	}
	d.AddGeneratedWorkDir("/work/a")
	d.AddGeneratedWorkDir("/work/a") // duplicate, should not double up

	mustWriteCertified(t, s, d)

	got, err := s.ReadCertifiedData()
	if err != nil {
		t.Fatalf("ReadCertifiedData: %v", err)
	}
	if got.Name != d.Name || got.State != enums.HostRunning {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if len(got.GeneratedWorkDirs) != 1 {
		t.Fatalf("expected exactly one work dir, got %v", got.GeneratedWorkDirs)
	}

	got.RemoveGeneratedWorkDir("/work/a")
	if len(got.GeneratedWorkDirs) != 0 {
		t.Fatalf("expected work dir removed, got %v", got.GeneratedWorkDirs)
	}
}

func TestCreateAndDestroyAgentRecord(t *testing.T) {
	s := newTestStore(t)
	agent := &AgentData{
		ID:      ids.NewAgentID(),
		Name:    ids.AgentName("foo"),
		State:   enums.StateRunning,
		WorkDir: enums.WorkDirPath("/src/foo"),
	}
	mustCreateAgent(t, s, agent)

	ids2, err := s.ListAgentIDs()
	if err != nil || len(ids2) != 1 || ids2[0] != agent.ID {
		t.Fatalf("ListAgentIDs = %v, %v", ids2, err)
	}

	got, err := s.ReadAgentRecord(agent.ID)
	if err != nil {
		t.Fatalf("ReadAgentRecord: %v", err)
	}
	if got.Name != agent.Name {
		t.Fatalf("expected name %q, got %q", agent.Name, got.Name)
	}

	if err := locked(t, s, func() error { return s.DestroyAgentRecord(agent.ID) }); err != nil {
		t.Fatalf("DestroyAgentRecord: %v", err)
	}
	ids3, err := s.ListAgentIDs()
	if err != nil || len(ids3) != 0 {
		t.Fatalf("expected no agents after destroy, got %v", ids3)
	}
}

func TestAgentEnvWrittenMode0600(t *testing.T) {
	s := newTestStore(t)
	id := ids.NewAgentID()
	mustCreateAgent(t, s, &AgentData{ID: id, Name: ids.AgentName("foo")})
	if err := locked(t, s, func() error { return s.WriteAgentEnv(id, map[string]string{"FOO": "bar"}) }); err != nil {
		t.Fatalf("WriteAgentEnv: %v", err)
	}
	info, err := os.Stat(s.AgentEnvPath(id))
	if err != nil {
		t.Fatalf("stat env file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("expected mode 0600, got %v", info.Mode().Perm())
	}
}

func TestTouchActivityAndActivityTime(t *testing.T) {
	s := newTestStore(t)
	id := ids.NewAgentID()
	mustCreateAgent(t, s, &AgentData{ID: id, Name: ids.AgentName("foo")})
	zero, err := s.ActivityTime(id, "USER")
	if err != nil {
		t.Fatalf("ActivityTime: %v", err)
	}
	if !zero.IsZero() {
		t.Fatalf("expected zero time before first touch, got %v", zero)
	}
	if err := s.TouchActivity(id, "USER"); err != nil {
		t.Fatalf("TouchActivity: %v", err)
	}
	touched, err := s.ActivityTime(id, "USER")
	if err != nil || touched.IsZero() {
		t.Fatalf("expected non-zero activity time, got %v, %v", touched, err)
	}
}

func TestAgentRecordPreservesUnknownKeys(t *testing.T) {
	s := newTestStore(t)
	agent := &AgentData{
		ID:          ids.NewAgentID(),
		Name:        ids.AgentName("foo"),
		AgentType:   "claude",
		StartOnBoot: true,
		Host:        AgentHostRef{ID: ids.NewHostID(), Name: ids.HostName("h"), ProviderName: "local"},
	}
	agent.SetPluginData("scheduler", "cron", "0 * * * *")
	mustCreateAgent(t, s, agent)

	// Simulate a newer writer adding a key this version doesn't know about.
	raw, err := os.ReadFile(s.agentDataPath(agent.ID))
	if err != nil {
		t.Fatalf("reading record: %v", err)
	}
	patched := bytes.Replace(raw, []byte(`"id":`), []byte(`"future_field": "kept", "id":`), 1)
	if err := os.WriteFile(s.agentDataPath(agent.ID), patched, 0644); err != nil {
		t.Fatalf("patching record: %v", err)
	}

	got, err := s.ReadAgentRecord(agent.ID)
	if err != nil {
		t.Fatalf("ReadAgentRecord: %v", err)
	}
	if !got.StartOnBoot || got.Host.ProviderName != "local" {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if got.Plugin["scheduler"]["cron"] != "0 * * * *" {
		t.Fatalf("plugin data lost: %v", got.Plugin)
	}

	if err := locked(t, s, func() error { return s.WriteAgentRecord(got) }); err != nil {
		t.Fatalf("WriteAgentRecord: %v", err)
	}
	rewritten, err := os.ReadFile(s.agentDataPath(agent.ID))
	if err != nil {
		t.Fatalf("re-reading record: %v", err)
	}
	if !bytes.Contains(rewritten, []byte(`"future_field"`)) {
		t.Fatalf("unknown key dropped on rewrite: %s", rewritten)
	}
	for _, key := range []string{`"type"`, `"create_time"`, `"start_on_boot"`, `"host"`, `"plugin"`} {
		if !bytes.Contains(rewritten, []byte(key)) {
			t.Fatalf("expected key %s in record: %s", key, rewritten)
		}
	}
}

func TestMutationsOutsideLockReturnLockNotHeld(t *testing.T) {
	s := newTestStore(t)
	id := ids.NewAgentID()
	agent := &AgentData{ID: id, Name: ids.AgentName("foo")}

	var lockErr *LockNotHeldError
	for name, err := range map[string]error{
		"CreateAgentRecord":  s.CreateAgentRecord(agent),
		"WriteAgentRecord":   s.WriteAgentRecord(agent),
		"DestroyAgentRecord": s.DestroyAgentRecord(id),
		"WriteAgentEnv":      s.WriteAgentEnv(id, map[string]string{"A": "b"}),
		"WriteCertifiedData": s.WriteCertifiedData(&CertifiedHostData{ID: ids.NewHostID()}),
	} {
		if !errors.As(err, &lockErr) {
			t.Errorf("%s outside the lock: got %v, want *LockNotHeldError", name, err)
		}
	}

	// The same mutations succeed inside a LockCooperatively scope.
	mustCreateAgent(t, s, agent)
}

func TestLockCooperativelySerializes(t *testing.T) {
	s := newTestStore(t)
	calls := 0
	err := s.LockCooperatively(context.Background(), func() error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("expected single call, got calls=%d err=%v", calls, err)
	}
}

func TestRebuildDetectsDrift(t *testing.T) {
	s := newTestStore(t)
	d := &CertifiedHostData{ID: ids.NewHostID(), Name: ids.HostName("h")}
	d.AddGeneratedWorkDir("/orphaned/dir")
	mustWriteCertified(t, s, d)

	agent := &AgentData{ID: ids.NewAgentID(), Name: ids.AgentName("a"), WorkDir: enums.WorkDirPath("/unregistered/dir")}
	mustCreateAgent(t, s, agent)

	report, err := s.Rebuild()
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if report.Clean() {
		t.Fatal("expected drift to be detected")
	}
	if len(report.OrphanedInRegistry) != 1 || report.OrphanedInRegistry[0] != "/orphaned/dir" {
		t.Fatalf("expected orphaned dir detected, got %v", report.OrphanedInRegistry)
	}
	if len(report.MissingFromRegistry) != 1 || report.MissingFromRegistry[0] != "/unregistered/dir" {
		t.Fatalf("expected missing-from-registry detected, got %v", report.MissingFromRegistry)
	}
	if len(report.AgentsWithoutEnvFile) != 1 {
		t.Fatalf("expected agent without env file detected, got %v", report.AgentsWithoutEnvFile)
	}
}

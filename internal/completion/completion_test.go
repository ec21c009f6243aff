package completion

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAgentCompletionsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := WriteAgentCompletions(dir, []string{"a1", "a2"}); err != nil {
		t.Fatalf("WriteAgentCompletions: %v", err)
	}
	got := ReadAgentCompletions(dir)
	if len(got.Names) != 2 || got.Names[0] != "a1" {
		t.Fatalf("unexpected names: %v", got.Names)
	}
	if got.Stale(time.Minute) {
		t.Fatal("freshly written cache should not be stale")
	}
	if !got.Stale(0) {
		t.Fatal("zero max age should always be stale")
	}
}

func TestReadAgentCompletionsToleratesAbsentAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	if got := ReadAgentCompletions(dir); len(got.Names) != 0 || !got.Stale(time.Minute) {
		t.Fatalf("absent cache should read as empty and stale, got %+v", got)
	}
	if err := os.WriteFile(filepath.Join(dir, agentCompletionsFile), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := ReadAgentCompletions(dir); len(got.Names) != 0 {
		t.Fatalf("corrupt cache should read as empty, got %+v", got)
	}
}

func TestWriteCommandCompletions(t *testing.T) {
	dir := t.TempDir()
	err := WriteCommandCompletions(dir, &CommandCompletions{
		Commands:           []string{"create", "destroy"},
		Aliases:            map[string]string{"rm": "destroy"},
		OptionsByCommand:   map[string][]string{"create": {"--provider", "--type"}},
		OptionChoices:      map[string][]string{"create.--work-dir-mode": {"in_place", "worktree"}},
		AgentNameArguments: []string{"destroy"},
	})
	if err != nil {
		t.Fatalf("WriteCommandCompletions: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, commandCompletionsFile)); err != nil {
		t.Fatalf("cache file missing: %v", err)
	}
}

package cmdlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenLogClose(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, "create")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	l.Log("provision", map[string]any{"agent": "a1"})
	l.Close(nil)

	f, err := os.Open(l.Path())
	if err != nil {
		t.Fatalf("opening stream: %v", err)
	}
	defer f.Close()

	var events []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line is not well-formed JSON: %q: %v", scanner.Text(), err)
		}
		if e.Command != "create" {
			t.Fatalf("expected command create, got %q", e.Command)
		}
		events = append(events, e.Event)
	}
	if strings.Join(events, ",") != "start,provision,end" {
		t.Fatalf("unexpected event sequence: %v", events)
	}
}

func TestCloseRecordsError(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, "destroy")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	l.Close(os.ErrPermission)

	raw, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "permission denied") {
		t.Fatalf("expected error recorded in end entry: %s", raw)
	}
	// Log after Close is a no-op, not a panic.
	l.Log("late", nil)
}

func TestPruneKeepsAtMostN(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < MaxKeptFiles+7; i++ {
		l, err := Open(dir, "list")
		if err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		l.Close(nil)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			count++
		}
	}
	if count > MaxKeptFiles {
		t.Fatalf("rotation kept %d files, want at most %d", count, MaxKeptFiles)
	}
}

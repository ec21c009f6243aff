package local

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/imbue-ai/mng/internal/host"
	"github.com/imbue-ai/mng/internal/providers"
)

func TestCreateHostIsIdempotent(t *testing.T) {
	p := New(t.TempDir())
	h1, err := p.CreateHost(context.Background(), providers.CreateHostOptions{})
	if err != nil {
		t.Fatalf("CreateHost: %v", err)
	}
	h2, err := p.CreateHost(context.Background(), providers.CreateHostOptions{})
	if err != nil {
		t.Fatalf("CreateHost (second): %v", err)
	}
	if h1.GetID() != h2.GetID() {
		t.Fatalf("expected same host id across calls, got %q and %q", h1.GetID(), h2.GetID())
	}
}

func TestExecuteCommandCapturesOutput(t *testing.T) {
	p := New(t.TempDir())
	h, err := p.CreateHost(context.Background(), providers.CreateHostOptions{})
	if err != nil {
		t.Fatalf("CreateHost: %v", err)
	}
	res, err := h.ExecuteCommand(context.Background(), "echo hi", host.ExecuteOptions{})
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if !res.Success || res.Stdout != "hi\n" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestWriteAndReadTextFile(t *testing.T) {
	p := New(t.TempDir())
	h, err := p.CreateHost(context.Background(), providers.CreateHostOptions{})
	if err != nil {
		t.Fatalf("CreateHost: %v", err)
	}
	path := filepath.Join(t.TempDir(), "nested", "file.txt")
	if err := h.WriteTextFile(context.Background(), path, "hello", 0644); err != nil {
		t.Fatalf("WriteTextFile: %v", err)
	}
	got, err := h.ReadTextFile(context.Background(), path)
	if err != nil || got != "hello" {
		t.Fatalf("ReadTextFile = %q, %v", got, err)
	}
}

func TestDestroyHostUnsupported(t *testing.T) {
	p := New(t.TempDir())
	err := p.DestroyHost(context.Background(), "", false)
	var unsupported *providers.ErrUnsupported
	if err == nil {
		t.Fatal("expected error")
	}
	if !asErrUnsupported(err, &unsupported) {
		t.Fatalf("expected *ErrUnsupported, got %T", err)
	}
}

func asErrUnsupported(err error, target **providers.ErrUnsupported) bool {
	e, ok := err.(*providers.ErrUnsupported)
	if ok {
		*target = e
	}
	return ok
}

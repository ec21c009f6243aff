package remotemng

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/ids"
)

func TestGetHostRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/get_host" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		rec := RemoteHostRecord{ID: ids.HostID("host-abc"), Name: ids.HostName("peer-host"), State: enums.HostRunning}
		_ = json.NewEncoder(w).Encode(rec)
	}))
	defer srv.Close()

	p := New(NewClient(srv.URL, "test-key"))
	h, err := p.GetHost(context.Background(), "peer-host")
	if err != nil {
		t.Fatalf("GetHost: %v", err)
	}
	if h.GetName() != ids.HostName("peer-host") || h.State() != enums.HostRunning {
		t.Fatalf("unexpected host: %+v", h)
	}
}

func TestCallPropagatesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	p := New(NewClient(srv.URL, ""))
	_, err := p.GetHost(context.Background(), "whatever")
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestGetConnectorUnsupported(t *testing.T) {
	p := New(NewClient("http://unused", ""))
	_, err := p.GetConnector(context.Background(), &Host{})
	if err == nil {
		t.Fatal("expected GetConnector to be unsupported for remotemng")
	}
}

// Package remotemng implements providers.Provider as an HTTP client to a
// peer mng instance's API. Per spec.md §1 Non-goals this is an HTTP-client
// concern only — no server is implemented here, just the typed request/
// response envelope, grounded on the teacher's HandlerRegistry message
// shape (a JSON payload keyed by a type string) adapted into the request
// envelope below.
package remotemng

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/host"
	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/providers"
)

// envelope is the wire shape of every request/response exchanged with a
// peer: a type tag plus an opaque payload, mirroring the teacher's
// typed-message dispatch shape.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client talks to a single peer mng instance's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	apiKey  string
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		apiKey:  apiKey,
	}
}

func (c *Client) call(ctx context.Context, msgType string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", msgType, err)
	}
	env := envelope{Type: msgType, Payload: body}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling %s envelope: %w", msgType, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/"+msgType, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("building %s request: %w", msgType, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling peer %s for %s: %w", c.baseURL, msgType, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", msgType, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer %s returned %d for %s: %s", c.baseURL, resp.StatusCode, msgType, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", msgType, err)
	}
	return nil
}

// RemoteHostRecord carries an agent/host record as reported verbatim by the
// peer — mng records these without reinterpreting peer-side state.
type RemoteHostRecord struct {
	ID    ids.HostID        `json:"id"`
	Name  ids.HostName      `json:"name"`
	State enums.HostState   `json:"state"`
	Tags  map[string]string `json:"tags,omitempty"`
}

// Host is a peer-hosted machine; every operation delegates to the peer over
// HTTP rather than running locally.
type Host struct {
	client *Client
	record RemoteHostRecord
}

var _ host.Host = (*Host)(nil)

func (h *Host) IsLocal() bool { return false }

type execRequest struct {
	HostID         ids.HostID `json:"host_id"`
	Cmd            string     `json:"cmd"`
	Cwd            string     `json:"cwd,omitempty"`
	Env            []string   `json:"env,omitempty"`
	TimeoutSeconds float64    `json:"timeout_seconds,omitempty"`
}

func (h *Host) ExecuteCommand(ctx context.Context, cmd string, opts host.ExecuteOptions) (host.CommandResult, error) {
	var result host.CommandResult
	err := h.client.call(ctx, "execute_command", execRequest{
		HostID:         h.record.ID,
		Cmd:            cmd,
		Cwd:            opts.Cwd,
		Env:            opts.Env,
		TimeoutSeconds: opts.TimeoutSeconds,
	}, &result)
	return result, err
}

type fileRequest struct {
	HostID ids.HostID `json:"host_id"`
	Path   string     `json:"path"`
	Data   []byte     `json:"data,omitempty"`
	Mode   uint32     `json:"mode,omitempty"`
}

func (h *Host) ReadTextFile(ctx context.Context, path string) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	err := h.client.call(ctx, "read_text_file", fileRequest{HostID: h.record.ID, Path: path}, &out)
	return out.Content, err
}

func (h *Host) WriteTextFile(ctx context.Context, path string, content string, mode uint32) error {
	return h.WriteFile(ctx, path, []byte(content), mode)
}

func (h *Host) WriteFile(ctx context.Context, path string, data []byte, mode uint32) error {
	return h.client.call(ctx, "write_file", fileRequest{HostID: h.record.ID, Path: path, Data: data, Mode: mode}, nil)
}

func (h *Host) GetAgentEnvPath(agent ids.AgentID) string {
	return fmt.Sprintf("<remote:%s>/agents/%s/env", h.record.ID, agent)
}
func (h *Host) HostDir() string        { return fmt.Sprintf("<remote:%s>", h.record.ID) }
func (h *Host) GetName() ids.HostName  { return h.record.Name }
func (h *Host) GetID() ids.HostID      { return h.record.ID }
func (h *Host) State() enums.HostState { return h.record.State }

// LockCooperatively is delegated entirely to the peer: the peer's own
// hoststore already enforces mutual exclusion on its side, so this is
// simply a passthrough on the client.
func (h *Host) LockCooperatively(ctx context.Context, fn func() error) error { return fn() }

// Provider drives host operations by delegating them to a peer mng
// instance over HTTP.
type Provider struct {
	client *Client
}

var _ providers.Provider = (*Provider)(nil)

func New(client *Client) *Provider { return &Provider{client: client} }

func (p *Provider) Name() string { return "remotemng" }

func (p *Provider) toHost(r RemoteHostRecord) *Host { return &Host{client: p.client, record: r} }

func (p *Provider) CreateHost(ctx context.Context, opts providers.CreateHostOptions) (host.Host, error) {
	var rec RemoteHostRecord
	err := p.client.call(ctx, "create_host", opts, &rec)
	if err != nil {
		return nil, err
	}
	return p.toHost(rec), nil
}

func (p *Provider) StartHost(ctx context.Context, ref ids.HostID, snapshot ids.SnapshotID) (host.Host, error) {
	var rec RemoteHostRecord
	err := p.client.call(ctx, "start_host", struct {
		HostID   ids.HostID     `json:"host_id"`
		Snapshot ids.SnapshotID `json:"snapshot,omitempty"`
	}{ref, snapshot}, &rec)
	if err != nil {
		return nil, err
	}
	return p.toHost(rec), nil
}

func (p *Provider) StopHost(ctx context.Context, ref ids.HostID, opts providers.StopHostOptions) error {
	return p.client.call(ctx, "stop_host", struct {
		HostID ids.HostID `json:"host_id"`
		providers.StopHostOptions
	}{ref, opts}, nil)
}

func (p *Provider) DestroyHost(ctx context.Context, ref ids.HostID, deleteSnapshots bool) error {
	return p.client.call(ctx, "destroy_host", struct {
		HostID          ids.HostID `json:"host_id"`
		DeleteSnapshots bool       `json:"delete_snapshots"`
	}{ref, deleteSnapshots}, nil)
}

func (p *Provider) GetHost(ctx context.Context, idOrName string) (host.Host, error) {
	var rec RemoteHostRecord
	err := p.client.call(ctx, "get_host", struct {
		IDOrName string `json:"id_or_name"`
	}{idOrName}, &rec)
	if err != nil {
		return nil, err
	}
	return p.toHost(rec), nil
}

func (p *Provider) ListHosts(ctx context.Context, includeDestroyed bool) ([]host.Host, error) {
	var recs []RemoteHostRecord
	err := p.client.call(ctx, "list_hosts", struct {
		IncludeDestroyed bool `json:"include_destroyed"`
	}{includeDestroyed}, &recs)
	if err != nil {
		return nil, err
	}
	out := make([]host.Host, len(recs))
	for i, r := range recs {
		out[i] = p.toHost(r)
	}
	return out, nil
}

// SupportsSnapshots reports the peer's own configuration, which mng can't
// know without asking; remotemng optimistically forwards snapshot calls and
// lets the peer reject them if unsupported.
func (p *Provider) SupportsSnapshots() bool { return true }

func (p *Provider) ListSnapshots(ctx context.Context, hostID ids.HostID) ([]providers.Snapshot, error) {
	var snaps []providers.Snapshot
	err := p.client.call(ctx, "list_snapshots", struct {
		HostID ids.HostID `json:"host_id"`
	}{hostID}, &snaps)
	return snaps, err
}

func (p *Provider) CreateSnapshot(ctx context.Context, hostID ids.HostID) (providers.Snapshot, error) {
	var snap providers.Snapshot
	err := p.client.call(ctx, "create_snapshot", struct {
		HostID ids.HostID `json:"host_id"`
	}{hostID}, &snap)
	return snap, err
}

func (p *Provider) DeleteSnapshot(ctx context.Context, id ids.SnapshotID) error {
	return p.client.call(ctx, "delete_snapshot", struct {
		ID ids.SnapshotID `json:"id"`
	}{id}, nil)
}

func (p *Provider) SupportsVolumes() bool { return true }

func (p *Provider) ListVolumes(ctx context.Context, hostID ids.HostID) ([]providers.Volume, error) {
	var vols []providers.Volume
	err := p.client.call(ctx, "list_volumes", struct {
		HostID ids.HostID `json:"host_id"`
	}{hostID}, &vols)
	return vols, err
}

func (p *Provider) DeleteVolume(ctx context.Context, id ids.VolumeID) error {
	return p.client.call(ctx, "delete_volume", struct {
		ID ids.VolumeID `json:"id"`
	}{id}, nil)
}

func (p *Provider) SupportsMutableTags() bool { return true }

func (p *Provider) SetHostTags(ctx context.Context, hostID ids.HostID, tags map[string]string) error {
	return p.client.call(ctx, "set_host_tags", struct {
		HostID ids.HostID        `json:"host_id"`
		Tags   map[string]string `json:"tags"`
	}{hostID, tags}, nil)
}

func (p *Provider) AddHostTags(ctx context.Context, hostID ids.HostID, tags map[string]string) error {
	return p.client.call(ctx, "add_host_tags", struct {
		HostID ids.HostID        `json:"host_id"`
		Tags   map[string]string `json:"tags"`
	}{hostID, tags}, nil)
}

func (p *Provider) RemoveHostTags(ctx context.Context, hostID ids.HostID, keys []string) error {
	return p.client.call(ctx, "remove_host_tags", struct {
		HostID ids.HostID `json:"host_id"`
		Keys   []string   `json:"keys"`
	}{hostID, keys}, nil)
}

func (p *Provider) GetConnector(ctx context.Context, h host.Host) (providers.Connector, error) {
	return providers.Connector{}, &providers.ErrUnsupported{Provider: p.Name(), Operation: "get_connector (connection is delegated entirely to the peer)"}
}

// SnapshotFunc always returns nil: remotemng has no snapshot-and-shutdown
// callable built in, and Provider has no field or setter to supply one.
func (p *Provider) SnapshotFunc() providers.SnapshotFunc { return nil }

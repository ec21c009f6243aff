// Package sandbox implements providers.Provider for the remote-sandbox
// execution substrate: ephemeral, broker-provisioned machines created and
// destroyed on demand (unlike internal/providers/ssh's static pre-declared
// pool), reachable once provisioned over SSH, and often fronting a web UI
// behind a forwarded preview URL.
//
// Host control (create/start/stop/destroy/list) is driven through a small
// JSON-over-HTTP client, grounded on internal/providers/remotemng's
// envelope/Client.call idiom, since a sandbox broker is exactly the kind of
// control-plane peer remotemng already knows how to talk to. Command
// execution against a provisioned sandbox reuses internal/providers/ssh's
// sshArgs/ExecuteCommand shape once the broker hands back connection
// details, since a live sandbox is addressed exactly like an ssh pool entry
// at that point.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/host"
	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/providers"
)

// BrokerClient talks to the sandbox broker's control API: one HTTP endpoint
// that provisions/tears down sandboxes and reports their connection
// details. Each call POSTs the bare JSON payload to
// /api/v1/sandboxes/<op>; unlike internal/providers/remotemng, requests are
// not wrapped in a type/payload envelope.
type BrokerClient struct {
	baseURL string
	http    *http.Client
	apiKey  string
}

// NewBrokerClient returns a client for the broker at baseURL (e.g.
// "https://sandboxes.example.internal"), authenticating with apiKey if set.
func NewBrokerClient(baseURL, apiKey string) *BrokerClient {
	return &BrokerClient{baseURL: strings.TrimSuffix(baseURL, "/"), http: &http.Client{Timeout: 60 * time.Second}, apiKey: apiKey}
}

func (c *BrokerClient) call(ctx context.Context, op string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/sandboxes/"+op, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling sandbox broker %s for %s: %w", c.baseURL, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &providers.ErrUnsupported{Provider: "sandbox", Operation: fmt.Sprintf("%s (broker returned %d: %s)", op, resp.StatusCode, string(respBody))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", op, err)
	}
	return nil
}

// connection is what the broker reports once a sandbox is reachable.
type connection struct {
	ID         ids.HostID      `json:"id"`
	Name       ids.HostName    `json:"name"`
	State      enums.HostState `json:"state"`
	SSHAddress string          `json:"ssh_address"` // user@host
	SSHPort    int             `json:"ssh_port"`
	PreviewURL string          `json:"preview_url,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// Host is one provisioned sandbox, addressed over SSH once connected.
type Host struct {
	broker *BrokerClient
	conn   connection
}

var _ host.Host = (*Host)(nil)

func (h *Host) IsLocal() bool { return false }

func (h *Host) sshArgs() []string {
	args := []string{"-o", "BatchMode=yes", "-o", "StrictHostKeyChecking=accept-new"}
	if h.conn.SSHPort != 0 {
		args = append(args, "-p", fmt.Sprintf("%d", h.conn.SSHPort))
	}
	return append(args, h.conn.SSHAddress)
}

func (h *Host) ExecuteCommand(ctx context.Context, cmd string, opts host.ExecuteOptions) (host.CommandResult, error) {
	remote := cmd
	if opts.Cwd != "" {
		remote = fmt.Sprintf("cd %q && %s", opts.Cwd, cmd)
	}
	for _, kv := range opts.Env {
		remote = kv + " " + remote
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.TimeoutSeconds > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutSeconds*float64(time.Second)))
		defer cancel()
	}

	args := append(h.sshArgs(), remote)
	execCmd := exec.CommandContext(runCtx, "ssh", args...)
	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr
	runErr := execCmd.Run()

	return host.CommandResult{Stdout: stdout.String(), Stderr: stderr.String(), Success: runErr == nil}, nil
}

func (h *Host) ReadTextFile(ctx context.Context, path string) (string, error) {
	res, err := h.ExecuteCommand(ctx, fmt.Sprintf("cat %q", path), host.ExecuteOptions{})
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", fmt.Errorf("reading %s on sandbox %s: %s", path, h.conn.ID, res.Stderr)
	}
	return res.Stdout, nil
}

func (h *Host) WriteTextFile(ctx context.Context, path string, content string, mode uint32) error {
	return h.WriteFile(ctx, path, []byte(content), mode)
}

func (h *Host) WriteFile(ctx context.Context, path string, data []byte, mode uint32) error {
	args := append(h.sshArgs(), fmt.Sprintf("cat > %q", path))
	cmd := exec.CommandContext(ctx, "ssh", args...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("writing %s on sandbox %s: %s", path, h.conn.ID, strings.TrimSpace(stderr.String()))
	}
	if mode != 0 {
		if _, err := h.ExecuteCommand(ctx, fmt.Sprintf("chmod %o %q", mode, path), host.ExecuteOptions{}); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) GetAgentEnvPath(agent ids.AgentID) string {
	return fmt.Sprintf("~/.mng/agents/%s/env", agent)
}
func (h *Host) HostDir() string        { return "~/.mng" }
func (h *Host) GetName() ids.HostName  { return h.conn.Name }
func (h *Host) GetID() ids.HostID      { return h.conn.ID }
func (h *Host) State() enums.HostState { return h.conn.State }

// PreviewURL is the forwarded URL a sandbox's web UI (if any) is reachable
// at; empty when the sandbox exposes no web-facing process.
func (h *Host) PreviewURL() string { return h.conn.PreviewURL }

// LockCooperatively has no cross-process coordination on a freshly
// provisioned sandbox: each sandbox is exclusively owned by the agent mng
// created it for, so there is no concurrent writer to exclude.
func (h *Host) LockCooperatively(ctx context.Context, fn func() error) error { return fn() }

// Provider drives the remote-sandbox substrate through a broker API.
type Provider struct {
	broker *BrokerClient
	probe  *BrowserReadinessProbe // optional; nil disables preview-URL checks
}

var _ providers.Provider = (*Provider)(nil)

// New returns a Provider backed by broker. probe may be nil to skip
// browser-based preview checks entirely (e.g. when go-rod's headless
// Chromium dependency isn't available in the environment).
func New(broker *BrokerClient, probe *BrowserReadinessProbe) *Provider {
	return &Provider{broker: broker, probe: probe}
}

func (p *Provider) Name() string { return "sandbox" }

func (p *Provider) toHost(c connection) *Host { return &Host{broker: p.broker, conn: c} }

func (p *Provider) CreateHost(ctx context.Context, opts providers.CreateHostOptions) (host.Host, error) {
	var conn connection
	err := p.broker.call(ctx, "create", struct {
		Name  ids.HostName      `json:"name"`
		Image string            `json:"image,omitempty"`
		Tags  map[string]string `json:"tags,omitempty"`
	}{opts.Name, opts.Image, opts.Tags}, &conn)
	if err != nil {
		return nil, fmt.Errorf("provisioning sandbox: %w", err)
	}
	return p.toHost(conn), nil
}

func (p *Provider) StartHost(ctx context.Context, ref ids.HostID, snapshot ids.SnapshotID) (host.Host, error) {
	var conn connection
	err := p.broker.call(ctx, "start", struct {
		ID       ids.HostID     `json:"id"`
		Snapshot ids.SnapshotID `json:"snapshot,omitempty"`
	}{ref, snapshot}, &conn)
	if err != nil {
		return nil, fmt.Errorf("starting sandbox %s: %w", ref, err)
	}
	return p.toHost(conn), nil
}

func (p *Provider) StopHost(ctx context.Context, ref ids.HostID, opts providers.StopHostOptions) error {
	return p.broker.call(ctx, "stop", struct {
		ID ids.HostID `json:"id"`
		providers.StopHostOptions
	}{ref, opts}, nil)
}

func (p *Provider) DestroyHost(ctx context.Context, ref ids.HostID, deleteSnapshots bool) error {
	return p.broker.call(ctx, "destroy", struct {
		ID              ids.HostID `json:"id"`
		DeleteSnapshots bool       `json:"delete_snapshots"`
	}{ref, deleteSnapshots}, nil)
}

func (p *Provider) GetHost(ctx context.Context, idOrName string) (host.Host, error) {
	var conn connection
	err := p.broker.call(ctx, "get", struct {
		IDOrName string `json:"id_or_name"`
	}{idOrName}, &conn)
	if err != nil {
		return nil, fmt.Errorf("looking up sandbox %q: %w", idOrName, err)
	}
	return p.toHost(conn), nil
}

func (p *Provider) ListHosts(ctx context.Context, includeDestroyed bool) ([]host.Host, error) {
	var conns []connection
	err := p.broker.call(ctx, "list", struct {
		IncludeDestroyed bool `json:"include_destroyed"`
	}{includeDestroyed}, &conns)
	if err != nil {
		return nil, fmt.Errorf("listing sandboxes: %w", err)
	}
	out := make([]host.Host, len(conns))
	for i, c := range conns {
		out[i] = p.toHost(c)
	}
	return out, nil
}

// SupportsSnapshots reports true: sandbox brokers snapshot the same way
// remotemng peers do, by forwarding the call and letting the broker decide.
func (p *Provider) SupportsSnapshots() bool { return true }

func (p *Provider) ListSnapshots(ctx context.Context, hostID ids.HostID) ([]providers.Snapshot, error) {
	var snaps []providers.Snapshot
	err := p.broker.call(ctx, "snapshots/list", struct {
		HostID ids.HostID `json:"host_id"`
	}{hostID}, &snaps)
	return snaps, err
}

func (p *Provider) CreateSnapshot(ctx context.Context, hostID ids.HostID) (providers.Snapshot, error) {
	var snap providers.Snapshot
	err := p.broker.call(ctx, "snapshots/create", struct {
		HostID ids.HostID `json:"host_id"`
	}{hostID}, &snap)
	return snap, err
}

func (p *Provider) DeleteSnapshot(ctx context.Context, id ids.SnapshotID) error {
	return p.broker.call(ctx, "snapshots/delete", struct {
		ID ids.SnapshotID `json:"id"`
	}{id}, nil)
}

func (p *Provider) SupportsVolumes() bool { return false }
func (p *Provider) ListVolumes(ctx context.Context, hostID ids.HostID) ([]providers.Volume, error) {
	return nil, &providers.ErrUnsupported{Provider: p.Name(), Operation: "volumes (sandboxes are ephemeral; persistent storage is out of scope)"}
}
func (p *Provider) DeleteVolume(ctx context.Context, id ids.VolumeID) error {
	return &providers.ErrUnsupported{Provider: p.Name(), Operation: "volumes"}
}

func (p *Provider) SupportsMutableTags() bool { return true }

func (p *Provider) SetHostTags(ctx context.Context, hostID ids.HostID, tags map[string]string) error {
	return p.broker.call(ctx, "tags/set", struct {
		HostID ids.HostID        `json:"host_id"`
		Tags   map[string]string `json:"tags"`
	}{hostID, tags}, nil)
}

func (p *Provider) AddHostTags(ctx context.Context, hostID ids.HostID, tags map[string]string) error {
	return p.broker.call(ctx, "tags/add", struct {
		HostID ids.HostID        `json:"host_id"`
		Tags   map[string]string `json:"tags"`
	}{hostID, tags}, nil)
}

func (p *Provider) RemoveHostTags(ctx context.Context, hostID ids.HostID, keys []string) error {
	return p.broker.call(ctx, "tags/remove", struct {
		HostID ids.HostID `json:"host_id"`
		Keys   []string   `json:"keys"`
	}{hostID, keys}, nil)
}

func (p *Provider) GetConnector(ctx context.Context, h host.Host) (providers.Connector, error) {
	sh, ok := h.(*Host)
	if !ok {
		return providers.Connector{}, fmt.Errorf("sandbox connector requires a sandbox host")
	}
	return providers.Connector{Command: append([]string{"ssh"}, sh.sshArgs()...)}, nil
}

// SnapshotFunc returns nil: the broker's own snapshot-and-shutdown behavior
// is reached through CreateSnapshot/StopHost, not a pluggable callable.
func (p *Provider) SnapshotFunc() providers.SnapshotFunc { return nil }

// AwaitPreviewReady blocks until h's preview URL renders successfully
// according to p's configured browser probe, or ctx is done. It is a no-op
// success when the provider has no probe configured or h exposes no
// preview URL — not every sandboxed agent serves a web UI.
func (p *Provider) AwaitPreviewReady(ctx context.Context, h *Host, timeout time.Duration) error {
	if p.probe == nil || h.PreviewURL() == "" {
		return nil
	}
	return p.probe.WaitUntilRenders(ctx, h.PreviewURL(), timeout)
}

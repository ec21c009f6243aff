// Package ssh implements providers.Provider over a config-declared pool of
// pre-existing machines: hosts are never created by mng, only connected to,
// matching spec.md §4.6's "SSH" row. Commands run via the ssh binary, the
// same CLI-shelling idiom the docker and local backends use.
package ssh

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/host"
	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/providers"
)

// PoolEntry is one pre-declared machine in the SSH pool's configuration.
type PoolEntry struct {
	Name       ids.HostName
	Address    string // user@host
	Port       int
	IdentityFile string
}

// Provider drives a fixed pool of pre-existing SSH-reachable hosts.
type Provider struct {
	pool map[ids.HostName]PoolEntry
}

var _ providers.Provider = (*Provider)(nil)

func New(pool []PoolEntry) *Provider {
	p := &Provider{pool: map[ids.HostName]PoolEntry{}}
	for _, e := range pool {
		p.pool[e.Name] = e
	}
	return p
}

func (p *Provider) Name() string { return "ssh" }

// Host is a persistent, pre-existing machine addressed over SSH.
type Host struct {
	id    ids.HostID
	entry PoolEntry
}

var _ host.Host = (*Host)(nil)

func (h *Host) sshArgs() []string {
	args := []string{"-o", "BatchMode=yes"}
	if h.entry.Port != 0 {
		args = append(args, "-p", fmt.Sprintf("%d", h.entry.Port))
	}
	if h.entry.IdentityFile != "" {
		args = append(args, "-i", h.entry.IdentityFile)
	}
	return append(args, h.entry.Address)
}

func (h *Host) IsLocal() bool { return false }

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
		return "", fmt.Errorf("reading %s on %s: %s", path, h.entry.Address, res.Stderr)
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
		return fmt.Errorf("writing %s on %s: %s", path, h.entry.Address, strings.TrimSpace(stderr.String()))
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
func (h *Host) GetName() ids.HostName  { return h.entry.Name }
func (h *Host) GetID() ids.HostID      { return h.id }
func (h *Host) State() enums.HostState { return enums.HostRunning }

// LockCooperatively runs fn without taking any lock; no remote flock is
// invoked on the SSH host.
func (h *Host) LockCooperatively(ctx context.Context, fn func() error) error { return fn() }

func (p *Provider) CreateHost(ctx context.Context, opts providers.CreateHostOptions) (host.Host, error) {
	return nil, &providers.ErrUnsupported{Provider: p.Name(), Operation: "create_host (the ssh pool is a pre-declared config, not provisioned by mng)"}
}

func (p *Provider) StartHost(ctx context.Context, ref ids.HostID, snapshot ids.SnapshotID) (host.Host, error) {
	return p.GetHost(ctx, string(ref))
}

func (p *Provider) StopHost(ctx context.Context, ref ids.HostID, opts providers.StopHostOptions) error {
	return nil
}

// DestroyHost is a silent no-op that returns nil: pool hosts pre-exist mng
// and are never actually destroyed by it.
func (p *Provider) DestroyHost(ctx context.Context, ref ids.HostID, deleteSnapshots bool) error {
	return nil
}

func (p *Provider) findByNameOrID(idOrName string) (*Host, error) {
	for name, entry := range p.pool {
		if string(name) == idOrName || entry.Address == idOrName || "host-"+string(name) == idOrName {
			return &Host{id: ids.HostID("host-" + string(name)), entry: entry}, nil
		}
	}
	return nil, fmt.Errorf("no ssh pool entry matching %q", idOrName)
}

func (p *Provider) GetHost(ctx context.Context, idOrName string) (host.Host, error) {
	return p.findByNameOrID(idOrName)
}

func (p *Provider) ListHosts(ctx context.Context, includeDestroyed bool) ([]host.Host, error) {
	hosts := make([]host.Host, 0, len(p.pool))
	for name, entry := range p.pool {
		hosts = append(hosts, &Host{id: ids.HostID("host-" + string(name)), entry: entry})
	}
	return hosts, nil
}

func (p *Provider) SupportsSnapshots() bool { return false }
func (p *Provider) ListSnapshots(ctx context.Context, hostID ids.HostID) ([]providers.Snapshot, error) {
	return nil, &providers.ErrUnsupported{Provider: p.Name(), Operation: "snapshots"}
}
func (p *Provider) CreateSnapshot(ctx context.Context, hostID ids.HostID) (providers.Snapshot, error) {
	return providers.Snapshot{}, &providers.ErrUnsupported{Provider: p.Name(), Operation: "snapshots"}
}
func (p *Provider) DeleteSnapshot(ctx context.Context, id ids.SnapshotID) error {
	return &providers.ErrUnsupported{Provider: p.Name(), Operation: "snapshots"}
}

func (p *Provider) SupportsVolumes() bool { return false }
func (p *Provider) ListVolumes(ctx context.Context, hostID ids.HostID) ([]providers.Volume, error) {
	return nil, &providers.ErrUnsupported{Provider: p.Name(), Operation: "volumes"}
}
func (p *Provider) DeleteVolume(ctx context.Context, id ids.VolumeID) error {
	return &providers.ErrUnsupported{Provider: p.Name(), Operation: "volumes"}
}

func (p *Provider) SupportsMutableTags() bool { return false }
func (p *Provider) SetHostTags(ctx context.Context, hostID ids.HostID, tags map[string]string) error {
	return &providers.ErrUnsupported{Provider: p.Name(), Operation: "mutable tags (pool entries are static config)"}
}
func (p *Provider) AddHostTags(ctx context.Context, hostID ids.HostID, tags map[string]string) error {
	return &providers.ErrUnsupported{Provider: p.Name(), Operation: "mutable tags"}
}
func (p *Provider) RemoveHostTags(ctx context.Context, hostID ids.HostID, keys []string) error {
	return &providers.ErrUnsupported{Provider: p.Name(), Operation: "mutable tags"}
}

func (p *Provider) GetConnector(ctx context.Context, h host.Host) (providers.Connector, error) {
	sh, ok := h.(*Host)
	if !ok {
		return providers.Connector{}, fmt.Errorf("ssh connector requires an ssh host")
	}
	return providers.Connector{Command: append([]string{"ssh"}, sh.sshArgs()...)}, nil
}

func (p *Provider) SnapshotFunc() providers.SnapshotFunc { return nil }

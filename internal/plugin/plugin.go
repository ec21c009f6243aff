// Package plugin implements the hook contract agent-type and provider
// plugins fulfill: register_provider_backend, register_agent_type,
// register_cli_commands, on_agent_created/destroyed,
// override_command_options, and get_files_for_deploy. Dynamic discovery
// (the original's pluggy-based loader) is out of scope; plugins register
// themselves at init time into a typed Registry, the same Register/Handle/
// CanHandle shape the teacher uses for protocol message dispatch,
// generalized here from mail-message routing to lifecycle hook dispatch.
package plugin

import (
	"context"
	"fmt"

	"github.com/imbue-ai/mng/internal/host"
	"github.com/imbue-ai/mng/internal/hoststore"
)

// ErrInvalidDeployPath is returned by GetFilesForDeploy implementations (and
// validated by the registry) when a plugin tries to deploy to an absolute
// path that isn't home-relative.
var ErrInvalidDeployPath = fmt.Errorf("deploy destination must be relative or start with ~")

// ProvisionContext carries everything a plugin's Provision hook needs to
// add files, mutate environment, or grant permissions for a newly created
// agent. Each method calls straight through to Host; nothing is recorded
// in the registry.
type ProvisionContext struct {
	Host  host.Host
	Agent *hoststore.AgentData
	Env   map[string]string
}

// UploadFile writes content to path through the host's WriteFile. Missing
// parent directories are created on the local host only; the docker, ssh
// and sandbox hosts write with `cat >` and do not create them. Intended to be idempotent: writing the same
// content twice is a no-op from the plugin's point of view.
func (c *ProvisionContext) UploadFile(ctx context.Context, path string, content []byte, mode uint32) error {
	return c.Host.WriteFile(ctx, path, content, mode)
}

// AppendToFile appends content to an existing (or new) file.
func (c *ProvisionContext) AppendToFile(ctx context.Context, path string, content string) error {
	existing, err := c.Host.ReadTextFile(ctx, path)
	if err != nil {
		existing = ""
	}
	return c.Host.WriteTextFile(ctx, path, existing+content, 0644)
}

// PrependToFile prepends content to an existing (or new) file.
func (c *ProvisionContext) PrependToFile(ctx context.Context, path string, content string) error {
	existing, err := c.Host.ReadTextFile(ctx, path)
	if err != nil {
		existing = ""
	}
	return c.Host.WriteTextFile(ctx, path, content+existing, 0644)
}

// Plugin is the hook contract every plugin fulfills. Every method has a
// zero-cost default via EmbeddablePlugin so a plugin only needs to
// implement the hooks it cares about.
type Plugin interface {
	Name() string

	// Provision is called in registration order during agent creation,
	// step 5 of create(). Expected to be idempotent.
	Provision(ctx context.Context, pc *ProvisionContext) error

	// OnAgentCreated/OnAgentDestroyed are lifecycle notifications; errors
	// here do not roll back the operation that triggered them (the agent
	// is already created/destroyed by the time they fire). The registry
	// collects them; lifecycle Create returns on_agent_created errors to
	// its caller, while Destroy discards on_agent_destroyed errors.
	OnAgentCreated(ctx context.Context, agent *hoststore.AgentData, h host.Host) error
	OnAgentDestroyed(ctx context.Context, agent *hoststore.AgentData, h host.Host) error

	// OverrideCommandOptions lets a plugin mutate a command's parsed
	// options in place before execution.
	OverrideCommandOptions(commandName string, params map[string]any) error

	// GetFilesForDeploy returns a set of deploy-time files keyed by
	// destination path; values are either a []byte (literal content) or a
	// string (a source path to copy from). Destinations must be relative
	// or start with "~" — the registry enforces this.
	GetFilesForDeploy(ctx context.Context, includeUserSettings, includeProjectSettings bool, repoRoot string) (map[string]any, error)
}

// EmbeddablePlugin provides no-op defaults for every Plugin hook; concrete
// plugins embed it and override only what they need.
type EmbeddablePlugin struct{}

func (EmbeddablePlugin) Provision(ctx context.Context, pc *ProvisionContext) error { return nil }
func (EmbeddablePlugin) OnAgentCreated(ctx context.Context, agent *hoststore.AgentData, h host.Host) error {
	return nil
}
func (EmbeddablePlugin) OnAgentDestroyed(ctx context.Context, agent *hoststore.AgentData, h host.Host) error {
	return nil
}
func (EmbeddablePlugin) OverrideCommandOptions(commandName string, params map[string]any) error {
	return nil
}
func (EmbeddablePlugin) GetFilesForDeploy(ctx context.Context, includeUserSettings, includeProjectSettings bool, repoRoot string) (map[string]any, error) {
	return nil, nil
}

package plugin

import (
	"context"
	"fmt"
	"strings"

	"github.com/imbue-ai/mng/internal/host"
	"github.com/imbue-ai/mng/internal/hoststore"
	"github.com/imbue-ai/mng/internal/providers"
)

// ProviderBackendFactory is what register_provider_backend returns: a
// constructor for the backend plus the name it's registered under.
type ProviderBackendFactory func(config map[string]any) (providers.Provider, error)

// AgentTypeRegistration is what register_agent_type returns: a name and
// optional readiness/startup configuration for that agent type.
type AgentTypeRegistration struct {
	Name    string
	Config  map[string]any
}

// CLICommand is a minimal descriptor for register_cli_commands; the actual
// cobra wiring lives in internal/cliapp, which consults the registry for
// plugin-contributed commands to mount.
type CLICommand struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args []string) error
}

// Registry is the compile-time/init-time plugin registry: plugins call its
// Register* methods during their package init (or an explicit bootstrap
// function), and core code calls Handle*/dispatch methods in registration
// order. This mirrors the teacher's HandlerRegistry (Register/Handle/
// CanHandle) generalized from a single message-dispatch map to several
// parallel hook kinds.
type Registry struct {
	plugins         []Plugin
	providerBackends map[string]ProviderBackendFactory
	agentTypes      map[string]AgentTypeRegistration
	cliCommands     []CLICommand
}

func NewRegistry() *Registry {
	return &Registry{
		providerBackends: make(map[string]ProviderBackendFactory),
		agentTypes:       make(map[string]AgentTypeRegistration),
	}
}

// RegisterPlugin adds a plugin whose Provision/OnAgentCreated/
// OnAgentDestroyed/OverrideCommandOptions/GetFilesForDeploy hooks fire in
// registration order.
func (r *Registry) RegisterPlugin(p Plugin) {
	r.plugins = append(r.plugins, p)
}

// RegisterProviderBackend implements register_provider_backend.
func (r *Registry) RegisterProviderBackend(name string, factory ProviderBackendFactory) {
	r.providerBackends[name] = factory
}

// ProviderBackend looks up a registered backend factory by name.
func (r *Registry) ProviderBackend(name string) (ProviderBackendFactory, bool) {
	f, ok := r.providerBackends[name]
	return f, ok
}

// RegisterAgentType implements register_agent_type.
func (r *Registry) RegisterAgentType(reg AgentTypeRegistration) {
	r.agentTypes[reg.Name] = reg
}

// AgentType looks up a registered agent type by name.
func (r *Registry) AgentType(name string) (AgentTypeRegistration, bool) {
	reg, ok := r.agentTypes[name]
	return reg, ok
}

// ProviderBackendNames lists every registered provider backend name, for
// the `plugin` command's inventory listing.
func (r *Registry) ProviderBackendNames() []string {
	names := make([]string, 0, len(r.providerBackends))
	for name := range r.providerBackends {
		names = append(names, name)
	}
	return names
}

// AgentTypeNames lists every registered agent type name.
func (r *Registry) AgentTypeNames() []string {
	names := make([]string, 0, len(r.agentTypes))
	for name := range r.agentTypes {
		names = append(names, name)
	}
	return names
}

// RegisterCLICommands implements register_cli_commands.
func (r *Registry) RegisterCLICommands(cmds ...CLICommand) {
	r.cliCommands = append(r.cliCommands, cmds...)
}

// CLICommands returns every plugin-contributed CLI command.
func (r *Registry) CLICommands() []CLICommand {
	return append([]CLICommand{}, r.cliCommands...)
}

// Provision runs every registered plugin's Provision hook in registration
// order, stopping at the first error (the caller — lifecycle.Create step 5
// — is responsible for cleanup on failure).
func (r *Registry) Provision(ctx context.Context, pc *ProvisionContext) error {
	for _, p := range r.plugins {
		if err := p.Provision(ctx, pc); err != nil {
			return fmt.Errorf("plugin %q provision: %w", p.Name(), err)
		}
	}
	return nil
}

// DispatchAgentCreated fires on_agent_created on every plugin, collecting
// (not stopping on) individual failures since the agent already exists by
// the time this fires.
func (r *Registry) DispatchAgentCreated(ctx context.Context, agent *hoststore.AgentData, h host.Host) []error {
	var errs []error
	for _, p := range r.plugins {
		if err := p.OnAgentCreated(ctx, agent, h); err != nil {
			errs = append(errs, fmt.Errorf("plugin %q on_agent_created: %w", p.Name(), err))
		}
	}
	return errs
}

// DispatchAgentDestroyed fires on_agent_destroyed on every plugin.
func (r *Registry) DispatchAgentDestroyed(ctx context.Context, agent *hoststore.AgentData, h host.Host) []error {
	var errs []error
	for _, p := range r.plugins {
		if err := p.OnAgentDestroyed(ctx, agent, h); err != nil {
			errs = append(errs, fmt.Errorf("plugin %q on_agent_destroyed: %w", p.Name(), err))
		}
	}
	return errs
}

// OverrideCommandOptions runs every plugin's override hook against params
// in registration order, each seeing the prior plugin's mutations.
func (r *Registry) OverrideCommandOptions(commandName string, params map[string]any) error {
	for _, p := range r.plugins {
		if err := p.OverrideCommandOptions(commandName, params); err != nil {
			return fmt.Errorf("plugin %q override_command_options: %w", p.Name(), err)
		}
	}
	return nil
}

// DeployFile is one entry of a GetFilesForDeploy result: either literal
// Content, or a SourcePath to copy from (exactly one is set).
type DeployFile struct {
	Dest       string
	Content    []byte
	SourcePath string
}

// CollectFilesForDeploy runs every plugin's GetFilesForDeploy hook and
// merges the results, validating that every destination is relative or
// home-relative. A later plugin's entry for the same destination
// overrides an earlier one, matching registration-order precedence used
// elsewhere in the registry.
func (r *Registry) CollectFilesForDeploy(ctx context.Context, includeUserSettings, includeProjectSettings bool, repoRoot string) ([]DeployFile, error) {
	merged := map[string]DeployFile{}
	var order []string

	for _, p := range r.plugins {
		files, err := p.GetFilesForDeploy(ctx, includeUserSettings, includeProjectSettings, repoRoot)
		if err != nil {
			return nil, fmt.Errorf("plugin %q get_files_for_deploy: %w", p.Name(), err)
		}
		for dest, v := range files {
			if err := validateDeployDest(dest); err != nil {
				return nil, fmt.Errorf("plugin %q: %w", p.Name(), err)
			}
			df := DeployFile{Dest: dest}
			switch val := v.(type) {
			case []byte:
				df.Content = val
			case string:
				df.SourcePath = val
			default:
				return nil, fmt.Errorf("plugin %q: get_files_for_deploy value for %q must be []byte or string", p.Name(), dest)
			}
			if _, exists := merged[dest]; !exists {
				order = append(order, dest)
			}
			merged[dest] = df
		}
	}

	out := make([]DeployFile, 0, len(order))
	for _, dest := range order {
		out = append(out, merged[dest])
	}
	return out, nil
}

func validateDeployDest(dest string) error {
	if dest == "" {
		return ErrInvalidDeployPath
	}
	if strings.HasPrefix(dest, "~") {
		return nil
	}
	if strings.HasPrefix(dest, "/") {
		return ErrInvalidDeployPath
	}
	return nil
}

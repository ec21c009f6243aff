// Package cliapp wires the cobra command tree to the core engine packages
// (lifecycle, query, gc, sync, providers), the same init()-registration
// shape internal/cmd/boot.go uses in the teacher: every command file
// declares a package-level *cobra.Command and an init() that wires its
// flags and mounts it onto a parent, so adding a verb never touches a
// central switch statement.
package cliapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/imbue-ai/mng/internal/host"
	"github.com/imbue-ai/mng/internal/hoststore"
	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/lifecycle"
	"github.com/imbue-ai/mng/internal/plugin"
	"github.com/imbue-ai/mng/internal/procconfig"
	"github.com/imbue-ai/mng/internal/providers"
	"github.com/imbue-ai/mng/internal/providers/docker"
	"github.com/imbue-ai/mng/internal/providers/local"
	"github.com/imbue-ai/mng/internal/providers/remotemng"
	"github.com/imbue-ai/mng/internal/providers/sandbox"
	"github.com/imbue-ai/mng/internal/providers/ssh"
	"github.com/imbue-ai/mng/internal/tmux"
)

// App bundles the process-wide state every command needs: resolved config,
// the provider map, the lifecycle engine, and the plugin registry. Built
// once in Execute and threaded into each command's RunE via a package-level
// pointer, matching the teacher's boot.go pattern of a package-level
// "current session" handle commands reach for instead of re-deriving it.
type App struct {
	Config    *procconfig.Config
	Providers map[string]providers.Provider
	Engine    *lifecycle.Engine
	Plugins   *plugin.Registry
	Tmux      *tmux.Tmux
}

// current is the App built by Execute before the cobra tree runs. Command
// RunE bodies reach for it the same way the teacher's command files reach
// for boot.go's package-level session handle.
var current *App

// newApp resolves process configuration and constructs the default set of
// providers (local is always present; docker/ssh are added only when
// configured, since both require external reachability this process can't
// assume). Provider-specific config lives in cfg.Providers, keyed by
// instance name, per procconfig.ProviderConfig.
func newApp() (*App, error) {
	cfg, err := procconfig.Load(os.Getenv("MNG_CONFIG"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	plugins := plugin.NewRegistry()

	provs := map[string]providers.Provider{
		"local": local.New(cfg.HostDir),
	}
	for name, pc := range cfg.Providers {
		switch pc.Kind {
		case "docker":
			provs[name] = docker.New(pc.Options["ssh_user"])
		case "ssh":
			provs[name] = ssh.New(parseSSHPool(pc.Options))
		case "sandbox":
			var probe *sandbox.BrowserReadinessProbe
			if pc.Options["browser_probe"] == "true" {
				probe = sandbox.NewBrowserReadinessProbe(0)
			}
			provs[name] = sandbox.New(sandbox.NewBrokerClient(pc.Options["base_url"], pc.Options["api_key"]), probe)
		case "remotemng":
			provs[name] = remotemng.New(remotemng.NewClient(pc.Options["base_url"], pc.Options["api_key"]))
		case "local", "":
			// already registered under "local"; a named local alias is a
			// configuration error elsewhere, not something to double-register.
		default:
			if factory, ok := plugins.ProviderBackend(pc.Kind); ok {
				p, err := factory(toAnyMap(pc.Options))
				if err != nil {
					return nil, fmt.Errorf("constructing provider %q (kind %q): %w", name, pc.Kind, err)
				}
				provs[name] = p
			}
		}
	}

	tm := tmux.New()
	engine := lifecycle.New(tm, plugins, cfg.Prefix)

	return &App{Config: cfg, Providers: provs, Engine: engine, Plugins: plugins, Tmux: tm}, nil
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// parseSSHPool reads a ssh-provider's pool entries out of its options map.
// The TOML overlay encodes one pool member per "pool.<name>" key as
// "user@host:port:identity_file" (port/identity_file optional), since
// procconfig.ProviderConfig.Options is a flat string map rather than a
// nested table.
func parseSSHPool(opts map[string]string) []ssh.PoolEntry {
	var pool []ssh.PoolEntry
	for k, v := range opts {
		const prefix = "pool."
		if len(k) <= len(prefix) || k[:len(prefix)] != prefix {
			continue
		}
		name := k[len(prefix):]
		parts := strings.Split(v, ":")
		entry := ssh.PoolEntry{Name: ids.HostName(name), Address: parts[0]}
		if len(parts) > 1 {
			if port, err := strconv.Atoi(parts[1]); err == nil {
				entry.Port = port
			}
		}
		if len(parts) > 2 {
			entry.IdentityFile = parts[2]
		}
		pool = append(pool, entry)
	}
	return pool
}

// resolveProvider looks up a provider by instance name, defaulting to
// "local" when name is empty — nearly every command's --provider flag is
// optional for this reason.
func (a *App) resolveProvider(name string) (string, providers.Provider, error) {
	if name == "" {
		name = "local"
	}
	p, ok := a.Providers[name]
	if !ok {
		return "", nil, fmt.Errorf("unknown provider %q", name)
	}
	return name, p, nil
}

// statefulHost wraps any host.Host with a locally-rooted *hoststore.Store so
// lifecycle.Engine, query.ListAgents, and gc.Sweeper can drive agent-level
// operations uniformly across every provider, not only internal/providers/
// local (the only backend whose Host embeds a store directly). Agent state
// for a docker/ssh/sandbox/remotemng host is kept in a per-host directory
// under the local process's own host_dir, keyed by the remote host's ID —
// the same place local.Host already keeps its one (implicit) host's state,
// generalized to one subdirectory per remote host instead of the single
// local root.
//
// This mirrors GetAgentEnvPath/HostDir on those Host implementations, which
// already describe a conceptual per-host state root (e.g. "~/.mng" on a
// docker container or ssh box); the mirrored store here is this process's
// local bookkeeping of that same conceptual root, not a second source of
// truth — ExecuteCommand/ReadTextFile/WriteTextFile on the wrapped host
// remain the only way to touch the remote filesystem itself.
type statefulHost struct {
	host.Host
	store *hoststore.Store
}

func (h *statefulHost) Store() *hoststore.Store { return h.store }

// LockCooperatively holds the mirror store's lock inside the wrapped host's
// own lock scope, so the store's mutating methods see the lock as held and
// two local processes mirroring the same remote host still serialize.
func (h *statefulHost) LockCooperatively(ctx context.Context, fn func() error) error {
	return h.Host.LockCooperatively(ctx, func() error {
		return h.store.LockCooperatively(ctx, fn)
	})
}

var _ host.StatefulHost = (*statefulHost)(nil)

// bindHost returns h unchanged if it already implements host.StatefulHost
// (true today only for internal/providers/local.Host), or wraps it in a
// statefulHost backed by cfg.HostDir/hosts/<id> otherwise.
func bindHost(cfg *procconfig.Config, h host.Host) (host.StatefulHost, error) {
	if sh, ok := h.(host.StatefulHost); ok {
		return sh, nil
	}
	dir := filepath.Join(cfg.HostDir, "hosts", string(h.GetID()))
	store, err := hoststore.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("opening local state mirror for host %s: %w", h.GetID(), err)
	}
	return &statefulHost{Host: h, store: store}, nil
}

// bindCurrentHost is bindHost curried over the process's current config, in
// the shape query.ListOptions.Bind and gc.Sweeper.Bind expect.
func bindCurrentHost(h host.Host) (host.StatefulHost, error) {
	return bindHost(current.Config, h)
}

// resolveHost looks up a host by id-or-name on the named provider (or every
// provider, if providerName is empty) and returns it bound to a
// host.StatefulHost.
func resolveHost(ctx context.Context, a *App, providerName, hostRef string) (string, host.StatefulHost, error) {
	if providerName != "" {
		_, p, err := a.resolveProvider(providerName)
		if err != nil {
			return "", nil, err
		}
		h, err := p.GetHost(ctx, hostRef)
		if err != nil {
			return "", nil, err
		}
		sh, err := bindHost(a.Config, h)
		return providerName, sh, err
	}
	for name, p := range a.Providers {
		if h, err := p.GetHost(ctx, hostRef); err == nil {
			sh, err := bindHost(a.Config, h)
			return name, sh, err
		}
	}
	return "", nil, fmt.Errorf("host %q not found on any configured provider", hostRef)
}

// resolveAgentHost returns the first host of the named provider (local when
// providerName is empty), bound to a host.StatefulHost. It does not look for
// an agent: callers resolve the agent by name on the returned host, and other
// hosts or providers are not searched.
func resolveAgentHost(ctx context.Context, a *App, providerName string) (host.StatefulHost, error) {
	_, p, err := a.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}
	hosts, err := p.ListHosts(ctx, false)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("provider %q has no hosts", providerName)
	}
	return bindHost(a.Config, hosts[0])
}

// Package procconfig concentrates the process-wide configuration the
// original keeps in module-level globals (MNG_PREFIX, home directory,
// completion cache directory) into a single value computed once at
// startup and threaded through every component explicitly, per the
// "global state" redesign flag: nothing below this package reads an
// environment variable directly.
package procconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	envHostDir             = "MNG_HOST_DIR"
	envPrefix              = "MNG_PREFIX"
	envRootName            = "MNG_ROOT_NAME"
	envCompletionCacheDir  = "MNG_COMPLETION_CACHE_DIR"
	defaultPrefix          = "mng-"
	defaultRootName        = ".mng"
)

// Config is the resolved process configuration: environment overrides
// layered over defaults, plus whatever a config.toml overlay contributes.
// Built once per process in cmd/mng's entrypoint and passed down through
// every command's lifecycle/sync/gc/query call, never read from globals
// again.
type Config struct {
	// HostDir is the local host's persistent state root (default ~/.mng).
	HostDir string
	// Prefix is prepended to every tmux session name: "<prefix><agent_name>".
	Prefix string
	// RootName is the base subdirectory name under HOME when HostDir isn't
	// explicitly overridden; tests set MNG_ROOT_NAME to isolate runs.
	RootName string
	// CompletionCacheDir is where the cached command/agent completion JSON
	// files are written.
	CompletionCacheDir string

	// Providers holds per-provider-instance config loaded from the TOML
	// overlay, keyed by provider instance name.
	Providers map[string]ProviderConfig `toml:"providers"`

	// GC carries per-provider destroyed-host retention overrides.
	GC GCConfig `toml:"gc"`
}

// ProviderConfig is one [providers.<name>] TOML table: enough to construct
// a backend (docker socket, ssh pool members, remote-mng base URL) without
// the core needing to know every backend's config shape up front.
type ProviderConfig struct {
	Kind    string            `toml:"kind"`
	Options map[string]string `toml:"options"`
}

// GCConfig carries the per-provider override of
// default_destroyed_host_persisted_seconds (spec.md §9 Open Question: no
// single value is invariant across providers).
type GCConfig struct {
	DestroyedHostPersistedSeconds         float64            `toml:"destroyed_host_persisted_seconds"`
	PerProviderDestroyedHostPersistedSecs map[string]float64 `toml:"per_provider_destroyed_host_persisted_seconds"`
}

// DefaultDestroyedHostPersistedSeconds is the fallback retention window for
// destroyed/stopped hosts before GC sweeps them: 24 hours, long enough to
// survive an accidental gc run shortly after a destroy.
const DefaultDestroyedHostPersistedSeconds = 86400.0

// Load resolves Config from the environment and an optional config.toml
// found via configPath (empty string skips the overlay).
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	rootName := getenvOr(envRootName, defaultRootName)

	cfg := &Config{
		HostDir:            getenvOr(envHostDir, filepath.Join(home, rootName)),
		Prefix:             getenvOr(envPrefix, defaultPrefix),
		RootName:           rootName,
		CompletionCacheDir: getenvOr(envCompletionCacheDir, filepath.Join(home, rootName, "completion")),
		Providers:          map[string]ProviderConfig{},
	}
	cfg.GC.DestroyedHostPersistedSeconds = DefaultDestroyedHostPersistedSeconds

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if _, err := toml.DecodeFile(configPath, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", configPath, err)
			}
		}
	}

	return cfg, nil
}

func getenvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// SessionName builds the tmux session name for an agent named name under
// this process's configured prefix.
func (c *Config) SessionName(name string) string {
	return c.Prefix + name
}

// DestroyedHostRetention returns the GC retention window for provider,
// falling back to the global default when no per-provider override exists.
func (c *Config) DestroyedHostRetention(provider string) float64 {
	if c.GC.PerProviderDestroyedHostPersistedSecs != nil {
		if v, ok := c.GC.PerProviderDestroyedHostPersistedSecs[provider]; ok {
			return v
		}
	}
	if c.GC.DestroyedHostPersistedSeconds > 0 {
		return c.GC.DestroyedHostPersistedSeconds
	}
	return DefaultDestroyedHostPersistedSeconds
}

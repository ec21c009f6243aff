package procconfig

import (
	"os"
	"path/filepath"
	"testing"
)

// clearMngEnv sets every MNG_* override to empty so Load falls back to its
// defaults; getenvOr treats an empty string the same as unset.
func clearMngEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{envHostDir, envPrefix, envRootName, envCompletionCacheDir} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaultsWithNoOverrides(t *testing.T) {
	clearMngEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Prefix != defaultPrefix {
		t.Errorf("Prefix = %q, want %q", cfg.Prefix, defaultPrefix)
	}
	if cfg.RootName != defaultRootName {
		t.Errorf("RootName = %q, want %q", cfg.RootName, defaultRootName)
	}
	if cfg.GC.DestroyedHostPersistedSeconds != DefaultDestroyedHostPersistedSeconds {
		t.Errorf("GC.DestroyedHostPersistedSeconds = %v, want %v", cfg.GC.DestroyedHostPersistedSeconds, DefaultDestroyedHostPersistedSeconds)
	}
}

func TestLoadHonorsEnvOverrides(t *testing.T) {
	clearMngEnv(t)
	t.Setenv(envPrefix, "custom-")
	t.Setenv(envRootName, ".mng-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Prefix != "custom-" {
		t.Errorf("Prefix = %q, want custom-", cfg.Prefix)
	}
	if cfg.RootName != ".mng-test" {
		t.Errorf("RootName = %q, want .mng-test", cfg.RootName)
	}
}

func TestLoadAppliesTOMLOverlay(t *testing.T) {
	clearMngEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	toml := `
[providers.mydocker]
kind = "docker"
options = { socket = "/var/run/docker.sock" }

[gc]
destroyed_host_persisted_seconds = 3600
[gc.per_provider_destroyed_host_persisted_seconds]
mydocker = 60
`
	if err := os.WriteFile(path, []byte(toml), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pc, ok := cfg.Providers["mydocker"]
	if !ok {
		t.Fatal("expected a mydocker provider entry from the overlay")
	}
	if pc.Kind != "docker" || pc.Options["socket"] != "/var/run/docker.sock" {
		t.Errorf("unexpected provider config: %+v", pc)
	}
	if cfg.GC.DestroyedHostPersistedSeconds != 3600 {
		t.Errorf("GC.DestroyedHostPersistedSeconds = %v, want 3600", cfg.GC.DestroyedHostPersistedSeconds)
	}
}

func TestLoadIgnoresMissingConfigPath(t *testing.T) {
	clearMngEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load should not error on a missing overlay file, got %v", err)
	}
	if cfg.Prefix != defaultPrefix {
		t.Errorf("Prefix = %q, want %q", cfg.Prefix, defaultPrefix)
	}
}

func TestSessionName(t *testing.T) {
	cfg := &Config{Prefix: "mng-"}
	if got := cfg.SessionName("foo"); got != "mng-foo" {
		t.Errorf("SessionName = %q, want mng-foo", got)
	}
}

func TestDestroyedHostRetentionFallsBackThroughLayers(t *testing.T) {
	cfg := &Config{
		GC: GCConfig{
			DestroyedHostPersistedSeconds:          120,
			PerProviderDestroyedHostPersistedSecs: map[string]float64{"docker": 30},
		},
	}
	if got := cfg.DestroyedHostRetention("docker"); got != 30 {
		t.Errorf("DestroyedHostRetention(docker) = %v, want 30 (per-provider override)", got)
	}
	if got := cfg.DestroyedHostRetention("ssh"); got != 120 {
		t.Errorf("DestroyedHostRetention(ssh) = %v, want 120 (global default)", got)
	}

	empty := &Config{}
	if got := empty.DestroyedHostRetention("ssh"); got != DefaultDestroyedHostPersistedSeconds {
		t.Errorf("DestroyedHostRetention with zero-value config = %v, want %v", got, DefaultDestroyedHostPersistedSeconds)
	}
}

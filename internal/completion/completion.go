// Package completion maintains the two JSON caches shell completion reads:
// .command_completions.json (the static command/flag inventory, rewritten
// whenever the refresh command runs) and .agent_completions.json (live agent
// names, regenerated lazily by a fire-and-forget background invocation).
// Readers tolerate a stale or absent file — completion falling back to
// nothing is always preferable to a blocking list call at tab-press time.
package completion

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	commandCompletionsFile = ".command_completions.json"
	agentCompletionsFile   = ".agent_completions.json"

	// DefaultMaxAge is how old the agent-name cache may get before a
	// command triggers a background refresh on its way out.
	DefaultMaxAge = 30 * time.Second
)

// CommandCompletions is the static command inventory a shell completion
// script needs without invoking the binary.
type CommandCompletions struct {
	Commands            []string            `json:"commands"`
	Aliases             map[string]string   `json:"aliases"`
	SubcommandByCommand map[string][]string `json:"subcommand_by_command"`
	OptionsByCommand    map[string][]string `json:"options_by_command"`
	OptionChoices       map[string][]string `json:"option_choices"`
	AgentNameArguments  []string            `json:"agent_name_arguments"`
}

// AgentCompletions is the live agent-name cache.
type AgentCompletions struct {
	Names     []string  `json:"names"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WriteCommandCompletions rewrites the command inventory cache.
func WriteCommandCompletions(dir string, c *CommandCompletions) error {
	return writeCache(filepath.Join(dir, commandCompletionsFile), c)
}

// WriteAgentCompletions rewrites the agent-name cache, stamping updated_at.
func WriteAgentCompletions(dir string, names []string) error {
	return writeCache(filepath.Join(dir, agentCompletionsFile), &AgentCompletions{
		Names:     names,
		UpdatedAt: time.Now().UTC(),
	})
}

// ReadAgentCompletions loads the agent-name cache. A missing or unreadable
// file yields an empty cache, never an error.
func ReadAgentCompletions(dir string) *AgentCompletions {
	raw, err := os.ReadFile(filepath.Join(dir, agentCompletionsFile))
	if err != nil {
		return &AgentCompletions{}
	}
	var c AgentCompletions
	if err := json.Unmarshal(raw, &c); err != nil {
		return &AgentCompletions{}
	}
	return &c
}

// Stale reports whether the cache is older than maxAge (an absent cache is
// always stale).
func (c *AgentCompletions) Stale(maxAge time.Duration) bool {
	return c.UpdatedAt.IsZero() || time.Since(c.UpdatedAt) > maxAge
}

// RefreshInBackground relaunches this binary with refreshArgs, detached, so
// the cache regenerates without delaying the command that noticed it was
// stale. Failures are swallowed: the next command will try again.
func RefreshInBackground(refreshArgs ...string) {
	exe, err := os.Executable()
	if err != nil {
		return
	}
	cmd := exec.Command(exe, refreshArgs...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return
	}
	_ = cmd.Process.Release()
}

// writeCache writes v to path via a temp file + rename so a concurrent
// completion read never sees a torn file.
func writeCache(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating completion cache dir: %w", err)
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling completion cache: %w", err)
	}
	tmp := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("writing completion cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming completion cache into place: %w", err)
	}
	return nil
}

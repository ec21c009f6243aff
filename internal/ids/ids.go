// Package ids provides the globally unique, prefixed identifiers used for
// every persistent entity (agents, hosts, snapshots, volumes) plus the
// human-chosen name types that mutably label them.
package ids

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Prefixes for each entity kind, per spec: agent-<32hex>, host-<32hex>, etc.
const (
	AgentPrefix    = "agent-"
	HostPrefix     = "host-"
	SnapshotPrefix = "snap-"
	VolumePrefix   = "vol-"
)

// AgentID uniquely and permanently identifies an agent. ID is authoritative;
// the agent's Name is a mutable label.
type AgentID string

// HostID uniquely and permanently identifies a host.
type HostID string

// SnapshotID uniquely identifies a provider snapshot.
type SnapshotID string

// VolumeID uniquely identifies a provider-managed volume.
type VolumeID string

// NewAgentID generates a fresh agent identifier.
func NewAgentID() AgentID { return AgentID(newID(AgentPrefix)) }

// NewHostID generates a fresh host identifier.
func NewHostID() HostID { return HostID(newID(HostPrefix)) }

// NewSnapshotID generates a fresh snapshot identifier.
func NewSnapshotID() SnapshotID { return SnapshotID(newID(SnapshotPrefix)) }

// NewVolumeID generates a fresh volume identifier.
func NewVolumeID() VolumeID { return VolumeID(newID(VolumePrefix)) }

// newID builds a "<prefix><32 lowercase hex>" identifier from a random
// UUIDv4 with the dashes stripped.
func newID(prefix string) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return prefix + raw
}

// ValidAgentID reports whether s has the form "agent-<hex>".
func ValidAgentID(s string) bool { return hasPrefixAndBody(s, AgentPrefix) }

// ValidHostID reports whether s has the form "host-<hex>".
func ValidHostID(s string) bool { return hasPrefixAndBody(s, HostPrefix) }

// ValidSnapshotID reports whether s has the form "snap-<hex>".
func ValidSnapshotID(s string) bool { return hasPrefixAndBody(s, SnapshotPrefix) }

// ValidVolumeID reports whether s has the form "vol-<hex>".
func ValidVolumeID(s string) bool { return hasPrefixAndBody(s, VolumePrefix) }

func hasPrefixAndBody(s, prefix string) bool {
	if !strings.HasPrefix(s, prefix) || len(s) == len(prefix) {
		return false
	}
	for _, r := range s[len(prefix):] {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

// Name is a human-chosen, non-empty label. Uniqueness is scoped by the
// caller (agent names are unique per host; host names are unique per
// provider) — Name itself carries no uniqueness guarantee.
type Name string

// AgentName labels an agent within its host.
type AgentName Name

// HostName labels a host within its provider.
type HostName Name

// ProviderInstanceName labels a configured provider instance (e.g. a
// specific Docker daemon or SSH pool) within the process configuration.
type ProviderInstanceName Name

// Validate reports an error if the name is empty or contains characters
// that would be unsafe as a path component or tmux session fragment.
func (n Name) Validate() error {
	if n == "" {
		return fmt.Errorf("name must not be empty")
	}
	for _, r := range string(n) {
		if r == '/' || r == '\\' || r == 0 {
			return fmt.Errorf("name %q contains an invalid character %q", n, r)
		}
	}
	return nil
}

func (n AgentName) Validate() error           { return Name(n).Validate() }
func (n HostName) Validate() error            { return Name(n).Validate() }
func (n ProviderInstanceName) Validate() error { return Name(n).Validate() }

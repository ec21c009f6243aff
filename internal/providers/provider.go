// Package providers defines the backend contract every host provider
// (local, docker, ssh, remotemng) implements, plus the shared option/result
// types the lifecycle engine drives them through.
package providers

import (
	"context"
	"time"

	"github.com/imbue-ai/mng/internal/host"
	"github.com/imbue-ai/mng/internal/ids"
)

// CreateHostOptions configures Provider.CreateHost.
type CreateHostOptions struct {
	Name      ids.HostName
	Image     string
	Tags      map[string]string
	BuildArgs map[string]string
	StartArgs map[string]string
	Snapshot  ids.SnapshotID
}

// StopHostOptions configures Provider.StopHost.
type StopHostOptions struct {
	CreateSnapshot bool
	TimeoutSeconds float64
}

// Snapshot describes a point-in-time image of a host's disk, for providers
// where SupportsSnapshots is true.
type Snapshot struct {
	ID        ids.SnapshotID
	HostID    ids.HostID
	CreatedAt time.Time
	Tags      map[string]string
}

// Volume describes a persistent storage volume, for providers where
// SupportsVolumes is true.
type Volume struct {
	ID        ids.VolumeID
	HostID    ids.HostID
	CreatedAt time.Time
	Tags      map[string]string
}

// Connector is a command-execution endpoint obtained from GetConnector,
// used by sync and runtime code that needs to address a host directly
// rather than through the Host interface's ExecuteCommand.
type Connector struct {
	// Command is the argv prefix (e.g. ["ssh", "user@host"]) that, when
	// followed by a shell command, executes it on the target host.
	Command []string
}

// SnapshotFunc is a small, independently-deployed callable some cloud
// providers expose to "snapshot and shut down" or "restart from snapshot"
// without keeping a long-lived connection to the host open. Providers that
// don't support this leave it nil.
type SnapshotFunc func(ctx context.Context, h host.Host) (ids.SnapshotID, error)

// Provider is the backend contract every host provider implements. Not
// every method is meaningful for every provider — SupportsSnapshots/
// SupportsVolumes/SupportsMutableTags gate the optional ones, and providers
// that don't support an operation return ErrUnsupported.
type Provider interface {
	Name() string

	CreateHost(ctx context.Context, opts CreateHostOptions) (host.Host, error)
	StartHost(ctx context.Context, ref ids.HostID, snapshot ids.SnapshotID) (host.Host, error)
	StopHost(ctx context.Context, ref ids.HostID, opts StopHostOptions) error
	DestroyHost(ctx context.Context, ref ids.HostID, deleteSnapshots bool) error
	GetHost(ctx context.Context, idOrName string) (host.Host, error)
	ListHosts(ctx context.Context, includeDestroyed bool) ([]host.Host, error)

	SupportsSnapshots() bool
	ListSnapshots(ctx context.Context, hostID ids.HostID) ([]Snapshot, error)
	CreateSnapshot(ctx context.Context, hostID ids.HostID) (Snapshot, error)
	DeleteSnapshot(ctx context.Context, id ids.SnapshotID) error

	SupportsVolumes() bool
	ListVolumes(ctx context.Context, hostID ids.HostID) ([]Volume, error)
	DeleteVolume(ctx context.Context, id ids.VolumeID) error

	SupportsMutableTags() bool
	SetHostTags(ctx context.Context, hostID ids.HostID, tags map[string]string) error
	AddHostTags(ctx context.Context, hostID ids.HostID, tags map[string]string) error
	RemoveHostTags(ctx context.Context, hostID ids.HostID, keys []string) error

	GetConnector(ctx context.Context, h host.Host) (Connector, error)

	// SnapshotFunc returns the provider's pluggable snapshot-and-shutdown
	// callable, or nil if the provider has none configured.
	SnapshotFunc() SnapshotFunc
}

// ErrUnsupported is returned by optional-capability methods on providers
// that don't implement them.
type ErrUnsupported struct {
	Provider  string
	Operation string
}

func (e *ErrUnsupported) Error() string {
	return e.Provider + " provider does not support " + e.Operation
}

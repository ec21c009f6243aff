package lifecycle

import (
	"context"
	"fmt"

	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/host"
	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/providers"
)

// EnsureHostStarted returns h if it is already usable, or asks its provider
// to start it when it is stopped or still starting. Offline hosts only
// support state inspection until this has run.
func EnsureHostStarted(ctx context.Context, p providers.Provider, h host.Host) (host.Host, error) {
	switch h.State() {
	case enums.HostRunning:
		return h, nil
	case enums.HostDestroyed:
		return nil, fmt.Errorf("host %s is destroyed and cannot be started", h.GetID())
	default:
		started, err := p.StartHost(ctx, h.GetID(), "")
		if err != nil {
			return nil, fmt.Errorf("starting host %s: %w", h.GetID(), err)
		}
		return started, nil
	}
}

// StopHost stops a provider host, optionally snapshotting it first. When the
// provider exposes a remote snapshot-and-shutdown callable, that one call
// both snapshots and stops the host server-side, and no additional API-level
// snapshot or stop is issued — doing both would either race or
// double-snapshot. Otherwise a snapshot (when requested and supported) is
// taken through the provider API before the ordinary stop.
func StopHost(ctx context.Context, p providers.Provider, h host.Host, createSnapshot bool, timeoutSeconds float64) (ids.SnapshotID, error) {
	if createSnapshot {
		if fn := p.SnapshotFunc(); fn != nil {
			snapID, err := fn(ctx, h)
			if err != nil {
				return "", fmt.Errorf("remote snapshot-and-shutdown of host %s: %w", h.GetID(), err)
			}
			return snapID, nil
		}
		if p.SupportsSnapshots() {
			snap, err := p.CreateSnapshot(ctx, h.GetID())
			if err != nil {
				return "", fmt.Errorf("snapshotting host %s before stop: %w", h.GetID(), err)
			}
			if err := p.StopHost(ctx, h.GetID(), providers.StopHostOptions{TimeoutSeconds: timeoutSeconds}); err != nil {
				return snap.ID, fmt.Errorf("stopping host %s (snapshot %s was taken): %w", h.GetID(), snap.ID, err)
			}
			return snap.ID, nil
		}
	}
	if err := p.StopHost(ctx, h.GetID(), providers.StopHostOptions{CreateSnapshot: createSnapshot, TimeoutSeconds: timeoutSeconds}); err != nil {
		return "", fmt.Errorf("stopping host %s: %w", h.GetID(), err)
	}
	return "", nil
}

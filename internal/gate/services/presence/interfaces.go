package presence

import (
	"context"

	"github.com/haukened/rr-gate/internal/gate/domain"
)

// SnapshotProvider returns the current neighbor-table snapshot as device
// records. A provider failure yields an error; the service degrades to the
// previous state and backs off, never crashing the refresh loop.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) ([]domain.Device, error)
}

// DeviceRegistry is the sink for reconciled snapshots.
type DeviceRegistry interface {
	Apply(snapshot []domain.Device) (connected, disconnected []domain.Device)
}

// AccessPoint reports whether the wireless access point is up. Refresh
// cycles only run while it is.
type AccessPoint interface {
	Active() bool
}

// Publisher delivers connect/disconnect events to external observers.
// Implementations must not block the caller.
type Publisher interface {
	Publish(e domain.Event)
}

// Package basestation models one hub device: its cached identity and arm
// state, live property lookups over the cloud event transport, and the
// control commands the hub accepts.
package basestation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wrauf/arlo/internal/core/device"
	"github.com/wrauf/arlo/internal/core/eventstream"
)

// DefaultRefreshInterval throttles full state refreshes.
const DefaultRefreshInterval = 15 * time.Second

// AttrsSource re-fetches the device listing entry for a station. The cloud
// session implements it.
type AttrsSource interface {
	RefreshAttributes(ctx context.Context, deviceID string) (device.Attrs, bool, error)
}

// snapshot is the cached station state. It is replaced wholesale on refresh
// so readers never see a partial update.
type snapshot struct {
	attrs device.Attrs
	mode  string
}

// BaseStation is the client-side model of one hub device. Plain accessors
// read the cached snapshot; Get* methods and Refresh perform one correlated
// round-trip each.
type BaseStation struct {
	pub eventstream.Publisher
	src AttrsSource
	log *slog.Logger

	refreshInterval time.Duration

	mu          sync.RWMutex
	snap        snapshot
	lastRefresh time.Time
	modeIDs     map[string]string
}

// New creates a station model around its discovery attributes and the
// transport it publishes through.
func New(attrs device.Attrs, pub eventstream.Publisher, src AttrsSource, log *slog.Logger) *BaseStation {
	return &BaseStation{
		pub:             pub,
		src:             src,
		log:             log,
		refreshInterval: DefaultRefreshInterval,
		snap:            snapshot{attrs: attrs},
	}
}

// SetRefreshInterval overrides the update throttle.
func (b *BaseStation) SetRefreshInterval(d time.Duration) {
	if d > 0 {
		b.mu.Lock()
		b.refreshInterval = d
		b.mu.Unlock()
	}
}

// --- cached identity accessors (no I/O) ---

func (b *BaseStation) attrs() device.Attrs {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap.attrs
}

// Name returns the user-assigned station name.
func (b *BaseStation) Name() string { return b.attrs().DeviceName }

// DeviceID returns the station's device id.
func (b *BaseStation) DeviceID() string { return b.attrs().DeviceID }

// UniqueID returns the cloud-wide identifier, derived from the device class
// and device id.
func (b *BaseStation) UniqueID() string { return b.attrs().UniqueID() }

// DeviceType returns the reported device type.
func (b *BaseStation) DeviceType() string { return b.attrs().DeviceType }

// ModelID returns the hardware model identifier.
func (b *BaseStation) ModelID() string { return b.attrs().ModelID }

// HWVersion returns the hardware revision.
func (b *BaseStation) HWVersion() string { return b.attrs().Properties.HwVersion }

// SerialNumber returns the station serial number.
func (b *BaseStation) SerialNumber() string { return b.attrs().Properties.SerialNumber }

// Timezone returns the olson timezone the station is configured for.
func (b *BaseStation) Timezone() string { return b.attrs().Properties.OlsonTimeZone }

// UserID returns the owning account id.
func (b *BaseStation) UserID() string { return b.attrs().UserID }

// UserRole returns the caller's role on this station.
func (b *BaseStation) UserRole() string { return b.attrs().UserRole }

// XCloudID returns the cloud routing id used on command envelopes.
func (b *BaseStation) XCloudID() string { return b.attrs().XCloudID }

// AvailableResources returns the fixed set of queryable resource categories.
func (b *BaseStation) AvailableResources() []Resource { return Resources() }

// Mode returns the cached arm state, empty until the first refresh.
func (b *BaseStation) Mode() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap.mode
}

// IsMotionDetectionEnabled derives the armed flag from the cached mode.
func (b *BaseStation) IsMotionDetectionEnabled() bool {
	return b.Mode() == ModeArmed
}

// LastRefresh reports when the snapshot was last replaced.
func (b *BaseStation) LastRefresh() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastRefresh
}

// --- refresh ---

// Refresh re-fetches the station attributes and arm state and replaces the
// cached snapshot in one step.
func (b *BaseStation) Refresh(ctx context.Context) error {
	next := snapshot{attrs: b.attrs()}

	if b.src != nil {
		attrs, found, err := b.src.RefreshAttributes(ctx, next.attrs.DeviceID)
		if err != nil {
			b.log.Warn("attribute refresh failed", "device_id", next.attrs.DeviceID, "error", err)
		} else if found {
			next.attrs = attrs
		}
	}

	next.mode = b.fetchMode(ctx)

	b.mu.Lock()
	b.snap = next
	b.lastRefresh = time.Now()
	b.mu.Unlock()

	b.log.Debug("station refreshed", "device_id", next.attrs.DeviceID, "mode", next.mode)
	return nil
}

// Update refreshes the snapshot unless one completed within the refresh
// interval.
func (b *BaseStation) Update(ctx context.Context) error {
	b.mu.RLock()
	due := time.Since(b.lastRefresh) >= b.refreshInterval
	b.mu.RUnlock()

	if !due {
		return nil
	}
	return b.Refresh(ctx)
}

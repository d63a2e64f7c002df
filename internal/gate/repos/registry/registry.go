// Package registry maintains the set of known devices and their history.
// It is the authoritative record for device identity: the presence service
// is its only writer, proxy workers read it via short-locked lookups.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/haukened/rr-gate/internal/gate/common/clock"
	"github.com/haukened/rr-gate/internal/gate/common/utils"
	"github.com/haukened/rr-gate/internal/gate/domain"
)

// Registry holds every device ever sighted, keyed by canonical MAC, plus an
// IP index over the most recent snapshot. Records are never destroyed; a
// device absent from the latest snapshot is merely offline.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]domain.Device
	byIP    map[string]string // IP -> canonical MAC, rebuilt per snapshot
	online  map[string]struct{}
	clock   clock.Clock
}

// New creates an empty Registry.
func New(clk clock.Clock) *Registry {
	return &Registry{
		devices: make(map[string]domain.Device),
		byIP:    make(map[string]string),
		online:  make(map[string]struct{}),
		clock:   clk,
	}
}

// Reconcile computes the pure set difference between two snapshots of MACs:
// connected = current - previous, disconnected = previous - current.
func Reconcile(previous, current map[string]struct{}) (connected, disconnected []string) {
	for mac := range current {
		if _, ok := previous[mac]; !ok {
			connected = append(connected, mac)
		}
	}
	for mac := range previous {
		if _, ok := current[mac]; !ok {
			disconnected = append(disconnected, mac)
		}
	}
	sort.Strings(connected)
	sort.Strings(disconnected)
	return connected, disconnected
}

// Apply merges a full snapshot into the registry and returns the devices
// that connected and disconnected relative to the previous snapshot.
//
// Merge semantics: a device already on record keeps its firstSeen, flags,
// category, and any operator-assigned name; IP and lastSeen are refreshed.
// Disconnected devices are returned from the historical record, which still
// carries their name and category.
func (r *Registry) Apply(snapshot []domain.Device) (connected, disconnected []domain.Device) {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	current := make(map[string]struct{}, len(snapshot))
	byIP := make(map[string]string, len(snapshot))
	for _, dev := range snapshot {
		mac := utils.CanonicalMAC(dev.MAC)
		current[mac] = struct{}{}
		if dev.IP != "" {
			byIP[dev.IP] = mac
		}
		r.mergeLocked(mac, dev, now)
	}

	conn, disc := Reconcile(r.online, current)
	r.online = current
	r.byIP = byIP

	for _, mac := range conn {
		connected = append(connected, r.devices[mac])
	}
	for _, mac := range disc {
		disconnected = append(disconnected, r.devices[mac])
	}
	return connected, disconnected
}

// mergeLocked inserts or refreshes one device record. Caller holds the lock.
func (r *Registry) mergeLocked(mac string, dev domain.Device, now time.Time) {
	existing, known := r.devices[mac]
	if !known {
		dev.MAC = mac
		if dev.Name == "" {
			dev.Name = domain.DefaultDeviceName(mac)
		}
		if dev.FirstSeen.IsZero() {
			dev.FirstSeen = now
		}
		dev.LastSeen = now
		r.devices[mac] = dev
		return
	}
	// refresh sighting data only; history and flags survive
	existing.IP = dev.IP
	existing.LastSeen = now
	r.devices[mac] = existing
}

// Get returns a device by MAC (any separator style accepted).
func (r *Registry) Get(mac string) (domain.Device, bool) {
	key := utils.CanonicalMAC(mac)
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[key]
	return d, ok
}

// GetByIP resolves an IP from the most recent snapshot to its device.
func (r *Registry) GetByIP(ip string) (domain.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mac, ok := r.byIP[ip]
	if !ok {
		return domain.Device{}, false
	}
	d, ok := r.devices[mac]
	return d, ok
}

// Online reports whether the device appeared in the most recent snapshot.
func (r *Registry) Online(mac string) bool {
	key := utils.CanonicalMAC(mac)
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.online[key]
	return ok
}

// Devices returns a copy of every known device, sorted by MAC.
func (r *Registry) Devices() []domain.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MAC < out[j].MAC })
	return out
}

// Connected returns the devices present in the most recent snapshot.
func (r *Registry) Connected() []domain.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Device, 0, len(r.online))
	for mac := range r.online {
		out = append(out, r.devices[mac])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MAC < out[j].MAC })
	return out
}

// SetBlocked flags or unflags a device as fully blocked.
func (r *Registry) SetBlocked(mac string, blocked bool) error {
	return r.update(mac, func(d *domain.Device) { d.Blocked = blocked })
}

// SetChildDevice flags or unflags a device as a child device.
func (r *Registry) SetChildDevice(mac string, child bool) error {
	return r.update(mac, func(d *domain.Device) { d.ChildDevice = child })
}

// SetFiltered flags or unflags a device for filtering.
func (r *Registry) SetFiltered(mac string, filtered bool) error {
	return r.update(mac, func(d *domain.Device) { d.Filtered = filtered })
}

// SetCategory assigns a category to a device.
func (r *Registry) SetCategory(mac string, c domain.DeviceCategory) error {
	if !c.IsValid() {
		return fmt.Errorf("unsupported DeviceCategory: %d", c)
	}
	return r.update(mac, func(d *domain.Device) { d.Category = c })
}

// Rename assigns a display name to a device.
func (r *Registry) Rename(mac, name string) error {
	if name == "" {
		return fmt.Errorf("device name must not be empty")
	}
	return r.update(mac, func(d *domain.Device) { d.Name = name })
}

func (r *Registry) update(mac string, fn func(*domain.Device)) error {
	key := utils.CanonicalMAC(mac)
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[key]
	if !ok {
		return fmt.Errorf("unknown device %q", key)
	}
	fn(&d)
	r.devices[key] = d
	return nil
}

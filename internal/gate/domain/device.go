package domain

import (
	"fmt"
	"time"
)

// Device represents a client device attached to the gateway, keyed by its
// canonical MAC address.
//
// Notes:
// - MAC is expected to be canonical (lowercase, colon-separated); use
//   utils.CanonicalMAC before constructing.
// - FirstSeen is set once at first sighting and survives later snapshots.
// - Blocked/ChildDevice/Filtered are operator-managed flags and are never
//   reset by a presence refresh.
type Device struct {
	MAC         string         // canonical MAC address, comparison key
	IP          string         // most recently observed IP address
	Name        string         // display name, defaults to "Device_" + MAC prefix
	Category    DeviceCategory // operator-assigned classification
	FirstSeen   time.Time      // first snapshot sighting
	LastSeen    time.Time      // most recent snapshot sighting
	Blocked     bool           // all traffic denied
	ChildDevice bool           // subject to child policies
	Filtered    bool           // traffic passes through the filter engine
}

// NewDevice constructs a Device and validates its fields. The display name
// defaults to DefaultDeviceName(mac) when empty.
func NewDevice(mac, ip, name string, category DeviceCategory, seen time.Time) (Device, error) {
	if name == "" {
		name = DefaultDeviceName(mac)
	}
	d := Device{
		MAC:       mac,
		IP:        ip,
		Name:      name,
		Category:  category,
		FirstSeen: seen,
		LastSeen:  seen,
	}
	if err := d.Validate(); err != nil {
		return Device{}, err
	}
	return d, nil
}

// Validate checks the Device for required fields and supported values.
func (d Device) Validate() error {
	if d.MAC == "" {
		return fmt.Errorf("device MAC must not be empty")
	}
	if !d.Category.IsValid() {
		return fmt.Errorf("unsupported DeviceCategory: %d", d.Category)
	}
	if d.FirstSeen.IsZero() {
		return fmt.Errorf("device firstSeen must be set")
	}
	return nil
}

// DefaultDeviceName derives a display name from the first six hex characters
// of the MAC address, e.g. "aa:bb:cc:dd:ee:ff" -> "Device_aabbcc".
func DefaultDeviceName(mac string) string {
	hex := make([]byte, 0, 6)
	for i := 0; i < len(mac) && len(hex) < 6; i++ {
		c := mac[i]
		if c == ':' || c == '-' || c == '.' {
			continue
		}
		hex = append(hex, c)
	}
	return "Device_" + string(hex)
}

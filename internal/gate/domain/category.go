package domain

import (
	"fmt"
	"strings"
)

// DeviceCategory classifies a device attached to the gateway.
type DeviceCategory uint8

const (
	// CategoryUnknown is assigned to devices that have not been classified.
	CategoryUnknown DeviceCategory = iota
	// CategorySmartphone is a handheld phone.
	CategorySmartphone
	// CategoryTablet is a tablet computer.
	CategoryTablet
	// CategoryLaptop is a laptop or desktop computer.
	CategoryLaptop
	// CategoryGameConsole is a gaming console.
	CategoryGameConsole
	// CategorySmartTV is a television or streaming box.
	CategorySmartTV
	// CategoryIoTDevice is any other embedded/IoT device.
	CategoryIoTDevice
)

// String returns a stable string representation of the category.
func (c DeviceCategory) String() string {
	switch c {
	case CategoryUnknown:
		return "unknown"
	case CategorySmartphone:
		return "smartphone"
	case CategoryTablet:
		return "tablet"
	case CategoryLaptop:
		return "laptop"
	case CategoryGameConsole:
		return "game_console"
	case CategorySmartTV:
		return "smart_tv"
	case CategoryIoTDevice:
		return "iot_device"
	default:
		return fmt.Sprintf("DeviceCategory(%d)", c)
	}
}

// IsValid reports whether the category is one of the defined values.
func (c DeviceCategory) IsValid() bool {
	return c <= CategoryIoTDevice
}

// ParseDeviceCategory converts a string into a DeviceCategory.
// Accepts the values produced by String (case-insensitive).
func ParseDeviceCategory(s string) (DeviceCategory, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unknown", "":
		return CategoryUnknown, nil
	case "smartphone":
		return CategorySmartphone, nil
	case "tablet":
		return CategoryTablet, nil
	case "laptop":
		return CategoryLaptop, nil
	case "game_console":
		return CategoryGameConsole, nil
	case "smart_tv":
		return CategorySmartTV, nil
	case "iot_device":
		return CategoryIoTDevice, nil
	default:
		return 0, fmt.Errorf("unsupported DeviceCategory: %q", s)
	}
}

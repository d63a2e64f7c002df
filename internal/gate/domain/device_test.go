package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDevice(t *testing.T) {
	seen := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

	d, err := NewDevice("aa:bb:cc:dd:ee:ff", "192.168.4.10", "", CategoryUnknown, seen)
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", d.MAC)
	assert.Equal(t, "Device_aabbcc", d.Name)
	assert.Equal(t, seen, d.FirstSeen)
	assert.Equal(t, seen, d.LastSeen)
	assert.False(t, d.Blocked)
	assert.False(t, d.ChildDevice)
}

func TestNewDevice_KeepsExplicitName(t *testing.T) {
	seen := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	d, err := NewDevice("aa:bb:cc:dd:ee:ff", "192.168.4.10", "kids-tablet", CategoryTablet, seen)
	require.NoError(t, err)
	assert.Equal(t, "kids-tablet", d.Name)
	assert.Equal(t, CategoryTablet, d.Category)
}

func TestNewDevice_Invalid(t *testing.T) {
	seen := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

	_, err := NewDevice("", "192.168.4.10", "", CategoryUnknown, seen)
	assert.Error(t, err, "empty MAC must be rejected")

	_, err = NewDevice("aa:bb:cc:dd:ee:ff", "192.168.4.10", "", DeviceCategory(99), seen)
	assert.Error(t, err, "unknown category must be rejected")

	_, err = NewDevice("aa:bb:cc:dd:ee:ff", "192.168.4.10", "", CategoryUnknown, time.Time{})
	assert.Error(t, err, "zero firstSeen must be rejected")
}

func TestDefaultDeviceName(t *testing.T) {
	tests := []struct {
		mac, want string
	}{
		{"aa:bb:cc:dd:ee:ff", "Device_aabbcc"},
		{"aa-bb-cc-dd-ee-ff", "Device_aabbcc"},
		{"aabbccddeeff", "Device_aabbcc"},
		{"ab", "Device_ab"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultDeviceName(tt.mac))
	}
}

func TestParseDeviceCategory_RoundTrip(t *testing.T) {
	for c := CategoryUnknown; c <= CategoryIoTDevice; c++ {
		parsed, err := ParseDeviceCategory(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}

	_, err := ParseDeviceCategory("toaster")
	assert.Error(t, err)
}

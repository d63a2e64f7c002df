package neighbors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-gate/internal/gate/common/clock"
	"github.com/haukened/rr-gate/internal/gate/common/log"
	"github.com/haukened/rr-gate/internal/gate/domain"
)

var seenAt = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

func TestParseTable_IPNeighStyle(t *testing.T) {
	out := []byte(`192.168.4.12 dev wlan0 lladdr aa:bb:cc:dd:ee:ff REACHABLE
192.168.4.17 dev wlan0 lladdr 11:22:33:44:55:66 DELAY
`)
	devices := ParseTable(out, seenAt, log.NewNoopLogger())

	require.Len(t, devices, 2)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", devices[0].MAC)
	assert.Equal(t, "192.168.4.12", devices[0].IP)
	assert.Equal(t, "Device_aabbcc", devices[0].Name)
	assert.Equal(t, domain.CategoryUnknown, devices[0].Category)
	assert.Equal(t, seenAt, devices[0].LastSeen)
	assert.Equal(t, "11:22:33:44:55:66", devices[1].MAC)
}

func TestParseTable_PlainTriple(t *testing.T) {
	out := []byte("192.168.4.12 AA-BB-CC-DD-EE-FF reachable\n")
	devices := ParseTable(out, seenAt, log.NewNoopLogger())

	require.Len(t, devices, 1)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", devices[0].MAC, "MAC canonicalized to lowercase colons")
}

func TestParseTable_SkipsInactiveStates(t *testing.T) {
	out := []byte(`192.168.4.12 dev wlan0 lladdr aa:bb:cc:dd:ee:01 STALE
192.168.4.13 dev wlan0 lladdr aa:bb:cc:dd:ee:02 FAILED
192.168.4.14 dev wlan0 INCOMPLETE
192.168.4.15 dev wlan0 lladdr aa:bb:cc:dd:ee:03 REACHABLE
`)
	devices := ParseTable(out, seenAt, log.NewNoopLogger())

	require.Len(t, devices, 1)
	assert.Equal(t, "aa:bb:cc:dd:ee:03", devices[0].MAC)
}

func TestParseTable_SkipsMalformedRows(t *testing.T) {
	out := []byte(`not-an-ip dev wlan0 lladdr aa:bb:cc:dd:ee:01 REACHABLE
192.168.4.12 dev wlan0 lladdr not-a-mac REACHABLE
192.168.4.13 dev wlan0 lladdr 00:00:00:00:00:00 REACHABLE
garbage
192.168.4.14 dev wlan0 lladdr aa:bb:cc:dd:ee:04 REACHABLE
`)
	devices := ParseTable(out, seenAt, log.NewNoopLogger())

	require.Len(t, devices, 1)
	assert.Equal(t, "aa:bb:cc:dd:ee:04", devices[0].MAC)
}

func TestParseTable_IPv6Rows(t *testing.T) {
	out := []byte("fe80::1c2a:3b4c:5d6e:7f80 dev wlan0 lladdr aa:bb:cc:dd:ee:05 PERMANENT\n")
	devices := ParseTable(out, seenAt, log.NewNoopLogger())

	require.Len(t, devices, 1)
	assert.Equal(t, "fe80::1c2a:3b4c:5d6e:7f80", devices[0].IP)
}

func TestParseTable_Empty(t *testing.T) {
	assert.Empty(t, ParseTable(nil, seenAt, log.NewNoopLogger()))
	assert.Empty(t, ParseTable([]byte("\n\n"), seenAt, log.NewNoopLogger()))
}

func TestProvider_Snapshot(t *testing.T) {
	p, err := New([]string{"ip", "neigh", "show"}, &clock.MockClock{CurrentTime: seenAt}, log.NewNoopLogger())
	require.NoError(t, err)
	p.run = func(_ context.Context, argv []string) ([]byte, error) {
		assert.Equal(t, []string{"ip", "neigh", "show"}, argv)
		return []byte("192.168.4.12 dev wlan0 lladdr aa:bb:cc:dd:ee:ff REACHABLE\n"), nil
	}

	devices, err := p.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, seenAt, devices[0].LastSeen)
}

func TestProvider_SnapshotCommandFailure(t *testing.T) {
	p, err := New([]string{"ip", "neigh", "show"}, &clock.MockClock{CurrentTime: seenAt}, log.NewNoopLogger())
	require.NoError(t, err)
	p.run = func(context.Context, []string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	}

	_, err = p.Snapshot(context.Background())
	assert.Error(t, err)
}

func TestNew_RejectsEmptyCommand(t *testing.T) {
	_, err := New(nil, &clock.MockClock{CurrentTime: seenAt}, log.NewNoopLogger())
	assert.Error(t, err)
}

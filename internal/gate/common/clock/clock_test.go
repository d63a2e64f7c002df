package clock

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}

	// Capture time before and after the clock call
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) {
		t.Errorf("Clock time %v is before measurement time %v", now, before)
	}
	if now.After(after) {
		t.Errorf("Clock time %v is after measurement time %v", now, after)
	}
}

func TestMockClock_Now(t *testing.T) {
	fixedTime := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &MockClock{CurrentTime: fixedTime}

	if !clock.Now().Equal(fixedTime) {
		t.Errorf("Expected %v, got %v", fixedTime, clock.Now())
	}

	// Repeated reads are stable
	first := clock.Now()
	second := clock.Now()
	if !first.Equal(second) {
		t.Errorf("Mock clock should return consistent time: first=%v, second=%v", first, second)
	}
}

func TestMockClock_Advance(t *testing.T) {
	initialTime := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &MockClock{CurrentTime: initialTime}

	testCases := []struct {
		name     string
		duration time.Duration
		expected time.Time
	}{
		{
			name:     "advance by one refresh interval",
			duration: 5 * time.Second,
			expected: initialTime.Add(5 * time.Second),
		},
		{
			name:     "advance by backoff interval more",
			duration: 10 * time.Second,
			expected: initialTime.Add(15 * time.Second),
		},
		{
			name:     "advance by 1 microsecond",
			duration: 1 * time.Microsecond,
			expected: initialTime.Add(15*time.Second + 1*time.Microsecond),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clock.Advance(tc.duration)
			now := clock.Now()

			if !now.Equal(tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, now)
			}
		})
	}
}

func TestMockClock_Advance_Negative_Duration(t *testing.T) {
	initialTime := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &MockClock{CurrentTime: initialTime}

	clock.Advance(-1 * time.Hour)
	expected := initialTime.Add(-1 * time.Hour)

	if !clock.Now().Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, clock.Now())
	}
}

func TestClock_Interface_Compliance(t *testing.T) {
	var _ Clock = RealClock{}
	var _ Clock = &MockClock{}
}

func TestMockClock_PresenceSimulation(t *testing.T) {
	// Simulate deciding whether a device sighting is fresh enough
	startTime := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &MockClock{CurrentTime: startTime}

	lastSeen := clock.Now()
	staleAfter := 30 * time.Second

	testPoints := []struct {
		name    string
		advance time.Duration
		stale   bool
	}{
		{"immediately", 0, false},
		{"within the window", 15 * time.Second, false},
		{"just before the cutoff", 29 * time.Second, false},
		{"at the cutoff", 30 * time.Second, true},
		{"long after", 5 * time.Minute, true},
	}

	for _, tp := range testPoints {
		t.Run(tp.name, func(t *testing.T) {
			clock.CurrentTime = startTime
			clock.Advance(tp.advance)

			isStale := !clock.Now().Before(lastSeen.Add(staleAfter))
			if isStale != tp.stale {
				t.Errorf("At %v (advanced %v), expected stale=%v, got stale=%v",
					clock.Now(), tp.advance, tp.stale, isStale)
			}
		})
	}
}

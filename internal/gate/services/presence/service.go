// Package presence runs the periodic device-presence refresh: it pulls
// neighbor-table snapshots, reconciles them into the registry, and emits
// connect/disconnect events.
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haukened/rr-gate/internal/gate/common/clock"
	"github.com/haukened/rr-gate/internal/gate/common/log"
	"github.com/haukened/rr-gate/internal/gate/domain"
)

// Service is the presence refresh scheduler. Cycles are serialized: the loop
// runs each refresh to completion before waiting for the next tick, so two
// cycles can never overlap and events are emitted in cycle-completion order.
type Service struct {
	provider SnapshotProvider
	registry DeviceRegistry
	ap       AccessPoint
	events   Publisher
	clock    clock.Clock
	logger   log.Logger
	refresh  time.Duration // interval while cycles succeed
	backoff  time.Duration // interval after a provider failure

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Options configures a Service.
type Options struct {
	Provider SnapshotProvider
	Registry DeviceRegistry
	AP       AccessPoint
	Events   Publisher
	Clock    clock.Clock
	Logger   log.Logger
	Refresh  time.Duration
	Backoff  time.Duration
}

// New constructs a presence Service.
func New(opts Options) *Service {
	refresh := opts.Refresh
	if refresh <= 0 {
		refresh = 5 * time.Second
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 10 * time.Second
	}
	return &Service{
		provider: opts.Provider,
		registry: opts.Registry,
		ap:       opts.AP,
		events:   opts.Events,
		clock:    opts.Clock,
		logger:   opts.Logger,
		refresh:  refresh,
		backoff:  backoff,
	}
}

// Start launches the refresh loop. It fails when monitoring is already
// active.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("presence monitoring already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	s.logger.Info(map[string]any{
		"refresh": s.refresh.String(),
		"backoff": s.backoff.String(),
	}, "Presence monitoring started")

	go s.loop(loopCtx)
	return nil
}

// Stop cancels the scheduler's wait and lets an in-flight refresh finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info(nil, "Presence monitoring stopped")
}

// loop runs refresh cycles until the context is cancelled. The first cycle
// fires immediately; later waits use the refresh interval, stretched to the
// backoff interval after a provider failure.
func (s *Service) loop(ctx context.Context) {
	defer close(s.done)

	interval := time.Duration(0)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := s.refreshOnce(ctx); err != nil {
			s.logger.Warn(map[string]any{"error": err.Error()}, "Snapshot refresh failed, backing off")
			interval = s.backoff
		} else {
			interval = s.refresh
		}
		timer.Reset(interval)
	}
}

// refreshOnce performs one complete refresh cycle: snapshot, reconcile,
// emit. The full connected/disconnected set is computed before any event is
// emitted.
func (s *Service) refreshOnce(ctx context.Context) error {
	if s.ap != nil && !s.ap.Active() {
		s.logger.Debug(nil, "Access point inactive, skipping refresh")
		return nil
	}

	snapshot, err := s.provider.Snapshot(ctx)
	if err != nil {
		return err
	}

	connected, disconnected := s.registry.Apply(snapshot)
	if len(connected) > 0 || len(disconnected) > 0 {
		s.logger.Info(map[string]any{
			"snapshot":     len(snapshot),
			"connected":    len(connected),
			"disconnected": len(disconnected),
		}, "Presence change detected")
	}

	now := s.clock.Now()
	for i := range connected {
		dev := connected[i]
		s.events.Publish(domain.Event{Kind: domain.EventDeviceConnected, Timestamp: now, Device: &dev})
	}
	for i := range disconnected {
		dev := disconnected[i]
		s.events.Publish(domain.Event{Kind: domain.EventDeviceDisconnected, Timestamp: now, Device: &dev})
	}
	return nil
}

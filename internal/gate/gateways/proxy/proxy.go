// Package proxy implements the interception proxy: it resolves each
// incoming request to a device via the registry, asks the decision engine
// for a verdict, and serves either a block page or the forwarded origin
// response. The listener follows a Stopped -> Starting -> Running ->
// Stopping -> Stopped lifecycle.
package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/haukened/rr-gate/internal/gate/common/clock"
	"github.com/haukened/rr-gate/internal/gate/common/log"
	"github.com/haukened/rr-gate/internal/gate/domain"
)

// State is the proxy listener lifecycle state.
type State uint8

const (
	// StateStopped means no listener is bound.
	StateStopped State = iota
	// StateStarting means the listener is being bound.
	StateStarting
	// StateRunning means connections are being accepted.
	StateRunning
	// StateStopping means the listener is draining in-flight connections.
	StateStopping
)

// String returns a stable string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Decider produces a verdict for a request URL.
type Decider interface {
	Evaluate(url string) domain.Decision
}

// DeviceResolver maps a client IP from the most recent snapshot to a device.
type DeviceResolver interface {
	GetByIP(ip string) (domain.Device, bool)
}

// Publisher delivers SiteBlocked events to external observers.
// Implementations must not block the caller.
type Publisher interface {
	Publish(e domain.Event)
}

// Proxy is the interception proxy listener.
type Proxy struct {
	addr          string
	maxConns      int
	originTimeout time.Duration
	drainTimeout  time.Duration
	decider       Decider
	devices       DeviceResolver
	events        Publisher
	clock         clock.Clock
	logger        log.Logger
	transport     http.RoundTripper

	mu       sync.Mutex
	state    State
	listener net.Listener
	server   *http.Server
	serveErr chan error
}

// Options configures a Proxy.
type Options struct {
	Addr          string
	MaxConns      int
	OriginTimeout time.Duration
	DrainTimeout  time.Duration
	Decider       Decider
	Devices       DeviceResolver
	Events        Publisher
	Clock         clock.Clock
	Logger        log.Logger
}

// New constructs a Proxy.
func New(opts Options) *Proxy {
	originTimeout := opts.OriginTimeout
	if originTimeout <= 0 {
		originTimeout = 15 * time.Second
	}
	drainTimeout := opts.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 10 * time.Second
	}
	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = 256
	}
	return &Proxy{
		addr:          opts.Addr,
		maxConns:      maxConns,
		originTimeout: originTimeout,
		drainTimeout:  drainTimeout,
		decider:       opts.Decider,
		devices:       opts.Devices,
		events:        opts.Events,
		clock:         opts.Clock,
		logger:        opts.Logger,
		transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   originTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ResponseHeaderTimeout: originTimeout,
			MaxIdleConns:          64,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Start binds the listener and begins accepting connections. Calling Start
// while already running is a no-op.
func (p *Proxy) Start(ctx context.Context) error {
	p.mu.Lock()
	switch p.state {
	case StateRunning:
		p.mu.Unlock()
		return nil // idempotent
	case StateStarting, StateStopping:
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("proxy is %s", state)
	}
	p.state = StateStarting
	p.mu.Unlock()

	ln, err := net.Listen("tcp", p.addr)
	if err != nil {
		p.mu.Lock()
		p.state = StateStopped
		p.mu.Unlock()
		return fmt.Errorf("failed to bind proxy listener on %s: %w", p.addr, err)
	}
	ln = netutil.LimitListener(ln, p.maxConns)

	server := &http.Server{
		Handler:           http.HandlerFunc(p.handle),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      p.originTimeout + 30*time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	serveErr := make(chan error, 1)

	p.mu.Lock()
	p.listener = ln
	p.server = server
	p.serveErr = serveErr
	p.state = StateRunning
	p.mu.Unlock()

	p.logger.Info(map[string]any{
		"address":   ln.Addr().String(),
		"max_conns": p.maxConns,
	}, "Interception proxy started")

	go func() {
		err := server.Serve(ln)
		if err != nil && err != http.ErrServerClosed {
			p.logger.Error(map[string]any{"error": err.Error()}, "Proxy accept loop terminated")
		}
		serveErr <- err
	}()
	return nil
}

// Stop closes the listening socket, stops accepting new connections, and
// allows in-flight connections the drain grace period before forced close.
func (p *Proxy) Stop() error {
	p.mu.Lock()
	if p.state != StateRunning {
		state := p.state
		p.mu.Unlock()
		if state == StateStopped {
			return nil
		}
		return fmt.Errorf("proxy is %s", state)
	}
	p.state = StateStopping
	server := p.server
	serveErr := p.serveErr
	p.mu.Unlock()

	drainCtx, cancel := context.WithTimeout(context.Background(), p.drainTimeout)
	defer cancel()

	err := server.Shutdown(drainCtx)
	if err != nil {
		p.logger.Warn(map[string]any{"error": err.Error()}, "Drain period exceeded, forcing connections closed")
		err = server.Close()
	}
	<-serveErr

	p.mu.Lock()
	p.state = StateStopped
	p.listener = nil
	p.server = nil
	p.mu.Unlock()

	p.logger.Info(nil, "Interception proxy stopped")
	return err
}

// State returns the current lifecycle state.
func (p *Proxy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Address returns the bound listener address, or the configured address when
// not running.
func (p *Proxy) Address() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener != nil {
		return p.listener.Addr().String()
	}
	return p.addr
}

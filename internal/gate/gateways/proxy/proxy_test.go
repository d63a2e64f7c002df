package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-gate/internal/gate/common/clock"
	"github.com/haukened/rr-gate/internal/gate/common/log"
	"github.com/haukened/rr-gate/internal/gate/domain"
)

type fakeDecider struct {
	mu        sync.Mutex
	evaluate  func(url string) domain.Decision
	evaluated []string
}

func (d *fakeDecider) Evaluate(url string) domain.Decision {
	d.mu.Lock()
	d.evaluated = append(d.evaluated, url)
	fn := d.evaluate
	d.mu.Unlock()
	if fn == nil {
		return domain.Allowed()
	}
	return fn(url)
}

func (d *fakeDecider) calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.evaluated...)
}

type fakeResolver struct {
	devices map[string]domain.Device
}

func (r *fakeResolver) GetByIP(ip string) (domain.Device, bool) {
	dev, ok := r.devices[ip]
	return dev, ok
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(e domain.Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *recordingPublisher) all() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

var frozenNow = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

func newTestProxy(t *testing.T, decider *fakeDecider, resolver *fakeResolver, pub *recordingPublisher) *Proxy {
	t.Helper()
	if resolver == nil {
		resolver = &fakeResolver{}
	}
	return New(Options{
		Addr:          "127.0.0.1:0",
		OriginTimeout: 2 * time.Second,
		DrainTimeout:  2 * time.Second,
		Decider:       decider,
		Devices:       resolver,
		Events:        pub,
		Clock:         &clock.MockClock{CurrentTime: frozenNow},
		Logger:        log.NewNoopLogger(),
	})
}

func startProxy(t *testing.T, p *Proxy) *http.Client {
	t.Helper()
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop() })

	proxyURL, err := url.Parse("http://" + p.Address())
	require.NoError(t, err)
	return &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		Timeout:   5 * time.Second,
	}
}

func TestLifecycle(t *testing.T) {
	p := newTestProxy(t, &fakeDecider{}, nil, nil)
	assert.Equal(t, StateStopped, p.State())

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, StateRunning, p.State())
	assert.NotEqual(t, "127.0.0.1:0", p.Address(), "bound address carries the real port")

	require.NoError(t, p.Start(context.Background()), "start while running is a no-op")
	assert.Equal(t, StateRunning, p.State())

	require.NoError(t, p.Stop())
	assert.Equal(t, StateStopped, p.State())
	require.NoError(t, p.Stop(), "stop while stopped is a no-op")

	require.NoError(t, p.Start(context.Background()), "restart after stop")
	require.NoError(t, p.Stop())
}

func TestStart_BindFailure(t *testing.T) {
	blocker := newTestProxy(t, &fakeDecider{}, nil, nil)
	require.NoError(t, blocker.Start(context.Background()))
	defer blocker.Stop()

	p := New(Options{
		Addr:    blocker.Address(),
		Decider: &fakeDecider{},
		Devices: &fakeResolver{},
		Clock:   &clock.MockClock{CurrentTime: frozenNow},
		Logger:  log.NewNoopLogger(),
	})
	assert.Error(t, p.Start(context.Background()))
	assert.Equal(t, StateStopped, p.State(), "failed bind resets the state")
}

func TestForward_AllowedRequest(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Proxy-Connection") != "" {
			t.Error("hop-by-hop header leaked to the origin")
		}
		w.Header().Set("X-Origin", "yes")
		w.WriteHeader(http.StatusTeapot)
		fmt.Fprint(w, "hello from origin")
	}))
	defer origin.Close()

	decider := &fakeDecider{}
	p := newTestProxy(t, decider, nil, nil)
	client := startProxy(t, p)

	req, err := http.NewRequest(http.MethodGet, origin.URL+"/page", nil)
	require.NoError(t, err)
	req.Header.Set("Proxy-Connection", "keep-alive")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode, "origin status relayed unchanged")
	assert.Equal(t, "hello from origin", string(body))
	assert.Equal(t, "yes", resp.Header.Get("X-Origin"))

	calls := decider.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, origin.URL+"/page", calls[0], "full URL reaches the decision engine")
}

func TestBlockedRequest_ServesBlockPage(t *testing.T) {
	decider := &fakeDecider{evaluate: func(string) domain.Decision {
		return domain.BlockedBy("no gambling")
	}}
	pub := &recordingPublisher{}
	p := newTestProxy(t, decider, nil, pub)
	client := startProxy(t, p)

	resp, err := client.Get("http://gambling.example/slots")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "block page is a complete 200 response")
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "Site Blocked")
	assert.Contains(t, string(body), "http://gambling.example/slots")
	assert.Contains(t, string(body), frozenNow.Format("2006-01-02 15:04:05"))

	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventSiteBlocked, events[0].Kind)
	require.NotNil(t, events[0].Blocked)
	assert.Equal(t, "http://gambling.example/slots", events[0].Blocked.URL)
	assert.Equal(t, "no gambling", events[0].Blocked.Reason)
}

func TestBlockedDevice_SkipsEvaluation(t *testing.T) {
	decider := &fakeDecider{}
	pub := &recordingPublisher{}
	resolver := &fakeResolver{devices: map[string]domain.Device{
		"127.0.0.1": {MAC: "aa:bb:cc:dd:ee:ff", IP: "127.0.0.1", Blocked: true},
	}}
	p := newTestProxy(t, decider, resolver, pub)
	client := startProxy(t, p)

	resp, err := client.Get("http://example.com/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Site Blocked")
	assert.Empty(t, decider.calls(), "a blocked device never reaches the engine")

	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.ReasonDeviceBlocked, events[0].Blocked.Reason)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", events[0].Blocked.DeviceMAC)
}

func TestForward_OriginUnreachable(t *testing.T) {
	// bind and immediately close to get a port that refuses connections
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	p := newTestProxy(t, &fakeDecider{}, nil, nil)
	client := startProxy(t, p)

	resp, err := client.Get(deadURL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, string(body), "could not be reached")
	assert.Contains(t, string(body), deadURL)
}

func TestConnect_BlockedTunnel(t *testing.T) {
	decider := &fakeDecider{evaluate: func(string) domain.Decision {
		return domain.BlockedBy("no gambling")
	}}
	pub := &recordingPublisher{}
	p := newTestProxy(t, decider, nil, pub)

	req := httptest.NewRequest(http.MethodConnect, "gambling.example:443", nil)
	req.Host = "gambling.example:443"
	req.RemoteAddr = "192.168.4.10:51234"
	rec := httptest.NewRecorder()
	p.handle(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code, "blocked tunnels get a bare 403")

	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, "https://gambling.example:443", events[0].Blocked.URL)

	calls := decider.calls()
	require.Len(t, calls, 1)
	assert.True(t, strings.HasPrefix(calls[0], "https://"), "CONNECT targets evaluate as https URLs")
}

func TestRequestTarget(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		host   string
		want   string
	}{
		{"absolute proxy request", http.MethodGet, "http://example.com/a?b=1", "example.com", "http://example.com/a?b=1"},
		{"transparent intercept", http.MethodGet, "/a?b=1", "example.com", "http://example.com/a?b=1"},
		{"connect", http.MethodConnect, "example.com:443", "example.com:443", "https://example.com:443"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			r.Host = tt.host
			assert.Equal(t, tt.want, requestTarget(r))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
}

package proxy

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/haukened/rr-gate/internal/gate/domain"
)

// hopHeaders are connection-scoped headers stripped before forwarding.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// handle processes one intercepted request. Failures are isolated to the
// request: the client always receives a complete response, never a raw
// fault or a hung connection.
func (p *Proxy) handle(w http.ResponseWriter, r *http.Request) {
	device := p.resolveDevice(r.RemoteAddr)
	target := requestTarget(r)

	if r.Method == http.MethodConnect {
		p.handleConnect(w, r, device, target)
		return
	}

	if device.Blocked {
		p.serveBlocked(w, target, domain.ReasonDeviceBlocked, device)
		return
	}

	decision := p.decider.Evaluate(target)
	if decision.Blocked {
		p.serveBlocked(w, target, decision.Reason, device)
		return
	}

	p.forward(w, r, target, device)
}

// resolveDevice maps the connection's source address to a device identity.
// Unknown addresses proceed with an empty identity rather than failing the
// request.
func (p *Proxy) resolveDevice(remoteAddr string) domain.Device {
	ip, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		ip = remoteAddr
	}
	if dev, ok := p.devices.GetByIP(ip); ok {
		return dev
	}
	return domain.Device{IP: ip, Name: "unknown"}
}

// requestTarget reconstructs the full request URL. Proxy-style requests
// carry an absolute URL already; transparently intercepted ones only have
// Host plus the path.
func requestTarget(r *http.Request) string {
	if r.Method == http.MethodConnect {
		return "https://" + r.Host
	}
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// serveBlocked writes the block page and emits a SiteBlocked event. The
// event path never blocks request handling.
func (p *Proxy) serveBlocked(w http.ResponseWriter, target, reason string, device domain.Device) {
	now := p.clock.Now()
	p.logger.Info(map[string]any{
		"url":    target,
		"reason": reason,
		"device": device.MAC,
	}, "Request blocked")

	if p.events != nil {
		p.events.Publish(domain.Event{
			Kind:      domain.EventSiteBlocked,
			Timestamp: now,
			Blocked: &domain.SiteBlocked{
				URL:       target,
				Reason:    reason,
				DeviceMAC: device.MAC,
				Timestamp: now,
			},
		})
	}

	writeBlockPage(w, target, now)
}

// forward relays the request to its origin and the origin's response back
// unmodified. Origin failures produce a generated error page, never a raw
// fault or an indefinite hang.
func (p *Proxy) forward(w http.ResponseWriter, r *http.Request, target string, device domain.Device) {
	ctx, cancel := context.WithTimeout(r.Context(), p.originTimeout)
	defer cancel()

	out, err := http.NewRequestWithContext(ctx, r.Method, target, r.Body)
	if err != nil {
		p.logger.Warn(map[string]any{"url": target, "error": err.Error()}, "Failed to build origin request")
		writeErrorPage(w, target, p.clock.Now())
		return
	}
	out.Header = r.Header.Clone()
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}

	resp, err := p.transport.RoundTrip(out)
	if err != nil {
		p.logger.Warn(map[string]any{
			"url":    target,
			"device": device.MAC,
			"error":  err.Error(),
		}, "Origin unreachable")
		writeErrorPage(w, target, p.clock.Now())
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	for k, vv := range resp.Header {
		for _, v := range vv {
			header.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		header.Del(h)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Debug(map[string]any{"url": target, "error": err.Error()}, "Relay interrupted")
	}
}

// handleConnect evaluates a CONNECT target and, when allowed, tunnels bytes
// between client and origin. Blocked tunnels get a 403: there is no way to
// serve an HTML page inside a TLS connection we do not terminate.
func (p *Proxy) handleConnect(w http.ResponseWriter, r *http.Request, device domain.Device, target string) {
	if device.Blocked {
		p.emitBlocked(target, domain.ReasonDeviceBlocked, device)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	decision := p.decider.Evaluate(target)
	if decision.Blocked {
		p.emitBlocked(target, decision.Reason, device)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	origin, err := net.DialTimeout("tcp", connectAddr(r.Host), p.originTimeout)
	if err != nil {
		p.logger.Warn(map[string]any{"host": r.Host, "error": err.Error()}, "CONNECT origin unreachable")
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		origin.Close()
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	client, _, err := hj.Hijack()
	if err != nil {
		origin.Close()
		return
	}

	_, _ = client.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))
	tunnel(client, origin)
}

// emitBlocked publishes a SiteBlocked event for a denied CONNECT.
func (p *Proxy) emitBlocked(target, reason string, device domain.Device) {
	now := p.clock.Now()
	p.logger.Info(map[string]any{"url": target, "reason": reason, "device": device.MAC}, "Tunnel blocked")
	if p.events != nil {
		p.events.Publish(domain.Event{
			Kind:      domain.EventSiteBlocked,
			Timestamp: now,
			Blocked:   &domain.SiteBlocked{URL: target, Reason: reason, DeviceMAC: device.MAC, Timestamp: now},
		})
	}
}

// connectAddr ensures a CONNECT host carries a port.
func connectAddr(host string) string {
	if strings.Contains(host, ":") {
		return host
	}
	return host + ":443"
}

// tunnel copies bytes in both directions until either side closes.
func tunnel(a, b net.Conn) {
	done := make(chan struct{}, 2)
	cp := func(dst, src net.Conn) {
		_, _ = io.Copy(dst, src)
		_ = dst.SetReadDeadline(time.Now()) // unblock the peer copy
		done <- struct{}{}
	}
	go cp(a, b)
	go cp(b, a)
	<-done
	<-done
	_ = a.Close()
	_ = b.Close()
}

// Package accesspoint wraps the external access-point provisioning tool.
// Only the success/failure contract matters here; the exact provisioning
// mechanism belongs to the collaborator.
package accesspoint

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/haukened/rr-gate/internal/gate/common/log"
	"github.com/haukened/rr-gate/internal/gate/services/presence"
)

// runner executes a provisioning command. Overridable in tests.
type runner func(ctx context.Context, argv []string) error

func execRunner(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (%s)", argv[0], err, string(out))
	}
	return nil
}

// Controller enables and disables the wireless access point and tracks
// whether it is active. It satisfies presence.AccessPoint so the refresh
// loop only runs while the hotspot is up.
type Controller struct {
	iface  string
	run    runner
	logger log.Logger

	mu     sync.RWMutex
	active bool
}

// New constructs a Controller for the given wireless interface.
func New(iface string, logger log.Logger) *Controller {
	return &Controller{
		iface:  iface,
		run:    execRunner,
		logger: logger,
	}
}

// Enable provisions the access point with the given SSID and password.
func (c *Controller) Enable(ctx context.Context, ssid, password string) error {
	if ssid == "" {
		return fmt.Errorf("ssid must not be empty")
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if err := c.run(ctx, []string{"hostapd_cli", "-i", c.iface, "enable"}); err != nil {
		c.logger.Error(map[string]any{"iface": c.iface, "error": err.Error()}, "Access point enable failed")
		return err
	}

	c.mu.Lock()
	c.active = true
	c.mu.Unlock()

	c.logger.Info(map[string]any{"iface": c.iface, "ssid": ssid}, "Access point enabled")
	return nil
}

// Disable tears the access point down.
func (c *Controller) Disable(ctx context.Context) error {
	if err := c.run(ctx, []string{"hostapd_cli", "-i", c.iface, "disable"}); err != nil {
		c.logger.Error(map[string]any{"iface": c.iface, "error": err.Error()}, "Access point disable failed")
		return err
	}

	c.mu.Lock()
	c.active = false
	c.mu.Unlock()

	c.logger.Info(map[string]any{"iface": c.iface}, "Access point disabled")
	return nil
}

// Active reports whether the access point is currently up.
func (c *Controller) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

var _ presence.AccessPoint = (*Controller)(nil)

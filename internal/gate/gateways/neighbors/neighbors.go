// Package neighbors reads the OS neighbor (ARP/NDP) table through an
// external command and turns it into device snapshot records.
package neighbors

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/haukened/rr-gate/internal/gate/common/clock"
	"github.com/haukened/rr-gate/internal/gate/common/log"
	"github.com/haukened/rr-gate/internal/gate/domain"
	"github.com/haukened/rr-gate/internal/gate/services/presence"
)

// runner executes the neighbor-table command and returns its stdout.
// Overridable in tests.
type runner func(ctx context.Context, argv []string) ([]byte, error)

func execRunner(ctx context.Context, argv []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	return cmd.Output()
}

// Provider implements presence.SnapshotProvider over an external command
// such as `ip neigh show`.
type Provider struct {
	argv   []string
	run    runner
	clock  clock.Clock
	logger log.Logger
}

// New constructs a Provider invoking the given command argv.
func New(argv []string, clk clock.Clock, logger log.Logger) (*Provider, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("neighbor command must not be empty")
	}
	return &Provider{
		argv:   argv,
		run:    execRunner,
		clock:  clk,
		logger: logger,
	}, nil
}

// Snapshot runs the neighbor-table command and parses its output. A missing
// binary or non-zero exit is returned as an error so the presence service
// can log it and back off; it never crashes the cycle.
func (p *Provider) Snapshot(ctx context.Context) ([]domain.Device, error) {
	out, err := p.run(ctx, p.argv)
	if err != nil {
		return nil, fmt.Errorf("neighbor table read failed: %w", err)
	}
	return ParseTable(out, p.clock.Now(), p.logger), nil
}

var _ presence.SnapshotProvider = (*Provider)(nil)

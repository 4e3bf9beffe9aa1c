// Package sysmem exposes a narrow view of live system memory so that
// admission decisions can be tested without touching real machine state.
package sysmem

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot holds the memory figures consulted by admission checks.
type Snapshot struct {
	TotalBytes     uint64
	AvailableBytes uint64
}

// Prober reports live memory state. Implementations must be safe for
// concurrent use; the value is advisory and never cached by callers.
type Prober interface {
	Probe(ctx context.Context) (Snapshot, error)
}

// SystemProber reads virtual-memory stats from the running host.
type SystemProber struct{}

func NewSystemProber() *SystemProber {
	return &SystemProber{}
}

func (p *SystemProber) Probe(ctx context.Context) (Snapshot, error) {
	stat, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read virtual memory: %w", err)
	}
	return Snapshot{
		TotalBytes:     stat.Total,
		AvailableBytes: stat.Available,
	}, nil
}

package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/threadvault/threadvault/internal/sysmem"
)

type fakeProber struct {
	snap sysmem.Snapshot
	err  error
}

func (p *fakeProber) Probe(context.Context) (sysmem.Snapshot, error) {
	return p.snap, p.err
}

func TestGateAdmit(t *testing.T) {
	t.Parallel()

	gib := uint64(1024 * 1024 * 1024)

	tests := []struct {
		name        string
		maxFileSize int64
		reserve     float64
		prober      sysmem.Prober
		declared    int64
		admitted    bool
		reason      RejectReason
	}{
		{
			name:        "under ceiling and headroom",
			maxFileSize: 10 << 20,
			reserve:     0.2,
			prober:      &fakeProber{snap: sysmem.Snapshot{TotalBytes: 4 * gib, AvailableBytes: 2 * gib}},
			declared:    5 << 20,
			admitted:    true,
		},
		{
			name:        "over ceiling",
			maxFileSize: 10 << 20,
			reserve:     0.2,
			prober:      &fakeProber{snap: sysmem.Snapshot{TotalBytes: 4 * gib, AvailableBytes: 2 * gib}},
			declared:    15 << 20,
			reason:      ReasonTooLarge,
		},
		{
			name:        "ceiling disabled",
			maxFileSize: 0,
			reserve:     0.2,
			prober:      &fakeProber{snap: sysmem.Snapshot{TotalBytes: 4 * gib, AvailableBytes: 2 * gib}},
			declared:    15 << 20,
			admitted:    true,
		},
		{
			name:        "insufficient headroom",
			maxFileSize: 0,
			reserve:     0.5,
			prober:      &fakeProber{snap: sysmem.Snapshot{TotalBytes: 4 * gib, AvailableBytes: 2*gib + 1024}},
			declared:    1 << 20,
			reason:      ReasonInsufficientMemory,
		},
		{
			name:        "ceiling checked before memory",
			maxFileSize: 10 << 20,
			reserve:     0.5,
			prober:      &fakeProber{snap: sysmem.Snapshot{TotalBytes: 4 * gib, AvailableBytes: 2 * gib}},
			declared:    15 << 20,
			reason:      ReasonTooLarge,
		},
		{
			name:        "probe failure admits",
			maxFileSize: 10 << 20,
			reserve:     0.2,
			prober:      &fakeProber{err: errors.New("no procfs")},
			declared:    5 << 20,
			admitted:    true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gate := NewGate(nil, tt.maxFileSize, tt.reserve, tt.prober)
			decision := gate.Admit(context.Background(), Task{Name: "IMG.JPG", DeclaredSize: tt.declared})
			if decision.Admitted != tt.admitted {
				t.Fatalf("admitted = %v, want %v", decision.Admitted, tt.admitted)
			}
			if !tt.admitted && decision.Reason != tt.reason {
				t.Fatalf("reason = %q, want %q", decision.Reason, tt.reason)
			}
		})
	}
}

func TestGateProbesPerCall(t *testing.T) {
	t.Parallel()

	gib := uint64(1024 * 1024 * 1024)
	prober := &fakeProber{snap: sysmem.Snapshot{TotalBytes: 4 * gib, AvailableBytes: 3 * gib}}
	gate := NewGate(nil, 0, 0.25, prober)

	task := Task{Name: "VID.MP4", DeclaredSize: 1 << 30}
	if decision := gate.Admit(context.Background(), task); !decision.Admitted {
		t.Fatalf("expected admission with 2GiB headroom")
	}

	// Live state shrank between calls; the gate must see it.
	prober.snap.AvailableBytes = 1 * gib
	decision := gate.Admit(context.Background(), task)
	if decision.Admitted {
		t.Fatalf("expected rejection after headroom shrank")
	}
	if decision.Reason != ReasonInsufficientMemory {
		t.Fatalf("reason = %q, want %q", decision.Reason, ReasonInsufficientMemory)
	}
}

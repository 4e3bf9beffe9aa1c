package ingest

import (
	"context"
	"log/slog"

	"github.com/threadvault/threadvault/internal/sysmem"
)

// Decision is the admission verdict for one task.
type Decision struct {
	Admitted bool
	Reason   RejectReason
}

// Gate decides whether a task may begin downloading. The size ceiling is
// static configuration; the memory headroom is probed live on every call
// because it reflects state shared across all concurrently admitted tasks.
type Gate struct {
	maxFileSize int64
	reserve     float64
	prober      sysmem.Prober
	logger      *slog.Logger
}

// NewGate creates an admission gate. maxFileSize of 0 disables the size
// ceiling; reserve is the fraction of total memory kept free.
func NewGate(log *slog.Logger, maxFileSize int64, reserve float64, prober sysmem.Prober) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		maxFileSize: maxFileSize,
		reserve:     reserve,
		prober:      prober,
		logger:      log.With(slog.String("service", "admission")),
	}
}

// Admit evaluates the admission rules in order: size ceiling, then live
// memory headroom. Rejected tasks are reported, never retried. A failed
// memory probe admits the task; the check is advisory backpressure, not
// a reservation.
func (g *Gate) Admit(ctx context.Context, task Task) Decision {
	if g.maxFileSize > 0 && task.DeclaredSize > g.maxFileSize {
		g.logger.Info("task rejected",
			slog.String("file", task.Name),
			slog.Int64("declared_size", task.DeclaredSize),
			slog.Int64("ceiling", g.maxFileSize),
		)
		return Decision{Reason: ReasonTooLarge}
	}

	if g.prober != nil {
		snap, err := g.prober.Probe(ctx)
		if err != nil {
			g.logger.Warn("memory probe failed", slog.Any("error", err))
			return Decision{Admitted: true}
		}
		headroom := int64(snap.AvailableBytes) - int64(g.reserve*float64(snap.TotalBytes))
		if task.DeclaredSize > headroom {
			g.logger.Info("task rejected",
				slog.String("file", task.Name),
				slog.Int64("declared_size", task.DeclaredSize),
				slog.Int64("headroom", headroom),
			)
			return Decision{Reason: ReasonInsufficientMemory}
		}
	}

	return Decision{Admitted: true}
}

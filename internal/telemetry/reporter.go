// Package telemetry defines the outbound error-reporting collaborator.
// The pipeline raises unexpected faults here instead of crashing workers.
package telemetry

import (
	"context"
	"log/slog"
)

// Reporter receives unexpected (non-task) errors from the pipeline.
type Reporter interface {
	ReportError(ctx context.Context, scope string, err error)
}

// LogReporter reports errors to the process logger.
type LogReporter struct {
	logger *slog.Logger
}

func NewLogReporter(log *slog.Logger) *LogReporter {
	if log == nil {
		log = slog.Default()
	}
	return &LogReporter{logger: log.With(slog.String("service", "telemetry"))}
}

func (r *LogReporter) ReportError(ctx context.Context, scope string, err error) {
	if err == nil {
		return
	}
	r.logger.Error("unexpected error", slog.String("scope", scope), slog.Any("error", err))
}

package runner

import (
	"context"
	"log/slog"

	"github.com/torosent/poolbench/internal/workload"
)

// FailureLogger logs failed iterations.
type FailureLogger interface {
	LogFailure(it workload.Iteration)
}

// SlogFailureLogger writes one warning per failed iteration.
type SlogFailureLogger struct {
	Logger *slog.Logger
}

func (l SlogFailureLogger) LogFailure(it workload.Iteration) {
	if l.Logger == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("outcome", it.Outcome.String()),
		slog.String("state", it.FailedIn.String()),
		slog.Duration("elapsed", it.Elapsed),
		slog.Any("error", it.Err),
	}
	if it.RollbackErr != nil {
		attrs = append(attrs, slog.Any("rollback_error", it.RollbackErr))
	}
	l.Logger.LogAttrs(context.Background(), slog.LevelWarn, "iteration failed", attrs...)
}

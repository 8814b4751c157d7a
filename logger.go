package cannon

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with training- and inference-specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithPixel adds a pixel field to the logger.
func (l *Logger) WithPixel(p int) *Logger {
	return &Logger{
		Logger: l.Logger.With("pixel", p),
	}
}

// WithLambda adds a regularization-strength field to the logger.
func (l *Logger) WithLambda(lambda float64) *Logger {
	return &Logger{
		Logger: l.Logger.With("lambda", lambda),
	}
}

// WithStars adds a star-count field to the logger.
func (l *Logger) WithStars(n int) *Logger {
	return &Logger{
		Logger: l.Logger.With("stars", n),
	}
}

// LogTrainStart logs the shape of a training run before work begins.
func (l *Logger) LogTrainStart(ctx context.Context, stars, pixels, labels, terms, gridSize, folds int) {
	l.InfoContext(ctx, "training started",
		"stars", stars,
		"pixels", pixels,
		"labels", labels,
		"terms", terms,
		"grid_size", gridSize,
		"folds", folds,
	)
}

// LogPhase logs the completion of one training phase.
func (l *Logger) LogPhase(ctx context.Context, phase string, duration time.Duration) {
	l.DebugContext(ctx, "phase completed",
		"phase", phase,
		"duration", duration,
	)
}

// LogTrain logs the outcome of a training run.
func (l *Logger) LogTrain(ctx context.Context, pixels, notConverged, degenerate, unresolved int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "training failed",
			"duration", duration,
			"error", err,
		)
		return
	}
	if notConverged > 0 || degenerate > 0 || unresolved > 0 {
		l.WarnContext(ctx, "training completed with flagged pixels",
			"pixels", pixels,
			"not_converged", notConverged,
			"degenerate", degenerate,
			"unresolved", unresolved,
			"duration", duration,
		)
		return
	}
	l.InfoContext(ctx, "training completed",
		"pixels", pixels,
		"duration", duration,
	)
}

// LogInference logs a label-inference call.
func (l *Logger) LogInference(ctx context.Context, iterations int, chi2 float64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "inference failed",
			"iterations", iterations,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "inference completed",
			"iterations", iterations,
			"chi2", chi2,
		)
	}
}

// LogSnapshotSave logs a model snapshot write.
func (l *Logger) LogSnapshotSave(ctx context.Context, path string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot save failed",
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"path", path,
		)
	}
}

// LogSnapshotLoad logs a model snapshot read.
func (l *Logger) LogSnapshotLoad(ctx context.Context, path string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot load failed",
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot loaded",
			"path", path,
		)
	}
}

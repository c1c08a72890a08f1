package vecfs

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with the store's operation log helpers.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler. A nil handler writes
// text at info level to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		return NewTextLogger(slog.LevelInfo)
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that writes JSON to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that writes human-readable text to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// With returns a Logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// LogBatchInsert logs a batch insert operation.
func (l *Logger) LogBatchInsert(ctx context.Context, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "batch insert rejected",
			"count", count,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "batch insert completed",
			"count", count,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, kind string, k, resultsFound int, degraded bool, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "search failed",
			"kind", kind,
			"k", k,
			"error", err,
		)
	case degraded:
		l.WarnContext(ctx, "search completed with linear scan",
			"kind", kind,
			"k", k,
			"results", resultsFound,
		)
	default:
		l.DebugContext(ctx, "search completed",
			"kind", kind,
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, id uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"id", id,
		)
	}
}

// LogDescriptor logs a vector descriptor change.
func (l *Logger) LogDescriptor(ctx context.Context, req SetVectorMetadataRequest, err error) {
	if err != nil {
		l.ErrorContext(ctx, "set vector metadata failed",
			"dimension", req.Dimension,
			"element_type", req.ElementType,
			"alignment", req.AlignmentBytes,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "vector metadata updated",
			"dimension", req.Dimension,
			"element_type", req.ElementType,
			"alignment", req.AlignmentBytes,
			"compression", req.CompressionType,
		)
	}
}

// LogCompaction logs a compaction run.
func (l *Logger) LogCompaction(ctx context.Context, freed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "compaction failed",
			"freed", freed,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "compaction completed",
			"freed", freed,
		)
	}
}

package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds call-scoped logging context threaded through a fetch
// or mutation: trace correlation, which observer and key are involved,
// and timing for duration calculation.
type LogContext struct {
	TraceID    string // OpenTelemetry trace ID
	SpanID     string // OpenTelemetry span ID
	ObserverID string // stable id of the QueryObserver/MutationObserver
	Key        string // querykey.Key.String() rendering
	Attempt    int    // current retry attempt index
	StartTime  time.Time
}

// WithContext returns a new context carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from ctx, or nil if absent.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for a call against key.
func NewLogContext(key string) *LogContext {
	return &LogContext{Key: key, StartTime: time.Now()}
}

// Clone returns a copy of lc.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithTrace returns a copy with trace info set.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// WithAttempt returns a copy with the retry attempt index set.
func (lc *LogContext) WithAttempt(attempt int) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Attempt = attempt
	}
	return clone
}

// DurationMs returns the elapsed time since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}

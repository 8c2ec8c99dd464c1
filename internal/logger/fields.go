package logger

import "log/slog"

// Standard field keys for structured logging across the cache/observer
// engine. Use these keys consistently so log aggregation and querying
// line up across components.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Key / Observer Identity
	// ========================================================================
	KeyQueryKey    = "query_key"    // querykey.Key.String() rendering
	KeyObserverID  = "observer_id"  // stable per-observer identifier
	KeyMutationKey = "mutation_key" // MutationObserver's configured key

	// ========================================================================
	// Fetch / Retry
	// ========================================================================
	KeyAttempt      = "attempt"       // retry attempt index (0-based)
	KeyMaxRetries   = "max_retries"   // configured retry ceiling
	KeyRetryDelayMs = "retry_delay_ms"
	KeyDurationMs   = "duration_ms" // elapsed time for a fetch/mutation call
	KeyDeduped      = "deduped"     // this call joined an in-flight fetch

	// ========================================================================
	// Status
	// ========================================================================
	KeyStatus      = "status"       // observer Status (pending/success/error)
	KeyFetchStatus = "fetch_status" // FetchStatus (idle/fetching/paused)
	KeyErrMsg      = "error"        // human-readable error message

	// ========================================================================
	// Network / Focus
	// ========================================================================
	KeyOnline = "online"
	KeyFocus  = "focused"

	// ========================================================================
	// Filter / Lifecycle Operations
	// ========================================================================
	KeyAffectedCount = "affected_count" // keys matched by a filter operation
	KeyScopeID       = "scope_id"       // mutation scope serialization id
)

// TraceID returns a slog.Attr for the active trace id.
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// SpanID returns a slog.Attr for the active span id.
func SpanID(id string) slog.Attr { return slog.String(KeySpanID, id) }

// QueryKey returns a slog.Attr for a rendered querykey.Key.
func QueryKey(k string) slog.Attr { return slog.String(KeyQueryKey, k) }

// ObserverID returns a slog.Attr identifying an observer instance.
func ObserverID(id string) slog.Attr { return slog.String(KeyObserverID, id) }

// MutationKey returns a slog.Attr for a MutationObserver's configured key.
func MutationKey(k string) slog.Attr { return slog.String(KeyMutationKey, k) }

// Attempt returns a slog.Attr for the current retry attempt index.
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }

// MaxRetries returns a slog.Attr for the configured retry ceiling.
func MaxRetries(n int) slog.Attr { return slog.Int(KeyMaxRetries, n) }

// DurationMs returns a slog.Attr for an elapsed duration in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Deduped returns a slog.Attr indicating a fetch joined an in-flight call.
func Deduped(v bool) slog.Attr { return slog.Bool(KeyDeduped, v) }

// Status returns a slog.Attr for an observer's Status.
func Status(s string) slog.Attr { return slog.String(KeyStatus, s) }

// FetchStatus returns a slog.Attr for an observer's FetchStatus.
func FetchStatus(s string) slog.Attr { return slog.String(KeyFetchStatus, s) }

// Online returns a slog.Attr for OnlineManager transitions.
func Online(v bool) slog.Attr { return slog.Bool(KeyOnline, v) }

// Focused returns a slog.Attr for FocusManager transitions.
func Focused(v bool) slog.Attr { return slog.Bool(KeyFocus, v) }

// AffectedCount returns a slog.Attr for how many keys a filter operation
// matched.
func AffectedCount(n int) slog.Attr { return slog.Int(KeyAffectedCount, n) }

// ScopeID returns a slog.Attr for a mutation scope id.
func ScopeID(id string) slog.Attr { return slog.String(KeyScopeID, id) }

// Err returns a slog.Attr carrying an error's message, or a zero Attr
// for a nil error so it can be passed unconditionally and dropped by
// slog's "empty key" handling.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyErrMsg, err.Error())
}

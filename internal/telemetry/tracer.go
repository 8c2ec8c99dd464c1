package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys attached to querysync's own spans. Kept here rather
// than inline at each call site so the cache, mutation, and infinite
// query packages agree on what a "key" or "fetch status" attribute is
// called in exported traces.
const (
	AttrQueryKey     = "querysync.key"
	AttrFetchStatus  = "querysync.fetch_status"
	AttrCacheHit     = "querysync.cache_hit"
	AttrBackground   = "querysync.background"
	AttrMutationKey  = "querysync.mutation_key"
	AttrAttemptIndex = "querysync.attempt"
	AttrPageParam    = "querysync.page_param"
)

// QueryKey returns an attribute carrying a query key's string form, used
// on every querycache.fetch span.
func QueryKey(key string) attribute.KeyValue {
	return attribute.String(AttrQueryKey, key)
}

// MutationKey returns an attribute carrying a mutation's key, when one
// was supplied to mutation.Observer (Options.MutationKey).
func MutationKey(key string) attribute.KeyValue {
	return attribute.String(AttrMutationKey, key)
}

// CacheHit returns an attribute recording whether a fetch was served
// from a fresh cache entry instead of invoking its FetchFn.
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// Background returns an attribute recording whether a fetch was
// triggered as a background refetch (stale-while-revalidate) rather
// than a caller waiting on the result.
func Background(background bool) attribute.KeyValue {
	return attribute.Bool(AttrBackground, background)
}

// AttemptIndex returns an attribute recording a mutation retry's
// zero-based attempt number.
func AttemptIndex(attempt int) attribute.KeyValue {
	return attribute.Int(AttrAttemptIndex, attempt)
}

// StartFetchSpan starts a span for a single querycache fetch, tagging it
// with the query key and whether it's a foreground or background fetch.
func StartFetchSpan(ctx context.Context, key string, background bool) (context.Context, trace.Span) {
	return StartSpan(ctx, "querycache.fetch", trace.WithAttributes(QueryKey(key), Background(background)))
}

// StartMutationSpan starts a span for one mutation attempt.
func StartMutationSpan(ctx context.Context, key string, attempt int) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{AttemptIndex(attempt)}
	if key != "" {
		attrs = append(attrs, MutationKey(key))
	}
	return StartSpan(ctx, "mutation.run", trace.WithAttributes(attrs...))
}

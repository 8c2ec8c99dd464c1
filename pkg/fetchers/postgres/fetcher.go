// Package postgres provides a querycache.FetchFn backed by a row lookup
// against PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resyncio/querysync/pkg/querycache"
)

// Config configures the connection pool backing Fetcher.
type Config struct {
	DSN            string
	ConnectTimeout time.Duration
}

// Fetcher runs the query carried in each Request and scans the single
// resulting row with the Request's Scan function.
type Fetcher struct {
	pool *pgxpool.Pool
}

// Open establishes the connection pool. Callers should call Close when done.
func Open(ctx context.Context, cfg Config) (*Fetcher, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.New(dialCtx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres fetcher: connect: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres fetcher: ping: %w", err)
	}
	return &Fetcher{pool: pool}, nil
}

// Close releases the pool.
func (f *Fetcher) Close() { f.pool.Close() }

// Request is the FetchContext.Meta value a Fetcher expects: the query to
// run and the scan function turning the resulting row into a value.
type Request struct {
	Query string
	Args  []any
	Scan  func(row pgx.Row) (any, error)
}

// Fetch implements querycache.FetchFn by running req.Query and scanning
// the single resulting row via req.Scan.
func (f *Fetcher) Fetch(ctx context.Context, fc querycache.FetchContext) (any, error) {
	req, ok := fc.Meta.(Request)
	if !ok {
		return nil, fmt.Errorf("postgres fetcher: FetchContext.Meta must be a postgres.Request for key %s", fc.Key)
	}
	row := f.pool.QueryRow(ctx, req.Query, req.Args...)
	data, err := req.Scan(row)
	if err != nil {
		return nil, fmt.Errorf("postgres fetcher: scan %s: %w", fc.Key, err)
	}
	return data, nil
}

// Package fetchers wires pkg/config's BackendsConfig into concrete
// querycache.FetchFn-producing clients, so cmd/querysync doesn't have to
// know about each backend's connection setup.
package fetchers

import (
	"context"
	"fmt"

	"github.com/resyncio/querysync/pkg/config"
	"github.com/resyncio/querysync/pkg/fetchers/badger"
	"github.com/resyncio/querysync/pkg/fetchers/postgres"
	"github.com/resyncio/querysync/pkg/fetchers/s3"
	"github.com/resyncio/querysync/pkg/fetchers/sqlite"
)

// Set holds the backend clients a demo process opened at startup. Any
// field may be nil if its backend wasn't configured/reachable.
type Set struct {
	Postgres *postgres.Fetcher
	SQLite   *sqlite.Fetcher
	S3       *s3.Fetcher
	Badger   *badger.Fetcher
}

// Open opens every backend named in cfg, accumulating (not failing fast
// on) individual connection errors so a demo run can still exercise the
// backends that did come up.
func Open(ctx context.Context, cfg config.BackendsConfig) (*Set, []error) {
	var set Set
	var errs []error

	if cfg.Postgres.DSN != "" {
		f, err := postgres.Open(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			ConnectTimeout: cfg.Postgres.ConnectTimeout,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		} else {
			set.Postgres = f
		}
	}

	if cfg.SQLite.Path != "" {
		f, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			errs = append(errs, fmt.Errorf("sqlite: %w", err))
		} else {
			set.SQLite = f
		}
	}

	if cfg.S3.Bucket != "" {
		f, err := s3.Open(ctx, s3.Config{Bucket: cfg.S3.Bucket, Region: cfg.S3.Region})
		if err != nil {
			errs = append(errs, fmt.Errorf("s3: %w", err))
		} else {
			set.S3 = f
		}
	}

	if cfg.Badger.Path != "" {
		f, err := badger.Open(badger.Config{Path: cfg.Badger.Path, MaxCacheSize: cfg.Badger.MaxCacheSize})
		if err != nil {
			errs = append(errs, fmt.Errorf("badger: %w", err))
		} else {
			set.Badger = f
		}
	}

	return &set, errs
}

// Close closes every backend that was successfully opened.
func (s *Set) Close() {
	if s.Postgres != nil {
		s.Postgres.Close()
	}
	if s.SQLite != nil {
		s.SQLite.Close()
	}
	if s.Badger != nil {
		s.Badger.Close()
	}
}

// Package badger provides a querycache.FetchFn backed by a key lookup
// against an embedded BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/resyncio/querysync/internal/bytesize"
	"github.com/resyncio/querysync/pkg/querycache"
)

// Config configures the embedded database backing Fetcher.
type Config struct {
	Path         string
	MaxCacheSize bytesize.ByteSize
}

// Fetcher looks up raw byte values by key.
type Fetcher struct {
	db *badgerdb.DB
}

// Open opens (creating if necessary) the BadgerDB at cfg.Path.
func Open(cfg Config) (*Fetcher, error) {
	opts := badgerdb.DefaultOptions(cfg.Path)
	if cfg.MaxCacheSize > 0 {
		opts = opts.WithBlockCacheSize(int64(cfg.MaxCacheSize.Uint64()))
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger fetcher: open %s: %w", cfg.Path, err)
	}
	return &Fetcher{db: db}, nil
}

// Close releases the database.
func (f *Fetcher) Close() error { return f.db.Close() }

// Request is the FetchContext.Meta value a Fetcher expects: the raw key
// to look up.
type Request struct {
	Key []byte
}

// ErrKeyNotFound is returned when the requested key has no value.
var ErrKeyNotFound = badgerdb.ErrKeyNotFound

// Fetch implements querycache.FetchFn, returning the value as []byte.
func (f *Fetcher) Fetch(ctx context.Context, fc querycache.FetchContext) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req, ok := fc.Meta.(Request)
	if !ok {
		return nil, fmt.Errorf("badger fetcher: FetchContext.Meta must be a badger.Request for key %s", fc.Key)
	}

	var value []byte
	err := f.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(req.Key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, fmt.Errorf("badger fetcher: %w", ErrKeyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("badger fetcher: get %s: %w", fc.Key, err)
	}
	return value, nil
}

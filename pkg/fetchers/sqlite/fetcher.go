// Package sqlite provides a querycache.FetchFn backed by a gorm model
// lookup against a local SQLite database.
package sqlite

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/resyncio/querysync/pkg/querycache"
)

// Fetcher looks up gorm models by primary key.
type Fetcher struct {
	db *gorm.DB
}

// Open opens (creating if necessary) the SQLite database at path.
func Open(path string) (*Fetcher, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("sqlite fetcher: open %s: %w", path, err)
	}
	return &Fetcher{db: db}, nil
}

// Close releases the underlying connection.
func (f *Fetcher) Close() error {
	sqlDB, err := f.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate runs gorm's schema migration for the given models.
func (f *Fetcher) AutoMigrate(models ...any) error {
	return f.db.AutoMigrate(models...)
}

// Request is the FetchContext.Meta value a Fetcher expects: a fresh
// pointer to the destination model and the primary key to look up.
type Request struct {
	Dest any
	ID   any
}

// Fetch implements querycache.FetchFn by loading req.Dest by req.ID.
func (f *Fetcher) Fetch(ctx context.Context, fc querycache.FetchContext) (any, error) {
	req, ok := fc.Meta.(Request)
	if !ok {
		return nil, fmt.Errorf("sqlite fetcher: FetchContext.Meta must be a sqlite.Request for key %s", fc.Key)
	}
	if err := f.db.WithContext(ctx).First(req.Dest, req.ID).Error; err != nil {
		return nil, fmt.Errorf("sqlite fetcher: load %s: %w", fc.Key, err)
	}
	return req.Dest, nil
}

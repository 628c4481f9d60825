package zedb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// DB binds entity types to a Store. It holds no mutable state of its own
// and is safe for concurrent use.
type DB struct {
	store    Store
	tr       Transactor
	logger   *slog.Logger
	verbose  bool
	atomic   bool
	metrics  *Metrics
	onChange func(chg *Change)
	now      func() time.Time
}

type Options struct {
	Logger  *slog.Logger
	Verbose bool

	// AtomicSaves runs the stale-load, record write and index update steps
	// of Save and Delete as one atomic section. Requires a Transactor store.
	// Auto-sequence increments always happen before the section. RedisStore
	// restarts a section whose watched record changed concurrently at most 3
	// times, then fails with redis.TxFailedErr; the save can be retried.
	AtomicSaves bool

	Metrics *Metrics

	// OnChange is called after every successful Save and Delete.
	OnChange func(chg *Change)

	// Now supplies timestamps for entity types defined with Timestamps().
	Now func() time.Time
}

func Open(store Store, opt Options) (*DB, error) {
	if store == nil {
		return nil, errors.New("zedb: nil store")
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	db := &DB{
		store:    store,
		logger:   opt.Logger,
		verbose:  opt.Verbose,
		atomic:   opt.AtomicSaves,
		metrics:  opt.Metrics,
		onChange: opt.OnChange,
		now:      opt.Now,
	}
	if opt.AtomicSaves {
		tr, ok := store.(Transactor)
		if !ok {
			return nil, fmt.Errorf("zedb: AtomicSaves requires a Transactor store, got %T", store)
		}
		db.tr = tr
	}
	return db, nil
}

func (db *DB) Store() Store {
	return db.store
}

// Close closes the underlying store if it supports closing.
func (db *DB) Close() error {
	if c, ok := db.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// atomically runs fn against the store, inside an atomic section when
// AtomicSaves is enabled.
func (db *DB) atomically(ctx context.Context, watchKeys []string, fn func(ctx context.Context, s Store) error) error {
	if db.tr == nil {
		return fn(ctx, db.store)
	}
	return db.tr.Atomic(ctx, watchKeys, fn)
}

func (db *DB) debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	if db.verbose {
		db.logger.LogAttrs(ctx, slog.LevelDebug, msg, attrs...)
	}
}

func (db *DB) notify(chg *Change) {
	if db.onChange != nil {
		db.onChange(chg)
	}
}

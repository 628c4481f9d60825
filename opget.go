package zedb

import (
	"context"
	"log/slog"
)

// Load returns the entity stored under identifier, or nil if there is none.
func (db *DB) Load(ctx context.Context, et *EntityType, identifier string) (*Entity, error) {
	if identifier == "" {
		return nil, queryErrf(et, "must supply identifier or store key")
	}
	return db.LoadKey(ctx, et, StoreKey(et, identifier))
}

// LoadKey is like Load, but takes the full store key of the record.
func (db *DB) LoadKey(ctx context.Context, et *EntityType, key string) (*Entity, error) {
	if key == "" {
		return nil, queryErrf(et, "must supply identifier or store key")
	}
	if _, ok := IdentifierFromKey(et, key); !ok {
		return nil, queryErrf(et, "key %q does not belong to %s", key, et.name)
	}
	return db.load(ctx, db.store, et, key)
}

// Reload fetches the stored version of e. The result is a new entity.
func (db *DB) Reload(ctx context.Context, e *Entity) (*Entity, error) {
	return db.LoadKey(ctx, e.typ, e.StoreKey())
}

// Exists reports whether a record for e's identifier is stored.
func (db *DB) Exists(ctx context.Context, e *Entity) (bool, error) {
	return db.store.Exists(ctx, e.StoreKey())
}

func (db *DB) load(ctx context.Context, s Store, et *EntityType, key string) (*Entity, error) {
	rec, err := s.HGetAll(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(rec) == 0 {
		db.metrics.loaded(et, false)
		db.debug(ctx, "db: LOAD.NOTFOUND", slog.String("type", et.name), slog.String("key", key))
		return nil, nil
	}
	db.metrics.loaded(et, true)
	return et.decodeRecord(key, rec)
}

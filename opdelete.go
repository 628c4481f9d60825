package zedb

import (
	"context"
	"log/slog"
)

// Delete removes the stored record of e along with its index entries. Index
// entries are computed from the stored version, not from e. Returns false
// if nothing was stored.
func (db *DB) Delete(ctx context.Context, e *Entity) (bool, error) {
	return db.DeleteByID(ctx, e.typ, e.Identifier())
}

func (db *DB) DeleteByID(ctx context.Context, et *EntityType, identifier string) (bool, error) {
	if identifier == "" {
		return false, queryErrf(et, "must supply identifier")
	}
	key := StoreKey(et, identifier)

	var stale *Entity
	var st indexStats
	err := db.atomically(ctx, []string{key}, func(ctx context.Context, s Store) error {
		var err error
		stale, err = db.load(ctx, s, et, key)
		if err != nil || stale == nil {
			return err
		}
		if err := s.Delete(ctx, key); err != nil {
			return err
		}
		st, err = removeIndex(ctx, s, stale)
		return err
	})
	if err != nil {
		return false, err
	}
	if stale == nil {
		db.debug(ctx, "db: DELETE.NOOP", slog.String("type", et.name), slog.String("key", key))
		return false, nil
	}
	db.metrics.deleted(et, st)
	db.debug(ctx, "db: DELETE", slog.String("type", et.name), slog.String("key", key))
	db.notify(&Change{
		typ:   et,
		op:    OpDelete,
		id:    identifier,
		stale: stale,
	})
	return true, nil
}

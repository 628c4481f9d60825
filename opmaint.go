package zedb

import (
	"context"
	"log/slog"
	"time"
)

// Reindex drops every index of et and rebuilds them from the stored
// records. Use it after adding indexed fields or composite indexes to a type
// that already has data. Saves running concurrently with Reindex may leave
// the index incomplete.
func (db *DB) Reindex(ctx context.Context, et *EntityType) (int, error) {
	start := time.Now()
	if err := db.store.Delete(ctx, indexKeys(et)...); err != nil {
		return 0, err
	}
	keys, err := db.store.Keys(ctx, recordKeyPrefix(et))
	if err != nil {
		return 0, err
	}
	var count int
	var st indexStats
	for _, key := range keys {
		e, err := db.load(ctx, db.store, et, key)
		if err != nil {
			return count, err
		}
		if e == nil {
			continue
		}
		est, err := saveIndex(ctx, db.store, e, nil)
		if err != nil {
			return count, err
		}
		st.added += est.added
		count++
	}
	if db.metrics != nil {
		db.metrics.indexChanged(et, st)
	}
	db.debug(ctx, "db: REINDEX", slog.String("type", et.name), slog.Int("records", count), slog.Int("entries", st.added), slog.Duration("elapsed", time.Since(start)))
	return count, nil
}

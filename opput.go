package zedb

import (
	"context"
	"log/slog"
	"slices"
	"time"
)

// Save persists e and brings its index entries up to date.
//
// Auto-generated fields that are still unset get the next sequence value
// first. Then the stored version is loaded, the record is overwritten in
// place, index entries of the stored version are removed and the current
// ones added. Unless Options.AtomicSaves is set these are independent store
// operations: a concurrent reader can see the record and the index disagree,
// and two concurrent saves of the same identifier can leave a stale index
// entry behind. A failed save is not rolled back; saving the same entity
// again rewrites its index entries.
func (db *DB) Save(ctx context.Context, e *Entity) error {
	if err := db.fillAutoFields(ctx, e); err != nil {
		return err
	}
	if f := e.missingIdentifierField(); f != nil {
		return badDataErrf(e.typ, f.name, MissingRequiredField, nil, "identifier field %s is not set", f.name)
	}
	key := e.StoreKey()

	var res putResult
	err := db.atomically(ctx, []string{key}, func(ctx context.Context, s Store) error {
		var err error
		res, err = db.put(ctx, s, e, key)
		return err
	})
	if err != nil {
		return err
	}
	et := e.typ
	db.metrics.saved(et, res.noop, res.st)
	if res.noop {
		db.debug(ctx, "db: SAVE.NOOP", slog.String("type", et.name), slog.String("key", key))
		return nil
	}
	db.debug(ctx, "db: SAVE", slog.String("type", et.name), slog.String("key", key), slog.Bool("update", res.stale != nil), slog.Int("index_removed", res.st.removed), slog.Int("index_added", res.st.added))
	db.notify(&Change{
		typ:    et,
		op:     OpSave,
		id:     e.Identifier(),
		entity: e,
		stale:  res.stale,
	})
	return nil
}

// MustSave is like Save, but panics on error. Handy in tests and fixtures.
func (db *DB) MustSave(ctx context.Context, e *Entity) {
	if err := db.Save(ctx, e); err != nil {
		panic(err)
	}
}

type putResult struct {
	stale *Entity
	noop  bool
	st    indexStats
}

// put runs the stale-load, record write and index update steps of Save. An
// unchanged record is not rewritten, but its index entries are still added,
// so saving again repairs an index update that failed halfway.
func (db *DB) put(ctx context.Context, s Store, e *Entity, key string) (putResult, error) {
	et := e.typ
	stale, err := db.load(ctx, s, et, key)
	if err != nil {
		return putResult{}, err
	}
	res := putResult{stale: stale}

	if et.timestamped {
		db.stampTimes(e, stale)
	} else if stale != nil && stale.Equal(e) {
		res.noop = true
	}

	if !res.noop {
		if err := s.HSet(ctx, key, e.encodeRecord()); err != nil {
			return res, err
		}
		if stale != nil {
			if gone := removedFields(stale, e); len(gone) > 0 {
				if err := s.HDel(ctx, key, gone...); err != nil {
					return res, err
				}
			}
		}
	}

	res.st, err = saveIndex(ctx, s, e, stale)
	return res, err
}

func (db *DB) stampTimes(e, stale *Entity) {
	now := db.now().UTC().Format(time.RFC3339Nano)
	if !e.Has(CreatedAtField) {
		if stale != nil && stale.Has(CreatedAtField) {
			e.values[CreatedAtField] = stale.values[CreatedAtField]
		} else {
			e.values[CreatedAtField] = now
		}
	}
	e.values[UpdatedAtField] = now
}

// removedFields lists fields set on stale that are no longer set on e.
func removedFields(stale, e *Entity) []string {
	var gone []string
	for k := range stale.values {
		if !e.Has(k) {
			gone = append(gone, k)
		}
	}
	slices.Sort(gone)
	return gone
}

package zedb

import (
	"context"
	"log/slog"
)

// NextSequence returns the next value of the per-type counter behind an
// auto-generated field. Each call is exactly one atomic increment, so
// concurrent callers never observe the same value. The first value is 1.
func (db *DB) NextSequence(ctx context.Context, et *EntityType, field string) (int64, error) {
	f := et.fieldsByName[field]
	if f == nil {
		return 0, &UnknownFieldError{et.name, []string{field}}
	}
	if !f.auto {
		return 0, queryErrf(et, "field %s is not auto-generated", field)
	}
	n, err := db.store.Incr(ctx, autoKey(et, field))
	if err != nil {
		return 0, err
	}
	db.debug(ctx, "db: SEQ", slog.String("type", et.name), slog.String("field", field), slog.Int64("value", n))
	return n, nil
}

// fillAutoFields assigns sequence values to auto fields that are still unset.
func (db *DB) fillAutoFields(ctx context.Context, e *Entity) error {
	for _, f := range e.typ.auto {
		if e.Has(f.name) {
			continue
		}
		n, err := db.NextSequence(ctx, e.typ, f.name)
		if err != nil {
			return err
		}
		e.setGenerated(f.name, n)
	}
	return nil
}

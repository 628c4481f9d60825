package zedb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

type DumpFlags uint64

const (
	DumpTypeHeaders = DumpFlags(1 << iota)
	DumpStats
	DumpRecords
	DumpIndexes
	DumpIndexEntries

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)

	indentStep = "  "
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump writes a human-readable listing of the given entity types: records,
// index sets and sequence counters, depending on f.
func (db *DB) Dump(ctx context.Context, w io.Writer, f DumpFlags, types ...*EntityType) error {
	for _, et := range types {
		if err := db.dumpType(ctx, w, f, et); err != nil {
			return err
		}
	}
	return nil
}

// DumpString is like Dump, but returns the listing.
func (db *DB) DumpString(ctx context.Context, f DumpFlags, types ...*EntityType) (string, error) {
	var buf strings.Builder
	err := db.Dump(ctx, &buf, f, types...)
	return buf.String(), err
}

func (db *DB) dumpType(ctx context.Context, w io.Writer, f DumpFlags, et *EntityType) error {
	s, err := db.Stats(ctx, et)
	if err != nil {
		return err
	}

	if f.Contains(DumpTypeHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s (%d records)\n", et.name, s.Records)
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(w, "%s.stats: index_entries = %d", et.name, s.IndexEntries)
		for _, af := range et.auto {
			fmt.Fprintf(w, ", seq.%s = %d", af.name, s.Sequences[af.name])
		}
		fmt.Fprintln(w)
	}

	if f.Contains(DumpRecords) {
		if f.Contains(DumpStats) {
			fmt.Fprintln(w, dumpSep2)
		}
		keys, err := db.store.Keys(ctx, recordKeyPrefix(et))
		if err != nil {
			return err
		}
		for _, key := range keys {
			e, err := db.load(ctx, db.store, et, key)
			if err != nil {
				return err
			}
			if e == nil {
				continue
			}
			fmt.Fprintf(w, "%s %s\n", key, loggableEntity(e))
		}
	}

	if f.Contains(DumpIndexes) {
		for _, key := range indexKeys(et) {
			fmt.Fprintln(w, dumpSep2)
			fmt.Fprintf(w, "%s (%d entries)\n", key, s.Indexes[key])
			if !f.Contains(DumpIndexEntries) {
				continue
			}
			members, err := db.store.ZRange(ctx, key, 0, -1, false)
			if err != nil {
				return err
			}
			for _, m := range members {
				fmt.Fprintf(w, "%s%s\n", indentStep, loggableMember(m))
			}
		}
	}
	return nil
}

func loggableEntity(e *Entity) string {
	if e == nil {
		return "<none>"
	}
	return string(must(json.Marshal(e.values)))
}

// loggableMember renders an index member as "value -> identifier", with the
// null marker shown as <nil>.
func loggableMember(m string) string {
	value, id, _ := strings.Cut(m, ValueIDSeparator)
	value = strings.ReplaceAll(value, nullValue, "<nil>")
	return value + " -> " + id
}

package zedb

import (
	"context"
	"strings"
)

// indexEntry is one sorted-set member contributed by an entity.
type indexEntry struct {
	Key    string
	Member string
}

// indexEntries lists every index member of e: one per queryable field, in
// field name order, followed by one per tuple field of each composite index.
// Two versions of the same type always produce equally long, position-aligned
// lists, which is what saveIndex relies on.
func indexEntries(e *Entity) []indexEntry {
	et := e.typ
	id := e.Identifier()
	n := len(et.queryable)
	for _, ci := range et.composites {
		n += len(ci.fields)
	}
	entries := make([]indexEntry, 0, n)
	for _, f := range et.queryable {
		entries = append(entries, indexEntry{
			Key:    indexKey(et, f.name),
			Member: indexMember(encodeValue(e.values[f.name]), id),
		})
	}
	for _, ci := range et.composites {
		key := customIndexKey(et, ci)
		sortKey := compositeSortKey(e, ci)
		for _, name := range ci.fields {
			entries = append(entries, indexEntry{
				Key:    key,
				Member: customIndexMember(name, encodeValue(e.values[name]), sortKey, id),
			})
		}
	}
	return entries
}

func compositeSortKey(e *Entity, ci *CompositeIndex) string {
	parts := make([]string, len(ci.fields))
	for i, name := range ci.fields {
		parts[i] = encodeValue(e.values[name])
	}
	return strings.Join(parts, SortKeySeparator)
}

// compositePrefix is the member prefix shared by all entries of ci whose
// first tuple field holds encoded.
func compositePrefix(ci *CompositeIndex, encoded string) string {
	return ci.fields[0] + KeySeparator + encoded + KeySeparator + encoded + SortKeySeparator
}

type indexStats struct {
	added   int
	removed int
}

// saveIndex adds the current index entries of e and removes the entries of
// stale that differ from them. Unchanged entries are re-added, which is a
// no-op for the store.
func saveIndex(ctx context.Context, s Store, e, stale *Entity) (indexStats, error) {
	var st indexStats
	cur := indexEntries(e)
	var old []indexEntry
	if stale != nil {
		old = indexEntries(stale)
	}
	for i, ent := range cur {
		if old != nil && old[i] != ent {
			if err := s.ZRem(ctx, old[i].Key, old[i].Member); err != nil {
				return st, err
			}
			st.removed++
		}
		if err := s.ZAdd(ctx, ent.Key, 0, ent.Member); err != nil {
			return st, err
		}
		st.added++
	}
	return st, nil
}

// removeIndex drops all index entries of e.
func removeIndex(ctx context.Context, s Store, e *Entity) (indexStats, error) {
	var st indexStats
	for _, ent := range indexEntries(e) {
		if err := s.ZRem(ctx, ent.Key, ent.Member); err != nil {
			return st, err
		}
		st.removed++
	}
	return st, nil
}

// indexKeys lists every sorted set that holds index entries of et.
func indexKeys(et *EntityType) []string {
	keys := make([]string, 0, len(et.queryable)+len(et.composites))
	for _, f := range et.queryable {
		keys = append(keys, indexKey(et, f.name))
	}
	for _, ci := range et.composites {
		keys = append(keys, customIndexKey(et, ci))
	}
	return keys
}

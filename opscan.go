package zedb

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
)

// resolve turns a validated query into an ordered, paginated identifier list.
//
// Each filter term is a union of one lexical range scan per value against
// the field's index; terms are intersected. Without ordering, filtered
// results come in identifier order. Ordering scans the whole index of the
// order field and keeps the candidates, so results follow the index order.
func (q *Query) resolve(ctx context.Context) ([]string, error) {
	start := time.Now()
	defer q.db.metrics.queried(q.et, start)

	ids, err := q.resolveUnpaged(ctx)
	if err != nil {
		return nil, err
	}
	ids = paginate(ids, q.offset, q.limit, q.limited)
	if q.db.verbose {
		q.db.debug(ctx, "db: QUERY", slog.String("type", q.et.name), slog.String("query", q.String()), slog.Int("ids", len(ids)))
	}
	return ids, nil
}

func (q *Query) resolveUnpaged(ctx context.Context) ([]string, error) {
	if ci := q.compositeIndex(); ci != nil {
		return q.scanComposite(ctx, ci)
	}

	if len(q.terms) == 0 {
		order := q.order
		if order == "" {
			order = q.et.identifier[0].name
		}
		members, err := q.scanIndex(ctx, order, q.reverse)
		if err != nil {
			return nil, err
		}
		return identifiersOf(members, nil), nil
	}

	candidates, err := q.candidates(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	if q.order == "" {
		ids := make([]string, 0, len(candidates))
		for id := range candidates {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		return ids, nil
	}
	members, err := q.scanIndex(ctx, q.order, q.reverse)
	if err != nil {
		return nil, err
	}
	return identifiersOf(members, candidates), nil
}

// candidates intersects the per-term identifier sets.
func (q *Query) candidates(ctx context.Context) (map[string]struct{}, error) {
	var result map[string]struct{}
	for i, term := range q.terms {
		matched := make(map[string]struct{})
		key := indexKey(q.et, term.field)
		for _, v := range term.values {
			members, err := q.db.store.ZRangeByLex(ctx, key, valueRange(v))
			if err != nil {
				return nil, err
			}
			q.db.metrics.scanned(q.et, term.field)
			for _, m := range members {
				if i > 0 {
					if _, ok := result[identifierOfMember(m)]; !ok {
						continue
					}
				}
				matched[identifierOfMember(m)] = struct{}{}
			}
		}
		result = matched
		if len(result) == 0 {
			break
		}
	}
	return result, nil
}

func (q *Query) scanIndex(ctx context.Context, field string, reverse bool) ([]string, error) {
	members, err := q.db.store.ZRange(ctx, indexKey(q.et, field), 0, -1, reverse)
	if err != nil {
		return nil, err
	}
	q.db.metrics.scanned(q.et, field)
	return members, nil
}

// compositeIndex picks a composite index that can answer the query with a
// single prefix scan: one single-valued filter on the first tuple field,
// ordered by the second tuple field.
func (q *Query) compositeIndex() *CompositeIndex {
	if len(q.terms) != 1 || len(q.terms[0].values) != 1 || q.order == "" {
		return nil
	}
	// a prefix match is exact only if neither the stored values of the
	// leading field nor the filter value contain KeySeparator
	if strings.Contains(q.terms[0].values[0], KeySeparator) {
		return nil
	}
	for _, ci := range q.et.composites {
		if ci.fields[0] == q.terms[0].field && ci.fields[1] == q.order && q.et.fieldsByName[ci.fields[0]].keyed {
			return ci
		}
	}
	return nil
}

func (q *Query) scanComposite(ctx context.Context, ci *CompositeIndex) ([]string, error) {
	prefix := compositePrefix(ci, q.terms[0].values[0])
	members, err := q.db.store.ZRangeByLex(ctx, customIndexKey(q.et, ci), prefixRange(prefix))
	if err != nil {
		return nil, err
	}
	q.db.metrics.scanned(q.et, ci.String())
	if q.reverse {
		slices.Reverse(members)
	}
	return identifiersOf(members, nil), nil
}

// identifiersOf extracts identifiers from index members in order, dropping
// duplicates and, if keep is non-nil, identifiers not in keep.
func identifiersOf(members []string, keep map[string]struct{}) []string {
	ids := make([]string, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		id := identifierOfMember(m)
		if keep != nil {
			if _, ok := keep[id]; !ok {
				continue
			}
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func paginate(ids []string, offset, limit int, limited bool) []string {
	if offset >= len(ids) {
		return nil
	}
	ids = ids[offset:]
	if limited && limit < len(ids) {
		ids = ids[:limit]
	}
	return ids
}

func (q *Query) String() string {
	var buf strings.Builder
	buf.WriteString(q.et.name)
	for _, t := range q.terms {
		buf.WriteByte(' ')
		buf.WriteString(t.field)
		buf.WriteByte('=')
		buf.WriteString(strings.Join(t.values, "|"))
	}
	if q.order != "" {
		if q.reverse {
			buf.WriteString(" order=-")
		} else {
			buf.WriteString(" order=+")
		}
		buf.WriteString(q.order)
	}
	if q.offset > 0 {
		buf.WriteString(" offset=")
		buf.WriteString(strconv.Itoa(q.offset))
	}
	if q.limited {
		buf.WriteString(" limit=")
		buf.WriteString(strconv.Itoa(q.limit))
	}
	return buf.String()
}

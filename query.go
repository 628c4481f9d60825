package zedb

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
)

// Filters maps field names to a value or a list of values. A list matches
// entities whose field equals any of the values; separate fields must all
// match. A nil value matches entities on which the field was never set.
type Filters map[string]any

// Query describes a conjunctive equality query over one entity type. The
// builder methods record the first validation error, which every terminal
// method returns before touching the store.
//
// Results are not a snapshot: each terminal call resolves the query again
// against the current store state.
type Query struct {
	db      *DB
	et      *EntityType
	terms   []filterTerm
	order   string
	reverse bool
	limit   int
	offset  int
	limited bool
	err     error
}

type filterTerm struct {
	field  string
	values []string // encoded
}

func (db *DB) Query(et *EntityType) *Query {
	return &Query{db: db, et: et}
}

func (q *Query) fail(err error) *Query {
	if q.err == nil {
		q.err = err
	}
	return q
}

// Filter adds an equality (or, for a list value, membership) condition on a
// queryable field. Accepted values are nil, string, int, int64 and slices of
// those.
func (q *Query) Filter(field string, value any) *Query {
	if !q.et.IsQueryable(field) {
		return q.fail(queryErrf(q.et, "%s is not one of queryable fields %s", field, q.et.queryableList()))
	}
	values, err := encodeFilterValues(value)
	if err != nil {
		return q.fail(queryErrf(q.et, "filter on %s: %v", field, err))
	}
	q.terms = append(q.terms, filterTerm{field, values})
	return q
}

// Where adds a condition for every entry of filters, in field name order.
func (q *Query) Where(filters Filters) *Query {
	names := make([]string, 0, len(filters))
	for k := range filters {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, name := range names {
		q.Filter(name, filters[name])
	}
	return q
}

// OrderBy sorts results by the lexical order of a queryable field's encoded
// value, ascending with an optional "+" prefix and descending with "-". Note
// that integers are ordered as strings too.
func (q *Query) OrderBy(expr string) *Query {
	field, reverse := parseOrderBy(expr)
	if !q.et.IsQueryable(field) {
		return q.fail(queryErrf(q.et, "order by %q: %s is not one of queryable fields %s", expr, field, q.et.queryableList()))
	}
	q.order, q.reverse = field, reverse
	return q
}

func parseOrderBy(expr string) (field string, reverse bool) {
	if rest, ok := strings.CutPrefix(expr, "-"); ok {
		return rest, true
	}
	return strings.TrimPrefix(expr, "+"), false
}

func (q *Query) Limit(n int) *Query {
	if n < 0 {
		return q.fail(queryErrf(q.et, "negative limit %d", n))
	}
	q.limit, q.limited = n, true
	return q
}

func (q *Query) Offset(n int) *Query {
	if n < 0 {
		return q.fail(queryErrf(q.et, "negative offset %d", n))
	}
	q.offset = n
	return q
}

// Err returns the first validation error recorded by the builder methods.
func (q *Query) Err() error {
	return q.err
}

// IDs resolves the query to identifiers, after ordering and pagination.
func (q *Query) IDs(ctx context.Context) ([]string, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.resolve(ctx)
}

// Iter resolves the query, then loads the matching entities one at a time as
// the sequence is consumed. Identifiers whose record has disappeared in the
// meantime are skipped. Iteration stops after the first error.
func (q *Query) Iter(ctx context.Context) iter.Seq2[*Entity, error] {
	return func(yield func(*Entity, error) bool) {
		ids, err := q.IDs(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, id := range ids {
			e, err := q.db.load(ctx, q.db.store, q.et, StoreKey(q.et, id))
			if err != nil {
				yield(nil, err)
				return
			}
			if e == nil {
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (q *Query) All(ctx context.Context) ([]*Entity, error) {
	var result []*Entity
	for e, err := range q.Iter(ctx) {
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

// First returns the first matching entity, or nil. Without OrderBy, which of
// several matches comes first is unspecified.
func (q *Query) First(ctx context.Context) (*Entity, error) {
	clone := *q
	clone.terms = slices.Clone(q.terms)
	clone.limit, clone.limited = 1, true
	if q.limited && q.limit == 0 {
		clone.limit = 0
	}
	for e, err := range clone.Iter(ctx) {
		return e, err
	}
	return nil, nil
}

// FilterBy returns all entities of et matching filters, ordered by
// identifier.
func (db *DB) FilterBy(ctx context.Context, et *EntityType, filters Filters) ([]*Entity, error) {
	return db.Query(et).Where(filters).All(ctx)
}

// GetOrNone returns one entity matching filters, or nil if there is none.
func (db *DB) GetOrNone(ctx context.Context, et *EntityType, filters Filters) (*Entity, error) {
	return db.Query(et).Where(filters).First(ctx)
}

// All returns every entity of et, ordered by orderBy, or by the first
// identifier field when orderBy is empty.
func (db *DB) All(ctx context.Context, et *EntityType, orderBy string) ([]*Entity, error) {
	q := db.Query(et)
	if orderBy != "" {
		q.OrderBy(orderBy)
	}
	return q.All(ctx)
}

func encodeFilterValues(value any) ([]string, error) {
	switch v := value.(type) {
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			s, err := encodeFilterValue(item)
			if err != nil {
				return nil, err
			}
			result = append(result, s)
		}
		return result, nil
	case []string:
		return encodeFilterList(v)
	case []int:
		return encodeFilterList(v)
	case []int64:
		return encodeFilterList(v)
	default:
		s, err := encodeFilterValue(value)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
}

func encodeFilterList[T string | int | int64](values []T) ([]string, error) {
	result := make([]string, 0, len(values))
	for _, v := range values {
		s, err := encodeFilterValue(v)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}

func encodeFilterValue(v any) (string, error) {
	switch v := v.(type) {
	case nil, int, int64:
		return encodeValue(v), nil
	case string:
		if containsSeparator(v) {
			return "", fmt.Errorf("value %q contains a reserved separator", v)
		}
		return v, nil
	default:
		return "", fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

package zedb

import (
	"context"
	"errors"
)

// ErrNotAtomic is returned by a Transactor's in-transaction view for
// operations that need a result the transaction cannot provide yet.
var ErrNotAtomic = errors.New("operation not supported inside an atomic section")

// Store is the backing key-value service: flat keys, hash records, sorted
// sets with lexical range queries, and atomic counters. Implementations must
// be safe for concurrent use; each call is one independent operation.
type Store interface {
	// Get returns the plain string value of key.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Delete removes keys of any kind. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	Exists(ctx context.Context, key string) (bool, error)

	// Incr atomically increments the integer at key (missing = 0) and
	// returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// HSet sets the given fields of the hash at key, keeping other fields.
	HSet(ctx context.Context, key string, fields map[string]string) error

	HDel(ctx context.Context, key string, fields ...string) error

	// HGetAll returns all fields of the hash at key; empty if key is missing.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	ZAdd(ctx context.Context, key string, score float64, member string) error

	ZRem(ctx context.Context, key string, members ...string) error

	// ZRange returns members by rank, ordered by (score, member); negative
	// indexes count from the end, as in Redis.
	ZRange(ctx context.Context, key string, start, stop int64, reverse bool) ([]string, error)

	// ZRangeByLex returns members within rang in lexical order. All members
	// of the set are expected to share the same score.
	ZRangeByLex(ctx context.Context, key string, rang LexRange) ([]string, error)

	// Keys lists all keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Transactor is implemented by stores that can run a read-then-write
// sequence atomically. Reads inside fn observe the state as of the start of
// the section; writes become visible together when fn returns nil. The
// section fails instead of committing if any of watchKeys changed
// concurrently (for stores that detect that).
type Transactor interface {
	Atomic(ctx context.Context, watchKeys []string, fn func(ctx context.Context, s Store) error) error
}

func zrangeBounds(n int, start, stop int64) (int, int, bool) {
	ln := int64(n)
	if start < 0 {
		start += ln
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop += ln
	}
	if stop >= ln {
		stop = ln - 1
	}
	if start > stop || start >= ln {
		return 0, 0, false
	}
	return int(start), int(stop) + 1, true
}

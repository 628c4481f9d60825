package zedb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory struct {
	name string
	open func(t testing.TB) Store
	// incrInAtomic is false for stores that queue writes until commit
	incrInAtomic bool
}

var storeFactories = []storeFactory{
	{"mem", openMemStore, true},
	{"bolt", openBoltStore, true},
	{"redis", openRedisStore, false},
}

func openMemStore(t testing.TB) Store {
	return NewMemStore()
}

func openBoltStore(t testing.TB) Store {
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func openRedisStore(t testing.TB) Store {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client)
	t.Cleanup(func() { s.Close() })
	return s
}

func forEachStore(t *testing.T, f func(t *testing.T, sf storeFactory, s Store)) {
	for _, sf := range storeFactories {
		t.Run(sf.name, func(t *testing.T) {
			f(t, sf, sf.open(t))
		})
	}
}

func TestStore_StringsAndCounters(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, _ storeFactory, s Store) {
		_, found, err := s.Get(ctx, "auto:T:id")
		require.NoError(t, err)
		assert.False(t, found)

		for want := int64(1); want <= 3; want++ {
			n, err := s.Incr(ctx, "auto:T:id")
			require.NoError(t, err)
			assert.Equal(t, want, n)
		}
		v, found, err := s.Get(ctx, "auto:T:id")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "3", v)

		ok, err := s.Exists(ctx, "auto:T:id")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, s.Delete(ctx, "auto:T:id", "missing"))
		ok, err = s.Exists(ctx, "auto:T:id")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStore_Hashes(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, _ storeFactory, s Store) {
		h, err := s.HGetAll(ctx, "User:u1")
		require.NoError(t, err)
		assert.Empty(t, h)

		require.NoError(t, s.HSet(ctx, "User:u1", map[string]string{"id": "u1", "name": "Alice"}))
		require.NoError(t, s.HSet(ctx, "User:u1", map[string]string{"age": "30"}))
		h, err = s.HGetAll(ctx, "User:u1")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"id": "u1", "name": "Alice", "age": "30"}, h)

		require.NoError(t, s.HDel(ctx, "User:u1", "age", "missing"))
		h, err = s.HGetAll(ctx, "User:u1")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"id": "u1", "name": "Alice"}, h)

		require.NoError(t, s.HDel(ctx, "User:u1", "id", "name"))
		ok, err := s.Exists(ctx, "User:u1")
		require.NoError(t, err)
		assert.False(t, ok, "a hash without fields should not exist")
	})
}

func TestStore_SortedSets(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, _ storeFactory, s Store) {
		const key = "index:User:name"
		for _, m := range []string{"carol\x00u4", "alice\x00u1", "bob\x00u2", "alice\x00u3"} {
			require.NoError(t, s.ZAdd(ctx, key, 0, m))
		}
		require.NoError(t, s.ZAdd(ctx, key, 0, "bob\x00u2"))

		all, err := s.ZRange(ctx, key, 0, -1, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice\x00u1", "alice\x00u3", "bob\x00u2", "carol\x00u4"}, all)

		got, err := s.ZRange(ctx, key, 1, 2, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice\x00u3", "bob\x00u2"}, got)

		got, err = s.ZRange(ctx, key, -2, -1, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"bob\x00u2", "carol\x00u4"}, got)

		got, err = s.ZRange(ctx, key, 0, 0, true)
		require.NoError(t, err)
		assert.Equal(t, []string{"carol\x00u4"}, got)

		got, err = s.ZRange(ctx, key, 10, 20, false)
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = s.ZRangeByLex(ctx, key, valueRange("alice"))
		require.NoError(t, err)
		assert.Equal(t, []string{"alice\x00u1", "alice\x00u3"}, got)

		got, err = s.ZRangeByLex(ctx, key, LexEO([]byte("alice\x00u3")))
		require.NoError(t, err)
		assert.Equal(t, []string{"bob\x00u2", "carol\x00u4"}, got)

		got, err = s.ZRangeByLex(ctx, key, LexOO())
		require.NoError(t, err)
		assert.Equal(t, all, got)

		require.NoError(t, s.ZRem(ctx, key, "alice\x00u1", "nobody\x00x"))
		got, err = s.ZRangeByLex(ctx, key, valueRange("alice"))
		require.NoError(t, err)
		assert.Equal(t, []string{"alice\x00u3"}, got)

		got, err = s.ZRange(ctx, "index:User:missing", 0, -1, false)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestStore_WrongType(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, _ storeFactory, s Store) {
		require.NoError(t, s.HSet(ctx, "User:u1", map[string]string{"id": "u1"}))
		assert.Error(t, s.ZAdd(ctx, "User:u1", 0, "x"))
		_, err := s.Incr(ctx, "User:u1")
		assert.Error(t, err)
		_, err = s.ZRange(ctx, "User:u1", 0, -1, false)
		assert.Error(t, err)
	})
}

func TestStore_KeysByPrefix(t *testing.T) {
	ctx := context.Background()
	forEachStore(t, func(t *testing.T, _ storeFactory, s Store) {
		require.NoError(t, s.HSet(ctx, "User:u2", map[string]string{"id": "u2"}))
		require.NoError(t, s.HSet(ctx, "User:u1", map[string]string{"id": "u1"}))
		require.NoError(t, s.HSet(ctx, "Users:x", map[string]string{"id": "x"}))
		require.NoError(t, s.ZAdd(ctx, "index:User:name", 0, "a\x00u1"))
		_, err := s.Incr(ctx, "auto:User:n")
		require.NoError(t, err)

		keys, err := s.Keys(ctx, "User:")
		require.NoError(t, err)
		assert.Equal(t, []string{"User:u1", "User:u2"}, keys)

		keys, err = s.Keys(ctx, "index:User:")
		require.NoError(t, err)
		assert.Equal(t, []string{"index:User:name"}, keys)

		keys, err = s.Keys(ctx, "nothing:")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestStore_AtomicCommitAndDiscard(t *testing.T) {
	ctx := context.Background()
	errAbort := errors.New("abort")
	forEachStore(t, func(t *testing.T, sf storeFactory, s Store) {
		tr, ok := s.(Transactor)
		require.True(t, ok)

		err := tr.Atomic(ctx, []string{"User:u1"}, func(ctx context.Context, s Store) error {
			if err := s.HSet(ctx, "User:u1", map[string]string{"id": "u1"}); err != nil {
				return err
			}
			return s.ZAdd(ctx, "index:User:id", 0, "u1\x00u1")
		})
		require.NoError(t, err)
		h, err := s.HGetAll(ctx, "User:u1")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"id": "u1"}, h)

		err = tr.Atomic(ctx, []string{"User:u1"}, func(ctx context.Context, s Store) error {
			existing, err := s.HGetAll(ctx, "User:u1")
			if err != nil {
				return err
			}
			assert.Equal(t, "u1", existing["id"])
			if err := s.Delete(ctx, "User:u1"); err != nil {
				return err
			}
			return errAbort
		})
		require.ErrorIs(t, err, errAbort)
		ok, err = s.Exists(ctx, "User:u1")
		require.NoError(t, err)
		assert.True(t, ok, "aborted section must not apply its writes")

		err = tr.Atomic(ctx, nil, func(ctx context.Context, s Store) error {
			_, err := s.Incr(ctx, "auto:User:n")
			return err
		})
		if sf.incrInAtomic {
			require.NoError(t, err)
		} else {
			require.ErrorIs(t, err, ErrNotAtomic)
		}
	})
}

func TestDB_AcrossStores(t *testing.T) {
	ctx := context.Background()
	for _, atomic := range []bool{false, true} {
		forEachStore(t, func(t *testing.T, _ storeFactory, s Store) {
			db, err := Open(s, Options{AtomicSaves: atomic})
			require.NoError(t, err)
			seedUsers(t, db)

			got, err := db.Query(userType).Filter("name", "Alice").OrderBy("-age").IDs(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"u3", "u1"}, got)

			u1, err := db.Load(ctx, userType, "u1")
			require.NoError(t, err)
			require.NotNil(t, u1)
			require.NoError(t, u1.Set("name", "Alicia"))
			require.NoError(t, db.Save(ctx, u1))

			got, err = db.Query(userType).Filter("name", "Alice").IDs(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"u3"}, got)

			tk := ticketType.MustNew(Values{"title": "first"})
			require.NoError(t, db.Save(ctx, tk))
			assert.Equal(t, int64(1), tk.Int("id"))

			deleted, err := db.Delete(ctx, u1)
			require.NoError(t, err)
			assert.True(t, deleted)

			st, err := db.Stats(ctx, userType)
			require.NoError(t, err)
			assert.Equal(t, 3, st.Records)
		})
	}
}

func TestDB_ConcurrentAtomicSavesOfOneIdentifier(t *testing.T) {
	ctx := context.Background()
	const writers = 16
	forEachStore(t, func(t *testing.T, _ storeFactory, s Store) {
		db, err := Open(s, Options{AtomicSaves: true})
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				u := userType.MustNew(Values{"id": "u1", "name": fmt.Sprintf("name%02d", i), "age": i})
				errs[i] = db.Save(ctx, u)
			}()
		}
		wg.Wait()

		var saved int
		for _, err := range errs {
			if err == nil {
				saved++
			} else {
				assert.ErrorIs(t, err, redis.TxFailedErr)
			}
		}
		assert.Positive(t, saved)

		u1, err := db.Load(ctx, userType, "u1")
		require.NoError(t, err)
		require.NotNil(t, u1)
		for _, key := range indexKeys(userType) {
			members, err := s.ZRange(ctx, key, 0, -1, false)
			require.NoError(t, err)
			assert.Len(t, members, 1, key)
		}
		got, err := db.Query(userType).Filter("name", u1.Str("name")).Filter("age", u1.Int("age")).IDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"u1"}, got)
	})
}

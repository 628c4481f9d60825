package zedb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"
	"unsafe"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

var (
	boltStrings = []byte("strings")
	boltHashes  = []byte("hashes")
	boltZSets   = []byte("zsets")
)

// BoltStore keeps the store in a single bbolt file. Plain values live in the
// "strings" bucket, hashes are msgpack-encoded maps in the "hashes" bucket,
// and every sorted set is a nested bucket of "zsets" mapping member to a
// msgpack-encoded score, which makes lexical range scans plain cursor walks.
type BoltStore struct {
	boltView
	bdb *bbolt.DB
}

var (
	_ Store      = (*BoltStore)(nil)
	_ Transactor = (*BoltStore)(nil)
)

// OpenBoltStore opens or creates the bbolt file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	bdb, err := bbolt.Open(path, 0o666, &bbolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, err
	}
	s, err := NewBoltStore(bdb)
	if err != nil {
		bdb.Close()
		return nil, err
	}
	return s, nil
}

// NewBoltStore wraps an already open bbolt database. Close closes it.
func NewBoltStore(bdb *bbolt.DB) (*BoltStore, error) {
	err := bdb.Update(func(btx *bbolt.Tx) error {
		for _, name := range [][]byte{boltStrings, boltHashes, boltZSets} {
			if _, err := btx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: initializing buckets: %w", err)
	}
	s := &BoltStore{bdb: bdb}
	s.boltView = boltView{bdb: bdb}
	return s, nil
}

func (s *BoltStore) Bolt() *bbolt.DB {
	return s.bdb
}

func (s *BoltStore) Close() error {
	return s.bdb.Close()
}

// Atomic runs fn inside a single read-write bbolt transaction.
func (s *BoltStore) Atomic(ctx context.Context, watchKeys []string, fn func(ctx context.Context, s Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.bdb.Update(func(btx *bbolt.Tx) error {
		return fn(ctx, boltView{btx: btx})
	})
}

type boltView struct {
	bdb *bbolt.DB
	btx *bbolt.Tx // set inside Atomic
}

func (v boltView) view(ctx context.Context, f func(b boltBuckets) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.btx != nil {
		return f(bucketsOf(v.btx))
	}
	return v.bdb.View(func(btx *bbolt.Tx) error {
		return f(bucketsOf(btx))
	})
}

func (v boltView) update(ctx context.Context, f func(b boltBuckets) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.btx != nil {
		return f(bucketsOf(v.btx))
	}
	return v.bdb.Update(func(btx *bbolt.Tx) error {
		return f(bucketsOf(btx))
	})
}

type boltBuckets struct {
	strs   *bbolt.Bucket
	hashes *bbolt.Bucket
	zsets  *bbolt.Bucket
}

func bucketsOf(btx *bbolt.Tx) boltBuckets {
	return boltBuckets{
		strs:   btx.Bucket(boltStrings),
		hashes: btx.Bucket(boltHashes),
		zsets:  btx.Bucket(boltZSets),
	}
}

func (b boltBuckets) kind(key []byte) memKind {
	if b.strs.Get(key) != nil {
		return memString
	}
	if b.hashes.Get(key) != nil {
		return memHash
	}
	if b.zsets.Bucket(key) != nil {
		return memZSet
	}
	return memNone
}

func (b boltBuckets) isNot(key []byte, k memKind) bool {
	actual := b.kind(key)
	return actual != memNone && actual != k
}

func (b boltBuckets) hash(key []byte) (map[string]string, error) {
	raw := b.hashes.Get(key)
	if raw == nil {
		return nil, nil
	}
	var h map[string]string
	if err := msgpack.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("bolt: decoding hash %q: %w", key, err)
	}
	return h, nil
}

func (b boltBuckets) putHash(key []byte, h map[string]string) error {
	if len(h) == 0 {
		return b.hashes.Delete(key)
	}
	raw, err := msgpack.Marshal(h)
	if err != nil {
		return err
	}
	return b.hashes.Put(key, raw)
}

func (v boltView) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var found bool
	err := v.view(ctx, func(b boltBuckets) error {
		k := unsafeBytesFromString(key)
		if b.isNot(k, memString) {
			return errWrongType
		}
		if raw := b.strs.Get(k); raw != nil {
			value, found = string(raw), true
		}
		return nil
	})
	return value, found, err
}

func (v boltView) Delete(ctx context.Context, keys ...string) error {
	return v.update(ctx, func(b boltBuckets) error {
		for _, key := range keys {
			k := []byte(key)
			if err := b.strs.Delete(k); err != nil {
				return err
			}
			if err := b.hashes.Delete(k); err != nil {
				return err
			}
			err := b.zsets.DeleteBucket(k)
			if err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
		}
		return nil
	})
}

func (v boltView) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := v.view(ctx, func(b boltBuckets) error {
		exists = b.kind(unsafeBytesFromString(key)) != memNone
		return nil
	})
	return exists, err
}

func (v boltView) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	err := v.update(ctx, func(b boltBuckets) error {
		k := []byte(key)
		if b.isNot(k, memString) {
			return errWrongType
		}
		if raw := b.strs.Get(k); raw != nil {
			var err error
			n, err = parseInt(string(raw))
			if err != nil {
				return errors.New("ERR value is not an integer or out of range")
			}
		}
		n++
		return b.strs.Put(k, []byte(strconv.FormatInt(n, 10)))
	})
	return n, err
}

func (v boltView) HSet(ctx context.Context, key string, fields map[string]string) error {
	return v.update(ctx, func(b boltBuckets) error {
		k := []byte(key)
		if b.isNot(k, memHash) {
			return errWrongType
		}
		h, err := b.hash(k)
		if err != nil {
			return err
		}
		if h == nil {
			h = make(map[string]string, len(fields))
		}
		for f, val := range fields {
			h[f] = val
		}
		return b.putHash(k, h)
	})
}

func (v boltView) HDel(ctx context.Context, key string, fields ...string) error {
	return v.update(ctx, func(b boltBuckets) error {
		k := []byte(key)
		if b.isNot(k, memHash) {
			return errWrongType
		}
		h, err := b.hash(k)
		if err != nil || h == nil {
			return err
		}
		for _, f := range fields {
			delete(h, f)
		}
		return b.putHash(k, h)
	})
}

func (v boltView) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var h map[string]string
	err := v.view(ctx, func(b boltBuckets) error {
		k := unsafeBytesFromString(key)
		if b.isNot(k, memHash) {
			return errWrongType
		}
		var err error
		h, err = b.hash(k)
		return err
	})
	if err == nil && h == nil {
		h = map[string]string{}
	}
	return h, err
}

func (v boltView) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return v.update(ctx, func(b boltBuckets) error {
		k := []byte(key)
		if b.isNot(k, memZSet) {
			return errWrongType
		}
		zb, err := b.zsets.CreateBucketIfNotExists(k)
		if err != nil {
			return err
		}
		raw, err := msgpack.Marshal(score)
		if err != nil {
			return err
		}
		return zb.Put([]byte(member), raw)
	})
}

func (v boltView) ZRem(ctx context.Context, key string, members ...string) error {
	return v.update(ctx, func(b boltBuckets) error {
		k := []byte(key)
		if b.isNot(k, memZSet) {
			return errWrongType
		}
		zb := b.zsets.Bucket(k)
		if zb == nil {
			return nil
		}
		for _, m := range members {
			if err := zb.Delete([]byte(m)); err != nil {
				return err
			}
		}
		if k, _ := zb.Cursor().First(); k == nil {
			return b.zsets.DeleteBucket([]byte(key))
		}
		return nil
	})
}

func (v boltView) ZRange(ctx context.Context, key string, start, stop int64, reverse bool) ([]string, error) {
	var result []string
	err := v.view(ctx, func(b boltBuckets) error {
		k := unsafeBytesFromString(key)
		if b.isNot(k, memZSet) {
			return errWrongType
		}
		zb := b.zsets.Bucket(k)
		if zb == nil {
			return nil
		}
		var items []memMember
		err := zb.ForEach(func(m, raw []byte) error {
			var score float64
			if err := msgpack.Unmarshal(raw, &score); err != nil {
				return fmt.Errorf("bolt: decoding score of %q in %q: %w", m, key, err)
			}
			items = append(items, memMember{string(m), score})
			return nil
		})
		if err != nil {
			return err
		}
		slices.SortFunc(items, compareMembers)
		if reverse {
			slices.Reverse(items)
		}
		lo, hi, ok := zrangeBounds(len(items), start, stop)
		if !ok {
			return nil
		}
		result = make([]string, 0, hi-lo)
		for _, it := range items[lo:hi] {
			result = append(result, it.member)
		}
		return nil
	})
	return result, err
}

func (v boltView) ZRangeByLex(ctx context.Context, key string, rang LexRange) ([]string, error) {
	var result []string
	err := v.view(ctx, func(b boltBuckets) error {
		k := unsafeBytesFromString(key)
		if b.isNot(k, memZSet) {
			return errWrongType
		}
		zb := b.zsets.Bucket(k)
		if zb == nil {
			return nil
		}
		c := zb.Cursor()
		var m []byte
		if rang.Lower == nil {
			m, _ = c.First()
		} else {
			m, _ = c.Seek(rang.Lower)
		}
		for ; m != nil; m, _ = c.Next() {
			if !rang.aboveLower(m) {
				continue
			}
			if !rang.belowUpper(m) {
				break
			}
			result = append(result, string(m))
		}
		return nil
	})
	return result, err
}

func (v boltView) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := v.view(ctx, func(b boltBuckets) error {
		p := unsafeBytesFromString(prefix)
		for _, bucket := range []*bbolt.Bucket{b.strs, b.hashes, b.zsets} {
			c := bucket.Cursor()
			for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
				keys = append(keys, string(k))
			}
		}
		return nil
	})
	slices.Sort(keys)
	return keys, err
}

func unsafeBytesFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

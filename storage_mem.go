package zedb

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var errWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// MemStore is a transient in-memory Store intended for tests and tools.
type MemStore struct {
	memView
	mu     sync.Mutex
	data   *memData
	closed bool
}

var (
	_ Store      = (*MemStore)(nil)
	_ Transactor = (*MemStore)(nil)
)

func NewMemStore() *MemStore {
	s := &MemStore{data: newMemData()}
	s.memView = memView{s: s}
	return s
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = newMemData()
	return nil
}

// Atomic runs fn against a snapshot of the store while holding the store
// lock, and publishes the snapshot only if fn succeeds.
func (s *MemStore) Atomic(ctx context.Context, watchKeys []string, fn func(ctx context.Context, s Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}
	snap := s.data.clone()
	err := fn(ctx, memView{s: s, tx: snap})
	if err != nil {
		return err
	}
	s.data = snap
	return nil
}

var errStoreClosed = errors.New("store closed")

type memView struct {
	s  *MemStore
	tx *memData // set inside Atomic, which holds the store lock
}

func (v memView) begin(ctx context.Context) (*memData, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if v.tx != nil {
		return v.tx, func() {}, nil
	}
	v.s.mu.Lock()
	if v.s.closed {
		v.s.mu.Unlock()
		return nil, nil, errStoreClosed
	}
	return v.s.data, v.s.mu.Unlock, nil
}

func (v memView) Get(ctx context.Context, key string) (string, bool, error) {
	d, done, err := v.begin(ctx)
	if err != nil {
		return "", false, err
	}
	defer done()
	if d.isNot(key, memString) {
		return "", false, errWrongType
	}
	s, ok := d.strs[key]
	return s, ok, nil
}

func (v memView) Delete(ctx context.Context, keys ...string) error {
	d, done, err := v.begin(ctx)
	if err != nil {
		return err
	}
	defer done()
	for _, k := range keys {
		delete(d.strs, k)
		delete(d.hashes, k)
		delete(d.zsets, k)
	}
	return nil
}

func (v memView) Exists(ctx context.Context, key string) (bool, error) {
	d, done, err := v.begin(ctx)
	if err != nil {
		return false, err
	}
	defer done()
	return d.kind(key) != memNone, nil
}

func (v memView) Incr(ctx context.Context, key string) (int64, error) {
	d, done, err := v.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer done()
	if d.isNot(key, memString) {
		return 0, errWrongType
	}
	var n int64
	if s, ok := d.strs[key]; ok {
		n, err = parseInt(s)
		if err != nil {
			return 0, errors.New("ERR value is not an integer or out of range")
		}
	}
	n++
	d.strs[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (v memView) HSet(ctx context.Context, key string, fields map[string]string) error {
	d, done, err := v.begin(ctx)
	if err != nil {
		return err
	}
	defer done()
	if d.isNot(key, memHash) {
		return errWrongType
	}
	h := d.hashes[key]
	if h == nil {
		h = make(map[string]string, len(fields))
		d.hashes[key] = h
	}
	maps.Copy(h, fields)
	return nil
}

func (v memView) HDel(ctx context.Context, key string, fields ...string) error {
	d, done, err := v.begin(ctx)
	if err != nil {
		return err
	}
	defer done()
	if d.isNot(key, memHash) {
		return errWrongType
	}
	h := d.hashes[key]
	for _, f := range fields {
		delete(h, f)
	}
	if h != nil && len(h) == 0 {
		delete(d.hashes, key)
	}
	return nil
}

func (v memView) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	d, done, err := v.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	if d.isNot(key, memHash) {
		return nil, errWrongType
	}
	result := maps.Clone(d.hashes[key])
	if result == nil {
		result = map[string]string{}
	}
	return result, nil
}

func (v memView) ZAdd(ctx context.Context, key string, score float64, member string) error {
	d, done, err := v.begin(ctx)
	if err != nil {
		return err
	}
	defer done()
	if d.isNot(key, memZSet) {
		return errWrongType
	}
	z := d.zsets[key]
	if z == nil {
		z = &memSortedSet{scores: make(map[string]float64)}
		d.zsets[key] = z
	}
	z.add(member, score)
	return nil
}

func (v memView) ZRem(ctx context.Context, key string, members ...string) error {
	d, done, err := v.begin(ctx)
	if err != nil {
		return err
	}
	defer done()
	if d.isNot(key, memZSet) {
		return errWrongType
	}
	z := d.zsets[key]
	if z == nil {
		return nil
	}
	for _, m := range members {
		z.remove(m)
	}
	if len(z.items) == 0 {
		delete(d.zsets, key)
	}
	return nil
}

func (v memView) ZRange(ctx context.Context, key string, start, stop int64, reverse bool) ([]string, error) {
	d, done, err := v.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	if d.isNot(key, memZSet) {
		return nil, errWrongType
	}
	z := d.zsets[key]
	if z == nil {
		return nil, nil
	}
	members := make([]string, len(z.items))
	for i, it := range z.items {
		members[i] = it.member
	}
	if reverse {
		slices.Reverse(members)
	}
	lo, hi, ok := zrangeBounds(len(members), start, stop)
	if !ok {
		return nil, nil
	}
	return members[lo:hi], nil
}

func (v memView) ZRangeByLex(ctx context.Context, key string, rang LexRange) ([]string, error) {
	d, done, err := v.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	if d.isNot(key, memZSet) {
		return nil, errWrongType
	}
	z := d.zsets[key]
	if z == nil {
		return nil, nil
	}
	members := make([]string, len(z.items))
	for i, it := range z.items {
		members[i] = it.member
	}
	return rang.filterSorted(members), nil
}

func (v memView) Keys(ctx context.Context, prefix string) ([]string, error) {
	d, done, err := v.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	var keys []string
	keys = appendPrefixed(keys, d.strs, prefix)
	keys = appendPrefixed(keys, d.hashes, prefix)
	keys = appendPrefixed(keys, d.zsets, prefix)
	slices.Sort(keys)
	return keys, nil
}

func appendPrefixed[V any](keys []string, m map[string]V, prefix string) []string {
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}

type memKind int

const (
	memNone memKind = iota
	memString
	memHash
	memZSet
)

type memData struct {
	strs   map[string]string
	hashes map[string]map[string]string
	zsets  map[string]*memSortedSet
}

func newMemData() *memData {
	return &memData{
		strs:   make(map[string]string),
		hashes: make(map[string]map[string]string),
		zsets:  make(map[string]*memSortedSet),
	}
}

func (d *memData) clone() *memData {
	out := &memData{
		strs:   maps.Clone(d.strs),
		hashes: make(map[string]map[string]string, len(d.hashes)),
		zsets:  make(map[string]*memSortedSet, len(d.zsets)),
	}
	for k, h := range d.hashes {
		out.hashes[k] = maps.Clone(h)
	}
	for k, z := range d.zsets {
		out.zsets[k] = z.clone()
	}
	return out
}

func (d *memData) kind(key string) memKind {
	if _, ok := d.strs[key]; ok {
		return memString
	}
	if _, ok := d.hashes[key]; ok {
		return memHash
	}
	if _, ok := d.zsets[key]; ok {
		return memZSet
	}
	return memNone
}

// isNot reports whether key exists and holds a different kind of value.
func (d *memData) isNot(key string, k memKind) bool {
	actual := d.kind(key)
	return actual != memNone && actual != k
}

type memMember struct {
	member string
	score  float64
}

func compareMembers(a, b memMember) int {
	if c := cmp.Compare(a.score, b.score); c != 0 {
		return c
	}
	return strings.Compare(a.member, b.member)
}

// memSortedSet keeps items ordered by (score, member), like Redis.
type memSortedSet struct {
	items  []memMember
	scores map[string]float64
}

func (z *memSortedSet) clone() *memSortedSet {
	return &memSortedSet{
		items:  slices.Clone(z.items),
		scores: maps.Clone(z.scores),
	}
}

func (z *memSortedSet) find(it memMember) (int, bool) {
	i := sort.Search(len(z.items), func(i int) bool {
		return compareMembers(z.items[i], it) >= 0
	})
	return i, i < len(z.items) && z.items[i] == it
}

func (z *memSortedSet) add(member string, score float64) {
	if old, ok := z.scores[member]; ok {
		if old == score {
			return
		}
		z.remove(member)
	}
	it := memMember{member, score}
	i, _ := z.find(it)
	z.items = slices.Insert(z.items, i, it)
	z.scores[member] = score
}

func (z *memSortedSet) remove(member string) {
	score, ok := z.scores[member]
	if !ok {
		return
	}
	if i, found := z.find(memMember{member, score}); found {
		z.items = slices.Delete(z.items, i, i+1)
	}
	delete(z.scores, member)
}

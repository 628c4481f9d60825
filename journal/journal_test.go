package journal

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/andreyvit/zedb"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func open(t testing.TB, dir string, o Options) *Journal {
	t.Helper()
	o.FileName = "j*.wal"
	if o.Now == nil {
		o.Now = func() time.Time { return start }
	}
	j, err := Open(dir, o)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_AppendAndRead(t *testing.T) {
	dir := t.TempDir()
	j := open(t, dir, Options{})
	ensure(j.Append(&Entry{Op: "save", Type: "User", ID: "u1", Values: map[string]string{"id": "u1", "age": "30"}}))
	ensure(j.Append(&Entry{Op: "delete", Type: "User", ID: "u1"}))
	ensure(j.Sync())
	deepEq(t, j.LastSeq(), uint64(2))

	entries := collect(t, j)
	deepEq(t, len(entries), 2)
	deepEq(t, entries[0].Seq, uint64(1))
	deepEq(t, entries[0].StoreKey(), "User:u1")
	deepEq(t, entries[0].Values, map[string]string{"id": "u1", "age": "30"})
	deepEq(t, entries[0].Time.Equal(start), true)
	deepEq(t, entries[1].Op, "delete")
	deepEq(t, entries[1].Seq, uint64(2))

	deepEq(t, fileNames(t, dir), []string{"j000000000001-20240101T000000-0000000000000001.wal"})
}

func TestJournal_ReopenContinuesSequence(t *testing.T) {
	dir := t.TempDir()
	j := open(t, dir, Options{})
	ensure(j.Append(&Entry{Op: "save", Type: "T", ID: "1"}))
	ensure(j.Close())

	j = open(t, dir, Options{})
	deepEq(t, j.LastSeq(), uint64(1))
	ensure(j.Append(&Entry{Op: "save", Type: "T", ID: "2"}))
	deepEq(t, seqs(collect(t, j)), []uint64{1, 2})
	deepEq(t, len(fileNames(t, dir)), 1)
}

func TestJournal_Rotation(t *testing.T) {
	dir := t.TempDir()
	j := open(t, dir, Options{MaxFileSize: 1})
	for _, id := range []string{"a", "b", "c"} {
		ensure(j.Append(&Entry{Op: "save", Type: "T", ID: id}))
	}
	deepEq(t, fileNames(t, dir), []string{
		"j000000000001-20240101T000000-0000000000000001.wal",
		"j000000000002-20240101T000000-0000000000000002.wal",
		"j000000000003-20240101T000000-0000000000000003.wal",
	})
	deepEq(t, seqs(collect(t, j)), []uint64{1, 2, 3})

	ensure(j.Close())
	j = open(t, dir, Options{MaxFileSize: 1})
	ensure(j.Append(&Entry{Op: "save", Type: "T", ID: "d"}))
	deepEq(t, len(fileNames(t, dir)), 4)
	deepEq(t, seqs(collect(t, j)), []uint64{1, 2, 3, 4})
}

func TestJournal_TrimsCorruptedTail(t *testing.T) {
	dir := t.TempDir()
	j := open(t, dir, Options{})
	ensure(j.Append(&Entry{Op: "save", Type: "T", ID: "1"}))
	ensure(j.Append(&Entry{Op: "save", Type: "T", ID: "2"}))
	ensure(j.Close())

	fn := filepath.Join(dir, fileNames(t, dir)[0])
	data := must(os.ReadFile(fn))
	// damage the checksum of the last record and add a partial record
	data[len(data)-1] ^= 0xFF
	data = append(data, 0x20, 'x')
	ensure(os.WriteFile(fn, data, 0o666))

	j = open(t, dir, Options{})
	deepEq(t, seqs(collect(t, j)), []uint64{1})
	deepEq(t, j.LastSeq(), uint64(1))
	ensure(j.Append(&Entry{Op: "save", Type: "T", ID: "3"}))

	entries := collect(t, j)
	deepEq(t, seqs(entries), []uint64{1, 2})
	deepEq(t, entries[1].ID, "3")
}

func TestJournal_DeletesSegmentWithCorruptedHeader(t *testing.T) {
	dir := t.TempDir()
	j := open(t, dir, Options{MaxFileSize: 1})
	ensure(j.Append(&Entry{Op: "save", Type: "T", ID: "1"}))
	ensure(j.Append(&Entry{Op: "save", Type: "T", ID: "2"}))
	ensure(j.Close())

	names := fileNames(t, dir)
	ensure(os.WriteFile(filepath.Join(dir, names[1]), []byte("JOURN"), 0o666))

	j = open(t, dir, Options{MaxFileSize: 1})
	deepEq(t, fileNames(t, dir), names[:1])
	deepEq(t, j.LastSeq(), uint64(1))
}

func TestJournal_Closed(t *testing.T) {
	j := open(t, t.TempDir(), Options{})
	ensure(j.Close())
	if err := j.Append(&Entry{Op: "save", Type: "T", ID: "1"}); err != ErrClosed {
		t.Errorf("** got %v, wanted %v", err, ErrClosed)
	}
}

func TestJournal_RecordsDBChanges(t *testing.T) {
	ctx := context.Background()
	userType := zedb.MustDefineEntity("User", []*zedb.Field{
		zedb.String("id").Primary(),
		zedb.Int("age").Indexed(),
	})
	j := open(t, t.TempDir(), Options{})
	db, err := zedb.Open(zedb.NewMemStore(), zedb.Options{OnChange: j.OnChange})
	ensure(err)

	u := userType.MustNew(zedb.Values{"id": "u1", "age": 30})
	ensure(db.Save(ctx, u))
	ensure(db.Save(ctx, u)) // unchanged, not journaled
	must(db.Delete(ctx, u))

	entries := collect(t, j)
	deepEq(t, len(entries), 2)
	deepEq(t, *entries[0], Entry{Seq: 1, Time: start, Op: "save", Type: "User", ID: "u1", Values: map[string]string{"id": "u1", "age": "30"}})
	deepEq(t, *entries[1], Entry{Seq: 2, Time: start, Op: "delete", Type: "User", ID: "u1", Values: map[string]string{"id": "u1", "age": "30"}})
}

func TestParseName(t *testing.T) {
	seq, ts, id, err := parseSegmentName("123-20230101T000000-11223344aabbccdd")
	if err != nil {
		t.Fatal(err)
	}
	if e := uint32(123); seq != e {
		t.Errorf("seq = %v, expected %v", seq, e)
	}
	if e := uint32(1672531200); ts != e {
		t.Errorf("ts = %v, expected %v", ts, e)
	}
	if e := uint64(0x11223344_aabbccdd); id != e {
		t.Errorf("id = %x, expected %x", id, e)
	}
}

func TestFormatName(t *testing.T) {
	name := formatSegmentName("x", "y", 123, 1672531200, 0x11223344_aabbccdd)
	exp := "x000000000123-20230101T000000-11223344aabbccddy"
	if name != exp {
		t.Errorf("name = %q, expected %q", name, exp)
	}
}

func collect(t testing.TB, j *Journal) []*Entry {
	t.Helper()
	var result []*Entry
	for e, err := range j.Entries() {
		if err != nil {
			t.Fatal(err)
		}
		result = append(result, e)
	}
	return result
}

func seqs(entries []*Entry) []uint64 {
	result := make([]uint64, len(entries))
	for i, e := range entries {
		result[i] = e.Seq
	}
	return result
}

func fileNames(t testing.TB, dir string) []string {
	t.Helper()
	ents := must(os.ReadDir(dir))
	names := make([]string, len(ents))
	for i, ent := range ents {
		names[i] = ent.Name()
	}
	return names
}

func deepEq[T any](t testing.TB, a, e T) bool {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
		return false
	}
	return true
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}

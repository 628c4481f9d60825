// Package journal keeps an append-only log of entity changes.
//
// Features:
//
//  1. One record per successful save or delete, with the full field map.
//
//  2. Crash-resistant. Each record carries an xxhash64 checksum, reading stops
//     at the first truncated or corrupted record, and reopening the journal
//     for writing trims the damaged tail.
//
//  3. Rotates segment files when they reach a certain size, and manages
//     segment file naming.
//
// File format:
//
//   - segment = header record*
//   - header = magic:64 version:8 pad:8 flags:16 pad:32 ordinal:32 timestamp:32 firstSeq:64 reserved:64*3 checksum:64
//   - record = size:uvarint payload checksum:64
//
// The payload is a msgpack-encoded Entry. Header and record checksums cover
// the preceding header bytes and the payload respectively.
package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/andreyvit/zedb"
)

var (
	ErrIncompatible       = errors.New("incompatible journal")
	ErrUnsupportedVersion = errors.New("unsupported journal version")
	ErrClosed             = errors.New("journal closed")
	errCorruptedFile      = errors.New("corrupted journal segment file")
)

type Options struct {
	FileName    string // e.g. "changes-*.wal"
	MaxFileSize int64  // new segment after this size
	Now         func() time.Time

	Logger  *slog.Logger
	Verbose bool
}

const DefaultMaxFileSize = 4 * 1024 * 1024

const (
	magic             = 0x54414c4e52554f4a // "JOURNLAT" as little-endian uint64
	version0    uint8 = 0
	checksumLen       = 8

	segmentHeaderSize = 8 * 8
	maxRecordSize     = 64 << 20
	timestampFmt      = "20060102T150405"
)

type segmentHeader struct {
	Magic     uint64
	Version   uint8
	_         uint8
	Flags     uint16
	_         uint32
	Ordinal   uint32
	Timestamp uint32
	FirstSeq  uint64
	_         [3]uint64
	Checksum  uint64
}

// Entry is one journal record.
type Entry struct {
	Seq    uint64            `msgpack:"seq" json:"seq"`
	Time   time.Time         `msgpack:"t" json:"time"`
	Op     string            `msgpack:"op" json:"op"`
	Type   string            `msgpack:"type" json:"type"`
	ID     string            `msgpack:"id" json:"id"`
	Values map[string]string `msgpack:"v,omitempty" json:"values,omitempty"`
}

// StoreKey returns the key of the primary record the entry refers to.
func (e *Entry) StoreKey() string {
	return e.Type + zedb.KeySeparator + e.ID
}

// EntryFromChange describes chg. Deletions carry the values that were
// deleted.
func EntryFromChange(chg *zedb.Change) *Entry {
	e := &Entry{
		Op:   chg.Op().String(),
		Type: chg.Type().Name(),
		ID:   chg.Identifier(),
	}
	if ent := chg.Entity(); ent != nil {
		e.Values = ent.Record()
	} else if chg.HasStale() {
		e.Values = chg.Stale().Record()
	}
	return e
}

// Journal is a set of segment files in one directory. It is safe for
// concurrent use.
type Journal struct {
	dir            string
	fileNamePrefix string
	fileNameSuffix string
	maxFileSize    int64
	now            func() time.Time
	logger         *slog.Logger
	verbose        bool

	writeLock sync.Mutex
	writeErr  error
	closed    bool
	writeSeg  uint32
	lastSeq   uint64
	segWriter *segmentWriter
}

// Open prepares the journal in dir for appending, creating the directory if
// needed. A last segment with a damaged header is deleted; a damaged tail of
// the last segment is trimmed.
func Open(dir string, o Options) (*Journal, error) {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.FileName == "" {
		o.FileName = "*"
	}
	if o.MaxFileSize == 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	prefix, suffix, _ := strings.Cut(o.FileName, "*")
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, err
	}
	j := &Journal{
		dir:            dir,
		fileNamePrefix: prefix,
		fileNameSuffix: suffix,
		maxFileSize:    o.MaxFileSize,
		now:            o.Now,
		logger:         o.Logger,
		verbose:        o.Verbose,
	}
	if err := j.recover(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) String() string {
	return j.dir
}

// LastSeq returns the sequence number of the last record written.
func (j *Journal) LastSeq() uint64 {
	j.writeLock.Lock()
	defer j.writeLock.Unlock()
	return j.lastSeq
}

func (j *Journal) recover() error {
	for {
		names, err := j.segmentNames()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return nil
		}
		lastName := names[len(names)-1]
		ordinal, _, _, err := j.parseSegmentName(lastName)
		if err != nil {
			return err
		}

		f, err := os.OpenFile(filepath.Join(j.dir, lastName), os.O_RDWR, 0)
		if err != nil {
			return err
		}
		stat, err := f.Stat()
		if err != nil {
			f.Close()
			return err
		}

		r := bufio.NewReader(f)
		h, err := readHeader(r, ordinal)
		if err == errCorruptedFile {
			f.Close()
			j.logger.Warn("journal: deleting corrupted file", "file", lastName, "size", stat.Size())
			if err := os.Remove(filepath.Join(j.dir, lastName)); err != nil {
				return fmt.Errorf("journal: failed to delete corrupted file: %w", err)
			}
			continue
		} else if err != nil {
			f.Close()
			return fmt.Errorf("journal: %s: %w", lastName, err)
		}

		var count uint64
		n, err := scanRecords(r, func([]byte) error {
			count++
			return nil
		})
		if err != nil {
			f.Close()
			return err
		}
		end := segmentHeaderSize + n
		if end < stat.Size() {
			j.logger.Warn("journal: trimming corrupted tail", "file", lastName, "size", stat.Size(), "valid", end)
			if err := f.Truncate(end); err != nil {
				f.Close()
				return err
			}
		}
		if _, err := f.Seek(end, io.SeekStart); err != nil {
			f.Close()
			return err
		}

		j.writeSeg = h.Ordinal
		j.lastSeq = h.FirstSeq + count - 1
		j.segWriter = &segmentWriter{f: f, size: end}
		return nil
	}
}

// Append assigns the next sequence number to e, stamps it with the current
// time unless it has one, and writes it out. A failed write disables the
// journal; later appends return the same error.
func (j *Journal) Append(e *Entry) error {
	j.writeLock.Lock()
	defer j.writeLock.Unlock()

	if j.closed {
		return ErrClosed
	}
	if j.writeErr != nil {
		return j.writeErr
	}

	if e.Time.IsZero() {
		e.Time = j.now().UTC()
	}
	e.Seq = j.lastSeq + 1
	payload, err := msgpack.Marshal(e)
	if err != nil {
		return err
	}

	if j.segWriter != nil && j.segWriter.size >= j.maxFileSize {
		j.segWriter.close()
		j.segWriter = nil
	}
	if j.segWriter == nil {
		sw, err := j.startSegment(e.Seq, e.Time)
		if err != nil {
			return j.fail(err)
		}
		j.segWriter = sw
	}
	if err := j.segWriter.writeRecord(payload); err != nil {
		return j.fail(err)
	}
	j.lastSeq = e.Seq

	if j.verbose {
		j.logger.Debug("journal: APPEND", "seq", e.Seq, "op", e.Op, "key", e.StoreKey())
	}
	return nil
}

// OnChange appends chg, logging failures. It fits zedb.Options.OnChange.
func (j *Journal) OnChange(chg *zedb.Change) {
	if err := j.Append(EntryFromChange(chg)); err != nil {
		j.logger.Error("journal: append failed", "change", chg.String(), "err", err)
	}
}

// Sync flushes the current segment to stable storage.
func (j *Journal) Sync() error {
	j.writeLock.Lock()
	defer j.writeLock.Unlock()
	if j.segWriter == nil {
		return nil
	}
	return j.fail(j.segWriter.f.Sync())
}

func (j *Journal) Close() error {
	j.writeLock.Lock()
	defer j.writeLock.Unlock()
	j.closed = true
	if j.segWriter != nil {
		err := j.segWriter.close()
		j.segWriter = nil
		return err
	}
	return nil
}

func (j *Journal) fail(err error) error {
	if err == nil {
		return nil
	}
	j.logger.Error("journal: failed", "dir", j.dir, "err", err)
	if j.segWriter != nil {
		j.segWriter.close()
		j.segWriter = nil
	}
	if j.writeErr == nil {
		j.writeErr = err
	}
	return err
}

// Entries reads every intact record in order. Records appended while
// iterating may or may not be observed.
func (j *Journal) Entries() iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		names, err := j.segmentNames()
		if err != nil {
			yield(nil, err)
			return
		}
		for _, name := range names {
			if !j.readSegment(name, yield) {
				return
			}
		}
	}
}

func (j *Journal) readSegment(name string, yield func(*Entry, error) bool) bool {
	ordinal, _, _, err := j.parseSegmentName(name)
	if err != nil {
		return yield(nil, err)
	}
	f, err := os.Open(filepath.Join(j.dir, name))
	if err != nil {
		return yield(nil, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	if _, err := readHeader(r, ordinal); err == errCorruptedFile {
		j.logger.Warn("journal: skipping corrupted file", "file", name)
		return true
	} else if err != nil {
		return yield(nil, fmt.Errorf("journal: %s: %w", name, err))
	}

	stopped := false
	_, err = scanRecords(r, func(payload []byte) error {
		e := new(Entry)
		if err := msgpack.Unmarshal(payload, e); err != nil {
			return fmt.Errorf("journal: %s: decoding record: %w", name, err)
		}
		e.Time = e.Time.UTC()
		if !yield(e, nil) {
			stopped = true
			return errStop
		}
		return nil
	})
	if stopped {
		return false
	}
	if err != nil {
		return yield(nil, err)
	}
	return true
}

var errStop = errors.New("stop")

func (j *Journal) segmentNames() ([]string, error) {
	ents, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, ent := range ents {
		if !ent.Type().IsRegular() {
			continue
		}
		name := ent.Name()
		if strings.HasPrefix(name, j.fileNamePrefix) && strings.HasSuffix(name, j.fileNameSuffix) {
			names = append(names, name)
		}
	}
	return names, nil
}

func readHeader(r io.Reader, expectedOrdinal uint32) (segmentHeader, error) {
	var h segmentHeader
	var buf [segmentHeaderSize]byte
	_, err := io.ReadFull(r, buf[:])
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return h, errCorruptedFile
	} else if err != nil {
		return h, err
	}
	n, err := binary.Decode(buf[:], binary.LittleEndian, &h)
	if err != nil {
		panic(err)
	}
	if n != len(buf) {
		panic("internal size mismatch")
	}

	if xxhash.Sum64(buf[:segmentHeaderSize-checksumLen]) != h.Checksum {
		return h, errCorruptedFile
	}
	if h.Magic != magic {
		return h, ErrIncompatible
	}
	if h.Ordinal != expectedOrdinal {
		return h, errCorruptedFile
	}
	if h.Version > version0 {
		return h, ErrUnsupportedVersion
	}
	return h, nil
}

// scanRecords calls f with the payload of every intact record read from r,
// and returns the number of bytes these records occupy. Truncated or
// corrupted data ends the scan without an error.
func scanRecords(r *bufio.Reader, f func(payload []byte) error) (int64, error) {
	var n int64
	for {
		size, err := binary.ReadUvarint(r)
		if err != nil {
			return n, nil
		}
		if size > maxRecordSize {
			return n, nil
		}
		buf := make([]byte, size+checksumLen)
		if _, err := io.ReadFull(r, buf); err == io.ErrUnexpectedEOF || err == io.EOF {
			return n, nil
		} else if err != nil {
			return n, err
		}
		payload := buf[:size]
		if xxhash.Sum64(payload) != binary.LittleEndian.Uint64(buf[size:]) {
			return n, nil
		}
		if err := f(payload); err != nil {
			return n, err
		}
		n += int64(uvarintLen(size)) + int64(len(buf))
	}
}

func uvarintLen(v uint64) int {
	var tmp [binary.MaxVarintLen64]byte
	return binary.PutUvarint(tmp[:], v)
}

type segmentWriter struct {
	f    *os.File
	size int64
}

func (j *Journal) startSegment(firstSeq uint64, t time.Time) (*segmentWriter, error) {
	ordinal := j.writeSeg + 1
	ts := uint32(t.Unix())
	name := formatSegmentName(j.fileNamePrefix, j.fileNameSuffix, ordinal, ts, firstSeq)

	f, err := os.OpenFile(filepath.Join(j.dir, name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return nil, err
	}

	var ok bool
	defer closeAndDeleteUnlessOK(f, &ok)

	var hbuf [segmentHeaderSize]byte
	fillSegmentHeader(hbuf[:], ordinal, ts, firstSeq)
	if _, err := f.Write(hbuf[:]); err != nil {
		return nil, err
	}

	ok = true
	j.writeSeg = ordinal
	if j.verbose {
		j.logger.Debug("journal: NEW SEGMENT", "file", name)
	}
	return &segmentWriter{f: f, size: segmentHeaderSize}, nil
}

func (sw *segmentWriter) writeRecord(payload []byte) error {
	buf := make([]byte, 0, binary.MaxVarintLen64+len(payload)+checksumLen)
	buf = binary.AppendUvarint(buf, uint64(len(payload)))
	buf = append(buf, payload...)
	buf = binary.LittleEndian.AppendUint64(buf, xxhash.Sum64(payload))
	n, err := sw.f.Write(buf)
	sw.size += int64(n)
	return err
}

func (sw *segmentWriter) close() error {
	if sw.f == nil {
		return nil
	}
	err := sw.f.Close()
	sw.f = nil
	return err
}

func closeAndDeleteUnlessOK(f *os.File, ok *bool) {
	if *ok {
		return
	}
	f.Close()
	os.Remove(f.Name())
}

func fillSegmentHeader(buf []byte, ordinal, ts uint32, firstSeq uint64) {
	h := segmentHeader{
		Magic:     magic,
		Version:   version0,
		Ordinal:   ordinal,
		Timestamp: ts,
		FirstSeq:  firstSeq,
	}
	n, err := binary.Encode(buf, binary.LittleEndian, h)
	if err != nil {
		panic(err)
	}
	if n != len(buf) {
		panic("internal size mismatch")
	}
	binary.LittleEndian.PutUint64(buf[segmentHeaderSize-checksumLen:], xxhash.Sum64(buf[:segmentHeaderSize-checksumLen]))
}

func formatSegmentName(prefix, suffix string, ordinal, ts uint32, firstSeq uint64) string {
	t := time.Unix(int64(ts), 0).UTC()
	return fmt.Sprintf("%s%012d-%s-%016x%s", prefix, ordinal, t.Format(timestampFmt), firstSeq, suffix)
}

func (j *Journal) parseSegmentName(name string) (ordinal, ts uint32, firstSeq uint64, err error) {
	base := strings.TrimSuffix(strings.TrimPrefix(name, j.fileNamePrefix), j.fileNameSuffix)
	return parseSegmentName(base)
}

func parseSegmentName(name string) (ordinal, ts uint32, firstSeq uint64, err error) {
	ordStr, rem, ok := strings.Cut(name, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid segment file name %q", name)
	}
	v, err := strconv.ParseUint(ordStr, 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid segment file name %q (invalid segment number)", name)
	}
	ordinal = uint32(v)

	tsStr, seqStr, ok := strings.Cut(rem, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid segment file name %q", name)
	}
	t, err := time.ParseInLocation(timestampFmt, tsStr, time.UTC)
	if err != nil {
		return ordinal, 0, 0, fmt.Errorf("invalid segment file name %q (invalid timestamp)", name)
	}
	ts = uint32(t.Unix())

	firstSeq, err = strconv.ParseUint(seqStr, 16, 64)
	if err != nil {
		return ordinal, 0, 0, fmt.Errorf("invalid segment file name %q (invalid record number)", name)
	}
	return
}

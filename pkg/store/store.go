package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"kvview/pkg/clock"
	"kvview/pkg/kvkey"
	"kvview/pkg/memtable"
	"kvview/pkg/wal"
	"kvview/pkg/wire"
)

const (
	DefaultListLimit     = 100
	DefaultMaxKeyBytes   = 2048
	DefaultMaxValueBytes = 64 * 1024

	// the log is rewritten on open once it holds this many records and at
	// least twice as many records as live entries
	compactMinRecords = 1024
)

// Options tune a store. Zero values select the defaults.
type Options struct {
	// Sync fsyncs the log on every write.
	Sync          bool
	MaxKeyBytes   int
	MaxValueBytes int
}

func (o Options) withDefaults() Options {
	if o.MaxKeyBytes <= 0 {
		o.MaxKeyBytes = DefaultMaxKeyBytes
	}
	if o.MaxValueBytes <= 0 {
		o.MaxValueBytes = DefaultMaxValueBytes
	}
	return o
}

// Store is an ordered key-value store over multi-part keys. Entries live in
// a skip list; durability comes from a write-ahead log replayed on open.
type Store struct {
	path string
	opts Options

	jr   *wal.WAL
	seqN *clock.AtomicClock
	mt   *memtable.Memtable

	// serializes writers so log order equals commit order
	mu     sync.Mutex
	closed atomic.Bool
}

// Open opens or creates the store kept in dir.
func Open(dir string, opts Options) (*Store, error) {
	journal, err := wal.New(dir, opts.Sync)
	if err != nil {
		return nil, err
	}

	s := newStore(dir, opts, journal)

	records, err := s.restoreFromJournal()
	if err != nil {
		_ = journal.Close()
		return nil, fmt.Errorf("failed to restore store %s: %w", dir, err)
	}

	if err := s.compact(records); err != nil {
		_ = journal.Close()
		return nil, fmt.Errorf("failed to compact store %s: %w", dir, err)
	}

	slog.Info("store opened", "path", dir, "entries", s.mt.Len(), "records", records, "seq", s.seqN.Val())
	return s, nil
}

// OpenMemory returns a store that keeps nothing after Close.
func OpenMemory(opts Options) *Store {
	return newStore(":memory:", opts, nil)
}

func newStore(path string, opts Options, journal *wal.WAL) *Store {
	return &Store{
		path: path,
		opts: opts.withDefaults(),
		jr:   journal,
		seqN: clock.NewAtomic(0),
		mt:   memtable.New(0),
	}
}

// Path is the directory the store was opened from, or ":memory:".
func (s *Store) Path() string {
	return s.path
}

func (s *Store) restoreFromJournal() (int, error) {
	records := 0
	err := s.jr.Replay(func(entry wal.Entry) error {
		records++
		s.seqN.Observe(entry.SeqNum)

		switch MD(entry.Meta).operation() {
		case insertOp:
			return s.mt.Upsert(entry.Key, entry.Value, entry.SeqNum, entry.Meta)
		case deleteOp:
			s.mt.Remove(entry.Key)
			return nil
		default:
			return fmt.Errorf("%w: unknown operation in record %d", ErrCorruptEntry, entry.SeqNum)
		}
	})
	return records, err
}

func (s *Store) compact(records int) error {
	live := s.mt.Len()
	if records < compactMinRecords || records < 2*live {
		return nil
	}

	items := s.mt.Sorted()
	entries := make([]wal.Entry, 0, len(items)+1)
	for _, it := range items {
		entries = append(entries, wal.Entry{SeqNum: it.SeqN, Key: it.Key, Value: it.Value, Meta: it.Meta})
	}
	// keeps the clock from going back to the newest live entry
	entries = append(entries, wal.Entry{
		SeqNum: s.seqN.Val(),
		Meta:   uint64(newMD(deleteOp, vTypeTombstone)),
	})

	slog.Info("compacting store log", "path", s.path, "records", records, "live", live)
	return s.jr.Rewrite(entries)
}

func (s *Store) encodeKey(key kvkey.Key) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	k, err := kvkey.Encode(key)
	if err != nil {
		return nil, err
	}
	if len(k) > s.opts.MaxKeyBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrKeyTooLarge, len(k), s.opts.MaxKeyBytes)
	}
	return k, nil
}

// Set writes value at key, replacing any previous entry, and returns the new
// versionstamp.
func (s *Store) Set(ctx context.Context, key kvkey.Key, value any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	k, err := s.encodeKey(key)
	if err != nil {
		return "", err
	}
	v, err := wire.Marshal(value)
	if err != nil {
		return "", err
	}
	if len(v) > s.opts.MaxValueBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrValueTooLarge, len(v), s.opts.MaxValueBytes)
	}

	seq, err := s.write(k, v, insertOp)
	if err != nil {
		return "", err
	}
	return Versionstamp(seq), nil
}

// Delete removes the entry at key. Deleting an absent key succeeds.
func (s *Store) Delete(ctx context.Context, key kvkey.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := s.encodeKey(key)
	if err != nil {
		return err
	}
	_, err = s.write(k, nil, deleteOp)
	return err
}

func (s *Store) write(k, v []byte, op operation) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return 0, ErrClosed
	}

	vt := vTypeWire
	if op == deleteOp {
		if _, ok := s.mt.Get(k); !ok {
			return 0, nil
		}
		vt = vTypeTombstone
	}

	seq := s.seqN.Next()
	md := newMD(op, vt)

	if s.jr != nil {
		if err := s.jr.Append(wal.Entry{SeqNum: seq, Key: k, Value: v, Meta: uint64(md)}); err != nil {
			return 0, err
		}
	}

	if op == deleteOp {
		s.mt.Remove(k)
		return seq, nil
	}
	return seq, s.mt.Upsert(k, v, seq, uint64(md))
}

// Get looks up the entry at key.
func (s *Store) Get(ctx context.Context, key kvkey.Key) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}
	if s.closed.Load() {
		return Entry{}, false, ErrClosed
	}
	k, err := s.encodeKey(key)
	if err != nil {
		return Entry{}, false, err
	}

	item, ok := s.mt.Get(k)
	if !ok {
		return Entry{}, false, nil
	}
	entry, err := decodeItem(item)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

// List returns the entries whose key starts with prefix, in key order, one
// page at a time. The prefix key itself is included when present.
func (s *Store) List(ctx context.Context, prefix kvkey.Key, opts ListOptions) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	if s.closed.Load() {
		return Page{}, ErrClosed
	}

	p, err := kvkey.Encode(prefix)
	if err != nil {
		return Page{}, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	start := p
	var after []byte
	if opts.Cursor != "" {
		after, err = decodeCursor(opts.Cursor, p)
		if err != nil {
			return Page{}, err
		}
		start = after
	}

	items := make([]memtable.Item, 0, limit)
	more := false
	s.mt.Scan(start, func(it memtable.Item) bool {
		if after != nil && bytes.Equal(it.Key, after) {
			return true
		}
		if !bytes.HasPrefix(it.Key, p) {
			return false
		}
		if !kvkey.HasEncodedPrefix(it.Key, p) {
			return true
		}
		if len(items) == limit {
			more = true
			return false
		}
		items = append(items, it)
		return true
	})

	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	page := Page{Entries: make([]Entry, 0, len(items))}
	for _, it := range items {
		e, err := decodeItem(it)
		if err != nil {
			return Page{}, err
		}
		page.Entries = append(page.Entries, e)
	}
	if more {
		page.Cursor = encodeCursor(items[len(items)-1].Key)
	}
	return page, nil
}

func decodeItem(it memtable.Item) (Entry, error) {
	key, err := kvkey.Decode(it.Key)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if MD(it.Meta).valType() != vTypeWire {
		return Entry{}, fmt.Errorf("%w: unexpected value type %d", ErrCorruptEntry, MD(it.Meta).valType())
	}
	v, err := wire.Unmarshal(it.Value)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	return Entry{Key: key, Value: v, Versionstamp: Versionstamp(it.SeqN)}, nil
}

// Close flushes and closes the log. Operations after Close fail with
// ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Swap(true) {
		return nil
	}
	if s.jr != nil {
		return s.jr.Close()
	}
	return nil
}

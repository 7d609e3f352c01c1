package memtable

import (
	"bytes"
	"errors"

	"github.com/zhangyunhao116/skipmap"
)

var (
	ErrTooLargeEntry = errors.New("entry is too large")
)

type concurrentSet = skipmap.FuncMap[[]byte, Item]

// Memtable is the ordered in-memory table holding every live entry of a
// store. Readers never block; writers are serialized by the store.
type Memtable struct {
	maxEntryBytes int
	underlying    *concurrentSet
}

func New(maxEntryBytes int) *Memtable {
	return &Memtable{
		maxEntryBytes: maxEntryBytes,
		underlying: skipmap.NewFunc[[]byte, Item](func(a, b []byte) bool {
			return bytes.Compare(a, b) < 0
		}),
	}
}

func (mt *Memtable) Get(k []byte) (Item, bool) {
	return mt.underlying.Load(k)
}

func (mt *Memtable) Upsert(k, value []byte, seqN, meta uint64) error {
	const (
		mdSize   = 8
		seqNSize = 8
	)

	entSize := len(k) + len(value) + seqNSize + mdSize
	if mt.maxEntryBytes > 0 && entSize > mt.maxEntryBytes {
		return ErrTooLargeEntry
	}

	mt.underlying.Store(k, Item{
		Key:   k,
		Value: value,
		SeqN:  seqN,
		Meta:  meta,
	})
	return nil
}

// Remove drops k and reports whether it was present.
func (mt *Memtable) Remove(k []byte) bool {
	return mt.underlying.Delete(k)
}

// Scan calls fn for every item with key >= from in ascending key order until
// fn returns false. The skip list offers no seek, so the walk always starts at
// the smallest key and skips everything below from: resuming a listing deep
// into the table costs time proportional to its position.
func (mt *Memtable) Scan(from []byte, fn func(Item) bool) {
	mt.underlying.Range(func(key []byte, it Item) bool {
		if bytes.Compare(key, from) < 0 {
			return true
		}
		return fn(it)
	})
}

func (mt *Memtable) Len() int {
	return mt.underlying.Len()
}

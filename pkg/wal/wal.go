package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
)

const fileName = "wal.log"

var (
	ErrClosed   = errors.New("WAL closed")
	ErrChecksum = errors.New("WAL checksum mismatch")
)

// Entry is one logged write. Meta is opaque to the log.
type Entry struct {
	SeqNum uint64
	Key    []byte
	Value  []byte
	Meta   uint64
}

// WAL is an append-only log of entries kept in a single file.
type WAL struct {
	mu   sync.Mutex
	path string
	sync bool

	f  *os.File
	bw *bufio.Writer
}

// New opens (creating if needed) the log in dir. With sync set every append
// is fsynced before it returns.
func New(dir string, sync bool) (*WAL, error) {
	if dir == "" {
		return nil, errors.New("wal: empty directory")
	}
	if err := os.MkdirAll(filepath.Clean(dir), 0o750); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}

	w := &WAL{path: filepath.Join(filepath.Clean(dir), fileName), sync: sync}
	if err := w.openForAppend(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *WAL) openForAppend() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log %s: %w", w.path, err)
	}
	w.f = f
	w.bw = bufio.NewWriter(f)
	return nil
}

// Append writes the entry and flushes it to the file.
func (w *WAL) Append(entry Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.bw == nil {
		return ErrClosed
	}
	if err := writeEntry(w.bw, entry); err != nil {
		return fmt.Errorf("append record %d: %w", entry.SeqNum, err)
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("append record %d: %w", entry.SeqNum, err)
	}
	if !w.sync {
		return nil
	}
	return w.f.Sync()
}

// Replay calls callback for every complete entry in file order. A torn entry
// at the tail, left by a crash mid-append, is cut off so that later appends
// start on a record boundary.
func (w *WAL) Replay(callback func(Entry) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.bw == nil {
		return ErrClosed
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flush before replay: %w", err)
	}

	f, err := os.Open(w.path)
	if err != nil {
		return fmt.Errorf("open log for replay: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat log for replay: %w", err)
	}
	size := info.Size()

	r := bufio.NewReader(f)
	var offset int64
	for n := 0; ; n++ {
		entry, used, err := readEntry(r, size-offset)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			slog.Warn("log ends with a torn record, truncating it", "path", w.path, "records", n, "offset", offset, "size", size)
			if err := w.f.Truncate(offset); err != nil {
				return fmt.Errorf("truncate torn record at %d: %w", offset, err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("read record %d: %w", n, err)
		}
		if err := callback(entry); err != nil {
			return fmt.Errorf("replay record %d: %w", entry.SeqNum, err)
		}
		offset += used
	}
}

// Rewrite atomically replaces the log with the given entries.
func (w *WAL) Rewrite(entries []Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.bw == nil {
		return ErrClosed
	}

	tmpPath := w.path + ".tmp"
	if err := writeFile(tmpPath, entries); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rewrite log: %w", err)
	}

	if err := w.f.Close(); err != nil {
		return fmt.Errorf("rewrite log: %w", err)
	}
	w.f, w.bw = nil, nil
	if err := os.Rename(tmpPath, w.path); err != nil {
		return fmt.Errorf("rewrite log: %w", err)
	}
	return w.openForAppend()
}

func writeFile(path string, entries []Entry) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	for _, e := range entries {
		if err := writeEntry(bw, e); err != nil {
			f.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return nil
	}
	flushErr := w.bw.Flush()
	closeErr := w.f.Close()
	w.f, w.bw = nil, nil
	return errors.Join(flushErr, closeErr)
}

// Record layout, little endian:
//
//	seq u64 | meta u64 | key len u32 | value len u32 | crc32 u32 | key | value
//
// The checksum covers the first 24 header bytes, the key and the value.
const headerSize = 28

var crcTable = crc32.MakeTable(crc32.Castagnoli)

func writeEntry(bw *bufio.Writer, entry Entry) error {
	if len(entry.Key) > math.MaxUint32 || len(entry.Value) > math.MaxUint32 {
		return fmt.Errorf("entry too large: key %d, value %d bytes", len(entry.Key), len(entry.Value))
	}

	var hdr [headerSize]byte
	binary.LittleEndian.PutUint64(hdr[0:], entry.SeqNum)
	binary.LittleEndian.PutUint64(hdr[8:], entry.Meta)
	binary.LittleEndian.PutUint32(hdr[16:], uint32(len(entry.Key)))
	binary.LittleEndian.PutUint32(hdr[20:], uint32(len(entry.Value)))
	binary.LittleEndian.PutUint32(hdr[24:], checksum(hdr[:24], entry.Key, entry.Value))

	for _, part := range [][]byte{hdr[:], entry.Key, entry.Value} {
		if _, err := bw.Write(part); err != nil {
			return err
		}
	}
	return nil
}

// readEntry reads one record out of the remaining bytes of the file and
// reports its encoded size. io.EOF is returned only on a record boundary; a
// partial record, or one claiming more bytes than remain, yields
// io.ErrUnexpectedEOF.
func readEntry(r *bufio.Reader, remaining int64) (Entry, int64, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Entry{}, 0, err
	}

	keyLen := int64(binary.LittleEndian.Uint32(hdr[16:]))
	valueLen := int64(binary.LittleEndian.Uint32(hdr[20:]))
	size := headerSize + keyLen + valueLen
	if size > remaining {
		return Entry{}, 0, io.ErrUnexpectedEOF
	}

	entry := Entry{
		SeqNum: binary.LittleEndian.Uint64(hdr[0:]),
		Meta:   binary.LittleEndian.Uint64(hdr[8:]),
		Key:    make([]byte, keyLen),
		Value:  make([]byte, valueLen),
	}
	if _, err := io.ReadFull(r, entry.Key); err != nil {
		return Entry{}, 0, noEOF(err)
	}
	if _, err := io.ReadFull(r, entry.Value); err != nil {
		return Entry{}, 0, noEOF(err)
	}

	if want := binary.LittleEndian.Uint32(hdr[24:]); checksum(hdr[:24], entry.Key, entry.Value) != want {
		return Entry{}, 0, fmt.Errorf("%w: record %d", ErrChecksum, entry.SeqNum)
	}
	return entry, size, nil
}

func checksum(parts ...[]byte) uint32 {
	var sum uint32
	for _, p := range parts {
		sum = crc32.Update(sum, crcTable, p)
	}
	return sum
}

func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

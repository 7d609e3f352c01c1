package store

import (
	"fmt"

	"kvview/pkg/kvkey"
)

const (
	insertOp operation = iota
	deleteOp
)

const (
	vTypeTombstone valType = iota
	// vTypeWire values are bodies of the structure-preserving wire encoding.
	vTypeWire
)

type operation uint8

type valType uint8

// Entry is a key, its value and the versionstamp of the write that produced
// it.
type Entry struct {
	Key          kvkey.Key
	Value        any
	Versionstamp string
}

// ListOptions control one page of a prefix listing.
type ListOptions struct {
	// Limit caps the number of entries; zero means DefaultListLimit.
	Limit int
	// Cursor resumes after the last entry of a previous page for the same
	// prefix.
	Cursor string
}

// Page is one batch of a listing. Cursor is empty when the listing is
// exhausted.
type Page struct {
	Entries []Entry
	Cursor  string
}

// Versionstamp formats a commit sequence number as a 20 digit hex string.
func Versionstamp(seq uint64) string {
	return fmt.Sprintf("%016x0000", seq)
}

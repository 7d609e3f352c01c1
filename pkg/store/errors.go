package store

import "errors"

var (
	ErrClosed        = errors.New("store is closed")
	ErrEmptyKey      = errors.New("key cannot be empty")
	ErrKeyTooLarge   = errors.New("key too large")
	ErrValueTooLarge = errors.New("value too large")
	ErrInvalidCursor = errors.New("invalid cursor")
	ErrCorruptEntry  = errors.New("corrupt entry")
)

package kvkey

import "errors"

var (
	ErrInvalidPart    = errors.New("invalid key part")
	ErrMalformedQuery = errors.New("malformed key query")
	ErrMalformedKey   = errors.New("malformed encoded key")
	ErrBigIntTooLarge = errors.New("big integer key part too large")
)

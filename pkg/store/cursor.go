package store

import (
	"encoding/base64"
	"fmt"

	"kvview/pkg/kvkey"
)

// Cursors are the encoded key of the last returned entry. They are only
// meaningful together with the prefix they were issued for.
func encodeCursor(lastKey []byte) string {
	return base64.RawURLEncoding.EncodeToString(lastKey)
}

func decodeCursor(cursor string, prefix []byte) ([]byte, error) {
	last, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if !kvkey.HasEncodedPrefix(last, prefix) {
		return nil, fmt.Errorf("%w: issued for another prefix", ErrInvalidCursor)
	}
	return last, nil
}

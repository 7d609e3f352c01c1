// Package locator resolves the strings users type to pick a database.
package locator

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// Memory opens a store that is discarded on close.
	Memory = ":memory:"

	DefaultConnectURL = "https://api.deno.com/databases/%s/connect"

	LabelDefault = "Default database"
	LabelRemote  = "Remote database"
)

// Resolver expands database identifiers into connect URLs.
type Resolver struct {
	// ConnectURL is a format string with a single %s for the identifier.
	ConnectURL string
}

func NewResolver(connectURL string) Resolver {
	if connectURL == "" {
		connectURL = DefaultConnectURL
	}
	return Resolver{ConnectURL: connectURL}
}

// Resolve trims loc and expands a bare UUID into the remote connect URL.
// Anything else, including the empty default locator, is returned as is.
func (r Resolver) Resolve(loc string) string {
	loc = strings.TrimSpace(loc)
	if IsUUID(loc) {
		return fmt.Sprintf(r.ConnectURL, strings.ToLower(loc))
	}
	return loc
}

// IsUUID reports whether s is a UUID in its canonical 36 character form.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// IsRemote reports whether loc names a database reached over HTTP.
func IsRemote(loc string) bool {
	return strings.HasPrefix(loc, "https://") || strings.HasPrefix(loc, "http://")
}

// Label is the human-readable name of the database behind loc.
func Label(loc string) string {
	switch {
	case loc == "":
		return LabelDefault
	case IsRemote(loc):
		return LabelRemote
	default:
		return loc
	}
}

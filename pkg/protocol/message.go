// Package protocol defines the request and response messages exchanged
// between the browser, the host and the proxy server, and the correlation
// table pairing responses with the requests that caused them.
package protocol

import (
	"kvview/pkg/kvkey"
)

type Kind string

const (
	KindList           Kind = "list"
	KindGet            Kind = "get"
	KindSet            Kind = "set"
	KindDelete         Kind = "delete"
	KindChangeDatabase Kind = "changeDatabase"
	KindMessage        Kind = "message"
	KindConfig         Kind = "config"
)

func (k Kind) valid() bool {
	switch k {
	case KindList, KindGet, KindSet, KindDelete, KindChangeDatabase, KindMessage, KindConfig:
		return true
	}
	return false
}

// NeedsStore reports whether the kind is served by the proxy server.
func (k Kind) NeedsStore() bool {
	switch k {
	case KindList, KindGet, KindSet, KindDelete, KindChangeDatabase:
		return true
	}
	return false
}

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Request is a single protocol call. Which fields matter depends on Kind:
// list uses Key as the prefix together with Limit and Cursor, get and delete
// use Key, set uses Key and Value, changeDatabase uses Database (nil asks the
// host to prompt), message uses Message.
type Request struct {
	ID       uint64
	Kind     Kind
	Key      kvkey.Key
	Value    any
	Database *string
	Limit    int
	Cursor   string
	Message  string
}

// Entry is a stored key with its value and versionstamp.
type Entry struct {
	Key          kvkey.Key
	Value        any
	Versionstamp string
}

// Display is the display configuration answered to a config request.
type Display struct {
	PreviewValue bool
	PageSize     int
}

// Response answers the request with the same ID.
type Response struct {
	ID     uint64
	Kind   Kind
	Status Status
	Error  string

	// list
	Entries []Entry
	Cursor  string

	// get: nil when the key is absent
	Entry *Entry

	// set
	Versionstamp string

	// changeDatabase
	Database  *string
	Cancelled bool

	// config
	Display *Display
}

// OK builds a success response for req.
func OK(req Request) Response {
	return Response{ID: req.ID, Kind: req.Kind, Status: StatusOK}
}

// Fail builds a failure response for req.
func Fail(req Request, msg string) Response {
	return Response{ID: req.ID, Kind: req.Kind, Status: StatusError, Error: msg}
}

// Err returns the failure carried by r, if any.
func (r Response) Err() error {
	if r.Status == StatusError {
		return &RemoteError{Kind: r.Kind, Message: r.Error}
	}
	return nil
}

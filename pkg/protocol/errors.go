package protocol

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownKind = errors.New("unknown message kind")
	ErrTimeout     = errors.New("request timed out")
	ErrClosed      = errors.New("correlator closed")
)

// TimeoutError is returned when no response arrives before the deadline.
type TimeoutError struct {
	ID      uint64
	Kind    Kind
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s request %d timed out after %s", e.Kind, e.ID, e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// RemoteError carries the message of a failure response.
type RemoteError struct {
	Kind    Kind
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

package protocol

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"kvview/pkg/clock"
)

const DefaultTimeout = 60 * time.Second

// SendFunc hands an outgoing request to the peer. It must not wait for the
// response.
type SendFunc func(ctx context.Context, req Request) error

// Correlator numbers outgoing requests and matches incoming responses to the
// pending call with the same ID. A call that sees no response before the
// deadline fails with a TimeoutError; a response arriving afterwards is
// dropped.
type Correlator struct {
	ids     *clock.AtomicClock
	timeout time.Duration
	send    SendFunc

	mu      sync.Mutex
	pending map[uint64]chan Response
	done    chan struct{}
	closed  bool
}

func NewCorrelator(timeout time.Duration, send SendFunc) *Correlator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Correlator{
		ids:     clock.NewAtomic(0),
		timeout: timeout,
		send:    send,
		pending: make(map[uint64]chan Response),
		done:    make(chan struct{}),
	}
}

// Call sends req under a fresh ID and waits for its response. A failure
// response is returned together with a *RemoteError.
func (c *Correlator) Call(ctx context.Context, req Request) (Response, error) {
	req.ID = c.ids.Next()
	ch := make(chan Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Response{}, ErrClosed
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	start := time.Now()
	if err := c.send(ctx, req); err != nil {
		c.forget(req.ID)
		return Response{}, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, resp.Err()
	case <-timer.C:
		if !c.forget(req.ID) {
			// delivered while the timer fired
			resp := <-ch
			return resp, resp.Err()
		}
		err := &TimeoutError{ID: req.ID, Kind: req.Kind, Elapsed: time.Since(start)}
		slog.Warn("request timed out", "id", req.ID, "kind", req.Kind, "elapsed", err.Elapsed)
		return Response{}, err
	case <-ctx.Done():
		c.forget(req.ID)
		return Response{}, ctx.Err()
	case <-c.done:
		return Response{}, ErrClosed
	}
}

// forget drops the pending entry and reports whether it was still there.
func (c *Correlator) forget(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	delete(c.pending, id)
	return ok
}

// Deliver resolves the pending call with the response's ID. It reports false
// and drops the response when no such call is pending.
func (c *Correlator) Deliver(resp Response) bool {
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	delete(c.pending, resp.ID)
	c.mu.Unlock()

	if !ok {
		slog.Debug("dropping response for unknown request", "id", resp.ID, "kind", resp.Kind)
		return false
	}
	ch <- resp
	return true
}

// DeliverFrame decodes a wire-encoded response and delivers it. Frames that
// fail to decode are logged and dropped.
func (c *Correlator) DeliverFrame(frame []byte) bool {
	resp, err := DecodeResponse(frame)
	if err != nil {
		slog.Warn("dropping undecodable response", "error", err)
		return false
	}
	return c.Deliver(resp)
}

// Pending is the number of calls waiting for a response.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close fails every pending and future call with ErrClosed.
func (c *Correlator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.pending = make(map[uint64]chan Response)
	close(c.done)
}

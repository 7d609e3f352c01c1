package http

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"kvview/pkg/store"
)

// handle owns one open store. Calls hold the read lock for their whole
// duration; retiring takes the write lock, so a replaced store is closed
// only after the calls that started on it have finished.
type handle struct {
	st      Store
	locator string

	mu     sync.RWMutex
	closed bool
}

func (h *handle) retire() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return h.st.Close()
}

// acquire returns the current handle read-locked.
func (s *Server) acquire() (*handle, error) {
	for {
		h := s.current.Load()
		if h == nil {
			return nil, store.ErrClosed
		}
		h.mu.RLock()
		if !h.closed {
			return h, nil
		}
		// retired between Load and RLock; the replacement is already published
		h.mu.RUnlock()
	}
}

func (s *Server) withStore(fn func(Store) error) error {
	h, err := s.acquire()
	if err != nil {
		return err
	}
	defer h.mu.RUnlock()
	return fn(h.st)
}

// changeDatabase opens loc and makes it current. On failure the previous
// store stays current. It returns the locator now in use.
func (s *Server) changeDatabase(ctx context.Context, loc string) (string, error) {
	s.swapMu.Lock()
	defer s.swapMu.Unlock()

	st, err := s.opener(ctx, loc)
	if err != nil {
		if old := s.current.Load(); old != nil {
			return old.locator, err
		}
		return loc, err
	}

	old := s.current.Swap(&handle{st: st, locator: loc})
	slog.Info("database opened", "locator", loc, "path", st.Path())

	if old != nil {
		if err := old.retire(); err != nil && !errors.Is(err, store.ErrClosed) {
			slog.Warn("failed to close previous database", "locator", old.locator, "error", err)
		}
	}
	return loc, nil
}

// Locator is the locator of the current store.
func (s *Server) Locator() string {
	if h := s.current.Load(); h != nil {
		return h.locator
	}
	return ""
}

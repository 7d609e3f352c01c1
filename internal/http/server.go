package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"kvview/pkg/config"
	"kvview/pkg/kvkey"
	"kvview/pkg/protocol"
	"kvview/pkg/store"
	"kvview/pkg/wire"
)

const (
	contentTypeJSON        = "application/json"
	defaultShutdownTimeout = time.Second * 5
)

// Store is the backing database the proxy serves.
type Store interface {
	Path() string
	List(ctx context.Context, prefix kvkey.Key, opts store.ListOptions) (store.Page, error)
	Get(ctx context.Context, key kvkey.Key) (store.Entry, bool, error)
	Set(ctx context.Context, key kvkey.Key, value any) (string, error)
	Delete(ctx context.Context, key kvkey.Key) error
	Close() error
}

// Server represents the local proxy: one POST route that runs protocol
// messages against the current store.
type Server struct {
	opener Opener
	cfg    config.ServerConfig

	current atomic.Pointer[handle]
	// serializes database changes
	swapMu sync.Mutex

	httpServer *http.Server
	port       int
}

// NewServer creates a new server instance
func NewServer(opener Opener, cfg config.ServerConfig) *Server {
	def := config.Default().Server
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = def.ListLimit
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = def.ReadHeaderTimeout
	}
	return &Server{opener: opener, cfg: cfg}
}

// Open opens the store behind the default locator unless one is already
// open.
func (s *Server) Open(ctx context.Context) error {
	if s.current.Load() != nil {
		return nil
	}
	_, err := s.changeDatabase(ctx, "")
	return err
}

// Start opens the default store, binds the listener and serves in the
// background. It returns the bound port.
func (s *Server) Start(ctx context.Context) (int, error) {
	if err := s.Open(ctx); err != nil {
		return 0, fmt.Errorf("failed to open default database: %w", err)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to start HTTP server: %w", err)
	}
	s.port = ln.Addr().(*net.TCPAddr).Port

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", ln.Addr().String())
	return s.port, nil
}

// Port is the bound port after Start.
func (s *Server) Port() int {
	return s.port
}

// Stop shuts the HTTP server down and closes the current store.
func (s *Server) Stop() error {
	var errs []error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown HTTP server: %w", err))
		}
	}

	s.swapMu.Lock()
	defer s.swapMu.Unlock()
	if h := s.current.Swap(nil); h != nil {
		if err := h.retire(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse("Only POST is supported"))
	})

	r.Get("/health", s.handleHealth)
	r.Post("/*", s.handleMessage)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.current.Load()
	if h == nil {
		writeJSON(w, http.StatusServiceUnavailable, NewErrorResponse("no database open"))
		return
	}
	writeJSON(w, http.StatusOK, NewOKResponse(h.locator))
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, NewErrorResponse("request body too large"))
			return
		}
		writeJSON(w, http.StatusBadRequest, NewErrorResponse("failed to read request: "+err.Error()))
		return
	}

	req, err := protocol.DecodeRequest(body)
	if err != nil {
		slog.Warn("rejecting malformed request", "error", err)
		if req.Kind == "" {
			writeJSON(w, http.StatusBadRequest, NewErrorResponse("invalid request: "+err.Error()))
			return
		}
		writeProtocol(w, http.StatusBadRequest, protocol.Fail(req, "invalid request: "+err.Error()))
		return
	}

	resp, status := s.dispatch(r.Context(), req)
	writeProtocol(w, status, resp)
}

// dispatch runs req and returns the response with its HTTP status.
func (s *Server) dispatch(ctx context.Context, req protocol.Request) (protocol.Response, int) {
	resp := protocol.OK(req)
	var err error
	var op string

	switch req.Kind {
	case protocol.KindList:
		op = "failed to list items"
		err = s.withStore(func(st Store) error {
			page, err := st.List(ctx, req.Key, store.ListOptions{Limit: s.pageLimit(req.Limit), Cursor: req.Cursor})
			if err != nil {
				return err
			}
			resp.Entries = make([]protocol.Entry, 0, len(page.Entries))
			for _, e := range page.Entries {
				resp.Entries = append(resp.Entries, protocol.Entry(e))
			}
			resp.Cursor = page.Cursor
			return nil
		})
	case protocol.KindGet:
		op = "failed to get item"
		err = s.withStore(func(st Store) error {
			e, found, err := st.Get(ctx, req.Key)
			if err != nil {
				return err
			}
			if found {
				pe := protocol.Entry(e)
				resp.Entry = &pe
			}
			return nil
		})
	case protocol.KindSet:
		op = "failed to set item"
		err = s.withStore(func(st Store) error {
			vs, err := st.Set(ctx, req.Key, req.Value)
			resp.Versionstamp = vs
			return err
		})
	case protocol.KindDelete:
		op = "failed to delete item"
		err = s.withStore(func(st Store) error {
			return st.Delete(ctx, req.Key)
		})
	case protocol.KindChangeDatabase:
		op = "failed to change database"
		loc := ""
		if req.Database != nil {
			loc = *req.Database
		}
		var opened string
		opened, err = s.changeDatabase(ctx, loc)
		resp.Database = &opened
	default:
		return protocol.Fail(req, fmt.Sprintf("unsupported message type: %s", req.Kind)), http.StatusBadRequest
	}

	if err != nil {
		slog.Error(op, "id", req.ID, "kind", req.Kind, "error", err)
		return protocol.Fail(req, fmt.Sprintf("%s: %v", op, err)), errorStatus(err)
	}
	return resp, http.StatusOK
}

func (s *Server) pageLimit(requested int) int {
	if requested > 0 && requested < s.cfg.ListLimit {
		return requested
	}
	return s.cfg.ListLimit
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrEmptyKey),
		errors.Is(err, store.ErrInvalidCursor),
		errors.Is(err, store.ErrKeyTooLarge),
		errors.Is(err, store.ErrValueTooLarge),
		errors.Is(err, wire.ErrUnsupportedType):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"kvview/pkg/config"
	"kvview/pkg/kvkey"
	"kvview/pkg/protocol"
	"kvview/pkg/rpc"
	"kvview/pkg/store"
)

// fakeStore wraps an in-memory store and records Close calls. getGate, when
// set, blocks Get until it is closed.
type fakeStore struct {
	*store.Store
	name    string
	closed  atomic.Bool
	getErr  error
	getGate chan struct{}
	inGet   chan struct{}
}

func newFakeStore(name string) *fakeStore {
	return &fakeStore{Store: store.OpenMemory(store.Options{}), name: name}
}

func (f *fakeStore) Path() string { return f.name }

func (f *fakeStore) Get(ctx context.Context, key kvkey.Key) (store.Entry, bool, error) {
	if f.inGet != nil {
		f.inGet <- struct{}{}
	}
	if f.getGate != nil {
		<-f.getGate
	}
	if f.closed.Load() {
		return store.Entry{}, false, store.ErrClosed
	}
	if f.getErr != nil {
		return store.Entry{}, false, f.getErr
	}
	return f.Store.Get(ctx, key)
}

func (f *fakeStore) Close() error {
	f.closed.Store(true)
	return f.Store.Close()
}

type fakeOpener struct {
	mu     sync.Mutex
	stores map[string]*fakeStore
	opened []string
}

func (o *fakeOpener) open(ctx context.Context, loc string) (Store, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if loc == "broken" {
		return nil, errors.New("cannot open broken")
	}
	o.opened = append(o.opened, loc)
	if st, ok := o.stores[loc]; ok {
		return st, nil
	}
	return newFakeStore(loc), nil
}

func newTestServer(t *testing.T, stores map[string]*fakeStore) *Server {
	t.Helper()
	opener := &fakeOpener{stores: stores}
	s := NewServer(opener.open, config.Default().Server)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s
}

func post(t *testing.T, s *Server, req protocol.Request) (protocol.Response, int) {
	t.Helper()
	body, err := protocol.EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)))

	resp, err := protocol.DecodeResponse(rr.Body.Bytes())
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v, body=%s", err, rr.Body.String())
	}
	if resp.ID != req.ID {
		t.Fatalf("expected id %d, got %d", req.ID, resp.ID)
	}
	return resp, rr.Code
}

func decodeResp(t *testing.T, rr *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response JSON: %v, body=%s", err, rr.Body.String())
	}
	return resp
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t, nil)
	rr := httptest.NewRecorder()

	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if resp := decodeResp(t, rr); resp.Status != StatusOK {
		t.Fatalf("expected status %s, got %s", StatusOK, resp.Status)
	}
}

func TestSetGetListDeleteFlow(t *testing.T) {
	s := newTestServer(t, nil)
	k := kvkey.Key{kvkey.String("user"), kvkey.Number(1)}

	resp, code := post(t, s, protocol.Request{ID: 1, Kind: protocol.KindSet, Key: k, Value: []byte{1, 2, 3}})
	if code != http.StatusOK || resp.Status != protocol.StatusOK || resp.Versionstamp == "" {
		t.Fatalf("set failed: %d %+v", code, resp)
	}

	resp, _ = post(t, s, protocol.Request{ID: 2, Kind: protocol.KindGet, Key: k})
	if resp.Entry == nil || resp.Entry.Versionstamp == "" {
		t.Fatalf("get returned no entry: %+v", resp)
	}
	if b, ok := resp.Entry.Value.([]byte); !ok || len(b) != 3 {
		t.Fatalf("bytes value lost: %#v", resp.Entry.Value)
	}

	resp, _ = post(t, s, protocol.Request{ID: 3, Kind: protocol.KindList, Key: kvkey.Key{kvkey.String("user")}})
	if len(resp.Entries) != 1 || !resp.Entries[0].Key.Equal(k) {
		t.Fatalf("unexpected list response %+v", resp)
	}

	resp, code = post(t, s, protocol.Request{ID: 4, Kind: protocol.KindDelete, Key: k})
	if code != http.StatusOK || resp.Status != protocol.StatusOK {
		t.Fatalf("delete failed: %d %+v", code, resp)
	}
	resp, _ = post(t, s, protocol.Request{ID: 5, Kind: protocol.KindGet, Key: k})
	if resp.Entry != nil {
		t.Fatalf("expected no entry after delete, got %+v", resp.Entry)
	}

	// deleting again is a no-op
	if resp, code = post(t, s, protocol.Request{ID: 6, Kind: protocol.KindDelete, Key: k}); code != http.StatusOK {
		t.Fatalf("second delete failed: %d %+v", code, resp)
	}
}

func TestListUsesPageLimit(t *testing.T) {
	cfg := config.Default().Server
	cfg.ListLimit = 3
	opener := &fakeOpener{}
	s := NewServer(opener.open, cfg)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		post(t, s, protocol.Request{ID: uint64(i + 1), Kind: protocol.KindSet, Key: kvkey.Key{kvkey.Number(i)}, Value: "v"})
	}

	resp, _ := post(t, s, protocol.Request{ID: 10, Kind: protocol.KindList, Limit: 50})
	if len(resp.Entries) != 3 || resp.Cursor == "" {
		t.Fatalf("expected 3 entries and a cursor, got %d and %q", len(resp.Entries), resp.Cursor)
	}
	resp, _ = post(t, s, protocol.Request{ID: 11, Kind: protocol.KindList, Limit: 50, Cursor: resp.Cursor})
	if len(resp.Entries) != 2 || resp.Cursor != "" {
		t.Fatalf("expected the last 2 entries, got %d and %q", len(resp.Entries), resp.Cursor)
	}
	resp, _ = post(t, s, protocol.Request{ID: 12, Kind: protocol.KindList, Limit: 1})
	if len(resp.Entries) != 1 {
		t.Fatalf("expected 1 entry for a smaller requested limit, got %d", len(resp.Entries))
	}
}

func TestStoreErrorIsFailureResponse(t *testing.T) {
	def := newFakeStore("default")
	def.getErr = errors.New("disk on fire")
	s := newTestServer(t, map[string]*fakeStore{"": def})

	resp, code := post(t, s, protocol.Request{ID: 7, Kind: protocol.KindGet, Key: kvkey.Key{kvkey.String("a")}})
	if code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", code)
	}
	if resp.Status != protocol.StatusError || resp.Error != "failed to get item: disk on fire" {
		t.Fatalf("unexpected failure response %+v", resp)
	}

	// the server keeps serving
	resp, code = post(t, s, protocol.Request{ID: 8, Kind: protocol.KindSet, Key: kvkey.Key{kvkey.String("a")}, Value: 1.0})
	if code != http.StatusOK || resp.Status != protocol.StatusOK {
		t.Fatalf("set after failure: %d %+v", code, resp)
	}
}

func TestEmptyKeyIsBadRequest(t *testing.T) {
	s := newTestServer(t, nil)

	resp, code := post(t, s, protocol.Request{ID: 1, Kind: protocol.KindSet, Key: kvkey.Key{}, Value: "x"})
	if code != http.StatusBadRequest || !strings.HasPrefix(resp.Error, "failed to set item: ") {
		t.Fatalf("unexpected response %d %+v", code, resp)
	}
}

func TestOnlyPostIsSupported(t *testing.T) {
	s := newTestServer(t, nil)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(method, "/", nil))

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", method, rr.Code)
		}
		if resp := decodeResp(t, rr); resp.Error != "Only POST is supported" {
			t.Fatalf("%s: unexpected error %q", method, resp.Error)
		}
	}
}

func TestPreflight(t *testing.T) {
	s := newTestServer(t, nil)
	rr := httptest.NewRecorder()

	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/", nil))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	h := rr.Header()
	if h.Get("Access-Control-Allow-Origin") != "*" ||
		h.Get("Access-Control-Allow-Methods") != "POST, OPTIONS" ||
		h.Get("Access-Control-Allow-Headers") != "Content-Type" {
		t.Fatalf("unexpected preflight headers %v", h)
	}
}

func TestMalformedRequests(t *testing.T) {
	s := newTestServer(t, nil)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{nope")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for garbage, got %d", rr.Code)
	}
	if resp := decodeResp(t, rr); !strings.HasPrefix(resp.Error, "invalid request: ") {
		t.Fatalf("unexpected error %q", resp.Error)
	}

	// readable id and kind get a protocol failure
	rr = httptest.NewRecorder()
	body := `{"json":{"id":4,"type":"get"}}`
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	resp, err := protocol.DecodeResponse(rr.Body.Bytes())
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if rr.Code != http.StatusBadRequest || resp.ID != 4 || resp.Status != protocol.StatusError {
		t.Fatalf("unexpected response %d %+v", rr.Code, resp)
	}

	// message and config are answered by the host, not the proxy
	presp, code := post(t, s, protocol.Request{ID: 9, Kind: protocol.KindMessage, Message: "hi"})
	if code != http.StatusBadRequest || presp.Error != "unsupported message type: message" {
		t.Fatalf("unexpected response %d %+v", code, presp)
	}
}

func TestBodyLimit(t *testing.T) {
	cfg := config.Default().Server
	cfg.MaxBodyBytes = 16
	opener := &fakeOpener{}
	s := NewServer(opener.open, cfg)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64))))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

func TestChangeDatabase(t *testing.T) {
	def := newFakeStore("default")
	other := newFakeStore("other")
	s := newTestServer(t, map[string]*fakeStore{"": def, "other": other})

	loc := "other"
	resp, code := post(t, s, protocol.Request{ID: 1, Kind: protocol.KindChangeDatabase, Database: &loc})
	if code != http.StatusOK || resp.Database == nil || *resp.Database != "other" {
		t.Fatalf("change failed: %d %+v", code, resp)
	}
	if !def.closed.Load() {
		t.Fatal("previous store was not closed")
	}
	if s.Locator() != "other" {
		t.Fatalf("expected current locator other, got %q", s.Locator())
	}

	post(t, s, protocol.Request{ID: 2, Kind: protocol.KindSet, Key: kvkey.Key{kvkey.String("k")}, Value: "v"})
	if _, found, _ := other.Store.Get(context.Background(), kvkey.Key{kvkey.String("k")}); !found {
		t.Fatal("write did not reach the new store")
	}

	bad := "broken"
	resp, code = post(t, s, protocol.Request{ID: 3, Kind: protocol.KindChangeDatabase, Database: &bad})
	if code != http.StatusInternalServerError || resp.Error != "failed to change database: cannot open broken" {
		t.Fatalf("expected failure, got %d %+v", code, resp)
	}
	if s.Locator() != "other" || other.closed.Load() {
		t.Fatal("failed change must keep the current store")
	}

	// absent locator goes back to the default store
	resp, _ = post(t, s, protocol.Request{ID: 4, Kind: protocol.KindChangeDatabase})
	if resp.Database == nil || *resp.Database != "" || s.Locator() != "" {
		t.Fatalf("expected default locator, got %+v", resp)
	}
}

func TestChangeDatabaseWaitsForInflightCalls(t *testing.T) {
	def := newFakeStore("default")
	def.getGate = make(chan struct{})
	def.inGet = make(chan struct{}, 1)
	if _, err := def.Store.Set(context.Background(), kvkey.Key{kvkey.String("k")}, "old"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s := newTestServer(t, map[string]*fakeStore{"": def})

	got := make(chan protocol.Response, 1)
	go func() {
		resp, _ := post(t, s, protocol.Request{ID: 1, Kind: protocol.KindGet, Key: kvkey.Key{kvkey.String("k")}})
		got <- resp
	}()
	<-def.inGet

	changed := make(chan struct{})
	go func() {
		loc := ":memory:"
		post(t, s, protocol.Request{ID: 2, Kind: protocol.KindChangeDatabase, Database: &loc})
		close(changed)
	}()

	// the swap is published but the old store stays open for the pending get
	for s.Locator() != ":memory:" {
		runtime.Gosched()
	}
	if def.closed.Load() {
		t.Fatal("old store closed under an in-flight call")
	}

	close(def.getGate)
	resp := <-got
	<-changed
	if resp.Entry == nil || resp.Entry.Value != "old" {
		t.Fatalf("in-flight get should complete against the old store, got %+v", resp)
	}
	if !def.closed.Load() {
		t.Fatal("old store was not closed after the in-flight call finished")
	}
}

func TestStartServesOverTCP(t *testing.T) {
	opener := &fakeOpener{}
	s := NewServer(opener.open, config.Default().Server)
	port, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	if port == 0 || s.Port() != port {
		t.Fatalf("expected a bound port, got %d", port)
	}

	c := rpc.NewClient("http://127.0.0.1:" + strconv.Itoa(port))
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	resp, err := c.Do(context.Background(), protocol.Request{Kind: protocol.KindSet, Key: kvkey.Key{kvkey.Bool(true)}, Value: nil})
	if err != nil || resp.Versionstamp == "" {
		t.Fatalf("set over TCP failed: %+v (err=%v)", resp, err)
	}
}

func TestStopClosesStore(t *testing.T) {
	def := newFakeStore("default")
	s := newTestServer(t, map[string]*fakeStore{"": def})

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !def.closed.Load() {
		t.Fatal("store not closed on Stop")
	}
	resp, code := post(t, s, protocol.Request{ID: 1, Kind: protocol.KindGet, Key: kvkey.Key{kvkey.String("a")}})
	if code != http.StatusInternalServerError || resp.Status != protocol.StatusError {
		t.Fatalf("expected failure after Stop, got %d %+v", code, resp)
	}
}

func TestChangeDatabaseChecksRemoteEndpoint(t *testing.T) {
	cfg := config.Default()
	s := NewServer(NewOpener(config.DBConfig{Path: t.TempDir()}, cfg.Remote), cfg.Server)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Stop()

	k := kvkey.Key{kvkey.String("k")}
	if _, code := post(t, s, protocol.Request{ID: 1, Kind: protocol.KindSet, Key: k, Value: "local"}); code != http.StatusOK {
		t.Fatalf("Set failed: %d", code)
	}

	// nothing listens on a closed server's address any more
	gone := httptest.NewServer(http.NotFoundHandler())
	gone.Close()
	resp, code := post(t, s, protocol.Request{ID: 2, Kind: protocol.KindChangeDatabase, Database: &gone.URL})
	if code == http.StatusOK || !strings.HasPrefix(resp.Error, "failed to change database: connect to "+gone.URL) {
		t.Fatalf("expected failure for unreachable remote, got %d %+v", code, resp)
	}
	if s.Locator() != "" {
		t.Fatalf("failed change moved the locator to %q", s.Locator())
	}
	resp, code = post(t, s, protocol.Request{ID: 3, Kind: protocol.KindGet, Key: k})
	if code != http.StatusOK || resp.Entry == nil || resp.Entry.Value != "local" {
		t.Fatalf("current store lost after failed change: %d %+v", code, resp)
	}

	// a live endpoint is accepted
	backend := NewServer(func(ctx context.Context, loc string) (Store, error) {
		return store.OpenMemory(store.Options{}), nil
	}, cfg.Server)
	if err := backend.Open(context.Background()); err != nil {
		t.Fatalf("backend Open failed: %v", err)
	}
	defer backend.Stop()
	live := httptest.NewServer(backend.Handler())
	defer live.Close()

	resp, code = post(t, s, protocol.Request{ID: 4, Kind: protocol.KindChangeDatabase, Database: &live.URL})
	if code != http.StatusOK || s.Locator() != live.URL {
		t.Fatalf("change to live remote failed: %d %+v", code, resp)
	}
	if _, code := post(t, s, protocol.Request{ID: 5, Kind: protocol.KindSet, Key: k, Value: "remote"}); code != http.StatusOK {
		t.Fatalf("Set through remote failed: %d", code)
	}
}

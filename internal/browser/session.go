// Package browser is the list and item flow of the viewer. Every user action
// becomes one protocol call; results land in page state and status banners.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kvview/pkg/locator"
	"kvview/pkg/protocol"
)

var (
	ErrKeyEmpty     = errors.New("Key is empty")
	ErrInvalidValue = errors.New("invalid value")
)

const defaultPreviewWidth = 60

// Caller performs one correlated protocol call.
type Caller interface {
	Call(ctx context.Context, req protocol.Request) (protocol.Response, error)
}

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// Banner is an inline status line.
type Banner struct {
	Level   Level
	Message string
}

type Option func(*Session)

// WithClock replaces the time source used in success banners.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithPreviewWidth limits list value previews to n runes.
func WithPreviewWidth(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.previewWidth = n
		}
	}
}

// Session holds the active database and the two pages.
type Session struct {
	caller       Caller
	now          func() time.Time
	previewWidth int

	display  protocol.Display
	database string

	list *ListPage
	item *ItemPage
}

func NewSession(caller Caller, opts ...Option) *Session {
	s := &Session{
		caller:       caller,
		now:          time.Now,
		previewWidth: defaultPreviewWidth,
		display:      protocol.Display{PreviewValue: true, PageSize: 100},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.list = &ListPage{s: s}
	s.item = &ItemPage{s: s}
	s.item.New()
	return s
}

func (s *Session) List() *ListPage { return s.list }
func (s *Session) Item() *ItemPage { return s.item }

func (s *Session) Display() protocol.Display { return s.display }

// LoadConfig fetches the display configuration.
func (s *Session) LoadConfig(ctx context.Context) (protocol.Display, error) {
	resp, err := s.caller.Call(ctx, protocol.Request{Kind: protocol.KindConfig})
	if err != nil {
		return s.display, fmt.Errorf("load display config: %w", err)
	}
	if resp.Display != nil {
		s.display = *resp.Display
	}
	return s.display, nil
}

// ChangeDatabase switches the backing database. A nil loc lets the host ask
// the user. changed is false when the user dismissed the question.
func (s *Session) ChangeDatabase(ctx context.Context, loc *string) (changed bool, err error) {
	resp, err := s.caller.Call(ctx, protocol.Request{Kind: protocol.KindChangeDatabase, Database: loc})
	if err != nil {
		return false, err
	}
	if resp.Cancelled {
		return false, nil
	}
	s.database = ""
	if resp.Database != nil {
		s.database = *resp.Database
	}
	s.list.reset(s.list.Prefix)
	s.item.New()
	return true, nil
}

// Database is the locator of the active database; empty is the default one.
func (s *Session) Database() string { return s.database }

func (s *Session) DatabaseLabel() string { return locator.Label(s.database) }

// Notify shows msg as a host notification.
func (s *Session) Notify(ctx context.Context, msg string) error {
	_, err := s.caller.Call(ctx, protocol.Request{Kind: protocol.KindMessage, Message: msg})
	return err
}

func (s *Session) stamp(msg string) Banner {
	return Banner{Level: LevelSuccess, Message: msg + " : " + s.now().Format(time.RFC1123)}
}

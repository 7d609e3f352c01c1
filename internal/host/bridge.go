// Package host sits between the browser and the proxy server. It answers
// message and config requests itself, asks the user for a database when a
// change request carries none, and forwards everything else to the proxy.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"kvview/pkg/listener"
	"kvview/pkg/locator"
	"kvview/pkg/protocol"
)

const (
	PromptText   = "Enter KV database file path / URL / UUID (Empty to use default)"
	NoticePrefix = "KV Viewer: "
)

// Proxy executes a request against the proxy server.
type Proxy interface {
	Do(ctx context.Context, req protocol.Request) (protocol.Response, error)
}

// Notifier shows transient notifications to the user.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

// Prompter asks the user for a line of text. ok is false when the user
// dismissed the prompt.
type Prompter interface {
	Prompt(ctx context.Context, question string) (answer string, ok bool, err error)
}

type Options struct {
	Display  protocol.Display
	Resolver locator.Resolver
	// Inbox is the capacity of the request channel.
	Inbox int
}

// Bridge receives encoded requests on its inbox and posts encoded responses
// back. Requests are handled concurrently; each response carries the ID of
// its request.
type Bridge struct {
	proxy    Proxy
	notify   Notifier
	prompt   Prompter
	post     func(frame []byte)
	display  protocol.Display
	resolver locator.Resolver

	inbox    chan []byte
	listener *listener.Listener[[]byte]
	wg       sync.WaitGroup
}

func NewBridge(proxy Proxy, notify Notifier, prompt Prompter, post func([]byte), opts Options) *Bridge {
	if opts.Resolver.ConnectURL == "" {
		opts.Resolver = locator.NewResolver("")
	}
	b := &Bridge{
		proxy:    proxy,
		notify:   notify,
		prompt:   prompt,
		post:     post,
		display:  opts.Display,
		resolver: opts.Resolver,
		inbox:    make(chan []byte, opts.Inbox),
	}
	b.listener = listener.New[[]byte]("host", b.inbox, b.handleFrame, b.wg.Wait)
	return b
}

// Send queues an encoded request. It blocks until the bridge takes it or ctx
// ends.
func (b *Bridge) Send(ctx context.Context, frame []byte) error {
	select {
	case b.inbox <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) Start(ctx context.Context) {
	b.listener.Start(ctx)
}

// Stop stops taking requests and waits for the ones in progress.
func (b *Bridge) Stop() {
	b.listener.Stop()
}

func (b *Bridge) handleFrame(ctx context.Context, frame []byte) error {
	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		if req.Kind != "" {
			b.reply(protocol.Fail(req, "invalid request: "+err.Error()))
		}
		return fmt.Errorf("decode request: %w", err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.reply(b.Handle(ctx, req))
	}()
	return nil
}

func (b *Bridge) reply(resp protocol.Response) {
	frame, err := protocol.EncodeResponse(resp)
	if err != nil {
		slog.Error("failed to encode response", "id", resp.ID, "kind", resp.Kind, "error", err)
		frame, _ = protocol.EncodeResponse(protocol.Fail(protocol.Request{ID: resp.ID, Kind: resp.Kind}, err.Error()))
	}
	b.post(frame)
}

// Handle answers one request.
func (b *Bridge) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	slog.Debug("host request", "id", req.ID, "kind", req.Kind)

	switch req.Kind {
	case protocol.KindMessage:
		b.notify.Info(req.Message)
		return protocol.OK(req)
	case protocol.KindConfig:
		resp := protocol.OK(req)
		display := b.display
		resp.Display = &display
		return resp
	case protocol.KindChangeDatabase:
		return b.changeDatabase(ctx, req)
	default:
		return b.forward(ctx, req)
	}
}

func (b *Bridge) changeDatabase(ctx context.Context, req protocol.Request) protocol.Response {
	if req.Database == nil {
		answer, ok, err := b.prompt.Prompt(ctx, PromptText)
		if err != nil {
			return b.fail(req, fmt.Errorf("prompt for database: %w", err))
		}
		if !ok {
			resp := protocol.OK(req)
			resp.Cancelled = true
			return resp
		}
		req.Database = &answer
	}

	resolved := b.resolver.Resolve(*req.Database)
	req.Database = &resolved
	return b.forward(ctx, req)
}

func (b *Bridge) forward(ctx context.Context, req protocol.Request) protocol.Response {
	resp, err := b.proxy.Do(ctx, req)
	if err != nil {
		return b.fail(req, err)
	}
	resp.ID = req.ID
	return resp
}

func (b *Bridge) fail(req protocol.Request, err error) protocol.Response {
	var remote *protocol.RemoteError
	msg := err.Error()
	if errors.As(err, &remote) {
		msg = remote.Message
	}
	slog.Error("request failed", "id", req.ID, "kind", req.Kind, "error", err)
	b.notify.Error(NoticePrefix + msg)
	return protocol.Fail(req, msg)
}

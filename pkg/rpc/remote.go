package rpc

import (
	"context"

	"kvview/pkg/kvkey"
	"kvview/pkg/protocol"
	"kvview/pkg/store"
)

// RemoteStore is a store reached through a protocol endpoint. It is what a
// URL locator opens.
type RemoteStore struct {
	client *Client
}

func NewRemoteStore(url string, opts ...Option) *RemoteStore {
	return &RemoteStore{client: NewClient(url, opts...)}
}

// Ping lists a single entry to check that the endpoint answers the protocol
// and accepts the access token.
func (s *RemoteStore) Ping(ctx context.Context) error {
	_, err := s.client.Do(ctx, protocol.Request{Kind: protocol.KindList, Limit: 1})
	return err
}

func (s *RemoteStore) Path() string {
	return s.client.URL()
}

func (s *RemoteStore) List(ctx context.Context, prefix kvkey.Key, opts store.ListOptions) (store.Page, error) {
	resp, err := s.client.Do(ctx, protocol.Request{
		Kind:   protocol.KindList,
		Key:    prefix,
		Limit:  opts.Limit,
		Cursor: opts.Cursor,
	})
	if err != nil {
		return store.Page{}, err
	}

	page := store.Page{Entries: make([]store.Entry, 0, len(resp.Entries)), Cursor: resp.Cursor}
	for _, e := range resp.Entries {
		page.Entries = append(page.Entries, store.Entry(e))
	}
	return page, nil
}

func (s *RemoteStore) Get(ctx context.Context, key kvkey.Key) (store.Entry, bool, error) {
	resp, err := s.client.Do(ctx, protocol.Request{Kind: protocol.KindGet, Key: key})
	if err != nil {
		return store.Entry{}, false, err
	}
	if resp.Entry == nil {
		return store.Entry{}, false, nil
	}
	return store.Entry(*resp.Entry), true, nil
}

func (s *RemoteStore) Set(ctx context.Context, key kvkey.Key, value any) (string, error) {
	resp, err := s.client.Do(ctx, protocol.Request{Kind: protocol.KindSet, Key: key, Value: value})
	if err != nil {
		return "", err
	}
	return resp.Versionstamp, nil
}

func (s *RemoteStore) Delete(ctx context.Context, key kvkey.Key) error {
	_, err := s.client.Do(ctx, protocol.Request{Kind: protocol.KindDelete, Key: key})
	return err
}

func (s *RemoteStore) Close() error { return nil }

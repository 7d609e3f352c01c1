package http

import (
	"context"
	"fmt"
	"log/slog"

	"kvview/pkg/config"
	"kvview/pkg/locator"
	"kvview/pkg/rpc"
	"kvview/pkg/store"
)

// Opener opens the store a locator names.
type Opener func(ctx context.Context, loc string) (Store, error)

// NewOpener opens the configured default store for the empty locator, an
// in-memory store for ":memory:", a remote store for URLs and a local store
// directory for anything else. The access token is read again on every open,
// and a remote store is only returned once its endpoint has answered.
func NewOpener(db config.DBConfig, remote config.RemoteConfig) Opener {
	opts := store.Options{Sync: db.Sync}

	return func(ctx context.Context, loc string) (Store, error) {
		switch {
		case loc == "":
			return openLocal(db.Path, opts)
		case loc == locator.Memory:
			return store.OpenMemory(opts), nil
		case locator.IsRemote(loc):
			token := remote.AccessToken()
			if token == "" {
				slog.Warn("no access token for remote database", "env", remote.AccessTokenEnv)
			}
			st := rpc.NewRemoteStore(loc,
				rpc.WithTimeout(remote.Timeout),
				rpc.WithToken(func() string { return token }),
			)
			if err := st.Ping(ctx); err != nil {
				return nil, fmt.Errorf("connect to %s: %w", loc, err)
			}
			return st, nil
		default:
			return openLocal(loc, opts)
		}
	}
}

func openLocal(dir string, opts store.Options) (Store, error) {
	st, err := store.Open(dir, opts)
	if err != nil {
		return nil, err
	}
	return st, nil
}

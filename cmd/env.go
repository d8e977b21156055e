package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/voicebridge/leadlink/internal/match"
	"github.com/voicebridge/leadlink/internal/store"
	"github.com/voicebridge/leadlink/pkg/voiceapi"
)

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}

	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leadlink.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// linkEnv bundles the collaborators every linking command needs.
type linkEnv struct {
	Store  store.Store
	Voice  voiceapi.Client
	Linker *match.Linker
}

// initLinkEnv opens the store, builds the voice API client, and wires the
// linker. The store is migrated so commands can run against a fresh database.
func initLinkEnv(ctx context.Context) (*linkEnv, error) {
	if err := cfg.Validate("link"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	var opts []voiceapi.Option
	if cfg.Voice.BaseURL != "" {
		opts = append(opts, voiceapi.WithBaseURL(cfg.Voice.BaseURL))
	}
	voice := voiceapi.NewClient(cfg.Voice.Key, opts...)

	return &linkEnv{
		Store:  st,
		Voice:  voice,
		Linker: match.NewLinker(voice, st, cfg.Match),
	}, nil
}

// Close releases the environment's resources.
func (e *linkEnv) Close() {
	if e.Store != nil {
		e.Store.Close() //nolint:errcheck
	}
}

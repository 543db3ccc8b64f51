package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/danielpatrickdp/trichter/internal/config"
	"github.com/danielpatrickdp/trichter/internal/ledger"
	"github.com/danielpatrickdp/trichter/internal/ledger/badgersink"
	"github.com/danielpatrickdp/trichter/internal/ledger/sqlitesink"
	"github.com/danielpatrickdp/trichter/internal/logging"
	"github.com/danielpatrickdp/trichter/internal/storage"
	"github.com/danielpatrickdp/trichter/internal/storage/remote"
)

// #region storage

// openBackend builds the configured output backend wrapped in retries.
func openBackend(ctx context.Context, cfg *config.Config) (storage.Backend, func() error, error) {
	var (
		b       storage.Backend
		closeFn = func() error { return nil }
	)
	switch cfg.Storage.Backend {
	case storage.TypeMemory:
		m := storage.NewMemory()
		b, closeFn = m, m.Close
	case storage.TypeSQLite:
		store, err := sqlitesink.Open(cfg.Storage.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open storage db: %w", err)
		}
		s, err := storage.NewSQLite(store.DB(), cfg.Storage.FireOnly)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		b, closeFn = s, store.Close
	case storage.TypeRemote:
		c, err := remote.NewClient(cfg.Storage.Address)
		if err != nil {
			return nil, nil, err
		}
		if ok, err := c.HealthCheck(ctx); !ok {
			c.Close()
			return nil, nil, fmt.Errorf("remote storage %s not serving: %v", cfg.Storage.Address, err)
		}
		b, closeFn = c, c.Close
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	return storage.WithRetry(b, cfg.RetryConfig()), closeFn, nil
}

// #endregion storage

// #region ledgers

// chainSink is a named persisted chain.
type chainSink interface {
	ledger.Sink
	ledger.Loader
}

// ledgerStore opens named chains. db is non-nil only for sqlite and carries
// the provenance log.
type ledgerStore struct {
	open  func(name string) chainSink
	list  func(ctx context.Context) ([]sqlitesink.LedgerHead, error)
	db    *sql.DB
	close func() error
}

// openLedgers returns nil when ledger.backend is "none".
func openLedgers(ctx context.Context, cfg *config.Config) (*ledgerStore, error) {
	switch cfg.Ledger.Backend {
	case "none":
		return nil, nil
	case "sqlite":
		s, err := sqlitesink.Open(cfg.Ledger.Path)
		if err != nil {
			return nil, err
		}
		if err := logging.EnsureSchema(ctx, s.DB()); err != nil {
			s.Close()
			return nil, err
		}
		return &ledgerStore{
			open:  func(name string) chainSink { return s.Ledger(name) },
			list:  s.Ledgers,
			db:    s.DB(),
			close: s.Close,
		}, nil
	case "badger":
		s, err := badgersink.Open(badgersink.DefaultConfig(cfg.Ledger.Path))
		if err != nil {
			return nil, err
		}
		return &ledgerStore{
			open:  func(name string) chainSink { return s.Ledger(name) },
			close: s.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
}

// #endregion ledgers

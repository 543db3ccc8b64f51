// Package badgersink persists a hash chain in BadgerDB.
//
// Key layout per ledger name:
//
//	<name>/commit/<seq, 20 digits>  -> JSON CommitData
//	<name>/head                      -> hex hash of the latest commit
package badgersink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/danielpatrickdp/trichter/internal/ledger"
)

// Config configures the BadgerDB instance.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory disables disk persistence. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger
}

// DefaultConfig returns a durable on-disk configuration.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store wraps one BadgerDB holding any number of named chains.
type Store struct {
	db *badger.DB
}

// Open opens or creates the database.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Sink is one named chain inside a Store.
type Sink struct {
	db   *badger.DB
	name string
}

// Ledger returns the sink for the named chain.
func (s *Store) Ledger(name string) *Sink {
	return &Sink{db: s.db, name: name}
}

func (k *Sink) headKey() []byte {
	return []byte(k.name + "/head")
}

func (k *Sink) commitPrefix() []byte {
	return []byte(k.name + "/commit/")
}

func (k *Sink) commitKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s/commit/%020d", k.name, seq))
}

// Put writes the commit and head in one transaction, refusing commits that
// do not extend the stored head.
func (k *Sink) Put(ctx context.Context, c ledger.CommitData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal commit: %w", err)
	}

	return k.db.Update(func(txn *badger.Txn) error {
		head := ledger.Hash{}.String()
		item, err := txn.Get(k.headKey())
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return fmt.Errorf("get head: %w", err)
		default:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read head: %w", err)
			}
			head = string(raw)
		}
		if head != c.PrevHash.String() {
			return fmt.Errorf("commit seq %d does not extend head %s", c.Seq, head)
		}

		if err := txn.Set(k.commitKey(c.Seq), data); err != nil {
			return fmt.Errorf("set commit: %w", err)
		}
		if err := txn.Set(k.headKey(), []byte(c.Hash.String())); err != nil {
			return fmt.Errorf("set head: %w", err)
		}
		return nil
	})
}

// Load returns the chain's commits in sequence order.
func (k *Sink) Load(ctx context.Context) ([]ledger.CommitData, error) {
	var out []ledger.CommitData
	err := k.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = k.commitPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var cd ledger.CommitData
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &cd)
			}); err != nil {
				return fmt.Errorf("decode commit: %w", err)
			}
			out = append(out, cd)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load commits: %w", err)
	}
	return out, nil
}

package sqlitesink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/trichter/internal/ledger"
	"github.com/danielpatrickdp/trichter/internal/logging"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS commits (
	ledger        TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	hash          TEXT NOT NULL,
	prev_hash     TEXT NOT NULL,
	payload_json  TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	PRIMARY KEY (ledger, seq)
);

CREATE TABLE IF NOT EXISTS chain_head (
	ledger        TEXT PRIMARY KEY,
	seq           INTEGER NOT NULL,
	hash          TEXT NOT NULL,
	FOREIGN KEY (ledger, seq) REFERENCES commits(ledger, seq)
);
`

// #endregion schema

// #region store-struct
// Store keeps any number of named hash chains in one SQLite database.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// Open opens a SQLite database and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection serializes writers across ledgers and keeps ":memory:"
	// databases from splitting per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := logging.EnsureSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database, shared with the provenance log.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region ledger-sink
// Sink is one named chain inside a Store.
type Sink struct {
	store *Store
	name  string
}

// Ledger returns the sink for the named chain.
func (s *Store) Ledger(name string) *Sink {
	return &Sink{store: s, name: name}
}

// Put appends a commit and moves the head pointer atomically. It refuses
// commits that do not extend the stored head.
func (k *Sink) Put(ctx context.Context, c ledger.CommitData) error {
	payloadJSON, err := json.Marshal(c.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	tx, err := k.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var headHash string
	err = tx.QueryRowContext(ctx, `SELECT hash FROM chain_head WHERE ledger = ?`, k.name).Scan(&headHash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		headHash = ledger.Hash{}.String()
	case err != nil:
		return fmt.Errorf("get head: %w", err)
	}
	if headHash != c.PrevHash.String() {
		return fmt.Errorf("commit seq %d does not extend head %s", c.Seq, headHash)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO commits (ledger, seq, hash, prev_hash, payload_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		k.name, c.Seq, c.Hash.String(), c.PrevHash.String(), string(payloadJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert commit: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chain_head (ledger, seq, hash) VALUES (?, ?, ?)
		 ON CONFLICT(ledger) DO UPDATE SET seq = excluded.seq, hash = excluded.hash`,
		k.name, c.Seq, c.Hash.String(),
	)
	if err != nil {
		return fmt.Errorf("set head: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns the chain's commits in sequence order.
func (k *Sink) Load(ctx context.Context) ([]ledger.CommitData, error) {
	rows, err := k.store.db.QueryContext(ctx,
		`SELECT seq, hash, prev_hash, payload_json FROM commits WHERE ledger = ? ORDER BY seq ASC`, k.name,
	)
	if err != nil {
		return nil, fmt.Errorf("load commits: %w", err)
	}
	defer rows.Close()

	var out []ledger.CommitData
	for rows.Next() {
		var cd ledger.CommitData
		var hash, prev, payloadJSON string
		if err := rows.Scan(&cd.Seq, &hash, &prev, &payloadJSON); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if cd.Hash, err = ledger.ParseHash(hash); err != nil {
			return nil, err
		}
		if cd.PrevHash, err = ledger.ParseHash(prev); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payloadJSON), &cd.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		out = append(out, cd)
	}
	return out, rows.Err()
}

// #endregion ledger-sink

// #region list-ledgers
// LedgerHead summarizes one stored chain.
type LedgerHead struct {
	Name string
	Seq  uint64
	Hash string
}

// Ledgers lists every chain with its head.
func (s *Store) Ledgers(ctx context.Context) ([]LedgerHead, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ledger, seq, hash FROM chain_head ORDER BY ledger`)
	if err != nil {
		return nil, fmt.Errorf("list ledgers: %w", err)
	}
	defer rows.Close()

	var out []LedgerHead
	for rows.Next() {
		var h LedgerHead
		if err := rows.Scan(&h.Name, &h.Seq, &h.Hash); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// #endregion list-ledgers

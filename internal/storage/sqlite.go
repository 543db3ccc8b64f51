package storage

// #region imports
import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/danielpatrickdp/trichter/internal/cognitive"
	"github.com/danielpatrickdp/trichter/internal/gate"
	"github.com/danielpatrickdp/trichter/internal/metrics"
)

// #endregion

// #region schema
const outputsSchema = `
CREATE TABLE IF NOT EXISTS cognitive_outputs (
    id            TEXT PRIMARY KEY,
    tic_id        TEXT NOT NULL DEFAULT '',
    decision      TEXT NOT NULL,
    route_id      TEXT NOT NULL DEFAULT '',
    size_bytes    INTEGER NOT NULL,
    output_json   TEXT NOT NULL,
    created_at    TEXT NOT NULL
);
`

const outputsIndex = `
CREATE INDEX IF NOT EXISTS idx_cognitive_outputs_decision
ON cognitive_outputs(decision);
`

// #endregion schema

// #region sqlite-struct
// SQLite stores outputs in a cognitive_outputs table. With fireOnly set it
// acts as a ledger store and refuses HOLD outputs.
type SQLite struct {
	db        *sql.DB
	fireOnly  bool
	succeeded atomic.Uint64
	failed    atomic.Uint64
}

// NewSQLite creates the outputs table on db and returns a backend over it.
func NewSQLite(db *sql.DB, fireOnly bool) (*SQLite, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: nil database", ErrUnavailable)
	}
	if _, err := db.Exec(outputsSchema); err != nil {
		return nil, fmt.Errorf("migrate outputs: %w", err)
	}
	if _, err := db.Exec(outputsIndex); err != nil {
		return nil, fmt.Errorf("migrate outputs index: %w", err)
	}
	return &SQLite{db: db, fireOnly: fireOnly}, nil
}

// #endregion sqlite-struct

// #region store
// Store upserts the output keyed by its knowledge id, else SQL-<millis>-<uuid8>.
func (s *SQLite) Store(ctx context.Context, out *cognitive.Output) (string, error) {
	id, err := s.store(ctx, out)
	if err != nil {
		s.failed.Add(1)
		metrics.StorageWrites.WithLabelValues(TypeSQLite, metrics.ResultError).Inc()
		return "", err
	}
	s.succeeded.Add(1)
	metrics.StorageWrites.WithLabelValues(TypeSQLite, metrics.ResultOK).Inc()
	return id, nil
}

func (s *SQLite) store(ctx context.Context, out *cognitive.Output) (string, error) {
	if out == nil {
		return "", fmt.Errorf("%w: nil output", ErrInvalidData)
	}
	if s.fireOnly {
		if out.Decision != gate.Fire {
			return "", fmt.Errorf("%w: cannot store %s decision to ledger", ErrInvalidData, out.Decision)
		}
		if out.Knowledge == nil {
			return "", fmt.Errorf("%w: no knowledge object", ErrInvalidData)
		}
	}

	body, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("%w: encode output: %v", ErrInvalidData, err)
	}
	now := time.Now().UTC()
	id := fallbackID("SQL", now)
	var ticID string
	if out.Knowledge != nil && out.Knowledge.ID != "" {
		id = out.Knowledge.ID
		ticID = out.Knowledge.TicID
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cognitive_outputs
		(id, tic_id, decision, route_id, size_bytes, output_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tic_id = excluded.tic_id,
			decision = excluded.decision,
			route_id = excluded.route_id,
			size_bytes = excluded.size_bytes,
			output_json = excluded.output_json,
			created_at = excluded.created_at`,
		id,
		ticID,
		string(out.Decision),
		out.Route.ID,
		len(body),
		string(body),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert output %s: %w", id, err)
	}
	return id, nil
}

// #endregion store

// #region read
// Retrieve loads one output by id.
func (s *SQLite) Retrieve(ctx context.Context, id string) (*cognitive.Output, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT output_json FROM cognitive_outputs WHERE id = ?`, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query output %s: %w", id, err)
	}
	var out cognitive.Output
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, fmt.Errorf("decode output %s: %w", id, err)
	}
	return &out, nil
}

// HealthCheck pings the database.
func (s *SQLite) HealthCheck(ctx context.Context) (bool, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return false, nil
	}
	return true, nil
}

// Stats counts rows and bytes in the table. Write counters cover this
// process only.
func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		BackendType:      TypeSQLite,
		SuccessfulWrites: s.succeeded.Load(),
		FailedWrites:     s.failed.Load(),
	}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM cognitive_outputs`,
	).Scan(&st.TotalItems, &st.TotalSizeBytes)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}

// #endregion read

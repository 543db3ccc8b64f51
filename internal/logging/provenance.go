package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/trichter/internal/gate"
)

const provenanceSchema = `
CREATE TABLE IF NOT EXISTS provenance_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	tick          INTEGER NOT NULL,
	tick_time     REAL NOT NULL,
	decision      TEXT NOT NULL,
	reason        TEXT,
	commit_hash   TEXT,
	record_json   TEXT,
	created_at    TEXT NOT NULL
);`

// EnsureSchema creates provenance_log if the database does not have it yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, provenanceSchema); err != nil {
		return fmt.Errorf("create provenance_log: %w", err)
	}
	return nil
}

// #region log-decision
// LogDecision writes a provenance entry to the provenance_log table.
func LogDecision(ctx context.Context, db *sql.DB, entry ProvenanceEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var record string
	if entry.Record != nil {
		b, err := json.Marshal(entry.Record)
		if err != nil {
			return fmt.Errorf("marshal gate record: %w", err)
		}
		record = string(b)
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO provenance_log (run_id, tick, tick_time, decision, reason, commit_hash, record_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Tick,
		entry.TickTime,
		string(entry.Decision),
		nullIfEmpty(entry.Reason),
		nullIfEmpty(entry.CommitHash),
		nullIfEmpty(record),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion log-decision

// #region read
// Decisions returns a run's entries in tick order.
func Decisions(ctx context.Context, db *sql.DB, runID string) ([]ProvenanceEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT run_id, tick, tick_time, decision, reason, commit_hash, record_json, created_at
		 FROM provenance_log WHERE run_id = ? ORDER BY tick, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query provenance: %w", err)
	}
	defer rows.Close()

	var out []ProvenanceEntry
	for rows.Next() {
		var (
			e                      ProvenanceEntry
			decision, created      string
			reason, hash, recordJS sql.NullString
		)
		if err := rows.Scan(&e.RunID, &e.Tick, &e.TickTime, &decision, &reason, &hash, &recordJS, &created); err != nil {
			return nil, fmt.Errorf("scan provenance: %w", err)
		}
		e.Decision = gate.Action(decision)
		e.Reason = reason.String
		e.CommitHash = hash.String
		if recordJS.Valid {
			e.Record = &GateRecord{}
			if err := json.Unmarshal([]byte(recordJS.String), e.Record); err != nil {
				return nil, fmt.Errorf("unmarshal gate record (tick %d): %w", e.Tick, err)
			}
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion read

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers

package logging

import (
	"log/slog"
	"time"

	"github.com/danielpatrickdp/trichter/internal/gate"
)

// LevelTrace sits below debug and carries per-tick gate detail.
const LevelTrace = slog.LevelDebug - 4

// #region provenance-entry
// ProvenanceEntry is a single row in the provenance_log table.
type ProvenanceEntry struct {
	RunID      string
	Tick       int
	TickTime   float64
	Decision   gate.Action
	Reason     string
	CommitHash string // empty on HOLD
	Record     *GateRecord
	CreatedAt  time.Time
}

// #endregion provenance-entry

// #region gate-record
// GateRecord captures the complete gate evaluation for one tick.
// Serialized as JSON into provenance_log.record_json so a decision can be
// re-derived from the row alone.
type GateRecord struct {
	Policy string     `json:"policy"`
	Proof  gate.Proof `json:"proof"`

	// Gate thresholds active at decision time
	Thresholds gate.Config `json:"thresholds"`

	Failed []gate.Check `json:"failed,omitempty"`
}

// NewGateRecord builds the record for a proof evaluated under cfg.
func NewGateRecord(policy string, p gate.Proof, cfg gate.Config, d gate.Decision) *GateRecord {
	return &GateRecord{Policy: policy, Proof: p, Thresholds: cfg, Failed: d.Failed}
}

// Reevaluate runs the recorded proof through a gate built from the recorded
// thresholds.
func (r *GateRecord) Reevaluate() gate.Decision {
	return gate.NewGate(r.Thresholds).Evaluate(r.Proof)
}

// #endregion gate-record

package gate

import (
	"fmt"
	"math"
	"strings"

	"github.com/danielpatrickdp/trichter/internal/state"
)

// MaxPathInvariance bounds delta_pi for a proof to be considered valid.
const MaxPathInvariance = 100.0

// #region observation
// Observation is what the orchestrator measured around one graph step.
type Observation struct {
	T              float64
	CentroidBefore state.State5D
	CentroidAfter  state.State5D
	HadReference   bool // graph was non-empty before the step
	EnergyBefore   float64
	EnergyAfter    float64
}

// #endregion observation

// #region compute-proof
// ComputeProof derives delta_pi, phi and delta_v. delta_pi ignores omega,
// which advances with t on every tick.
func ComputeProof(obs Observation, field ResonanceField) Proof {
	before := state.ProjectState(obs.CentroidBefore)
	after := state.ProjectState(obs.CentroidAfter)

	p := Proof{
		DeltaPi: before.Distance(after),
		Phi:     field.Alignment(obs.T),
		DeltaV:  obs.EnergyAfter - obs.EnergyBefore,
	}
	p.Valid = obs.HadReference &&
		finite(p.DeltaPi) && finite(p.Phi) && finite(p.DeltaV) &&
		p.Phi > 0 &&
		p.DeltaPi < MaxPathInvariance
	return p
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// #endregion compute-proof

// #region gate
// Gate renders FIRE/HOLD decisions against a fixed config.
type Gate struct {
	config Config
}

// NewGate creates a gate with the given configuration.
func NewGate(config Config) *Gate {
	return &Gate{config: config}
}

// Config returns the thresholds in use.
func (g *Gate) Config() Config {
	return g.config
}

// Evaluate fires only when every condition holds. Comparisons use
// state.Tolerance so values sitting on a threshold do not flap.
func (g *Gate) Evaluate(p Proof) Decision {
	var failed []Check

	if !p.Valid {
		failed = append(failed, Check{Type: CheckValidity, Reason: "proof not valid"})
	}
	if !(p.DeltaPi <= g.config.Epsilon+state.Tolerance) {
		failed = append(failed, Check{
			Type:   CheckPathInvariance,
			Reason: fmt.Sprintf("delta_pi %.6f exceeds epsilon %.6f", p.DeltaPi, g.config.Epsilon),
		})
	}
	if !(p.Phi >= g.config.PhiThreshold-state.Tolerance) {
		failed = append(failed, Check{
			Type:   CheckAlignment,
			Reason: fmt.Sprintf("phi %.6f below threshold %.6f", p.Phi, g.config.PhiThreshold),
		})
	}
	if !(p.DeltaV < -state.Tolerance) {
		failed = append(failed, Check{
			Type:   CheckPotential,
			Reason: fmt.Sprintf("delta_v %.6f not negative", p.DeltaV),
		})
	}

	if len(failed) > 0 {
		reasons := make([]string, len(failed))
		for i, c := range failed {
			reasons[i] = c.Reason
		}
		return Decision{Action: Hold, Reason: strings.Join(reasons, "; "), Failed: failed}
	}
	return Decision{Action: Fire, Reason: "resonance proof accepted"}
}

// #endregion gate

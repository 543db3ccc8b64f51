package gate

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is wrapped by every gate configuration error.
var ErrInvalidConfig = errors.New("invalid gate config")

// #region action
// Action is the binary gate outcome.
type Action string

const (
	Fire Action = "FIRE"
	Hold Action = "HOLD"
)

// #endregion action

// #region check
// CheckType enumerates the four FIRE conditions.
type CheckType string

const (
	CheckValidity       CheckType = "por_valid"
	CheckPathInvariance CheckType = "path_invariance"
	CheckAlignment      CheckType = "alignment"
	CheckPotential      CheckType = "potential"
)

// Check is one failed FIRE condition.
type Check struct {
	Type   CheckType `json:"type"`
	Reason string    `json:"reason"`
}

// #endregion check

// #region config
// Config holds the gate thresholds.
type Config struct {
	Epsilon           float64 `json:"epsilon"`            // max path invariance
	PhiThreshold      float64 `json:"phi_threshold"`      // min alignment
	ResonanceStrength float64 `json:"resonance_strength"` // constant field strength
}

// DefaultConfig returns (0.1, 0.5, 0.8).
func DefaultConfig() Config {
	return Config{Epsilon: 0.1, PhiThreshold: 0.5, ResonanceStrength: 0.8}
}

// StrictConfig returns (0.05, 0.7, 0.9).
func StrictConfig() Config {
	return Config{Epsilon: 0.05, PhiThreshold: 0.7, ResonanceStrength: 0.9}
}

// RelaxedConfig returns (0.2, 0.3, 0.6).
func RelaxedConfig() Config {
	return Config{Epsilon: 0.2, PhiThreshold: 0.3, ResonanceStrength: 0.6}
}

// Preset looks up a named preset: "default", "strict" or "relaxed".
func Preset(name string) (Config, error) {
	switch name {
	case "", "default":
		return DefaultConfig(), nil
	case "strict":
		return StrictConfig(), nil
	case "relaxed":
		return RelaxedConfig(), nil
	}
	return Config{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, name)
}

// NewConfig builds a config from arbitrary thresholds.
func NewConfig(epsilon, phiThreshold, resonanceStrength float64) (Config, error) {
	c := Config{Epsilon: epsilon, PhiThreshold: phiThreshold, ResonanceStrength: resonanceStrength}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects non-finite or negative thresholds.
func (c Config) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"epsilon", c.Epsilon},
		{"phi_threshold", c.PhiThreshold},
		{"resonance_strength", c.ResonanceStrength},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 {
			return fmt.Errorf("%w: %s=%v must be finite and >= 0", ErrInvalidConfig, f.name, f.v)
		}
	}
	return nil
}

// #endregion config

// #region proof
// Proof is the Proof-of-Resonance for one tick.
type Proof struct {
	DeltaPi float64 `json:"delta_pi"`
	Phi     float64 `json:"phi"`
	DeltaV  float64 `json:"delta_v"`
	Valid   bool    `json:"por_valid"`
}

// #endregion proof

// #region decision
// Decision is the output of the gate evaluation.
type Decision struct {
	Action Action  `json:"action"`
	Reason string  `json:"reason"`
	Failed []Check `json:"failed,omitempty"` // empty on FIRE
}

// #endregion decision

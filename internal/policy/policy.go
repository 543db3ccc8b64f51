package policy

import "math"

// Clamp bounds applied after each homeostatic adjustment.
const (
	minDecay = 0.001
	maxDecay = 0.2
	minAlpha = 0.05
	maxAlpha = 0.8
	minPrune = 0.001
	maxPrune = 0.3

	// DefaultTargetDensity is the edge/node ratio Homeostasis aims for when none is given.
	DefaultTargetDensity = 1.0
)

// #region presets
// ForVariant returns the preset for a variant. targetDensity is ignored
// unless the variant is Homeostasis; zero selects DefaultTargetDensity.
func ForVariant(v Variant, targetDensity float64) (Params, error) {
	var p Params
	switch v {
	case Explore:
		p = Params{Variant: Explore, AlphaHebb: 0.5, Decay: 0.05, ThetaPrune: 0.01}
	case Exploit:
		p = Params{Variant: Exploit, AlphaHebb: 0.2, Decay: 0.01, ThetaPrune: 0.1}
	case Homeostasis:
		if targetDensity == 0 {
			targetDensity = DefaultTargetDensity
		}
		p = Params{Variant: Homeostasis, AlphaHebb: 0.3, Decay: 0.03, ThetaPrune: 0.05, TargetDensity: targetDensity}
	default:
		return Params{}, &ConfigError{Field: "variant", Value: string(v), Reason: "unknown policy"}
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// #endregion presets

// #region validate
// Validate checks every knob is finite and in range.
func (p Params) Validate() error {
	if _, err := ParseVariant(string(p.Variant)); err != nil {
		return err
	}
	if bad(p.AlphaHebb) || p.AlphaHebb < 0 {
		return &ConfigError{Field: "alpha_hebb", Value: p.AlphaHebb, Reason: "must be finite and >= 0"}
	}
	if bad(p.Decay) || p.Decay < 0 || p.Decay >= 1 {
		return &ConfigError{Field: "decay", Value: p.Decay, Reason: "must be in [0, 1)"}
	}
	if bad(p.ThetaPrune) || p.ThetaPrune < 0 || p.ThetaPrune > 1 {
		return &ConfigError{Field: "theta_prune", Value: p.ThetaPrune, Reason: "must be in [0, 1]"}
	}
	if p.Variant == Homeostasis && (bad(p.TargetDensity) || p.TargetDensity <= 0) {
		return &ConfigError{Field: "target_density", Value: p.TargetDensity, Reason: "must be finite and > 0"}
	}
	return nil
}

func bad(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// #endregion validate

// #region adapt
// AdaptToDensity nudges the knobs toward TargetDensity given the current
// edge/node ratio. Variants other than Homeostasis are returned unchanged.
func (p Params) AdaptToDensity(current float64) Params {
	if p.Variant != Homeostasis || p.TargetDensity <= 0 {
		return p
	}
	ratio := current / p.TargetDensity
	switch {
	case ratio > 1.2:
		p.Decay *= 1.1
		p.AlphaHebb *= 0.9
		p.ThetaPrune *= 1.1
	case ratio < 0.8:
		p.Decay *= 0.9
		p.AlphaHebb *= 1.1
		p.ThetaPrune *= 0.9
	}
	p.Decay = clamp(p.Decay, minDecay, maxDecay)
	p.AlphaHebb = clamp(p.AlphaHebb, minAlpha, maxAlpha)
	p.ThetaPrune = clamp(p.ThetaPrune, minPrune, maxPrune)
	return p
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// #endregion adapt

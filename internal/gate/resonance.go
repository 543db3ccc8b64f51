package gate

import (
	"fmt"
	"math"
)

// Dimensions is the number of field components the resonance pairs range over.
const Dimensions = 5

// #region field
// FieldKind selects the resonance field shape.
type FieldKind string

const (
	FieldConstant    FieldKind = "constant"
	FieldOscillatory FieldKind = "oscillatory"
	FieldCustom      FieldKind = "custom"
)

// ResonanceField is a closed set of modulation shapes. Only the fields for
// its Kind are read.
type ResonanceField struct {
	Kind FieldKind `json:"kind"`

	Strength float64 `json:"strength,omitempty"` // constant

	Base      float64 `json:"base,omitempty"` // oscillatory
	Amplitude float64 `json:"amplitude,omitempty"`
	Frequency float64 `json:"frequency,omitempty"`
	Phase     float64 `json:"phase,omitempty"`

	Weights [Dimensions][Dimensions]float64 `json:"weights,omitempty"` // custom
}

// ConstantField returns the same modulation for every pair and time.
func ConstantField(strength float64) ResonanceField {
	return ResonanceField{Kind: FieldConstant, Strength: strength}
}

// OscillatoryField returns base + amplitude*sin(2*pi*frequency*t + phase).
func OscillatoryField(base, amplitude, frequency, phase float64) ResonanceField {
	return ResonanceField{Kind: FieldOscillatory, Base: base, Amplitude: amplitude, Frequency: frequency, Phase: phase}
}

// CustomField returns a fixed per-pair weight table.
func CustomField(weights [Dimensions][Dimensions]float64) ResonanceField {
	return ResonanceField{Kind: FieldCustom, Weights: weights}
}

// FieldFromConfig returns the constant field at the config's resonance strength.
func FieldFromConfig(c Config) ResonanceField {
	return ConstantField(c.ResonanceStrength)
}

// Validate checks the kind and that its parameters are finite.
func (f ResonanceField) Validate() error {
	var vals []float64
	switch f.Kind {
	case FieldConstant:
		vals = []float64{f.Strength}
	case FieldOscillatory:
		vals = []float64{f.Base, f.Amplitude, f.Frequency, f.Phase}
	case FieldCustom:
		for i := range f.Weights {
			vals = append(vals, f.Weights[i][:]...)
		}
	default:
		return fmt.Errorf("%w: unknown resonance field %q", ErrInvalidConfig, f.Kind)
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s field parameter not finite", ErrInvalidConfig, f.Kind)
		}
	}
	return nil
}

// Modulation returns the coupling between components i and j at time t.
func (f ResonanceField) Modulation(t float64, i, j int) float64 {
	switch f.Kind {
	case FieldConstant:
		return f.Strength
	case FieldOscillatory:
		return f.Base + f.Amplitude*math.Sin(2*math.Pi*f.Frequency*t+f.Phase)
	case FieldCustom:
		if i < 0 || j < 0 || i >= Dimensions || j >= Dimensions {
			return 0
		}
		return f.Weights[i][j]
	}
	return 0
}

// Alignment is the mean modulation over all ordered pairs i != j.
func (f ResonanceField) Alignment(t float64) float64 {
	var sum float64
	for i := 0; i < Dimensions; i++ {
		for j := 0; j < Dimensions; j++ {
			if i != j {
				sum += f.Modulation(t, i, j)
			}
		}
	}
	return sum / float64(Dimensions*(Dimensions-1))
}

// #endregion field

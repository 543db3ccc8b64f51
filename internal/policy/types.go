package policy

import "fmt"

// #region variant
// Variant names a parameter bundle.
type Variant string

const (
	Explore     Variant = "explore"
	Exploit     Variant = "exploit"
	Homeostasis Variant = "homeostasis"
)

// ParseVariant maps a case-sensitive name to a Variant.
func ParseVariant(name string) (Variant, error) {
	switch Variant(name) {
	case Explore, Exploit, Homeostasis:
		return Variant(name), nil
	}
	return "", &ConfigError{Field: "variant", Value: name, Reason: "unknown policy"}
}

// #endregion variant

// #region params
// Params holds the numeric knobs for one tick.
type Params struct {
	Variant       Variant `json:"variant"`
	AlphaHebb     float64 `json:"alpha_hebb"`
	Decay         float64 `json:"decay"`
	ThetaPrune    float64 `json:"theta_prune"`
	TargetDensity float64 `json:"target_density,omitempty"` // edge/node ratio; Homeostasis only
}

// #endregion params

// #region config-error
// ConfigError describes an out-of-range or unknown policy setting.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("policy config: %s=%v: %s", e.Field, e.Value, e.Reason)
}

// #endregion config-error

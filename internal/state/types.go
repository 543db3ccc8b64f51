package state

import (
	"fmt"
	"math"
)

// Tolerance is the single epsilon used for every threshold comparison in the pipeline.
const Tolerance = 1e-9

// #region state-4d
// State4D is a point in process space.
type State4D struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Z   float64 `json:"z"`
	Psi float64 `json:"psi"`
}

// NewState4D validates that every component is finite.
func NewState4D(x, y, z, psi float64) (State4D, error) {
	s := State4D{X: x, Y: y, Z: z, Psi: psi}
	if err := s.Validate(); err != nil {
		return State4D{}, err
	}
	return s, nil
}

// Validate reports the first non-finite component.
func (s State4D) Validate() error {
	a := s.Array()
	return checkFinite([]string{"x", "y", "z", "psi"}, a[:])
}

// Array returns the components in (x, y, z, psi) order.
func (s State4D) Array() [4]float64 {
	return [4]float64{s.X, s.Y, s.Z, s.Psi}
}

// Distance is the Euclidean distance over all four components.
func (s State4D) Distance(o State4D) float64 {
	dx, dy, dz, dp := s.X-o.X, s.Y-o.Y, s.Z-o.Z, s.Psi-o.Psi
	return math.Sqrt(dx*dx + dy*dy + dz*dz + dp*dp)
}

// #endregion state-4d

// #region state-5d
// State5D is a point in field space: process space plus temporal phase omega.
type State5D struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Psi   float64 `json:"psi"`
	Omega float64 `json:"omega"`
}

// NewState5D validates that every component is finite.
func NewState5D(x, y, z, psi, omega float64) (State5D, error) {
	s := State5D{X: x, Y: y, Z: z, Psi: psi, Omega: omega}
	if err := s.Validate(); err != nil {
		return State5D{}, err
	}
	return s, nil
}

// Validate reports the first non-finite component.
func (s State5D) Validate() error {
	a := s.Array()
	return checkFinite([]string{"x", "y", "z", "psi", "omega"}, a[:])
}

// Array returns the components in (x, y, z, psi, omega) order.
func (s State5D) Array() [5]float64 {
	return [5]float64{s.X, s.Y, s.Z, s.Psi, s.Omega}
}

// FromArray builds a State5D from (x, y, z, psi, omega) without validation.
func FromArray(a [5]float64) State5D {
	return State5D{X: a[0], Y: a[1], Z: a[2], Psi: a[3], Omega: a[4]}
}

// Norm is the Euclidean norm over all five components.
func (s State5D) Norm() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z + s.Psi*s.Psi + s.Omega*s.Omega)
}

// Distance is the Euclidean distance over all five components.
func (s State5D) Distance(o State5D) float64 {
	a, b := s.Array(), o.Array()
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// #endregion state-5d

// #region guidance
// GuidanceVector is a 4D gradient signal derived from a 5D gradient.
type GuidanceVector struct {
	VX   float64 `json:"vx"`
	VY   float64 `json:"vy"`
	VZ   float64 `json:"vz"`
	VPsi float64 `json:"vpsi"`
}

// Magnitude returns the Euclidean length of the vector.
func (g GuidanceVector) Magnitude() float64 {
	return math.Sqrt(g.VX*g.VX + g.VY*g.VY + g.VZ*g.VZ + g.VPsi*g.VPsi)
}

// #endregion guidance

// #region validation-error
// ValidationError names the component that failed the finite check.
type ValidationError struct {
	Field string
	Value float64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid state: %s is not finite (%v)", e.Field, e.Value)
}

func checkFinite(names []string, vals []float64) error {
	for i, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{Field: names[i], Value: v}
		}
	}
	return nil
}

// #endregion validation-error

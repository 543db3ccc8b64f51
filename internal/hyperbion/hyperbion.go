package hyperbion

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/trichter/internal/state"
)

// weightFloor keeps zero-psi states from dropping out of the phase average.
const weightFloor = 1e-10

// #region types
// Fields is the (Phi, Mu) snapshot for one batch.
type Fields struct {
	Phi float64 `json:"phi"` // psi-weighted mean of omega
	Mu  float64 `json:"mu"`  // mean spatial variance over x, y, z
}

// Hyperbion combines the two fields into a single scalar.
type Hyperbion struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// Default returns alpha = beta = 1.
func Default() Hyperbion {
	return Hyperbion{Alpha: 1, Beta: 1}
}

// New rejects non-finite coupling constants.
func New(alpha, beta float64) (Hyperbion, error) {
	if math.IsNaN(alpha) || math.IsInf(alpha, 0) {
		return Hyperbion{}, fmt.Errorf("hyperbion alpha not finite: %v", alpha)
	}
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return Hyperbion{}, fmt.Errorf("hyperbion beta not finite: %v", beta)
	}
	return Hyperbion{Alpha: alpha, Beta: beta}, nil
}

// #endregion types

// #region absorb
// Absorb computes the fields over a batch. An empty batch yields (0, 0).
func (h Hyperbion) Absorb(states []state.State5D) Fields {
	if len(states) == 0 {
		return Fields{}
	}
	return Fields{Phi: phaseField(states), Mu: morphoField(states)}
}

func phaseField(states []state.State5D) float64 {
	var num, den float64
	for _, s := range states {
		w := math.Abs(s.Psi) + weightFloor
		num += s.Omega * w
		den += w
	}
	return num / den
}

// morphoField averages the population variances of x, y and z.
func morphoField(states []state.State5D) float64 {
	n := float64(len(states))
	var mx, my, mz float64
	for _, s := range states {
		mx += s.X
		my += s.Y
		mz += s.Z
	}
	mx, my, mz = mx/n, my/n, mz/n

	var vx, vy, vz float64
	for _, s := range states {
		vx += (s.X - mx) * (s.X - mx)
		vy += (s.Y - my) * (s.Y - my)
		vz += (s.Z - mz) * (s.Z - mz)
	}
	return (vx/n + vy/n + vz/n) / 3
}

// #endregion absorb

// #region evaluate
// Evaluate returns H = Alpha*Phi + Beta*Mu.
func (h Hyperbion) Evaluate(f Fields) float64 {
	return h.Alpha*f.Phi + h.Beta*f.Mu
}

// #endregion evaluate

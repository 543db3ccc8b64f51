package cognitive

// #region imports
import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/trichter/internal/state"
)

// #endregion

// #region seeded-rand
// NewSeededRand derives a PCG source from the SHA-256 of seed. The same seed
// always yields the same stream.
func NewSeededRand(seed string) *rand.Rand {
	sum := sha256.Sum256([]byte(seed))
	return rand.New(rand.NewPCG(
		binary.BigEndian.Uint64(sum[0:8]),
		binary.BigEndian.Uint64(sum[8:16]),
	))
}

// #endregion seeded-rand

// #region heun
// DefaultStep is the integration step used when none is configured.
const DefaultStep = 0.01

// HeunIntegrator is a fixed-step second-order integrator for the linear
// system described by SystemParams.
type HeunIntegrator struct {
	Step float64
}

// Integrate returns the states at t = 0, Step, 2·Step, ... up to tFinal.
func (h HeunIntegrator) Integrate(ctx context.Context, initial state.State5D, p SystemParams, tFinal float64) ([]state.State5D, error) {
	dt := h.Step
	if dt <= 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		dt = DefaultStep
	}
	if math.IsNaN(tFinal) || math.IsInf(tFinal, 0) || tFinal < 0 {
		return nil, &state.ValidationError{Field: "t_final", Value: tFinal}
	}
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("integrate: %w", err)
	}

	steps := int(math.Round(tFinal / dt))
	out := make([]state.State5D, 0, steps+1)
	cur := initial.Array()
	out = append(out, initial)
	for n := 0; n < steps; n++ {
		if n%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		k1 := derivative(cur, p)
		var pred [5]float64
		for i := range cur {
			pred[i] = cur[i] + dt*k1[i]
		}
		k2 := derivative(pred, p)
		for i := range cur {
			cur[i] += dt / 2 * (k1[i] + k2[i])
		}
		next := state.FromArray(cur)
		if err := next.Validate(); err != nil {
			return nil, fmt.Errorf("integrate step %d: %w", n+1, err)
		}
		out = append(out, next)
	}
	return out, nil
}

func derivative(s [5]float64, p SystemParams) [5]float64 {
	var d [5]float64
	for i := range s {
		d[i] = p.IntrinsicRates[i]*s[i] + p.ExternalForcing[i]
	}
	return d
}

// #endregion heun

// #region stats-analyzer
// DefaultBins is the ψ histogram resolution used by StatsAnalyzer.
const DefaultBins = 16

// StatsAnalyzer computes the spectral signature from trajectory statistics.
type StatsAnalyzer struct {
	Bins int
}

// Analyze returns ψ as the squashed mean |ψ|, ρ as one minus the normalized
// entropy of the ψ histogram, and ω as the mean per-sample phase advance.
func (a StatsAnalyzer) Analyze(trajectory []state.State5D) (Spectral, error) {
	if len(trajectory) == 0 {
		return Spectral{}, ErrEmptyTrajectory
	}
	bins := a.Bins
	if bins < 2 {
		bins = DefaultBins
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	var absSum float64
	for _, s := range trajectory {
		absSum += math.Abs(s.Psi)
		lo = math.Min(lo, s.Psi)
		hi = math.Max(hi, s.Psi)
	}
	mean := absSum / float64(len(trajectory))

	var entropy float64
	if hi-lo > state.Tolerance {
		counts := make([]int, bins)
		for _, s := range trajectory {
			b := int((s.Psi - lo) / (hi - lo) * float64(bins))
			if b >= bins {
				b = bins - 1
			}
			counts[b]++
		}
		n := float64(len(trajectory))
		for _, c := range counts {
			if c == 0 {
				continue
			}
			p := float64(c) / n
			entropy -= p * math.Log(p)
		}
		entropy /= math.Log(float64(bins))
	}

	var omega float64
	if len(trajectory) > 1 {
		first, last := trajectory[0], trajectory[len(trajectory)-1]
		omega = (last.Omega - first.Omega) / float64(len(trajectory)-1)
	}

	return Spectral{
		Psi:   mean / (1 + mean),
		Rho:   1 - math.Max(0, math.Min(1, entropy)),
		Omega: omega,
	}, nil
}

// #endregion stats-analyzer

// #region seed-router
// RouteSlots is the number of routing slots a route orders.
const RouteSlots = 7

// SeedRouter permutes the routing slots with a stream seeded by the seed
// string and the final state.
type SeedRouter struct{}

// SelectRoute is deterministic in (final, seed).
func (SeedRouter) SelectRoute(final state.State5D, seed string) (Route, error) {
	var b strings.Builder
	b.WriteString(seed)
	for _, v := range final.Array() {
		b.WriteByte('|')
		b.WriteString(strconv.FormatUint(math.Float64bits(v), 16))
	}
	perm := NewSeededRand(b.String()).Perm(RouteSlots)

	var id strings.Builder
	id.WriteString("S7-")
	for _, p := range perm {
		id.WriteString(strconv.Itoa(p))
	}
	return Route{ID: id.String(), Permutation: perm}, nil
}

// #endregion seed-router

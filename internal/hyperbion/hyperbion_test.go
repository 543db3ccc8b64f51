package hyperbion

import (
	"math"
	"testing"

	"github.com/danielpatrickdp/trichter/internal/state"
)

func TestAbsorbEmptyBatch(t *testing.T) {
	f := Default().Absorb(nil)
	if f.Phi != 0 || f.Mu != 0 {
		t.Fatalf("expected (0, 0), got %+v", f)
	}
}

func TestAbsorbSingleStateHasZeroMu(t *testing.T) {
	f := Default().Absorb([]state.State5D{{X: 3, Y: -1, Z: 8, Psi: 0.4, Omega: 2.5}})
	if f.Mu != 0 {
		t.Errorf("expected mu 0, got %f", f.Mu)
	}
	if math.Abs(f.Phi-2.5) > 1e-12 {
		t.Errorf("expected phi 2.5, got %f", f.Phi)
	}
}

func TestAbsorbWeightsPhaseByPsi(t *testing.T) {
	// Heavy psi on omega=1 dominates the light psi on omega=0.
	f := Default().Absorb([]state.State5D{
		{Psi: 3, Omega: 1},
		{Psi: 1, Omega: 0},
	})
	if math.Abs(f.Phi-0.75) > 1e-9 {
		t.Errorf("expected phi 0.75, got %f", f.Phi)
	}
}

func TestAbsorbZeroPsiFallsBackToMean(t *testing.T) {
	f := Default().Absorb([]state.State5D{{Omega: 2}, {Omega: 4}})
	if math.Abs(f.Phi-3) > 1e-9 {
		t.Errorf("expected phi 3, got %f", f.Phi)
	}
}

func TestAbsorbMuIsMeanAxisVariance(t *testing.T) {
	// x variance 1, y and z zero: mu = 1/3.
	f := Default().Absorb([]state.State5D{{X: -1}, {X: 1}})
	if math.Abs(f.Mu-1.0/3.0) > 1e-12 {
		t.Errorf("expected mu 1/3, got %f", f.Mu)
	}
}

func TestEvaluate(t *testing.T) {
	h, err := New(2, 0.5)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := h.Evaluate(Fields{Phi: 1, Mu: 4}); got != 4 {
		t.Errorf("expected 4, got %f", got)
	}
}

func TestNewRejectsNonFinite(t *testing.T) {
	if _, err := New(math.NaN(), 1); err == nil {
		t.Error("expected error for NaN alpha")
	}
	if _, err := New(1, math.Inf(-1)); err == nil {
		t.Error("expected error for -Inf beta")
	}
}

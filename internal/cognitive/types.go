package cognitive

// #region imports
import (
	"context"
	"errors"

	"github.com/danielpatrickdp/trichter/internal/gate"
	"github.com/danielpatrickdp/trichter/internal/ledger"
	"github.com/danielpatrickdp/trichter/internal/state"
)

// #endregion

// ErrEmptyTrajectory is returned when the integrator produced no states.
var ErrEmptyTrajectory = errors.New("cognitive: empty trajectory")

// #region params
// SystemParams drive the external integrator: dσ_i/dt = rate_i·σ_i + forcing_i.
type SystemParams struct {
	IntrinsicRates  [5]float64 `json:"intrinsic_rates"`
	ExternalForcing [5]float64 `json:"external_forcing"`
}

// DampedParams pulls every component toward zero at the same rate.
func DampedParams(rate float64) SystemParams {
	var p SystemParams
	for i := range p.IntrinsicRates {
		p.IntrinsicRates[i] = -rate
	}
	return p
}

// #endregion params

// #region input-output
// Input is one run's request. TicID, Seed and SeedPath pass through to
// routing and knowledge identity.
type Input struct {
	InitialState state.State5D `json:"initial_state"`
	Params       SystemParams  `json:"params"`
	TFinal       float64       `json:"t_final"`
	TicID        string        `json:"tic_id"`
	Seed         string        `json:"seed"`
	SeedPath     string        `json:"seed_path"`
}

// Spectral is the (ψ, ρ, ω) signature of a trajectory.
type Spectral struct {
	Psi   float64 `json:"psi"`
	Rho   float64 `json:"rho"`
	Omega float64 `json:"omega"`
}

// Route is an ordering of the seven routing slots.
type Route struct {
	ID          string `json:"route_id"`
	Permutation []int  `json:"permutation"`
}

// Knowledge is the object derived from a FIRE run.
type Knowledge struct {
	ID       string         `json:"mef_id"`
	TicID    string         `json:"tic_id"`
	RouteID  string         `json:"route_id"`
	SeedPath string         `json:"seed_path"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// Output is the full result of one run.
type Output struct {
	Trajectory []state.State5D      `json:"trajectory"`
	Spectral   Spectral             `json:"spectral_signature"`
	Route      Route                `json:"route"`
	Proof      gate.Proof           `json:"proof"`
	Decision   gate.Action          `json:"gate_decision"`
	Knowledge  *Knowledge           `json:"knowledge,omitempty"`
	Commits    []ledger.CommitData  `json:"commits,omitempty"`
	Ticks      int                  `json:"ticks"`
	Guidance   state.GuidanceVector `json:"guidance"`
}

// Fired reports whether the final gate decision was FIRE.
func (o *Output) Fired() bool {
	return o.Decision == gate.Fire
}

// #endregion input-output

// #region collaborators
// Integrator produces the 5D trajectory for an input, initial state first.
type Integrator interface {
	Integrate(ctx context.Context, initial state.State5D, p SystemParams, tFinal float64) ([]state.State5D, error)
}

// Analyzer extracts the spectral signature of a trajectory.
type Analyzer interface {
	Analyze(trajectory []state.State5D) (Spectral, error)
}

// Router selects a route from the final state and the seed.
type Router interface {
	SelectRoute(final state.State5D, seed string) (Route, error)
}

// #endregion collaborators

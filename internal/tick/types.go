package tick

import (
	"errors"

	"github.com/danielpatrickdp/trichter/internal/funnel"
	"github.com/danielpatrickdp/trichter/internal/gate"
	"github.com/danielpatrickdp/trichter/internal/hdag"
	"github.com/danielpatrickdp/trichter/internal/hyperbion"
	"github.com/danielpatrickdp/trichter/internal/ledger"
	"github.com/danielpatrickdp/trichter/internal/policy"
	"github.com/danielpatrickdp/trichter/internal/state"
)

// Configuration errors returned before any mutation.
var (
	ErrNilGraph = errors.New("tick: nil funnel graph")
	ErrNilField = errors.New("tick: nil hdag field")
	ErrNilChain = errors.New("tick: proof requested without a chain")
)

// #region input
// Input is everything one coupling tick reads.
type Input struct {
	States       []state.State4D
	T            float64
	Policy       policy.Params
	Hyperbion    hyperbion.Hyperbion
	ComputeProof bool
	Gate         gate.Config
	Resonance    *gate.ResonanceField // nil uses the constant field at Gate.ResonanceStrength
	Seed         ledger.Hash          // run seed digest, committed with every FIRE
}

// #endregion input

// #region result
// Result is one tick's full output. Proof, Decision and Commit are nil unless
// a proof was requested; Commit is nil on HOLD.
type Result struct {
	T          float64              `json:"t"`
	NextStates []state.State4D      `json:"next_states"`
	Fields     hyperbion.Fields     `json:"fields"`
	H          float64              `json:"h"`
	Gain       float64              `json:"gain"`
	Delta      funnel.Delta         `json:"delta"`
	Counts     hdag.Counts          `json:"counts"`
	Nodes      int                  `json:"nodes"`
	Edges      int                  `json:"edges"`
	Density    float64              `json:"density"`
	Guidance   state.GuidanceVector `json:"guidance"`
	Proof      *gate.Proof          `json:"proof,omitempty"`
	Decision   *gate.Decision       `json:"decision,omitempty"`
	Commit     *ledger.CommitData   `json:"commit,omitempty"`

	// Pending holds the payload of a FIRE whose commit write failed, for retry.
	Pending *ledger.Payload `json:"pending,omitempty"`
}

// Fired reports whether the gate fired on this tick.
func (r Result) Fired() bool {
	return r.Decision != nil && r.Decision.Action == gate.Fire
}

// #endregion result

package tick

import (
	"context"
	"fmt"
	"math"

	"github.com/danielpatrickdp/trichter/internal/funnel"
	"github.com/danielpatrickdp/trichter/internal/gate"
	"github.com/danielpatrickdp/trichter/internal/hdag"
	"github.com/danielpatrickdp/trichter/internal/hyperbion"
	"github.com/danielpatrickdp/trichter/internal/ledger"
	"github.com/danielpatrickdp/trichter/internal/state"
)

// #region gain
// Gain maps the Hyperbion scalar into (0.5, 1.5). Learning is multiplied and
// decay divided by it.
func Gain(h float64) float64 {
	return 1 + 0.5*math.Tanh(h)
}

// #endregion gain

// #region validate
func validate(in Input, field *hdag.Field, graph *funnel.Graph, chain *ledger.Chain) error {
	if graph == nil {
		return ErrNilGraph
	}
	if field == nil {
		return ErrNilField
	}
	if err := in.Policy.Validate(); err != nil {
		return err
	}
	if _, err := hyperbion.New(in.Hyperbion.Alpha, in.Hyperbion.Beta); err != nil {
		return fmt.Errorf("tick: %w", err)
	}
	if math.IsNaN(in.T) || math.IsInf(in.T, 0) {
		return &state.ValidationError{Field: "t", Value: in.T}
	}
	for i, s := range in.States {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("tick: state %d: %w", i, err)
		}
	}
	if !in.ComputeProof {
		return nil
	}
	if chain == nil {
		return ErrNilChain
	}
	if err := in.Gate.Validate(); err != nil {
		return err
	}
	if in.Resonance != nil {
		if err := in.Resonance.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// #endregion validate

// #region coupling-tick
// CouplingTick advances graph and field by one tick. Inputs are validated
// before anything is mutated. ctx only reaches the chain's sink.
//
// A sink failure on FIRE returns the completed Result with Pending set and
// an error wrapping ledger.ErrCommitWrite; the graph has still advanced.
func CouplingTick(ctx context.Context, in Input, field *hdag.Field, graph *funnel.Graph, chain *ledger.Chain) (Result, error) {
	if err := validate(in, field, graph, chain); err != nil {
		return Result{}, err
	}

	// 1. Lift into field space with t as the temporal phase
	lifted := state.LiftAll(in.States, in.T)

	// 2. Hyperbion fields over the full batch
	fields := in.Hyperbion.Absorb(lifted)
	h := in.Hyperbion.Evaluate(fields)
	gain := Gain(h)

	// 3. Graph step, bracketed by the measurements the proof needs
	centroidBefore, hadRef := graph.Centroid()
	energyBefore := graph.Energy()
	delta := graph.Step(lifted, in.T, in.Policy, gain)
	centroidAfter, hasAfter := graph.Centroid()
	energyAfter := graph.Energy()

	// 4. Shadow field in lock-step
	field.Sync(graph.Nodes(), delta, fields, in.T)

	// 5. Project node anchors back to process space
	res := Result{
		T:          in.T,
		NextStates: graph.Anchors(),
		Fields:     fields,
		H:          h,
		Gain:       gain,
		Delta:      delta,
		Counts:     field.Counts(),
		Nodes:      graph.NodeCount(),
		Edges:      graph.EdgeCount(),
		Density:    graph.Density(),
		Guidance:   state.Proj4D(field.Gradient()),
	}
	if !in.ComputeProof {
		return res, nil
	}

	// 6. Proof, gate, and commit on FIRE
	resonance := gate.FieldFromConfig(in.Gate)
	if in.Resonance != nil {
		resonance = *in.Resonance
	}
	proof := gate.ComputeProof(gate.Observation{
		T:              in.T,
		CentroidBefore: centroidBefore,
		CentroidAfter:  centroidAfter,
		HadReference:   hadRef && hasAfter,
		EnergyBefore:   energyBefore,
		EnergyAfter:    energyAfter,
	}, resonance)
	decision := gate.NewGate(in.Gate).Evaluate(proof)
	res.Proof = &proof
	res.Decision = &decision

	if decision.Action != gate.Fire {
		return res, nil
	}
	payload := ledger.Payload{
		Timestamp: in.T,
		Nodes:     uint64(res.Nodes),
		Edges:     uint64(res.Edges),
		Proof:     proof,
		Seed:      in.Seed,
	}
	cd, err := chain.Commit(ctx, payload)
	if err != nil {
		res.Pending = &payload
		return res, fmt.Errorf("tick at t=%v: %w", in.T, err)
	}
	res.Commit = &cd
	return res, nil
}

// #endregion coupling-tick

package hdag

import (
	"math"
	"sort"

	"github.com/danielpatrickdp/trichter/internal/funnel"
	"github.com/danielpatrickdp/trichter/internal/hyperbion"
	"github.com/danielpatrickdp/trichter/internal/state"
)

// resonanceRate is the EMA weight given to the newest alignment sample.
const resonanceRate = 0.1

// #region types
// Tensor shadows one funnel node.
type Tensor struct {
	NodeID    int           `json:"node_id"`
	Anchor    state.State5D `json:"anchor"`
	Resonance float64       `json:"resonance"` // EMA of cos(omega - phi), in [-1, 1]
	Updated   float64       `json:"updated"`
}

// Counts is an immutable snapshot of the running totals.
type Counts struct {
	Tensors     uint64 `json:"tensors"`
	Transitions uint64 `json:"transitions"`
}

// Field tracks tensor and transition totals in lock-step with a funnel graph.
// Totals never decrease. Only the tick orchestrator calls Sync.
type Field struct {
	tensorCount     uint64
	transitionCount uint64
	tensors         map[int]*Tensor
}

// #endregion types

// #region constructor
// New returns an empty field.
func New() *Field {
	return &Field{tensors: make(map[int]*Tensor)}
}

// #endregion constructor

// #region sync
// Sync mirrors the graph after a Step. nodes must be the graph's full node
// list and d the delta that Step returned.
func (f *Field) Sync(nodes []funnel.Node, d funnel.Delta, fields hyperbion.Fields, t float64) {
	f.tensorCount += uint64(len(d.Touched))
	f.transitionCount += uint64(d.EdgesCreated + d.EdgesReinforced)

	live := make(map[int]bool, len(nodes))
	for _, n := range nodes {
		live[n.ID] = true
	}
	for id := range f.tensors {
		if !live[id] {
			delete(f.tensors, id)
		}
	}

	touched := make(map[int]bool, len(d.Touched))
	for _, id := range d.Touched {
		touched[id] = true
	}
	for _, n := range nodes {
		tn, ok := f.tensors[n.ID]
		if !ok {
			tn = &Tensor{NodeID: n.ID, Resonance: 1, Updated: t}
			f.tensors[n.ID] = tn
		}
		tn.Anchor = n.Anchor
		if touched[n.ID] {
			align := math.Cos(n.Anchor.Omega - fields.Phi)
			tn.Resonance += (align - tn.Resonance) * resonanceRate
			tn.Updated = t
		}
	}
}

// #endregion sync

// #region queries
// Counts returns the running totals.
func (f *Field) Counts() Counts {
	return Counts{Tensors: f.tensorCount, Transitions: f.transitionCount}
}

// Len returns the number of live tensors.
func (f *Field) Len() int {
	return len(f.tensors)
}

// Tensors returns copies of the live tensors ordered by node id.
func (f *Field) Tensors() []Tensor {
	out := make([]Tensor, 0, len(f.tensors))
	for _, tn := range f.tensors {
		out = append(out, *tn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// Gradient is the resonance-weighted mean displacement of tensor anchors
// from their plain centroid. It is zero when fewer than two tensors exist.
func (f *Field) Gradient() state.State5D {
	ts := f.Tensors()
	if len(ts) < 2 {
		return state.State5D{}
	}
	var c [5]float64
	for _, tn := range ts {
		a := tn.Anchor.Array()
		for i := range c {
			c[i] += a[i]
		}
	}
	for i := range c {
		c[i] /= float64(len(ts))
	}

	var g [5]float64
	var wsum float64
	for _, tn := range ts {
		a := tn.Anchor.Array()
		for i := range g {
			g[i] += tn.Resonance * (a[i] - c[i])
		}
		wsum += math.Abs(tn.Resonance)
	}
	if wsum == 0 {
		return state.State5D{}
	}
	for i := range g {
		g[i] /= wsum
	}
	return state.FromArray(g)
}

// #endregion queries

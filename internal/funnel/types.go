package funnel

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/trichter/internal/state"
)

// #region node
// Node is a condensed evidence cluster anchored at a 5D state.
type Node struct {
	ID       int           `json:"id"`
	Anchor   state.State5D `json:"anchor"`
	Mass     float64       `json:"mass"`
	Variance float64       `json:"variance"`
	Born     float64       `json:"born"`
}

// #endregion node

// #region edge
// Edge links two nodes. Keys are canonical: From < To.
type Edge struct {
	From      int     `json:"from"`
	To        int     `json:"to"`
	Weight    float64 `json:"weight"`
	Decay     float64 `json:"decay"`      // effective decay applied on the last update
	PhaseLock float64 `json:"phase_lock"` // exp(-|omega_from - omega_to|), in [0, 1]
}

type edgeKey struct{ lo, hi int }

func keyOf(a, b int) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{lo: a, hi: b}
}

// #endregion edge

// #region delta
// Delta summarizes the structural changes of one Step.
type Delta struct {
	NodesCreated    int   `json:"nodes_created"`
	NodesAbsorbed   int   `json:"nodes_absorbed"` // states folded into an existing node
	NodesMerged     int   `json:"nodes_merged"`
	NodesSplit      int   `json:"nodes_split"`
	NodesPruned     int   `json:"nodes_pruned"`
	EdgesCreated    int   `json:"edges_created"`
	EdgesReinforced int   `json:"edges_reinforced"`
	EdgesPruned     int   `json:"edges_pruned"`
	Touched         []int `json:"touched"` // surviving node ids associated with this tick's states
}

// #endregion delta

// #region config
// Config holds the structural thresholds. They are policy-independent.
type Config struct {
	InsertRadius      float64 // 4D distance within which a state is absorbed by its nearest node
	MergeRadius       float64 // 4D distance at or below which two nodes merge
	CoalesceRadius    float64 // an idle node this close to a node that absorbed a state merges into it
	SplitVariance     float64 // variance above which a node splits
	MinSplitMass      float64 // mass required before a node may split
	InitialVariance   float64
	InitialEdgeWeight float64
	MaxEdgeWeight     float64
	MassFloor         float64 // isolated nodes below this mass are pruned
	MaxNodes          int     // insertion absorbs into the nearest node once reached
}

// DefaultConfig returns the thresholds used throughout the pipeline.
func DefaultConfig() Config {
	return Config{
		InsertRadius:      0.5,
		MergeRadius:       0.05,
		CoalesceRadius:    0.5,
		SplitVariance:     0.2,
		MinSplitMass:      2.0,
		InitialVariance:   0.1,
		InitialEdgeWeight: 0.1,
		MaxEdgeWeight:     1.0,
		MassFloor:         0.5,
		MaxNodes:          4096,
	}
}

// Validate rejects configurations the structural operations cannot honor.
func (c Config) Validate() error {
	checks := []struct {
		name string
		v    float64
	}{
		{"insert_radius", c.InsertRadius},
		{"merge_radius", c.MergeRadius},
		{"coalesce_radius", c.CoalesceRadius},
		{"split_variance", c.SplitVariance},
		{"initial_edge_weight", c.InitialEdgeWeight},
		{"max_edge_weight", c.MaxEdgeWeight},
	}
	for _, ch := range checks {
		if math.IsNaN(ch.v) || math.IsInf(ch.v, 0) || ch.v <= 0 {
			return fmt.Errorf("funnel config: %s must be finite and > 0, got %v", ch.name, ch.v)
		}
	}
	if c.MaxNodes <= 0 {
		return fmt.Errorf("funnel config: max_nodes must be > 0, got %d", c.MaxNodes)
	}
	if c.InitialVariance < 0 || c.MassFloor < 0 || c.MinSplitMass < 0 {
		return fmt.Errorf("funnel config: initial_variance, mass_floor and min_split_mass must be >= 0")
	}
	if c.MergeRadius >= c.InsertRadius {
		return fmt.Errorf("funnel config: merge_radius %v must be below insert_radius %v", c.MergeRadius, c.InsertRadius)
	}
	if c.CoalesceRadius < c.MergeRadius || c.CoalesceRadius > c.InsertRadius {
		return fmt.Errorf("funnel config: coalesce_radius %v must lie in [merge_radius %v, insert_radius %v]",
			c.CoalesceRadius, c.MergeRadius, c.InsertRadius)
	}
	// Split children sit 2*sqrt(variance) apart and must not re-merge.
	if c.CoalesceRadius >= 2*math.Sqrt(c.SplitVariance) {
		return fmt.Errorf("funnel config: coalesce_radius %v would re-merge split children", c.CoalesceRadius)
	}
	if c.InitialEdgeWeight > c.MaxEdgeWeight || c.MaxEdgeWeight > 1 {
		return fmt.Errorf("funnel config: edge weights must satisfy initial <= max <= 1")
	}
	return nil
}

// #endregion config

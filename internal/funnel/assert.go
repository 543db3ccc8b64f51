package funnel

import (
	"fmt"
	"math"
	"sort"
)

// #region invariants
// CheckInvariants reports the first structural violation found. A non-nil
// result means the graph was corrupted by a bug, not by input.
func (g *Graph) CheckInvariants() error {
	if len(g.ids) != len(g.nodes) {
		return fmt.Errorf("id index has %d entries, arena has %d", len(g.ids), len(g.nodes))
	}
	if !sort.IntsAreSorted(g.ids) {
		return fmt.Errorf("id index out of order")
	}
	for _, id := range g.ids {
		n, ok := g.nodes[id]
		if !ok {
			return fmt.Errorf("id %d indexed but missing from arena", id)
		}
		if id >= g.nextID {
			return fmt.Errorf("node %d not below next id %d", id, g.nextID)
		}
		if n.Mass < 0 || n.Variance < 0 {
			return fmt.Errorf("node %d has negative mass or variance (%v, %v)", id, n.Mass, n.Variance)
		}
		if err := n.Anchor.Validate(); err != nil {
			return fmt.Errorf("node %d: %w", id, err)
		}
	}
	for k, e := range g.edges {
		if k.lo >= k.hi {
			return fmt.Errorf("edge key (%d, %d) not canonical", k.lo, k.hi)
		}
		if e.From != k.lo || e.To != k.hi {
			return fmt.Errorf("edge (%d, %d) stored under (%d, %d)", e.From, e.To, k.lo, k.hi)
		}
		if _, ok := g.nodes[k.lo]; !ok {
			return fmt.Errorf("edge (%d, %d) references missing node %d", k.lo, k.hi, k.lo)
		}
		if _, ok := g.nodes[k.hi]; !ok {
			return fmt.Errorf("edge (%d, %d) references missing node %d", k.lo, k.hi, k.hi)
		}
		if math.IsNaN(e.Weight) || e.Weight < 0 || e.Weight > g.cfg.MaxEdgeWeight {
			return fmt.Errorf("edge (%d, %d) weight %v out of [0, %v]", k.lo, k.hi, e.Weight, g.cfg.MaxEdgeWeight)
		}
		if e.PhaseLock < 0 || e.PhaseLock > 1 {
			return fmt.Errorf("edge (%d, %d) phase lock %v out of [0, 1]", k.lo, k.hi, e.PhaseLock)
		}
	}
	return nil
}

// #endregion invariants

package funnel

import (
	"fmt"
	"math"
	"sort"

	"github.com/danielpatrickdp/trichter/internal/policy"
	"github.com/danielpatrickdp/trichter/internal/state"
)

// maxEffectiveDecay bounds decay after Hyperbion modulation.
const maxEffectiveDecay = 0.5

// #region graph-struct
// Graph is an arena of nodes addressed by monotonically assigned ids.
// It is not safe for concurrent use; each run owns its own Graph.
type Graph struct {
	cfg    Config
	nodes  map[int]*Node
	ids    []int // ascending
	edges  map[edgeKey]*Edge
	nextID int
	debug  bool
}

// New creates an empty graph.
func New(cfg Config) (*Graph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Graph{
		cfg:   cfg,
		nodes: make(map[int]*Node),
		edges: make(map[edgeKey]*Edge),
	}, nil
}

// SetDebug enables invariant assertions after every Step.
func (g *Graph) SetDebug(on bool) {
	g.debug = on
}

// Config returns the structural thresholds.
func (g *Graph) Config() Config {
	return g.cfg
}

// #endregion graph-struct

// #region step
// Step applies insertion, Hebbian update, decay, prune, merge and split in
// that order. gain scales learning up and decay down.
func (g *Graph) Step(states []state.State5D, t float64, p policy.Params, gain float64) Delta {
	if gain <= 0 || math.IsNaN(gain) {
		gain = 1
	}
	alpha := p.AlphaHebb * gain
	decay := math.Min(p.Decay/gain, maxEffectiveDecay)

	var d Delta
	touched := make(map[int]bool)

	hits := g.insert(states, t, &d)
	for id := range hits {
		touched[id] = true
	}
	g.hebbian(hits, alpha, decay, &d)
	g.decay(hits, decay)
	g.prune(p.ThetaPrune, &d)
	g.merge(touched, &d)
	g.split(t, touched, &d)

	for _, id := range g.ids {
		if touched[id] {
			d.Touched = append(d.Touched, id)
		}
	}

	if g.debug {
		if err := g.CheckInvariants(); err != nil {
			panic(fmt.Sprintf("funnel invariant violated: %v", err))
		}
	}
	return d
}

// #endregion step

// #region insert
// insert assigns each state to its nearest node or creates a new one.
// It returns how many states landed on each node.
func (g *Graph) insert(states []state.State5D, t float64, d *Delta) map[int]int {
	hits := make(map[int]int)
	for _, s := range states {
		pos := state.ProjectState(s)
		nearest, dist := -1, math.Inf(1)
		for _, id := range g.ids {
			dd := state.ProjectState(g.nodes[id].Anchor).Distance(pos)
			if dd < dist {
				nearest, dist = id, dd
			}
		}

		full := len(g.ids) >= g.cfg.MaxNodes
		if nearest >= 0 && (dist <= g.cfg.InsertRadius+state.Tolerance || full) {
			g.absorb(g.nodes[nearest], s, dist)
			hits[nearest]++
			d.NodesAbsorbed++
			continue
		}

		n := g.addNode(s, g.cfg.InitialVariance, 1.0, t)
		hits[n.ID]++
		d.NodesCreated++
	}
	return hits
}

// absorb folds one observation into a node as a running mean.
func (g *Graph) absorb(n *Node, s state.State5D, dist float64) {
	n.Mass += 1
	w := 1 / n.Mass
	a, b := n.Anchor.Array(), s.Array()
	for i := range a {
		a[i] += (b[i] - a[i]) * w
	}
	n.Anchor = state.FromArray(a)
	n.Variance += (dist*dist - n.Variance) * w
}

func (g *Graph) addNode(anchor state.State5D, variance, mass, born float64) *Node {
	n := &Node{ID: g.nextID, Anchor: anchor, Mass: mass, Variance: variance, Born: born}
	g.nextID++
	g.nodes[n.ID] = n
	g.ids = append(g.ids, n.ID)
	return n
}

// #endregion insert

// #region hebbian
// hebbian reinforces every pair of nodes active this tick.
func (g *Graph) hebbian(hits map[int]int, alpha, decay float64, d *Delta) {
	active := sortedIDs(hits)
	for i := 0; i < len(active); i++ {
		a := g.nodes[active[i]]
		for j := i + 1; j < len(active); j++ {
			b := g.nodes[active[j]]
			lock := math.Exp(-math.Abs(a.Anchor.Omega - b.Anchor.Omega))
			strength := lock * math.Sqrt(float64(hits[a.ID]*hits[b.ID]))

			k := keyOf(a.ID, b.ID)
			if e, ok := g.edges[k]; ok {
				e.Weight = math.Min(g.cfg.MaxEdgeWeight, e.Weight+alpha*strength)
				e.PhaseLock = lock
				e.Decay = decay
				d.EdgesReinforced++
				continue
			}
			g.edges[k] = &Edge{
				From:      k.lo,
				To:        k.hi,
				Weight:    math.Min(g.cfg.MaxEdgeWeight, g.cfg.InitialEdgeWeight+alpha*strength),
				Decay:     decay,
				PhaseLock: lock,
			}
			d.EdgesCreated++
		}
	}
}

// #endregion hebbian

// #region decay
// decay attenuates every edge and the mass of nodes that saw no state.
func (g *Graph) decay(hits map[int]int, rate float64) {
	keep := 1 - rate
	for _, e := range g.edges {
		e.Weight *= keep
	}
	for _, id := range g.ids {
		if hits[id] == 0 {
			g.nodes[id].Mass *= keep
		}
	}
}

// #endregion decay

// #region prune
// prune drops weak edges, then isolated light nodes.
func (g *Graph) prune(theta float64, d *Delta) {
	for _, k := range g.sortedKeys() {
		if g.edges[k].Weight < theta-state.Tolerance {
			delete(g.edges, k)
			d.EdgesPruned++
		}
	}

	degree := g.degrees()
	kept := g.ids[:0]
	for _, id := range g.ids {
		if degree[id] == 0 && g.nodes[id].Mass < g.cfg.MassFloor-state.Tolerance {
			delete(g.nodes, id)
			d.NodesPruned++
			continue
		}
		kept = append(kept, id)
	}
	g.ids = kept
}

// #endregion prune

// #region merge
// merge folds a node into a lower-id node when their anchors lie within
// MergeRadius, or within CoalesceRadius when exactly one of the pair absorbed
// a state this tick. Duplicate edges reconcile by taking the maximum weight.
func (g *Graph) merge(touched map[int]bool, d *Delta) {
	for i := 0; i < len(g.ids); i++ {
		a := g.nodes[g.ids[i]]
		for j := i + 1; j < len(g.ids); {
			b := g.nodes[g.ids[j]]
			dist := state.ProjectState(a.Anchor).Distance(state.ProjectState(b.Anchor))
			limit := g.cfg.MergeRadius
			if touched[a.ID] != touched[b.ID] {
				limit = g.cfg.CoalesceRadius
			}
			if dist > limit+state.Tolerance {
				j++
				continue
			}
			g.fold(a, b)
			if touched[b.ID] {
				delete(touched, b.ID)
				touched[a.ID] = true
			}
			g.ids = append(g.ids[:j], g.ids[j+1:]...)
			d.NodesMerged++
		}
	}
}

// fold merges b into a and removes b from the node map.
func (g *Graph) fold(a, b *Node) {
	total := a.Mass + b.Mass
	wa, wb := 0.5, 0.5
	if total > 0 {
		wa, wb = a.Mass/total, b.Mass/total
	}
	pa, pb := a.Anchor.Array(), b.Anchor.Array()
	for i := range pa {
		pa[i] = pa[i]*wa + pb[i]*wb
	}
	a.Anchor = state.FromArray(pa)
	a.Variance = a.Variance*wa + b.Variance*wb
	a.Mass = total
	a.Born = math.Min(a.Born, b.Born)

	for _, k := range g.sortedKeys() {
		if k.lo != b.ID && k.hi != b.ID {
			continue
		}
		e := g.edges[k]
		delete(g.edges, k)
		other := k.lo
		if other == b.ID {
			other = k.hi
		}
		if other == a.ID {
			continue
		}
		g.putMax(keyOf(a.ID, other), e)
	}
	delete(g.nodes, b.ID)
}

// putMax inserts e under k, keeping the heavier edge if one exists.
func (g *Graph) putMax(k edgeKey, e *Edge) {
	if cur, ok := g.edges[k]; ok {
		if e.Weight > cur.Weight {
			cur.Weight = e.Weight
			cur.Decay = e.Decay
		}
		cur.PhaseLock = math.Max(cur.PhaseLock, e.PhaseLock)
		return
	}
	e.From, e.To = k.lo, k.hi
	g.edges[k] = e
}

// #endregion merge

// #region split
// split divides high-variance nodes into two children bracketing the
// parent along x. Children are not re-examined in the same tick.
func (g *Graph) split(t float64, touched map[int]bool, d *Delta) {
	candidates := append([]int(nil), g.ids...)
	for _, id := range candidates {
		n := g.nodes[id]
		if n.Variance <= g.cfg.SplitVariance+state.Tolerance || n.Mass < g.cfg.MinSplitMass-state.Tolerance {
			continue
		}
		if len(g.ids)+1 > g.cfg.MaxNodes {
			continue
		}
		off := math.Sqrt(n.Variance)
		left, right := n.Anchor, n.Anchor
		left.X -= off
		right.X += off

		c1 := g.addNode(left, n.Variance/2, n.Mass/2, t)
		c2 := g.addNode(right, n.Variance/2, n.Mass/2, t)

		for _, k := range g.sortedKeys() {
			if k.lo != id && k.hi != id {
				continue
			}
			e := g.edges[k]
			delete(g.edges, k)
			other := k.lo
			if other == id {
				other = k.hi
			}
			for _, c := range []*Node{c1, c2} {
				ck := keyOf(c.ID, other)
				g.edges[ck] = &Edge{From: ck.lo, To: ck.hi, Weight: e.Weight / 2, Decay: e.Decay, PhaseLock: e.PhaseLock}
				d.EdgesCreated++
			}
		}
		sk := keyOf(c1.ID, c2.ID)
		g.edges[sk] = &Edge{From: sk.lo, To: sk.hi, Weight: g.cfg.InitialEdgeWeight, PhaseLock: 1}
		d.EdgesCreated++

		g.removeNode(id)
		if touched[id] {
			delete(touched, id)
		}
		touched[c1.ID] = true
		touched[c2.ID] = true
		d.NodesSplit++
	}
}

func (g *Graph) removeNode(id int) {
	delete(g.nodes, id)
	for i, v := range g.ids {
		if v == id {
			g.ids = append(g.ids[:i], g.ids[i+1:]...)
			return
		}
	}
}

// #endregion split

// #region queries
// NodeCount returns the number of live nodes.
func (g *Graph) NodeCount() int {
	return len(g.ids)
}

// EdgeCount returns the number of live edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Density is edges / C(n, 2), or 0 when fewer than two nodes exist.
func (g *Graph) Density() float64 {
	n := len(g.ids)
	if n < 2 {
		return 0
	}
	return float64(len(g.edges)) / (float64(n) * float64(n-1) / 2)
}

// EdgeNodeRatio is the quantity Homeostasis steers toward its target.
func (g *Graph) EdgeNodeRatio() float64 {
	if len(g.ids) == 0 {
		return 0
	}
	return float64(len(g.edges)) / float64(len(g.ids))
}

// Centroid returns the mass-weighted mean anchor. ok is false for an empty graph.
func (g *Graph) Centroid() (c state.State5D, ok bool) {
	if len(g.ids) == 0 {
		return state.State5D{}, false
	}
	var acc [5]float64
	var total float64
	for _, id := range g.ids {
		n := g.nodes[id]
		a := n.Anchor.Array()
		for i := range acc {
			acc[i] += a[i] * n.Mass
		}
		total += n.Mass
	}
	if total <= 0 {
		for _, id := range g.ids {
			a := g.nodes[id].Anchor.Array()
			for i := range acc {
				acc[i] += a[i]
			}
		}
		total = float64(len(g.ids))
	}
	for i := range acc {
		acc[i] /= total
	}
	return state.FromArray(acc), true
}

// Energy is the mass-weighted spatial dispersion around the centroid plus
// the mean node variance. It shrinks as the graph contracts.
func (g *Graph) Energy() float64 {
	c, ok := g.Centroid()
	if !ok {
		return 0
	}
	var spread, total, variance float64
	for _, id := range g.ids {
		n := g.nodes[id]
		dx, dy, dz := n.Anchor.X-c.X, n.Anchor.Y-c.Y, n.Anchor.Z-c.Z
		spread += n.Mass * (dx*dx + dy*dy + dz*dz)
		total += n.Mass
		variance += n.Variance
	}
	if total > 0 {
		spread /= total
	}
	return spread + variance/float64(len(g.ids))
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id int) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Nodes returns copies of all nodes in id order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.ids))
	for _, id := range g.ids {
		out = append(out, *g.nodes[id])
	}
	return out
}

// Edges returns copies of all edges ordered by (From, To).
func (g *Graph) Edges() []Edge {
	keys := g.sortedKeys()
	out := make([]Edge, 0, len(keys))
	for _, k := range keys {
		out = append(out, *g.edges[k])
	}
	return out
}

// Anchors projects every node anchor back to process space, in id order.
func (g *Graph) Anchors() []state.State4D {
	out := make([]state.State4D, 0, len(g.ids))
	for _, id := range g.ids {
		out = append(out, state.ProjectState(g.nodes[id].Anchor))
	}
	return out
}

// #endregion queries

// #region helpers
func (g *Graph) sortedKeys() []edgeKey {
	keys := make([]edgeKey, 0, len(g.edges))
	for k := range g.edges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].lo != keys[j].lo {
			return keys[i].lo < keys[j].lo
		}
		return keys[i].hi < keys[j].hi
	})
	return keys
}

func (g *Graph) degrees() map[int]int {
	deg := make(map[int]int, len(g.ids))
	for k := range g.edges {
		deg[k.lo]++
		deg[k.hi]++
	}
	return deg
}

func sortedIDs(m map[int]int) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// #endregion helpers

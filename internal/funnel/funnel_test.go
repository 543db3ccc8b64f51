package funnel

import (
	"math"
	"reflect"
	"testing"

	"github.com/danielpatrickdp/trichter/internal/policy"
	"github.com/danielpatrickdp/trichter/internal/state"
)

func newTestGraph(t *testing.T, cfg Config) *Graph {
	t.Helper()
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	g.SetDebug(true)
	return g
}

func explore(t *testing.T) policy.Params {
	t.Helper()
	p, err := policy.ForVariant(policy.Explore, 0)
	if err != nil {
		t.Fatalf("explore params: %v", err)
	}
	return p
}

func twoClusters() []state.State5D {
	return []state.State5D{
		{X: 0},
		{X: 0.1},
		{X: 5},
	}
}

// #region test-insert
func TestStepInsertAndAbsorb(t *testing.T) {
	g := newTestGraph(t, DefaultConfig())
	d := g.Step(twoClusters(), 0, explore(t), 1)

	if g.NodeCount() != 2 {
		t.Fatalf("expected 2 nodes, got %d", g.NodeCount())
	}
	if d.NodesCreated != 2 || d.NodesAbsorbed != 1 {
		t.Errorf("expected 2 created / 1 absorbed, got %+v", d)
	}
	if d.EdgesCreated != 1 || g.EdgeCount() != 1 {
		t.Errorf("expected one co-activation edge, got delta %+v and %d edges", d, g.EdgeCount())
	}

	n0, _ := g.Node(0)
	if n0.Mass != 2 {
		t.Errorf("expected absorbing node mass 2, got %f", n0.Mass)
	}
	if math.Abs(n0.Anchor.X-0.05) > 1e-12 {
		t.Errorf("expected anchor pulled to 0.05, got %f", n0.Anchor.X)
	}
	if !reflect.DeepEqual(d.Touched, []int{0, 1}) {
		t.Errorf("expected touched [0 1], got %v", d.Touched)
	}
}

func TestInsertRespectsMaxNodes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxNodes = 2
	g := newTestGraph(t, cfg)
	g.Step([]state.State5D{{X: 0}, {X: 10}, {X: 20}}, 0, explore(t), 1)

	if g.NodeCount() != 2 {
		t.Fatalf("expected capacity of 2 nodes, got %d", g.NodeCount())
	}
}

// #endregion test-insert

// #region test-decay-prune
func TestDecayAttenuatesEdgesAndIdleMass(t *testing.T) {
	g := newTestGraph(t, DefaultConfig())
	p := explore(t)
	g.Step(twoClusters(), 0, p, 1)
	before := g.Edges()[0].Weight
	n0, _ := g.Node(0)

	g.Step(nil, 1, p, 1)

	after := g.Edges()[0].Weight
	if math.Abs(after-before*(1-p.Decay)) > 1e-12 {
		t.Errorf("expected weight %f, got %f", before*(1-p.Decay), after)
	}
	m0, _ := g.Node(0)
	if math.Abs(m0.Mass-n0.Mass*(1-p.Decay)) > 1e-12 {
		t.Errorf("expected idle mass %f, got %f", n0.Mass*(1-p.Decay), m0.Mass)
	}
}

func TestPruneEdgesThenIsolatedNodes(t *testing.T) {
	g := newTestGraph(t, DefaultConfig())
	p := policy.Params{Variant: policy.Explore, AlphaHebb: 0.5, Decay: 0.5, ThetaPrune: 0.3}

	// 1. Edge created at 0.1 + 0.5*sqrt(2), then halved: survives.
	g.Step(twoClusters(), 0, p, 1)
	if g.EdgeCount() != 1 {
		t.Fatalf("expected edge to survive first tick, got %d edges", g.EdgeCount())
	}

	// 2. Halved again below 0.3: pruned, nodes still heavy enough.
	d := g.Step(nil, 1, p, 1)
	if g.EdgeCount() != 0 || d.EdgesPruned != 1 {
		t.Fatalf("expected edge pruned, got %d edges, delta %+v", g.EdgeCount(), d)
	}
	if g.NodeCount() != 2 {
		t.Fatalf("expected both nodes kept, got %d", g.NodeCount())
	}

	// 3. Lighter node drops below the mass floor.
	d = g.Step(nil, 2, p, 1)
	if d.NodesPruned != 1 || g.NodeCount() != 1 {
		t.Fatalf("expected one node pruned, got %d nodes, delta %+v", g.NodeCount(), d)
	}
	if _, ok := g.Node(0); !ok {
		t.Error("expected heavier node 0 to survive")
	}
}

// #endregion test-decay-prune

// #region test-merge-split
func TestMergeCombinesMassAndKeepsMaxEdge(t *testing.T) {
	g := newTestGraph(t, DefaultConfig())
	a := g.addNode(state.State5D{X: 0}, 0.1, 1, 0)
	b := g.addNode(state.State5D{X: 0.03}, 0.1, 3, 0)
	c := g.addNode(state.State5D{X: 2}, 0.1, 1, 0)
	g.edges[keyOf(a.ID, c.ID)] = &Edge{From: a.ID, To: c.ID, Weight: 0.2}
	g.edges[keyOf(b.ID, c.ID)] = &Edge{From: b.ID, To: c.ID, Weight: 0.6}
	g.edges[keyOf(a.ID, b.ID)] = &Edge{From: a.ID, To: b.ID, Weight: 0.5}

	var d Delta
	g.merge(map[int]bool{b.ID: true}, &d)

	if d.NodesMerged != 1 || g.NodeCount() != 2 {
		t.Fatalf("expected one merge leaving 2 nodes, got %d nodes, delta %+v", g.NodeCount(), d)
	}
	merged, ok := g.Node(a.ID)
	if !ok {
		t.Fatal("expected lower id to survive")
	}
	if merged.Mass != 4 {
		t.Errorf("expected summed mass 4, got %f", merged.Mass)
	}
	if math.Abs(merged.Anchor.X-0.0225) > 1e-12 {
		t.Errorf("expected mass-weighted x 0.0225, got %f", merged.Anchor.X)
	}
	edges := g.Edges()
	if len(edges) != 1 || edges[0].From != a.ID || edges[0].To != c.ID || edges[0].Weight != 0.6 {
		t.Fatalf("expected single max-weight edge, got %+v", edges)
	}
	if err := g.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestSplitBracketsParent(t *testing.T) {
	g := newTestGraph(t, DefaultConfig())
	parent := g.addNode(state.State5D{}, 0.5, 4, 0)
	other := g.addNode(state.State5D{Y: 3}, 0.1, 1, 0)
	g.edges[keyOf(parent.ID, other.ID)] = &Edge{From: parent.ID, To: other.ID, Weight: 0.8}

	var d Delta
	touched := map[int]bool{parent.ID: true}
	g.split(1, touched, &d)

	if d.NodesSplit != 1 || g.NodeCount() != 3 {
		t.Fatalf("expected split into 3 nodes, got %d, delta %+v", g.NodeCount(), d)
	}
	if _, ok := g.Node(parent.ID); ok {
		t.Fatal("parent should be removed")
	}
	left, _ := g.Node(2)
	right, _ := g.Node(3)
	off := math.Sqrt(0.5)
	if math.Abs(left.Anchor.X+off) > 1e-12 || math.Abs(right.Anchor.X-off) > 1e-12 {
		t.Errorf("children should bracket parent: %f, %f", left.Anchor.X, right.Anchor.X)
	}
	if left.Mass != 2 || right.Mass != 2 || left.Variance != 0.25 {
		t.Errorf("unexpected child mass/variance: %+v %+v", left, right)
	}
	if touched[parent.ID] || !touched[2] || !touched[3] {
		t.Errorf("touched set not updated: %v", touched)
	}

	want := map[[2]int]float64{{1, 2}: 0.4, {1, 3}: 0.4, {2, 3}: 0.1}
	for _, e := range g.Edges() {
		w, ok := want[[2]int{e.From, e.To}]
		if !ok || math.Abs(e.Weight-w) > 1e-12 {
			t.Errorf("unexpected edge %+v", e)
		}
	}
	if g.EdgeCount() != 3 {
		t.Errorf("expected 3 edges, got %d", g.EdgeCount())
	}
	if d.EdgesCreated != 3 {
		t.Errorf("expected both child edges and the sibling edge counted, got %d", d.EdgesCreated)
	}
}

func TestMergeCoalescesIdleNodeIntoActiveNeighbor(t *testing.T) {
	g := newTestGraph(t, DefaultConfig())
	idle := g.addNode(state.State5D{X: 0.3}, 0.1, 2, 0)
	active := g.addNode(state.State5D{}, 0.1, 6, 0)
	quietA := g.addNode(state.State5D{Y: 3}, 0.1, 1, 0)
	quietB := g.addNode(state.State5D{Y: 3.2}, 0.1, 1, 0)
	busyA := g.addNode(state.State5D{Z: 5}, 0.1, 1, 0)
	busyB := g.addNode(state.State5D{Z: 5.3}, 0.1, 1, 0)

	var d Delta
	touched := map[int]bool{active.ID: true, busyA.ID: true, busyB.ID: true}
	g.merge(touched, &d)

	// 1. Only the idle/active pair is within the coalesce radius
	if d.NodesMerged != 1 || g.NodeCount() != 5 {
		t.Fatalf("expected one merge leaving 5 nodes, got %d nodes, delta %+v", g.NodeCount(), d)
	}
	merged, ok := g.Node(idle.ID)
	if !ok {
		t.Fatal("expected lower id to survive")
	}
	if merged.Mass != 8 || math.Abs(merged.Anchor.X-0.075) > 1e-12 {
		t.Errorf("unexpected merged node %+v", merged)
	}
	if !touched[idle.ID] || touched[active.ID] {
		t.Errorf("touched set not moved to survivor: %v", touched)
	}

	// 2. Two idle or two active nodes need the tight merge radius
	for _, id := range []int{quietA.ID, quietB.ID, busyA.ID, busyB.ID} {
		if _, ok := g.Node(id); !ok {
			t.Errorf("node %d should not have merged", id)
		}
	}
}

func TestConvergingStatesMergeNodes(t *testing.T) {
	g := newTestGraph(t, DefaultConfig())
	p, err := policy.ForVariant(policy.Homeostasis, 0)
	if err != nil {
		t.Fatalf("params: %v", err)
	}

	// Two particles start 0.8 apart and contract toward x = 0.25.
	a, b := -0.4, 0.4
	merged := 0
	for tick := 0; tick < 20; tick++ {
		d := g.Step([]state.State5D{{X: a, Omega: float64(tick)}, {X: b, Omega: float64(tick)}}, float64(tick), p, 1)
		merged += d.NodesMerged
		a += (0.25 - a) * 0.3
		b += (0.25 - b) * 0.3
	}
	if merged == 0 {
		t.Fatal("converging particles should merge their nodes")
	}
	if g.NodeCount() != 1 {
		t.Errorf("expected a single node at the fixed point, got %d", g.NodeCount())
	}
}

// #endregion test-merge-split

// #region test-density
func TestDensityBounds(t *testing.T) {
	g := newTestGraph(t, DefaultConfig())
	if g.Density() != 0 {
		t.Fatalf("empty graph density should be 0, got %f", g.Density())
	}
	g.Step([]state.State5D{{}}, 0, explore(t), 1)
	if g.Density() != 0 {
		t.Fatalf("single node density should be 0, got %f", g.Density())
	}

	p := explore(t)
	for tick := 1; tick <= 30; tick++ {
		batch := make([]state.State5D, 0, 6)
		for i := 0; i < 6; i++ {
			batch = append(batch, state.State5D{
				X:   float64(i%3) * 1.5,
				Y:   math.Sin(float64(tick+i)) * 2,
				Psi: 0.5,
			})
		}
		g.Step(state.LiftAll(projectAll(batch), float64(tick)), float64(tick), p, 1.4)

		d := g.Density()
		if g.NodeCount() < 2 && d != 0 {
			t.Fatalf("tick %d: density %f with %d nodes", tick, d, g.NodeCount())
		}
		if d < 0 || d > 1 {
			t.Fatalf("tick %d: density %f out of [0, 1]", tick, d)
		}
		for _, e := range g.Edges() {
			if e.Weight > 1 {
				t.Fatalf("tick %d: weight %f exceeds cap", tick, e.Weight)
			}
		}
	}
}

func projectAll(in []state.State5D) []state.State4D {
	out := make([]state.State4D, len(in))
	for i, s := range in {
		out[i] = state.ProjectState(s)
	}
	return out
}

// #endregion test-density

// #region test-determinism
func TestStepDeterministic(t *testing.T) {
	run := func() ([]Node, []Edge) {
		g := newTestGraph(t, DefaultConfig())
		p := explore(t)
		for tick := 0; tick < 12; tick++ {
			batch := []state.State5D{
				{X: float64(tick) * 0.3, Psi: 0.2, Omega: float64(tick)},
				{X: 1, Y: float64(tick%4) * 0.7, Psi: 0.9, Omega: float64(tick)},
				{Z: -2, Psi: 0.1, Omega: float64(tick)},
			}
			g.Step(batch, float64(tick), p, 1.2)
		}
		return g.Nodes(), g.Edges()
	}

	n1, e1 := run()
	n2, e2 := run()
	if !reflect.DeepEqual(n1, n2) || !reflect.DeepEqual(e1, e2) {
		t.Fatal("identical inputs produced different graphs")
	}
}

// #endregion test-determinism

// #region test-queries
func TestEmptyGraphQueries(t *testing.T) {
	g := newTestGraph(t, DefaultConfig())
	if _, ok := g.Centroid(); ok {
		t.Error("empty graph should have no centroid")
	}
	if g.Energy() != 0 || g.EdgeNodeRatio() != 0 {
		t.Errorf("empty graph energy/ratio should be 0, got %f / %f", g.Energy(), g.EdgeNodeRatio())
	}
}

func TestCheckInvariantsCatchesDanglingEdge(t *testing.T) {
	g := newTestGraph(t, DefaultConfig())
	g.addNode(state.State5D{}, 0.1, 1, 0)
	g.edges[keyOf(0, 7)] = &Edge{From: 0, To: 7, Weight: 0.5}
	if err := g.CheckInvariants(); err == nil {
		t.Fatal("expected dangling edge to be reported")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxNodes = 0
	if _, err := New(cfg); err == nil {
		t.Error("expected zero-sized graph to be rejected")
	}

	cfg = DefaultConfig()
	cfg.MergeRadius = cfg.InsertRadius
	if _, err := New(cfg); err == nil {
		t.Error("expected merge radius >= insert radius to be rejected")
	}

	cfg = DefaultConfig()
	cfg.CoalesceRadius = cfg.MergeRadius / 2
	if _, err := New(cfg); err == nil {
		t.Error("expected coalesce radius below merge radius to be rejected")
	}
}

// #endregion test-queries

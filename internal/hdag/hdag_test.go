package hdag

import (
	"testing"

	"github.com/danielpatrickdp/trichter/internal/funnel"
	"github.com/danielpatrickdp/trichter/internal/hyperbion"
	"github.com/danielpatrickdp/trichter/internal/policy"
	"github.com/danielpatrickdp/trichter/internal/state"
)

func stepAndSync(t *testing.T, g *funnel.Graph, f *Field, batch []state.State5D, tick float64) funnel.Delta {
	t.Helper()
	p, err := policy.ForVariant(policy.Explore, 0)
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	d := g.Step(batch, tick, p, 1)
	f.Sync(g.Nodes(), d, hyperbion.Default().Absorb(batch), tick)
	return d
}

func TestSyncCountsFollowDelta(t *testing.T) {
	g, err := funnel.New(funnel.DefaultConfig())
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	f := New()

	d := stepAndSync(t, g, f, []state.State5D{{X: 0}, {X: 3}, {X: 6}}, 0)

	c := f.Counts()
	if c.Tensors != uint64(len(d.Touched)) {
		t.Errorf("expected %d tensors, got %d", len(d.Touched), c.Tensors)
	}
	if c.Transitions != uint64(d.EdgesCreated+d.EdgesReinforced) {
		t.Errorf("expected %d transitions, got %d", d.EdgesCreated+d.EdgesReinforced, c.Transitions)
	}
	if f.Len() != g.NodeCount() {
		t.Errorf("shadow has %d tensors, graph has %d nodes", f.Len(), g.NodeCount())
	}
}

func TestCountsMonotonicAndShadowInLockStep(t *testing.T) {
	g, _ := funnel.New(funnel.DefaultConfig())
	f := New()

	var prev Counts
	for tick := 0; tick < 20; tick++ {
		var batch []state.State5D
		if tick%3 != 2 {
			batch = []state.State5D{
				{X: float64(tick % 5), Psi: 0.5, Omega: float64(tick)},
				{Y: 2, Psi: 0.3, Omega: float64(tick)},
			}
		}
		stepAndSync(t, g, f, batch, float64(tick))

		c := f.Counts()
		if c.Tensors < prev.Tensors || c.Transitions < prev.Transitions {
			t.Fatalf("tick %d: counts decreased %+v -> %+v", tick, prev, c)
		}
		prev = c

		nodes := g.Nodes()
		tensors := f.Tensors()
		if len(nodes) != len(tensors) {
			t.Fatalf("tick %d: %d nodes vs %d tensors", tick, len(nodes), len(tensors))
		}
		for i := range nodes {
			if nodes[i].ID != tensors[i].NodeID {
				t.Fatalf("tick %d: node %d shadowed by tensor %d", tick, nodes[i].ID, tensors[i].NodeID)
			}
		}
	}
}

func TestGradientNeedsTwoTensors(t *testing.T) {
	f := New()
	if f.Gradient() != (state.State5D{}) {
		t.Fatal("empty field should have zero gradient")
	}
	g, _ := funnel.New(funnel.DefaultConfig())
	stepAndSync(t, g, f, []state.State5D{{X: 1}}, 0)
	if f.Gradient() != (state.State5D{}) {
		t.Fatal("single tensor should have zero gradient")
	}
}

func TestSplitCountsEveryChildEdge(t *testing.T) {
	g, err := funnel.New(funnel.DefaultConfig())
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	f := New()

	// Each state lands exactly InsertRadius from the moving anchor, driving
	// the variance past SplitVariance on the fourth absorption.
	batch := []state.State5D{
		{Y: 5},
		{X: 0},
		{X: 0.5},
		{X: -0.25},
		{X: 0.5 + 1.0/12},
	}
	d := stepAndSync(t, g, f, batch, 0)

	if d.NodesSplit != 1 {
		t.Fatalf("expected one split, got delta %+v", d)
	}
	// 1 co-activation edge, then 2 children per parent edge (degree 1) plus the sibling.
	if d.EdgesCreated != 1+2*1+1 {
		t.Errorf("expected 4 edges created, got %d", d.EdgesCreated)
	}
	if got := f.Counts().Transitions; got != 4 {
		t.Errorf("expected 4 transitions, got %d", got)
	}
}

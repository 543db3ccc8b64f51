package tick

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/danielpatrickdp/trichter/internal/funnel"
	"github.com/danielpatrickdp/trichter/internal/gate"
	"github.com/danielpatrickdp/trichter/internal/hdag"
	"github.com/danielpatrickdp/trichter/internal/hyperbion"
	"github.com/danielpatrickdp/trichter/internal/ledger"
	"github.com/danielpatrickdp/trichter/internal/logging"
	"github.com/danielpatrickdp/trichter/internal/metrics"
	"github.com/danielpatrickdp/trichter/internal/policy"
	"github.com/danielpatrickdp/trichter/internal/state"
)

// #region config
// Config bundles what a Pipeline needs to build its graph and drive ticks.
type Config struct {
	Policy       policy.Params
	Hyperbion    hyperbion.Hyperbion
	Gate         gate.Config
	Resonance    *gate.ResonanceField
	Funnel       funnel.Config
	ComputeProof bool
	Debug        bool        // run funnel invariant assertions after every tick
	Seed         ledger.Hash // see ledger.SeedDigest
}

// DefaultConfig uses Homeostasis, the default gate and proofs enabled.
func DefaultConfig() Config {
	p, _ := policy.ForVariant(policy.Homeostasis, 0)
	return Config{
		Policy:       p,
		Hyperbion:    hyperbion.Default(),
		Gate:         gate.DefaultConfig(),
		Funnel:       funnel.DefaultConfig(),
		ComputeProof: true,
	}
}

// #endregion config

// #region pipeline
// Pipeline owns one graph, field and chain and applies ticks in strict order.
// It must not be shared between goroutines.
type Pipeline struct {
	cfg    Config
	params policy.Params
	graph  *funnel.Graph
	field  *hdag.Field
	chain  *ledger.Chain
	logger *slog.Logger
	ticks  int
}

// NewPipeline validates cfg and builds fresh structures. sink may be nil.
func NewPipeline(cfg Config, sink ledger.Sink, logger *slog.Logger) (*Pipeline, error) {
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Gate.Validate(); err != nil {
		return nil, err
	}
	graph, err := funnel.New(cfg.Funnel)
	if err != nil {
		return nil, fmt.Errorf("new pipeline: %w", err)
	}
	graph.SetDebug(cfg.Debug)
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{
		cfg:    cfg,
		params: cfg.Policy,
		graph:  graph,
		field:  hdag.New(),
		chain:  ledger.NewChain(sink),
		logger: logger,
	}, nil
}

// Step runs one tick. ctx is checked before the tick starts; a tick that has
// started always completes.
func (p *Pipeline) Step(ctx context.Context, states []state.State4D, t float64) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res, err := CouplingTick(ctx, Input{
		States:       states,
		T:            t,
		Policy:       p.params,
		Hyperbion:    p.cfg.Hyperbion,
		ComputeProof: p.cfg.ComputeProof,
		Gate:         p.cfg.Gate,
		Resonance:    p.cfg.Resonance,
		Seed:         p.cfg.Seed,
	}, p.field, p.graph, p.chain)
	if err != nil && res.Pending == nil {
		return Result{}, err
	}

	p.ticks++
	metrics.Ticks.WithLabelValues(string(p.params.Variant)).Inc()
	metrics.FunnelNodes.Observe(float64(res.Nodes))
	if res.Decision != nil {
		metrics.GateDecisions.WithLabelValues(string(res.Decision.Action)).Inc()
	}
	switch {
	case res.Commit != nil:
		metrics.Commits.WithLabelValues(metrics.ResultOK).Inc()
	case res.Pending != nil:
		metrics.Commits.WithLabelValues(metrics.ResultError).Inc()
	}

	p.params = p.params.AdaptToDensity(p.graph.EdgeNodeRatio())

	p.logger.Debug("tick",
		"t", t,
		"states", len(states),
		"nodes", res.Nodes,
		"edges", res.Edges,
		"density", res.Density,
		"h", res.H,
	)
	if res.Decision != nil {
		p.logger.Log(ctx, logging.LevelTrace, "gate",
			"t", t,
			"action", res.Decision.Action,
			"reason", res.Decision.Reason,
		)
	}
	return res, err
}

// RetryCommit re-attempts a FIRE whose write failed.
func (p *Pipeline) RetryCommit(ctx context.Context, pending ledger.Payload) (ledger.CommitData, error) {
	cd, err := p.chain.Commit(ctx, pending)
	if err != nil {
		metrics.Commits.WithLabelValues(metrics.ResultError).Inc()
		return ledger.CommitData{}, err
	}
	metrics.Commits.WithLabelValues(metrics.ResultOK).Inc()
	return cd, nil
}

// Params returns the policy knobs the next tick will use.
func (p *Pipeline) Params() policy.Params {
	return p.params
}

// Ticks returns how many ticks have completed.
func (p *Pipeline) Ticks() int {
	return p.ticks
}

// Chain exposes the commit chain for reads.
func (p *Pipeline) Chain() *ledger.Chain {
	return p.chain
}

// Graph exposes the funnel graph for reads.
func (p *Pipeline) Graph() *funnel.Graph {
	return p.graph
}

// Field exposes the hdag field for reads.
func (p *Pipeline) Field() *hdag.Field {
	return p.field
}

// #endregion pipeline

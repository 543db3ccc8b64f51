package cognitive

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/danielpatrickdp/trichter/internal/gate"
	"github.com/danielpatrickdp/trichter/internal/ledger"
	"github.com/danielpatrickdp/trichter/internal/state"
	"github.com/danielpatrickdp/trichter/internal/tick"
)

// #endregion

var tracer = otel.Tracer("trichter.cognitive")

// #region config
// DefaultBatchSize is how many trajectory samples make up one tick.
const DefaultBatchSize = 10

// Config wires an Engine. Nil collaborators fall back to the stand-ins.
type Config struct {
	Tick       tick.Config
	BatchSize  int
	Integrator Integrator
	Analyzer   Analyzer
	Router     Router
	Sink       ledger.Sink // optional; receives this engine's commits
}

// DefaultConfig uses the default tick pipeline and the stand-in collaborators.
func DefaultConfig() Config {
	return Config{
		Tick:       tick.DefaultConfig(),
		BatchSize:  DefaultBatchSize,
		Integrator: HeunIntegrator{Step: DefaultStep},
		Analyzer:   StatsAnalyzer{Bins: DefaultBins},
		Router:     SeedRouter{},
	}
}

// #endregion config

// #region engine
// Engine runs inputs end to end. Every Process call builds its own pipeline,
// so no graph state carries over between inputs.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// NewEngine validates cfg. logger may be nil.
func NewEngine(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Integrator == nil {
		cfg.Integrator = HeunIntegrator{Step: DefaultStep}
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = StatsAnalyzer{Bins: DefaultBins}
	}
	if cfg.Router == nil {
		cfg.Router = SeedRouter{}
	}
	if err := cfg.Tick.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	if err := cfg.Tick.Gate.Validate(); err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// #endregion engine

// #region process
// Process integrates the input, condenses the trajectory tick by tick, and
// derives the signature, route and gate outcome. Knowledge is set only when
// the final gate decision is FIRE.
func (e *Engine) Process(ctx context.Context, in Input) (out *Output, err error) {
	ctx, span := tracer.Start(ctx, "cognitive.Process",
		trace.WithAttributes(
			attribute.String("tic_id", in.TicID),
			attribute.Float64("t_final", in.TFinal),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// 1. Integrate
	trajectory, err := e.cfg.Integrator.Integrate(ctx, in.InitialState, in.Params, in.TFinal)
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", in.TicID, err)
	}
	if len(trajectory) == 0 {
		return nil, ErrEmptyTrajectory
	}

	// 2. Condense the trajectory through a fresh pipeline
	tcfg := e.cfg.Tick
	tcfg.ComputeProof = true
	tcfg.Seed = ledger.SeedDigest(in.Seed)
	pipe, err := tick.NewPipeline(tcfg, e.cfg.Sink, e.logger)
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", in.TicID, err)
	}
	last, err := e.runTicks(ctx, pipe, trajectory)
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", in.TicID, err)
	}

	// 3. Signature and route
	spectral, err := e.cfg.Analyzer.Analyze(trajectory)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", in.TicID, err)
	}
	route, err := e.cfg.Router.SelectRoute(trajectory[len(trajectory)-1], in.Seed)
	if err != nil {
		return nil, fmt.Errorf("select route %s: %w", in.TicID, err)
	}

	out = &Output{
		Trajectory: trajectory,
		Spectral:   spectral,
		Route:      route,
		Decision:   gate.Hold,
		Commits:    pipe.Chain().Commits(),
		Ticks:      pipe.Ticks(),
		Guidance:   last.Guidance,
	}
	if last.Proof != nil {
		out.Proof = *last.Proof
	}
	if last.Decision != nil {
		out.Decision = last.Decision.Action
	}

	// 4. Knowledge on FIRE only
	if out.Fired() {
		out.Knowledge = NewKnowledge(in, route, spectral, pipe.Chain().Head())
	}

	span.SetAttributes(
		attribute.String("decision", string(out.Decision)),
		attribute.Int("ticks", out.Ticks),
		attribute.Int("commits", len(out.Commits)),
	)
	e.logger.Debug("processed",
		"tic_id", in.TicID,
		"samples", len(trajectory),
		"ticks", out.Ticks,
		"decision", out.Decision,
	)
	return out, nil
}

// runTicks feeds the trajectory to pipe in BatchSize chunks and returns the
// last tick's result. t for each tick is the simulated time of its last sample.
func (e *Engine) runTicks(ctx context.Context, pipe *tick.Pipeline, trajectory []state.State5D) (tick.Result, error) {
	step := DefaultStep
	if h, ok := e.cfg.Integrator.(HeunIntegrator); ok && h.Step > 0 {
		step = h.Step
	}

	var last tick.Result
	for start := 0; start < len(trajectory); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(trajectory))
		batch := make([]state.State4D, 0, end-start)
		for _, s := range trajectory[start:end] {
			batch = append(batch, state.ProjectState(s))
		}
		t := float64(end-1) * step

		_, span := tracer.Start(ctx, "tick.Step", trace.WithAttributes(attribute.Float64("t", t)))
		res, err := pipe.Step(ctx, batch, t)
		if errors.Is(err, ledger.ErrCommitWrite) && res.Pending != nil {
			_, err = pipe.RetryCommit(ctx, *res.Pending)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return tick.Result{}, err
		}
		span.End()
		last = res
	}
	return last, nil
}

// #endregion process

// #region knowledge
// NewKnowledge builds the knowledge object for a FIRE run. The id is
// MEF-<tic>-<route>-<first 8 characters of the seed>.
func NewKnowledge(in Input, route Route, spectral Spectral, head ledger.Hash) *Knowledge {
	seed := in.Seed
	if r := []rune(seed); len(r) > 8 {
		seed = string(r[:8])
	}
	return &Knowledge{
		ID:       fmt.Sprintf("MEF-%s-%s-%s", in.TicID, route.ID, seed),
		TicID:    in.TicID,
		RouteID:  route.ID,
		SeedPath: in.SeedPath,
		Payload: map[string]any{
			"spectral_signature": map[string]any{
				"psi":   spectral.Psi,
				"rho":   spectral.Rho,
				"omega": spectral.Omega,
			},
			"route": map[string]any{
				"route_id":    route.ID,
				"permutation": route.Permutation,
			},
			"commit_head": head.String(),
		},
	}
}

// #endregion knowledge

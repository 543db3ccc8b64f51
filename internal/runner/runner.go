// Package runner executes independent cognitive runs on a bounded worker
// pool. Every run owns its engine, graph and chain.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/trichter/internal/cognitive"
	"github.com/danielpatrickdp/trichter/internal/metrics"
	"github.com/danielpatrickdp/trichter/internal/storage"
)

var tracer = otel.Tracer("trichter.runner")

// Runner fans inputs out to fresh engines.
type Runner struct {
	cfg     Config
	backend storage.Backend
	logger  *slog.Logger
}

// New validates cfg. backend and logger may be nil.
func New(cfg Config, backend storage.Backend, logger *slog.Logger) (*Runner, error) {
	if cfg.Parallelism < 1 {
		return nil, fmt.Errorf("%w: parallelism %d", ErrInvalidConfig, cfg.Parallelism)
	}
	if cfg.RunTimeout < 0 {
		return nil, fmt.Errorf("%w: run timeout %s", ErrInvalidConfig, cfg.RunTimeout)
	}
	if _, err := cognitive.NewEngine(cfg.Engine, nil); err != nil {
		return nil, fmt.Errorf("new runner: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{cfg: cfg, backend: backend, logger: logger}, nil
}

// RunBatch processes inputs with at most Parallelism runs in flight. Failed
// runs never cancel their siblings. The returned error is non-nil only when
// ctx ended before every run was scheduled or finished.
func (r *Runner) RunBatch(ctx context.Context, inputs []cognitive.Input) (BatchResult, error) {
	ctx, span := tracer.Start(ctx, "runner.RunBatch",
		trace.WithAttributes(
			attribute.Int("inputs", len(inputs)),
			attribute.Int("parallelism", r.cfg.Parallelism),
		),
	)
	defer span.End()

	start := time.Now()
	type slot struct {
		ok   *Success
		fail *Failure
	}
	slots := make([]slot, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallelism)
	for i, in := range inputs {
		g.Go(func() error {
			s, f := r.run(gctx, i, in)
			slots[i] = slot{ok: s, fail: f}
			return nil
		})
	}
	// Workers never return an error; failures travel through slots.
	_ = g.Wait()

	var res BatchResult
	for _, s := range slots {
		switch {
		case s.ok != nil:
			res.Successes = append(res.Successes, *s.ok)
		case s.fail != nil:
			res.Failures = append(res.Failures, *s.fail)
		}
	}
	res.TotalTime = time.Since(start)
	if n := res.TotalCount(); n > 0 {
		res.AvgTime = res.TotalTime / time.Duration(n)
	}

	span.SetAttributes(
		attribute.Int("successes", res.SuccessCount()),
		attribute.Int("failures", res.FailureCount()),
	)
	r.logger.Info("batch complete",
		"inputs", len(inputs),
		"successes", res.SuccessCount(),
		"failures", res.FailureCount(),
		"fired", res.FiredCount(),
		"duration", res.TotalTime,
	)
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	return res, nil
}

// run executes one input. A run that overruns its timeout is discarded even
// if the engine returned an output.
func (r *Runner) run(ctx context.Context, index int, in cognitive.Input) (*Success, *Failure) {
	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "runner.run",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.String("tic_id", in.TicID),
		),
	)
	defer span.End()

	fail := func(err error, outcome string) (*Success, *Failure) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.Runs.WithLabelValues(outcome).Inc()
		r.logger.Warn("run failed", "run_id", runID, "index", index, "tic_id", in.TicID, "error", err)
		return nil, &Failure{Index: index, RunID: runID, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(err, metrics.ResultError)
	}
	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}

	ecfg := r.cfg.Engine
	if r.cfg.Sinks != nil {
		ecfg.Sink = r.cfg.Sinks(runID, in)
	}
	engine, err := cognitive.NewEngine(ecfg, r.logger.With("run_id", runID))
	if err != nil {
		return fail(err, metrics.ResultError)
	}

	started := time.Now()
	out, err := engine.Process(ctx, in)
	elapsed := time.Since(started)
	metrics.RunDuration.Observe(elapsed.Seconds())

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fail(fmt.Errorf("%w after %s: tic %s", ErrRunTimeout, r.cfg.RunTimeout, in.TicID), metrics.ResultTimeout)
	}
	if err != nil {
		return fail(err, metrics.ResultError)
	}

	s := &Success{Index: index, RunID: runID, Output: out, Duration: elapsed}
	if r.backend != nil && (out.Fired() || r.cfg.StoreHolds) {
		s.StorageID, s.StoreErr = r.backend.Store(ctx, out)
		if s.StoreErr != nil {
			r.logger.Warn("store failed", "run_id", runID, "tic_id", in.TicID, "error", s.StoreErr)
		}
	}
	metrics.Runs.WithLabelValues(metrics.ResultOK).Inc()
	span.SetAttributes(attribute.String("decision", string(out.Decision)))
	return s, nil
}

package replay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/danielpatrickdp/trichter/internal/cognitive"
	"github.com/danielpatrickdp/trichter/internal/gate"
	"github.com/danielpatrickdp/trichter/internal/ledger"
	"github.com/danielpatrickdp/trichter/internal/state"
	"github.com/danielpatrickdp/trichter/internal/tick"
)

// #region types
// Config describes one seeded replay run.
type Config struct {
	Seed        string
	Ticks       int
	Particles   int     // states per tick
	Contraction float64 // per-tick pull toward the attractor, in (0, 1)
	Noise       float64 // initial jitter; shrinks with the same factor
	Tick        tick.Config
}

// DefaultConfig replays 40 ticks of five particles under Homeostasis.
func DefaultConfig(seed string) Config {
	return Config{
		Seed:        seed,
		Ticks:       40,
		Particles:   5,
		Contraction: 0.3,
		Noise:       0.05,
		Tick:        tick.DefaultConfig(),
	}
}

// Validate rejects configs that cannot produce a run.
func (c Config) Validate() error {
	switch {
	case c.Ticks < 0:
		return fmt.Errorf("replay: ticks %d must be >= 0", c.Ticks)
	case c.Particles < 1:
		return fmt.Errorf("replay: particles %d must be >= 1", c.Particles)
	case !(c.Contraction > 0 && c.Contraction < 1):
		return fmt.Errorf("replay: contraction %v must be in (0, 1)", c.Contraction)
	case math.IsNaN(c.Noise) || math.IsInf(c.Noise, 0) || c.Noise < 0:
		return fmt.Errorf("replay: noise %v must be finite and >= 0", c.Noise)
	}
	return nil
}

// Result captures one replayed tick.
type Result struct {
	Tick   int
	T      float64
	Action gate.Action
	Reason string
	Nodes  int
	Edges  int
	Proof  gate.Proof
	Commit *ledger.CommitData
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalTicks int
	Fires      int
	Holds      int
	FinalNodes int
	FinalEdges int
	Head       ledger.Hash
}

// #endregion types

// #region source
// Source emits seeded batches of particles contracting toward an attractor.
// Two sources with the same seed and config emit identical batches.
type Source struct {
	rng       *rand.Rand
	attractor state.State4D
	particles []state.State4D
	pull      float64
	noise     float64
}

// NewSource draws the attractor and starting particles from the seed.
func NewSource(cfg Config) *Source {
	rng := cognitive.NewSeededRand(cfg.Seed)
	s := &Source{
		rng:   rng,
		pull:  cfg.Contraction,
		noise: cfg.Noise,
		attractor: state.State4D{
			X:   rng.Float64()*2 - 1,
			Y:   rng.Float64()*2 - 1,
			Z:   rng.Float64()*2 - 1,
			Psi: 0.25 + rng.Float64()*0.5,
		},
	}
	for range cfg.Particles {
		s.particles = append(s.particles, state.State4D{
			X:   rng.Float64()*2 - 1,
			Y:   rng.Float64()*2 - 1,
			Z:   rng.Float64()*2 - 1,
			Psi: rng.Float64(),
		})
	}
	return s
}

// Next returns the current batch, then moves every particle toward the
// attractor and shrinks the jitter.
func (s *Source) Next() []state.State4D {
	batch := make([]state.State4D, len(s.particles))
	for i, p := range s.particles {
		batch[i] = state.State4D{
			X:   p.X + s.jitter(),
			Y:   p.Y + s.jitter(),
			Z:   p.Z + s.jitter(),
			Psi: p.Psi,
		}
		s.particles[i] = state.State4D{
			X:   p.X + (s.attractor.X-p.X)*s.pull,
			Y:   p.Y + (s.attractor.Y-p.Y)*s.pull,
			Z:   p.Z + (s.attractor.Z-p.Z)*s.pull,
			Psi: p.Psi + (s.attractor.Psi-p.Psi)*s.pull,
		}
	}
	s.noise *= 1 - s.pull
	return batch
}

func (s *Source) jitter() float64 {
	return s.rng.NormFloat64() * s.noise
}

// Attractor returns the point the particles converge to.
func (s *Source) Attractor() state.State4D {
	return s.attractor
}

// #endregion source

// #region replay
// Replay drives a fresh pipeline for cfg.Ticks ticks. Tick k runs at t = k.
// Operates entirely in memory.
func Replay(ctx context.Context, cfg Config) ([]Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tcfg := cfg.Tick
	tcfg.ComputeProof = true
	tcfg.Seed = ledger.SeedDigest(cfg.Seed)
	pipe, err := tick.NewPipeline(tcfg, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	src := NewSource(cfg)

	results := make([]Result, 0, cfg.Ticks)
	for k := range cfg.Ticks {
		res, err := pipe.Step(ctx, src.Next(), float64(k))
		if err != nil && !errors.Is(err, ledger.ErrCommitWrite) {
			return results, fmt.Errorf("replay tick %d: %w", k, err)
		}
		r := Result{
			Tick:   k,
			T:      res.T,
			Action: gate.Hold,
			Nodes:  res.Nodes,
			Edges:  res.Edges,
			Commit: res.Commit,
		}
		if res.Decision != nil {
			r.Action = res.Decision.Action
			r.Reason = res.Decision.Reason
		}
		if res.Proof != nil {
			r.Proof = *res.Proof
		}
		results = append(results, r)
	}
	return results, nil
}

// Hashes returns the commit hashes in emission order.
func Hashes(results []Result) []ledger.Hash {
	var out []ledger.Hash
	for _, r := range results {
		if r.Commit != nil {
			out = append(out, r.Commit.Hash)
		}
	}
	return out
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result) Summary {
	s := Summary{TotalTicks: len(results)}
	for _, r := range results {
		switch r.Action {
		case gate.Fire:
			s.Fires++
		default:
			s.Holds++
		}
		if r.Commit != nil {
			s.Head = r.Commit.Hash
		}
	}
	if n := len(results); n > 0 {
		s.FinalNodes = results[n-1].Nodes
		s.FinalEdges = results[n-1].Edges
	}
	return s
}

// #endregion replay

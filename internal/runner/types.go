package runner

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/trichter/internal/cognitive"
	"github.com/danielpatrickdp/trichter/internal/ledger"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrRunTimeout marks a run discarded because it exceeded RunTimeout.
	ErrRunTimeout = errors.New("runner: run timed out")

	// ErrInvalidConfig is returned for a non-positive parallelism.
	ErrInvalidConfig = errors.New("runner: invalid config")
)

// =============================================================================
// CONFIG
// =============================================================================

// SinkFactory returns the ledger sink for one run, or nil for none.
type SinkFactory func(runID string, in cognitive.Input) ledger.Sink

// Config controls a Runner.
type Config struct {
	// Parallelism bounds how many runs execute at once.
	Parallelism int

	// RunTimeout bounds one run end to end. Zero means no timeout.
	RunTimeout time.Duration

	// Engine configures each run's private engine.
	Engine cognitive.Config

	// StoreHolds also stores HOLD outputs when a backend is set.
	StoreHolds bool

	// Sinks gives each run its own ledger sink. Optional.
	Sinks SinkFactory
}

// DefaultConfig runs four at a time with a 30s per-run timeout.
func DefaultConfig() Config {
	return Config{
		Parallelism: 4,
		RunTimeout:  30 * time.Second,
		Engine:      cognitive.DefaultConfig(),
	}
}

// =============================================================================
// RESULTS
// =============================================================================

// Success is one completed run.
type Success struct {
	Index     int
	RunID     string
	Output    *cognitive.Output
	StorageID string
	StoreErr  error // set when the output could not be stored
	Duration  time.Duration
}

// Failure is one discarded run.
type Failure struct {
	Index int
	RunID string
	Err   error
}

// BatchResult collects every run of a batch, ordered by input index.
type BatchResult struct {
	Successes []Success
	Failures  []Failure
	TotalTime time.Duration
	AvgTime   time.Duration
}

// SuccessCount returns the number of completed runs.
func (b BatchResult) SuccessCount() int { return len(b.Successes) }

// FailureCount returns the number of discarded runs.
func (b BatchResult) FailureCount() int { return len(b.Failures) }

// TotalCount returns the number of inputs.
func (b BatchResult) TotalCount() int { return b.SuccessCount() + b.FailureCount() }

// AllSucceeded reports whether no run failed.
func (b BatchResult) AllSucceeded() bool { return len(b.Failures) == 0 }

// SuccessRate returns the share of completed runs as a percentage.
func (b BatchResult) SuccessRate() float64 {
	if b.TotalCount() == 0 {
		return 0
	}
	return float64(b.SuccessCount()) / float64(b.TotalCount()) * 100
}

// FiredCount returns how many completed runs ended on FIRE.
func (b BatchResult) FiredCount() int {
	n := 0
	for _, s := range b.Successes {
		if s.Output.Fired() {
			n++
		}
	}
	return n
}

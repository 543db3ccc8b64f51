package storage

// #region imports
import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/trichter/internal/cognitive"
)

// #endregion

// #region config
// RetryConfig bounds how a Retrying backend re-attempts writes.
type RetryConfig struct {
	MaxAttempts    int           // including the first
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig tries three times starting at 50ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     time.Second,
		BackoffFactor:  2,
	}
}

// #endregion config

// #region retrying
// Retrying wraps a Backend and retries Store on transient failures.
// ErrInvalidData is never retried.
type Retrying struct {
	Backend
	cfg RetryConfig
}

// WithRetry wraps b. A zero MaxAttempts uses the defaults.
func WithRetry(b Backend, cfg RetryConfig) *Retrying {
	if cfg.MaxAttempts < 1 {
		cfg = DefaultRetryConfig()
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 1
	}
	return &Retrying{Backend: b, cfg: cfg}
}

// Store retries the wrapped Store with exponential backoff until it succeeds,
// the attempts run out, or ctx ends.
func (r *Retrying) Store(ctx context.Context, out *cognitive.Output) (string, error) {
	backoff := r.cfg.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		id, err := r.Backend.Store(ctx, out)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if errors.Is(err, ErrInvalidData) || attempt == r.cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * r.cfg.BackoffFactor)
		if r.cfg.MaxBackoff > 0 && backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
	}
	return "", lastErr
}

// #endregion retrying

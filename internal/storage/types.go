// Package storage persists cognitive outputs behind one Backend interface.
package storage

// #region imports
import (
	"context"
	"errors"

	"github.com/danielpatrickdp/trichter/internal/cognitive"
)

// #endregion

// #region errors
var (
	// ErrNotFound is returned by Retrieve for an unknown id.
	ErrNotFound = errors.New("storage: item not found")

	// ErrUnavailable is returned when the backend cannot serve requests.
	ErrUnavailable = errors.New("storage: backend unavailable")

	// ErrInvalidData is returned when an output cannot be stored as given.
	ErrInvalidData = errors.New("storage: invalid data")
)

// #endregion errors

// #region backend
// Backend stores and retrieves outputs. Implementations are safe for
// concurrent use. A failed Store always counts toward FailedWrites.
type Backend interface {
	Store(ctx context.Context, out *cognitive.Output) (string, error)
	Retrieve(ctx context.Context, id string) (*cognitive.Output, error)
	HealthCheck(ctx context.Context) (bool, error)
	Stats(ctx context.Context) (Stats, error)
}

// Stats summarizes a backend.
type Stats struct {
	TotalItems       int    `json:"total_items"`
	TotalSizeBytes   int64  `json:"total_size_bytes"`
	SuccessfulWrites uint64 `json:"successful_writes"`
	FailedWrites     uint64 `json:"failed_writes"`
	BackendType      string `json:"backend_type"`
}

// Backend type names.
const (
	TypeMemory = "memory"
	TypeSQLite = "sqlite"
	TypeRemote = "remote"
)

// #endregion backend

package storage

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/trichter/internal/cognitive"
	"github.com/danielpatrickdp/trichter/internal/metrics"
)

// #endregion

// #region memory-struct
// Memory keeps outputs as JSON in a map. One mutex guards both the map and
// the stats so they never drift apart.
type Memory struct {
	mu     sync.Mutex
	items  map[string][]byte
	stats  Stats
	closed bool
	now    func() time.Time
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string][]byte),
		stats: Stats{BackendType: TypeMemory},
		now:   time.Now,
	}
}

// #endregion memory-struct

// #region store
// Store keys the output by its knowledge id, else MEM-<unix millis>-<uuid8>.
// Storing an existing id replaces it.
func (m *Memory) Store(_ context.Context, out *cognitive.Output) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fail := func(err error) (string, error) {
		m.stats.FailedWrites++
		metrics.StorageWrites.WithLabelValues(TypeMemory, metrics.ResultError).Inc()
		return "", err
	}
	if m.closed {
		return fail(ErrUnavailable)
	}
	if out == nil {
		return fail(fmt.Errorf("%w: nil output", ErrInvalidData))
	}
	body, err := json.Marshal(out)
	if err != nil {
		return fail(fmt.Errorf("%w: encode output: %v", ErrInvalidData, err))
	}

	id := fallbackID("MEM", m.now())
	if out.Knowledge != nil && out.Knowledge.ID != "" {
		id = out.Knowledge.ID
	}
	if prev, ok := m.items[id]; ok {
		m.stats.TotalSizeBytes -= int64(len(prev))
	}
	m.items[id] = body
	m.stats.TotalItems = len(m.items)
	m.stats.TotalSizeBytes += int64(len(body))
	m.stats.SuccessfulWrites++
	metrics.StorageWrites.WithLabelValues(TypeMemory, metrics.ResultOK).Inc()
	return id, nil
}

func fallbackID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), uuid.NewString()[:8])
}

// #endregion store

// #region read
// Retrieve decodes a fresh copy of the stored output.
func (m *Memory) Retrieve(_ context.Context, id string) (*cognitive.Output, error) {
	m.mu.Lock()
	body, ok := m.items[id]
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return nil, ErrUnavailable
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var out cognitive.Output
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return &out, nil
}

// HealthCheck reports false once the backend is closed.
func (m *Memory) HealthCheck(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed, nil
}

// Stats returns a snapshot taken under the same lock as the data.
func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats, nil
}

// Len returns the number of stored items.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// #endregion read

// #region lifecycle
// Clear drops every item and resets the stats.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string][]byte)
	m.stats = Stats{BackendType: TypeMemory}
}

// Close makes every later call fail with ErrUnavailable.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// #endregion lifecycle

package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/haulwatch/haulwatch-stack/webhook/internal/models"
)

// MemorySink keeps records in a map. Used by tests and dry runs.
type MemorySink struct {
	mu      sync.RWMutex
	records map[string]models.LocationRecord
	order   []string

	// FailWith, when set, is returned by every Append.
	FailWith error
}

func NewMemory() *MemorySink {
	return &MemorySink{records: make(map[string]models.LocationRecord)}
}

func (m *MemorySink) Append(_ context.Context, rec *models.LocationRecord) (bool, error) {
	if rec == nil {
		return false, persistenceError(BackendMemory, "append", errors.New("nil record"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return false, persistenceError(BackendMemory, "append", m.FailWith)
	}
	if _, ok := m.records[rec.ID]; ok {
		return false, nil
	}
	m.records[rec.ID] = *rec
	m.order = append(m.order, rec.ID)
	return true, nil
}

func (m *MemorySink) Get(_ context.Context, id string) (*models.LocationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemorySink) Exists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[id]
	return ok, nil
}

// Len returns the number of stored records.
func (m *MemorySink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// All returns stored records in insertion order.
func (m *MemorySink) All() []models.LocationRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.LocationRecord, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.records[id])
	}
	return out
}

func (m *MemorySink) Ping(context.Context) error { return nil }
func (m *MemorySink) Close() error               { return nil }

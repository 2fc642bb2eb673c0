package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
)

// MemoryIndex is an in-process vector index using cosine similarity.
// It backs local runs and tests; contents do not survive a restart.
type MemoryIndex struct {
	mu      sync.RWMutex
	indexes map[string]*memoryCollection
}

type memoryCollection struct {
	dimension int
	records   map[string]domain.VectorRecord
}

// NewMemoryIndex creates an empty in-memory index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{indexes: make(map[string]*memoryCollection)}
}

func (m *MemoryIndex) EnsureIndex(_ context.Context, name string, dimension int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.indexes[name]; !ok {
		m.indexes[name] = &memoryCollection{dimension: dimension, records: make(map[string]domain.VectorRecord)}
	}
	return nil
}

func (m *MemoryIndex) Upsert(_ context.Context, index string, records []domain.VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.indexes[index]
	if !ok {
		return fmt.Errorf("%w: index %s does not exist", domain.ErrIndexUnavailable, index)
	}
	for _, r := range records {
		if len(r.Vector) != col.dimension {
			return fmt.Errorf("record %s has dimension %d, index %s expects %d", r.ID, len(r.Vector), index, col.dimension)
		}
	}
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		r.Payload = append([]byte(nil), r.Payload...)
		col.records[r.ID] = r
	}
	return nil
}

func (m *MemoryIndex) Query(_ context.Context, index string, vector []float32, topK int, filter domain.VectorFilter) ([]domain.VectorMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.indexes[index]
	if !ok {
		return nil, fmt.Errorf("%w: index %s does not exist", domain.ErrIndexUnavailable, index)
	}

	matches := make([]domain.VectorMatch, 0)
	for _, r := range col.records {
		if !matchesFilter(r, filter) {
			continue
		}
		matches = append(matches, domain.VectorMatch{
			ID:        r.ID,
			Score:     cosine(vector, r.Vector),
			Kind:      r.Kind,
			Scope:     r.Scope,
			ExpiresAt: r.ExpiresAt,
			Payload:   append([]byte(nil), r.Payload...),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *MemoryIndex) Delete(_ context.Context, index string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.indexes[index]
	if !ok {
		return fmt.Errorf("%w: index %s does not exist", domain.ErrIndexUnavailable, index)
	}
	for _, id := range ids {
		delete(col.records, id)
	}
	return nil
}

func matchesFilter(r domain.VectorRecord, f domain.VectorFilter) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.Scope != "" && r.Scope != f.Scope {
		return false
	}
	if !f.ExpiresAfter.IsZero() && !r.ExpiresAt.After(f.ExpiresAfter) {
		return false
	}
	if !f.ExpiresBefore.IsZero() && !r.ExpiresAt.Before(f.ExpiresBefore) {
		return false
	}
	return true
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

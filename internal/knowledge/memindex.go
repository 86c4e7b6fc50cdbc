package knowledge

import (
	"cmp"
	"context"
	"math"
	"slices"
	"sync"
)

// MemIndex is an in-process [Index] that scores every entry on each search.
// It suits development setups and tests; entries are lost on restart.
type MemIndex struct {
	mu      sync.RWMutex
	entries []memEntry
	nextID  int64
}

type memEntry struct {
	Entry
	vec []float32
}

var _ Index = (*MemIndex)(nil)

// NewMemIndex returns an empty MemIndex.
func NewMemIndex() *MemIndex {
	return &MemIndex{}
}

// Add implements [Index.Add].
func (m *MemIndex) Add(_ context.Context, e Entry, embedding []float32) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	m.entries = append(m.entries, memEntry{Entry: e, vec: slices.Clone(embedding)})
	return e.ID, nil
}

// Search implements [Index.Search].
func (m *MemIndex) Search(_ context.Context, embedding []float32, maxLoreLevel, topK int) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Result{}
	for _, e := range m.entries {
		if e.LoreLevel > maxLoreLevel {
			continue
		}
		out = append(out, Result{Entry: e.Entry, Score: cosine(embedding, e.vec)})
	}
	slices.SortStableFunc(out, func(a, b Result) int { return cmp.Compare(b.Score, a.Score) })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func cosine(a, b []float32) float64 {
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
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

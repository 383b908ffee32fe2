package annindex

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wannadb/matching/internal/distance"
)

// scanIndex is the O(n) fallback used when sqlite-vec isn't available.
type scanIndex struct {
	dim int
	mu  sync.RWMutex
	ids []string
	vec [][]float64
	pos map[string]int
}

func newScanIndex(dim int) *scanIndex {
	return &scanIndex{dim: dim, pos: make(map[string]int)}
}

func (s *scanIndex) Add(id string, vec []float64) error {
	if len(vec) != s.dim {
		return fmt.Errorf("annindex: vector has dim %d, index expects %d", len(vec), s.dim)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]float64(nil), vec...)
	if i, ok := s.pos[id]; ok {
		s.vec[i] = cp
		return nil
	}
	s.pos[id] = len(s.ids)
	s.ids = append(s.ids, id)
	s.vec = append(s.vec, cp)
	return nil
}

func (s *scanIndex) Search(query []float64, topK int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		return nil, nil
	}
	matches := make([]Match, len(s.ids))
	for i, id := range s.ids {
		matches[i] = Match{ID: id, Distance: distance.Cosine(query, s.vec[i])}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *scanIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

func (s *scanIndex) Close() error { return nil }

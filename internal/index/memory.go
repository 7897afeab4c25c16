package index

import (
	"context"
	"sync"
)

type Memory struct {
	mu    sync.RWMutex
	terms map[string][]uint64
	docs  map[uint64]Document
}

func NewMemory() *Memory {
	return &Memory{
		terms: make(map[string][]uint64),
		docs:  make(map[uint64]Document),
	}
}

func (m *Memory) Rebuild(ctx context.Context, docs []Document) error {
	terms := make(map[string][]uint64)
	byID := make(map[uint64]Document, len(docs))
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		byID[d.ID] = d
		for _, t := range Terms(d.Title + " " + d.Content) {
			terms[t] = append(terms[t], d.ID)
		}
	}

	m.mu.Lock()
	m.terms = terms
	m.docs = byID
	m.mu.Unlock()
	return nil
}

func (m *Memory) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	scores := make(map[uint64]int)
	for _, t := range Terms(query) {
		for _, id := range m.terms[t] {
			scores[id]++
		}
	}

	ids := rank(scores, k)
	hits := make([]Hit, 0, len(ids))
	for _, id := range ids {
		hits = append(hits, Hit{Document: m.docs[id], Score: scores[id]})
	}
	return hits, nil
}

// Size reports the number of indexed documents.
func (m *Memory) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

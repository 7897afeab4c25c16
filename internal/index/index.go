// Package index is the retrieval index the chat backend consults before
// answering. It maps terms to knowledge documents and is rebuilt as a whole.
package index

import (
	"context"
	"sort"
)

type Document struct {
	ID      uint64 `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type Hit struct {
	Document
	Score int
}

type Index interface {
	// Rebuild replaces the whole index with docs.
	Rebuild(ctx context.Context, docs []Document) error
	// Search returns up to k documents ranked by the number of distinct query
	// terms they contain.
	Search(ctx context.Context, query string, k int) ([]Hit, error)
}

// rank orders scores by score desc then id asc and keeps the first k ids.
func rank(scores map[uint64]int, k int) []uint64 {
	ids := make([]uint64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > k {
		ids = ids[:k]
	}
	return ids
}

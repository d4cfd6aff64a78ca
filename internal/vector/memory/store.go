// Package memory provides a brute-force in-memory vector index for
// development and tests. It honours the same upsert and patient
// isolation semantics as the Milvus-backed index.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/recoverlink/backend/internal/vector"
)

type Store struct {
	mu     sync.RWMutex
	dim    int
	chunks map[string]vector.Chunk
}

func NewStore(dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid vector dimension %d", dim)
	}
	return &Store{
		dim:    dim,
		chunks: make(map[string]vector.Chunk),
	}, nil
}

func (s *Store) Dim() int {
	return s.dim
}

func (s *Store) Upsert(ctx context.Context, chunks []vector.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if len(c.Embedding) != s.dim {
			return fmt.Errorf("chunk %s: embedding dimension %d does not match index dimension %d",
				c.ID, len(c.Embedding), s.dim)
		}
	}
	for _, c := range chunks {
		s.chunks[c.ID] = c
	}
	return nil
}

func (s *Store) Search(ctx context.Context, embedding []float32, patientID string, topK int) ([]vector.Match, error) {
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(embedding), s.dim)
	}
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]vector.Match, 0)
	for _, c := range s.chunks {
		if c.PatientID != patientID {
			continue
		}
		matches = append(matches, vector.Match{
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
			Score:      cosineSimilarity(embedding, c.Embedding),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *Store) Close() error {
	return nil
}

// Len reports the number of stored chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

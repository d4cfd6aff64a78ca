// Package vector defines the contract for the patient-scoped vector
// index. Implementations store (embedding, passage, patient id,
// document id, chunk index) tuples and answer nearest-neighbour
// queries filtered by patient id. Patient scoping is a hard isolation
// boundary: a search for one patient must never surface another
// patient's chunks.
package vector

import (
	"context"
	"fmt"
)

// Chunk is one indexed passage. ID is derived from the document id and
// chunk index so re-ingesting a document overwrites rather than
// duplicates.
type Chunk struct {
	ID         string
	PatientID  string
	DocumentID string
	ChunkIndex int
	Text       string
	Embedding  []float32
}

// Match is a retrieval hit for a single query. Ephemeral, never stored.
type Match struct {
	DocumentID string
	ChunkIndex int
	Text       string
	Score      float32
}

// Index is implemented by the Milvus-backed store and the in-memory
// store. The implementation is chosen once at startup; callers never
// branch on which one is active.
type Index interface {
	// Dim returns the embedding dimensionality the index accepts.
	Dim() int

	// Upsert writes chunks keyed by Chunk.ID. Writing an existing key
	// replaces the stored tuple.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Search returns up to topK nearest chunks owned by patientID,
	// best match first.
	Search(ctx context.Context, embedding []float32, patientID string, topK int) ([]Match, error)

	Close() error
}

// ChunkID builds the idempotent upsert key for a document chunk.
func ChunkID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, chunkIndex)
}

// Package ingestion turns uploaded discharge documents into indexed,
// patient-scoped passages: extract text, chunk it, embed each chunk
// and upsert the result into the vector index.
package ingestion

import (
	"context"
	"strings"
	"time"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/recoverlink/backend/internal/storage/models"
	"github.com/recoverlink/backend/internal/vector"
	"github.com/recoverlink/backend/pkg/errs"
	"github.com/recoverlink/backend/pkg/logger"
)

const maxExtractLength = 400

// Embedder produces one fixed-dimension vector per input text.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentStore persists document metadata and chunk texts.
type DocumentStore interface {
	UpsertDocument(doc *models.Document) error
	UpsertChunk(chunk *models.DocumentChunk) error
}

type Processor struct {
	store        DocumentStore
	index        vector.Index
	embedder     Embedder
	chunkSize    int
	chunkOverlap int
}

type Result struct {
	DocumentID string
	TextLength int
	Extract    string
	ChunkCount int
}

func NewProcessor(store DocumentStore, index vector.Index, embedder Embedder, chunkSize, chunkOverlap int) *Processor {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = defaultChunkOverlap
	}
	return &Processor{
		store:        store,
		index:        index,
		embedder:     embedder,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Ingest processes one document for one patient. Chunks are keyed by
// (document id, chunk index), so re-ingesting the same document
// overwrites its previous chunks. All embeddings are generated before
// anything is written; an upstream failure therefore leaves the index
// untouched for this call, and a partial index write is repaired by
// simply re-running ingestion.
func (p *Processor) Ingest(ctx context.Context, raw []byte, patientID, documentID, contentType string) (*Result, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, errs.Validation("patient id is required")
	}
	if strings.TrimSpace(documentID) == "" {
		return nil, errs.Validation("document id is required")
	}
	if len(raw) == 0 {
		return nil, errs.Validation("document is empty")
	}

	logger.Info("Ingesting document",
		zap.String("document_id", documentID),
		zap.String("patient_id", patientID),
		zap.Int("bytes", len(raw)),
	)

	text, err := ExtractText(raw, contentType)
	if err != nil {
		return nil, err
	}

	chunks := ChunkWords(text, p.chunkSize, p.chunkOverlap)
	logger.Info("Document chunked",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(chunks)),
	)

	embeddings, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, err
	}

	vectorChunks := make([]vector.Chunk, len(chunks))
	for i, chunkText := range chunks {
		vectorChunks[i] = vector.Chunk{
			ID:         vector.ChunkID(documentID, i),
			PatientID:  patientID,
			DocumentID: documentID,
			ChunkIndex: i,
			Text:       chunkText,
			Embedding:  embeddings[i],
		}
	}

	if err := p.index.Upsert(ctx, vectorChunks); err != nil {
		return nil, errs.Upstream(err)
	}

	now := time.Now()
	doc := &models.Document{
		ID:          documentID,
		PatientID:   patientID,
		ContentType: contentType,
		Extract:     extractSummary(text),
		TextLength:  len(text),
		ChunkCount:  len(chunks),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.store.UpsertDocument(doc); err != nil {
		return nil, err
	}

	for i, chunkText := range chunks {
		chunk := &models.DocumentChunk{
			DocumentID: documentID,
			ChunkIndex: i,
			Text:       chunkText,
			CreatedAt:  now,
		}
		if err := p.store.UpsertChunk(chunk); err != nil {
			return nil, err
		}
	}

	logger.Info("Document ingested",
		zap.String("document_id", documentID),
		zap.String("patient_id", patientID),
		zap.Int("chunks", len(chunks)),
	)

	return &Result{
		DocumentID: documentID,
		TextLength: len(text),
		Extract:    doc.Extract,
		ChunkCount: len(chunks),
	}, nil
}

// extractSummary keeps the first couple of sentences as a short
// human-readable extract for the clinician view.
func extractSummary(text string) string {
	doc, err := prose.NewDocument(text, prose.WithTagging(false), prose.WithExtraction(false))
	if err != nil {
		return truncate(text, maxExtractLength)
	}

	sentences := doc.Sentences()
	var sb strings.Builder
	for i, s := range sentences {
		if i >= 2 || sb.Len()+len(s.Text) > maxExtractLength {
			break
		}
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(strings.TrimSpace(s.Text))
	}

	if sb.Len() == 0 {
		return truncate(text, maxExtractLength)
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Package milvus backs the vector index contract with a Milvus
// collection of discharge-document chunks.
package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/recoverlink/backend/internal/vector"
	"github.com/recoverlink/backend/pkg/logger"
)

type Client struct {
	client         client.Client
	collectionName string
	dim            int
}

func NewClient(ctx context.Context, endpoint, collectionName string, dim int) (*Client, error) {
	c, err := client.NewGrpcClient(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		dim:            dim,
	}, nil
}

func (m *Client) Dim() int {
	return m.dim
}

func (m *Client) Close() error {
	return m.client.Close()
}

// EnsureCollection creates and loads the chunk collection if missing.
func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Patient discharge document chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.dim),
				},
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "8192",
				},
			},
			{
				Name:     "patient_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "document_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "chunk_index",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) Upsert(ctx context.Context, chunks []vector.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	texts := make([]string, len(chunks))
	patientIDs := make([]string, len(chunks))
	documentIDs := make([]string, len(chunks))
	chunkIndexes := make([]int64, len(chunks))

	for i, c := range chunks {
		if len(c.Embedding) != m.dim {
			return fmt.Errorf("chunk %s: embedding dimension %d does not match index dimension %d",
				c.ID, len(c.Embedding), m.dim)
		}
		chunkIDs[i] = c.ID
		embeddings[i] = c.Embedding
		texts[i] = c.Text
		patientIDs[i] = c.PatientID
		documentIDs[i] = c.DocumentID
		chunkIndexes[i] = int64(c.ChunkIndex)
	}

	_, err := m.client.Upsert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", m.dim, embeddings),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("patient_id", patientIDs),
		entity.NewColumnVarChar("document_id", documentIDs),
		entity.NewColumnInt64("chunk_index", chunkIndexes),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunks upserted into vector index", zap.Int("count", len(chunks)))

	return nil
}

func (m *Client) Search(ctx context.Context, embedding []float32, patientID string, topK int) ([]vector.Match, error) {
	if len(embedding) != m.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(embedding), m.dim)
	}
	if topK <= 0 {
		topK = 5
	}

	// Patient scoping is enforced in the expression, not post-filtered.
	expr := fmt.Sprintf(`patient_id == "%s"`, escape(patientID))

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"text", "document_id", "chunk_index"},
		[]entity.Vector{entity.FloatVector(embedding)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	matches := make([]vector.Match, 0)
	for _, sr := range searchResult {
		textCol := sr.Fields.GetColumn("text")
		docCol := sr.Fields.GetColumn("document_id")
		idxCol := sr.Fields.GetColumn("chunk_index")

		for i := 0; i < sr.ResultCount; i++ {
			text, _ := textCol.Get(i)
			docID, _ := docCol.Get(i)
			chunkIdx, _ := idxCol.Get(i)

			matches = append(matches, vector.Match{
				DocumentID: docID.(string),
				ChunkIndex: int(chunkIdx.(int64)),
				Text:       text.(string),
				Score:      sr.Scores[i],
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.String("patient_id", patientID),
		zap.Int("top_k", topK),
		zap.Int("results", len(matches)),
	)

	return matches, nil
}

func escape(s string) string {
	return strings.NewReplacer(`\`, ``, `"`, ``).Replace(s)
}

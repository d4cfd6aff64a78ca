package answer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recoverlink/backend/internal/metrics"
	"github.com/recoverlink/backend/internal/storage/models"
	"github.com/recoverlink/backend/internal/vector"
	"github.com/recoverlink/backend/internal/vector/memory"
	"github.com/recoverlink/backend/pkg/errs"
)

// --- mocks ---

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return []float32{1, 0, 0}, nil
}

type mockGenerator struct {
	generateFn func(ctx context.Context, question, documentContext string) (string, error)
	calls      int
}

func (m *mockGenerator) GroundedAnswer(ctx context.Context, question, documentContext string) (string, error) {
	m.calls++
	if m.generateFn != nil {
		return m.generateFn(ctx, question, documentContext)
	}
	return "Keep the wound dry as your documents describe.", nil
}

type mockHistory struct {
	records []*models.QuestionRecord
	sources []*models.QuestionSource
}

func (m *mockHistory) InsertQuestionRecord(record *models.QuestionRecord) error {
	m.records = append(m.records, record)
	return nil
}

func (m *mockHistory) InsertQuestionSource(source *models.QuestionSource) error {
	m.sources = append(m.sources, source)
	return nil
}

type mapCache struct {
	entries map[string]*Response
	sets    int
}

func (m *mapCache) GetAnswer(ctx context.Context, key string, out interface{}) (bool, error) {
	cached, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	*(out.(*Response)) = *cached
	return true, nil
}

func (m *mapCache) SetAnswer(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.entries == nil {
		m.entries = make(map[string]*Response)
	}
	resp := *(value.(*Response))
	m.entries[key] = &resp
	m.sets++
	return nil
}

// --- helpers ---

func seededIndex(t *testing.T, patientID string, texts ...string) vector.Index {
	t.Helper()
	store, err := memory.NewStore(3)
	require.NoError(t, err)

	chunks := make([]vector.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = vector.Chunk{
			ID:         vector.ChunkID("d1", i),
			PatientID:  patientID,
			DocumentID: "d1",
			ChunkIndex: i,
			Text:       text,
			Embedding:  []float32{1, 0, 0},
		}
	}
	require.NoError(t, store.Upsert(context.Background(), chunks))
	return store
}

func emptyIndex(t *testing.T) vector.Index {
	t.Helper()
	store, err := memory.NewStore(3)
	require.NoError(t, err)
	return store
}

// --- tests ---

func TestAnswer_ValidatesRequest(t *testing.T) {
	e := NewEngine(&mockHistory{}, emptyIndex(t), &mockEmbedder{}, &mockGenerator{}, nil, 5, 20)

	_, err := e.Answer(context.Background(), Request{Question: "  ", PatientID: "p1"})
	assert.True(t, errors.Is(err, errs.ErrValidation))

	_, err = e.Answer(context.Background(), Request{Question: "when can I shower?", PatientID: ""})
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestAnswer_EmptyRetrievalSkipsGeneration(t *testing.T) {
	history := &mockHistory{}
	generator := &mockGenerator{}
	e := NewEngine(history, emptyIndex(t), &mockEmbedder{}, generator, nil, 5, 20)

	resp, err := e.Answer(context.Background(), Request{
		Question:  "what about my severe chest pain?",
		PatientID: "p1",
	})
	require.NoError(t, err)

	assert.Equal(t, NotFoundAnswer, resp.Answer)
	assert.False(t, resp.Alert)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, generator.calls)

	require.Len(t, history.records, 1)
	assert.Equal(t, NotFoundAnswer, history.records[0].Answer)
}

func TestAnswer_GroundedAnswerWithSources(t *testing.T) {
	history := &mockHistory{}
	index := seededIndex(t, "p1", "keep the wound dry", "change dressing daily")
	e := NewEngine(history, index, &mockEmbedder{}, &mockGenerator{}, nil, 5, 20)

	resp, err := e.Answer(context.Background(), Request{
		Question:  "how do I care for the wound?",
		PatientID: "p1",
	})
	require.NoError(t, err)

	assert.Equal(t, "Keep the wound dry as your documents describe.", resp.Answer)
	assert.False(t, resp.Alert)
	assert.False(t, resp.Fallback)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "d1", resp.Sources[0].DocumentID)

	require.Len(t, history.records, 1)
	assert.Equal(t, 2, history.records[0].SourceCount)
	assert.Len(t, history.sources, 2)
}

func TestAnswer_PatientScopedRetrieval(t *testing.T) {
	index := seededIndex(t, "p2", "someone else's instructions")
	generator := &mockGenerator{}
	e := NewEngine(&mockHistory{}, index, &mockEmbedder{}, generator, nil, 5, 20)

	resp, err := e.Answer(context.Background(), Request{
		Question:  "what are my instructions?",
		PatientID: "p1",
	})
	require.NoError(t, err)

	assert.Equal(t, NotFoundAnswer, resp.Answer)
	assert.Zero(t, generator.calls)
}

func TestAnswer_AlertFromQuestionKeyword(t *testing.T) {
	index := seededIndex(t, "p1", "rest and hydrate")
	e := NewEngine(&mockHistory{}, index, &mockEmbedder{}, &mockGenerator{}, nil, 5, 20)

	resp, err := e.Answer(context.Background(), Request{
		Question:  "I have chest pain, is that normal?",
		PatientID: "p1",
	})
	require.NoError(t, err)

	assert.True(t, resp.Alert)
}

func TestAnswer_AlertFromRetrievedContext(t *testing.T) {
	index := seededIndex(t, "p1", "if swelling worsens call 911 without delay")
	e := NewEngine(&mockHistory{}, index, &mockEmbedder{}, &mockGenerator{}, nil, 5, 20)

	resp, err := e.Answer(context.Background(), Request{
		Question:  "what should I watch for?",
		PatientID: "p1",
	})
	require.NoError(t, err)

	assert.True(t, resp.Alert)
}

func TestAnswer_GenerationFailurePreservesAlert(t *testing.T) {
	index := seededIndex(t, "p1", "rest and hydrate")
	generator := &mockGenerator{
		generateFn: func(ctx context.Context, question, documentContext string) (string, error) {
			return "", errs.Upstream(errors.New("model unavailable"))
		},
	}
	e := NewEngine(&mockHistory{}, index, &mockEmbedder{}, generator, nil, 5, 20)

	resp, err := e.Answer(context.Background(), Request{
		Question:  "I can't breathe well after walking, advice?",
		PatientID: "p1",
	})
	require.NoError(t, err)

	assert.Equal(t, FallbackAnswer, resp.Answer)
	assert.True(t, resp.Fallback)
	assert.True(t, resp.Alert)
	assert.NotEmpty(t, resp.Sources)
}

func TestAnswer_EmbeddingFailureDegrades(t *testing.T) {
	history := &mockHistory{}
	embedder := &mockEmbedder{
		embedFn: func(ctx context.Context, text string) ([]float32, error) {
			return nil, errs.Upstream(errors.New("embedding service down"))
		},
	}
	generator := &mockGenerator{}
	e := NewEngine(history, emptyIndex(t), embedder, generator, nil, 5, 20)

	resp, err := e.Answer(context.Background(), Request{
		Question:  "is this an emergency?",
		PatientID: "p1",
	})
	require.NoError(t, err)

	assert.Equal(t, FallbackAnswer, resp.Answer)
	assert.True(t, resp.Fallback)
	assert.True(t, resp.Alert)
	assert.Zero(t, generator.calls)
	assert.Len(t, history.records, 1)
}

func TestAnswer_CachesSuccessfulResponses(t *testing.T) {
	index := seededIndex(t, "p1", "rest and hydrate")
	generator := &mockGenerator{}
	cache := &mapCache{}
	e := NewEngine(&mockHistory{}, index, &mockEmbedder{}, generator, cache, 5, 20)

	req := Request{Question: "how much rest do I need?", PatientID: "p1"}

	first, err := e.Answer(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	second, err := e.Answer(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, 1, generator.calls)
}

func TestAnswer_CacheLookupsCounted(t *testing.T) {
	index := seededIndex(t, "p1", "rest and hydrate")
	cache := &mapCache{}
	e := NewEngine(&mockHistory{}, index, &mockEmbedder{}, &mockGenerator{}, cache, 5, 20)

	hitsBefore := testutil.ToFloat64(metrics.CacheHits.WithLabelValues("answer"))
	missesBefore := testutil.ToFloat64(metrics.CacheMisses.WithLabelValues("answer"))

	req := Request{Question: "how long should I rest?", PatientID: "p1"}

	_, err := e.Answer(context.Background(), req)
	require.NoError(t, err)
	_, err = e.Answer(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, hitsBefore+1, testutil.ToFloat64(metrics.CacheHits.WithLabelValues("answer")))
	assert.Equal(t, missesBefore+1, testutil.ToFloat64(metrics.CacheMisses.WithLabelValues("answer")))
}

func TestAnswer_FallbackNotCached(t *testing.T) {
	index := seededIndex(t, "p1", "rest and hydrate")
	generator := &mockGenerator{
		generateFn: func(ctx context.Context, question, documentContext string) (string, error) {
			return "", errors.New("flaky model")
		},
	}
	cache := &mapCache{}
	e := NewEngine(&mockHistory{}, index, &mockEmbedder{}, generator, cache, 5, 20)

	_, err := e.Answer(context.Background(), Request{
		Question:  "how much rest do I need?",
		PatientID: "p1",
	})
	require.NoError(t, err)

	assert.Zero(t, cache.sets)
}

func TestAnswer_TopKClamped(t *testing.T) {
	texts := make([]string, 30)
	for i := range texts {
		texts[i] = "instruction chunk"
	}
	index := seededIndex(t, "p1", texts...)
	e := NewEngine(&mockHistory{}, index, &mockEmbedder{}, &mockGenerator{}, nil, 5, 10)

	resp, err := e.Answer(context.Background(), Request{
		Question:  "what are my instructions?",
		PatientID: "p1",
		TopK:      500,
	})
	require.NoError(t, err)

	assert.Len(t, resp.Sources, 10)
}

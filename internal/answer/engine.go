// Package answer implements retrieval-augmented question answering
// over a patient's own discharge documents. Every answer is grounded
// in retrieved, patient-scoped passages; a danger-keyword scan runs
// independently of generation so the safety alert never depends on the
// model.
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/recoverlink/backend/internal/metrics"
	"github.com/recoverlink/backend/internal/safety"
	"github.com/recoverlink/backend/internal/storage/models"
	"github.com/recoverlink/backend/internal/vector"
	"github.com/recoverlink/backend/pkg/errs"
	"github.com/recoverlink/backend/pkg/logger"
	"github.com/recoverlink/backend/pkg/utils"
)

const (
	// NotFoundAnswer is returned when the patient has no indexed
	// passages; no generation call is made.
	NotFoundAnswer = "I don't have your discharge documents on file yet. Please ask your doctor to upload them, or contact your healthcare provider for personalised guidance."

	// FallbackAnswer replaces the model output when generation fails.
	// The independently computed alert is preserved.
	FallbackAnswer = "I'm sorry - I couldn't process your question right now. Please contact your doctor directly for guidance."
)

type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type Generator interface {
	GroundedAnswer(ctx context.Context, question, documentContext string) (string, error)
}

// HistoryStore records answered questions and their sources.
type HistoryStore interface {
	InsertQuestionRecord(record *models.QuestionRecord) error
	InsertQuestionSource(source *models.QuestionSource) error
}

// Cache is an optional response cache; a nil Cache disables caching.
type Cache interface {
	GetAnswer(ctx context.Context, key string, out interface{}) (bool, error)
	SetAnswer(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type Engine struct {
	db          HistoryStore
	index       vector.Index
	embedder    Embedder
	generator   Generator
	cache       Cache
	defaultTopK int
	maxTopK     int
}

type Request struct {
	Question  string
	PatientID string
	TopK      int
}

type Source struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

type Response struct {
	ID        string   `json:"id"`
	Question  string   `json:"question"`
	Answer    string   `json:"answer"`
	Alert     bool     `json:"alert"`
	Sources   []Source `json:"sources"`
	Fallback  bool     `json:"fallback"`
	LatencyMS int      `json:"latency_ms"`
}

func NewEngine(db HistoryStore, index vector.Index, embedder Embedder, generator Generator, cache Cache, defaultTopK, maxTopK int) *Engine {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	if maxTopK <= 0 {
		maxTopK = 20
	}
	return &Engine{
		db:          db,
		index:       index,
		embedder:    embedder,
		generator:   generator,
		cache:       cache,
		defaultTopK: defaultTopK,
		maxTopK:     maxTopK,
	}
}

func (e *Engine) Answer(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, errs.Validation("question cannot be empty")
	}
	if strings.TrimSpace(req.PatientID) == "" {
		return nil, errs.Validation("patient id is required")
	}

	topK := req.TopK
	if topK <= 0 {
		topK = e.defaultTopK
	}
	if topK > e.maxTopK {
		topK = e.maxTopK
	}

	questionID := uuid.New().String()

	logger.Info("Answering question",
		zap.String("question_id", questionID),
		zap.String("patient_id", req.PatientID),
		zap.Int("top_k", topK),
	)

	cacheKey := utils.HashString(fmt.Sprintf("%s|%d|%s", req.PatientID, topK, question))
	if e.cache != nil {
		var cached Response
		hit, err := e.cache.GetAnswer(ctx, cacheKey, &cached)
		if err != nil {
			logger.Warn("Answer cache lookup failed", zap.Error(err))
		} else if hit {
			metrics.CacheHits.WithLabelValues("answer").Inc()
			return &cached, nil
		} else {
			metrics.CacheMisses.WithLabelValues("answer").Inc()
		}
	}

	embedding, err := e.embedder.EmbedText(ctx, question)
	if err != nil {
		logger.Warn("Question embedding failed, degrading to fallback", zap.Error(err))
		return e.degraded(questionID, req.PatientID, question, startTime), nil
	}

	matches, err := e.index.Search(ctx, embedding, req.PatientID, topK)
	if err != nil {
		logger.Warn("Vector search failed, degrading to fallback", zap.Error(err))
		return e.degraded(questionID, req.PatientID, question, startTime), nil
	}

	if len(matches) == 0 {
		resp := &Response{
			ID:        questionID,
			Question:  question,
			Answer:    NotFoundAnswer,
			Alert:     false,
			Sources:   []Source{},
			LatencyMS: int(time.Since(startTime).Milliseconds()),
		}
		e.record(resp, req.PatientID)
		return resp, nil
	}

	contextTexts := make([]string, len(matches))
	for i, m := range matches {
		contextTexts[i] = m.Text
	}
	documentContext := strings.Join(contextTexts, "\n\n")

	// The safety scan covers the question and the retrieved context and
	// runs before generation, so the alert holds even when the model
	// fails or answers badly.
	alert := safety.ContainsDanger(question, documentContext)

	fallback := false
	answerText, err := e.generator.GroundedAnswer(ctx, question, documentContext)
	if err != nil || strings.TrimSpace(answerText) == "" {
		if err != nil {
			logger.Error("Generation failed, substituting fallback answer", zap.Error(err))
		}
		answerText = FallbackAnswer
		fallback = true
	}

	sources := make([]Source, len(matches))
	for i, m := range matches {
		sources[i] = Source{
			DocumentID: m.DocumentID,
			ChunkIndex: m.ChunkIndex,
			Score:      float64(m.Score),
		}
	}

	resp := &Response{
		ID:        questionID,
		Question:  question,
		Answer:    answerText,
		Alert:     alert,
		Sources:   sources,
		Fallback:  fallback,
		LatencyMS: int(time.Since(startTime).Milliseconds()),
	}

	e.record(resp, req.PatientID)

	if e.cache != nil && !fallback {
		if err := e.cache.SetAnswer(ctx, cacheKey, resp, 10*time.Minute); err != nil {
			logger.Warn("Answer cache write failed", zap.Error(err))
		}
	}

	logger.Info("Question answered",
		zap.String("question_id", questionID),
		zap.Bool("alert", resp.Alert),
		zap.Int("sources", len(resp.Sources)),
		zap.Int("latency_ms", resp.LatencyMS),
	)

	return resp, nil
}

// degraded is the upstream-unavailable path: the scripted answer with
// the alert still computed from the question text alone.
func (e *Engine) degraded(questionID, patientID, question string, startTime time.Time) *Response {
	resp := &Response{
		ID:        questionID,
		Question:  question,
		Answer:    FallbackAnswer,
		Alert:     safety.ContainsDanger(question),
		Sources:   []Source{},
		Fallback:  true,
		LatencyMS: int(time.Since(startTime).Milliseconds()),
	}
	e.record(resp, patientID)
	return resp
}

func (e *Engine) record(resp *Response, patientID string) {
	if e.db == nil {
		return
	}

	record := &models.QuestionRecord{
		ID:           resp.ID,
		PatientID:    patientID,
		QuestionText: resp.Question,
		Answer:       resp.Answer,
		Alert:        resp.Alert,
		SourceCount:  len(resp.Sources),
		Fallback:     resp.Fallback,
		LatencyMS:    resp.LatencyMS,
		CreatedAt:    time.Now(),
	}
	if err := e.db.InsertQuestionRecord(record); err != nil {
		logger.Warn("Failed to record question", zap.Error(err))
		return
	}

	for _, s := range resp.Sources {
		err := e.db.InsertQuestionSource(&models.QuestionSource{
			QuestionID: resp.ID,
			DocumentID: s.DocumentID,
			ChunkIndex: s.ChunkIndex,
			Score:      s.Score,
		})
		if err != nil {
			logger.Warn("Failed to record question source", zap.Error(err))
		}
	}
}

package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/recoverlink/backend/internal/metrics"
	"github.com/recoverlink/backend/pkg/circuitbreaker"
	"github.com/recoverlink/backend/pkg/errs"
	"github.com/recoverlink/backend/pkg/logger"
	"github.com/recoverlink/backend/pkg/retry"
	"github.com/recoverlink/backend/pkg/utils"
)

// embeddingCacheTTL is generous because embeddings are deterministic
// for a given model and text.
const embeddingCacheTTL = 24 * time.Hour

// EmbeddingCache stores embeddings keyed by text hash; nil disables
// caching.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

// DeclineAnswer is the sentence the model is instructed to use when the
// retrieved context does not contain the answer.
const DeclineAnswer = "I cannot find that in your discharge documents - please contact your doctor directly."

const groundedSystemPrompt = `You are a compassionate medical assistant helping a patient understand their hospital discharge instructions.
Answer the patient's question based ONLY on the context extracted from their discharge documents.
If the information is not available in the context, say: "` + DeclineAnswer + `"
Do not invent or guess any medical information.
If the question contains signs of a medical emergency, start your answer with a clear emergency warning.`

type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	embedCache     EmbeddingCache
}

// SetEmbeddingCache enables embedding caching. Must be called before
// the client is shared across goroutines.
func (c *Client) SetEmbeddingCache(cache EmbeddingCache) {
	c.embedCache = cache
}

func NewClient(apiKey, model, embeddingModel string, temperature float32, maxTokens int) *Client {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("model", model),
		zap.String("embedding_model", embeddingModel),
	)

	return &Client{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		temperature:    temperature,
		maxTokens:      maxTokens,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

// EmbedText embeds a single text with the same model used at ingestion
// time, so query and chunk vectors share dimensionality.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	textHash := utils.HashString(text)

	if c.embedCache != nil {
		cached, hit, err := c.embedCache.GetEmbedding(ctx, textHash)
		if err != nil {
			logger.Warn("Embedding cache lookup failed", zap.Error(err))
		} else if hit {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			return cached, nil
		} else {
			metrics.CacheMisses.WithLabelValues("embedding").Inc()
		}
	}

	var embedding []float32

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: []string{text},
					Model: openai.EmbeddingModel(c.embeddingModel),
				},
			)
			if err != nil {
				return fmt.Errorf("failed to generate embedding: %w", err)
			}

			embedding = make([]float32, len(resp.Data[0].Embedding))
			copy(embedding, resp.Data[0].Embedding)
			return nil
		})
	})
	if err != nil {
		return nil, errs.Upstream(err)
	}

	if c.embedCache != nil {
		if err := c.embedCache.SetEmbedding(ctx, textHash, embedding, embeddingCacheTTL); err != nil {
			logger.Warn("Embedding cache write failed", zap.Error(err))
		}
	}

	return embedding, nil
}

// EmbedBatch embeds chunk texts in order. The result has one vector per
// input text.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var embeddings [][]float32

	batchSize := 100
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[i:end]

		err := c.cb.Execute(ctx, func() error {
			return retry.Do(ctx, c.retryConfig, func() error {
				resp, err := c.client.CreateEmbeddings(
					ctx,
					openai.EmbeddingRequest{
						Input: batch,
						Model: openai.EmbeddingModel(c.embeddingModel),
					},
				)
				if err != nil {
					return fmt.Errorf("failed to generate batch embeddings: %w", err)
				}

				for _, data := range resp.Data {
					embedding := make([]float32, len(data.Embedding))
					copy(embedding, data.Embedding)
					embeddings = append(embeddings, embedding)
				}
				return nil
			})
		})
		if err != nil {
			return nil, errs.Upstream(err)
		}
	}

	if len(embeddings) != len(texts) {
		return nil, errs.Upstream(fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(texts)))
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(embeddings)))

	return embeddings, nil
}

// GroundedAnswer generates an answer constrained to the supplied
// document context. The model is instructed to decline when the answer
// is not present; it is never given a path to outside facts.
func (c *Client) GroundedAnswer(ctx context.Context, question, documentContext string) (string, error) {
	userPrompt := fmt.Sprintf(`--- DISCHARGE DOCUMENT CONTEXT ---
%s
--- END OF CONTEXT ---

Patient's question: %s

Provide a clear, concise, helpful answer:`, documentContext, question)

	answer, err := c.complete(ctx, groundedSystemPrompt, userPrompt)
	if err != nil {
		return "", err
	}

	logger.Info("Grounded answer generated", zap.Int("answer_length", len(answer)))

	return answer, nil
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: userPrompt,
		},
	}

	var content string

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: c.temperature,
					MaxTokens:   c.maxTokens,
				},
			)
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			logger.Debug("Completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			content = resp.Choices[0].Message.Content
			return nil
		})
	})
	if err != nil {
		return "", errs.Upstream(err)
	}

	return content, nil
}

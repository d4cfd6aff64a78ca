// Package app holds the shared clients that are created once at
// startup and used read-only for the life of the process.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/recoverlink/backend/internal/cache/redis"
	"github.com/recoverlink/backend/internal/llm"
	"github.com/recoverlink/backend/internal/vector"
	"github.com/recoverlink/backend/internal/vector/memory"
	"github.com/recoverlink/backend/internal/vector/milvus"
	"github.com/recoverlink/backend/pkg/config"
)

// Resources are the process-wide upstream clients. Init is idempotent;
// concurrent callers see the same instances.
type Resources struct {
	LLM   *llm.Client
	Index vector.Index
	Cache *redis.Client
}

var (
	once      sync.Once
	resources *Resources
	initErr   error
)

// Init builds the shared clients exactly once. The vector index
// implementation is chosen here and never rebound.
func Init(ctx context.Context, cfg *config.Config) (*Resources, error) {
	once.Do(func() {
		resources, initErr = build(ctx, cfg)
	})
	return resources, initErr
}

func build(ctx context.Context, cfg *config.Config) (*Resources, error) {
	index, err := buildIndex(ctx, cfg.Vector)
	if err != nil {
		return nil, err
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	var cache *redis.Client
	if cfg.Redis.Enabled {
		cache, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			index.Close()
			return nil, fmt.Errorf("failed to build redis cache: %w", err)
		}
		llmClient.SetEmbeddingCache(cache)
	}

	return &Resources{
		LLM:   llmClient,
		Index: index,
		Cache: cache,
	}, nil
}

func buildIndex(ctx context.Context, cfg config.VectorConfig) (vector.Index, error) {
	switch cfg.Driver {
	case "milvus":
		client, err := milvus.NewClient(ctx, cfg.Endpoint, cfg.CollectionName, cfg.Dim)
		if err != nil {
			return nil, fmt.Errorf("failed to build milvus index: %w", err)
		}
		if err := client.EnsureCollection(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to ensure milvus collection: %w", err)
		}
		return client, nil
	case "memory":
		return memory.NewStore(cfg.Dim)
	default:
		return nil, fmt.Errorf("unknown vector driver %q", cfg.Driver)
	}
}

// Close releases the shared clients. Safe to call with partially
// built resources.
func (r *Resources) Close() {
	if r == nil {
		return
	}
	if r.Index != nil {
		r.Index.Close()
	}
	if r.Cache != nil {
		r.Cache.Close()
	}
}

package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/treewskyblue/Medvise/internal/config"
	"github.com/treewskyblue/Medvise/internal/models"
)

// Func maps a text to its vector. The signature matches chromem.EmbeddingFunc
// so the same function serves indexing and querying.
type Func func(ctx context.Context, text string) ([]float32, error)

// New builds the embedding function selected by cfg.Provider. Calls to a
// remote provider are bounded by cfg.Timeout().
func New(cfg config.LLMConfig, log zerolog.Logger) (Func, error) {
	log.Debug().Interface("config", map[string]any{
		"provider": cfg.Provider,
		"base_url": cfg.BaseURL,
		"model":    cfg.Model,
		"timeout":  cfg.Timeout().String(),
	}).Msg("Creating embedder")

	switch strings.ToLower(cfg.Provider) {
	case "hashing":
		return NewHashing(cfg.Dimensions).Embed, nil
	case "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama: %w", err)
		}
		return fromLLM(llm, cfg.Timeout())
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, openai.WithEmbeddingModel(cfg.Model))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai: %w", err)
		}
		return fromLLM(llm, cfg.Timeout())
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func fromLLM(client embeddings.EmbedderClient, timeout time.Duration) (Func, error) {
	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return WithTimeout(FromEmbedder(embedder), timeout), nil
}

// WithTimeout bounds every call of f to d, whatever deadline the caller's
// context carries.
func WithTimeout(f Func, d time.Duration) Func {
	if d <= 0 {
		return f
	}
	return func(ctx context.Context, text string) ([]float32, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		vec, err := f(ctx, text)
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", err, ctx.Err())
		}
		return vec, err
	}
}

// FromEmbedder adapts a langchaingo embedder
func FromEmbedder(e embeddings.Embedder) Func {
	return func(ctx context.Context, text string) ([]float32, error) {
		vec, err := e.EmbedQuery(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrEmbedding, err)
		}
		if len(vec) == 0 {
			return nil, fmt.Errorf("%w: empty vector", models.ErrEmbedding)
		}
		return vec, nil
	}
}

package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/treewskyblue/Medvise/internal/config"
)

// Model is the part of a langchaingo chat model the extractor needs
type Model interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// NewModel builds the OpenAI-compatible chat model used for extraction
func NewModel(cfg config.LLMConfig) (Model, error) {
	if cfg.Provider != "" && cfg.Provider != "openai" {
		return nil, fmt.Errorf("unsupported chat provider %q", cfg.Provider)
	}
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat model: %w", err)
	}
	return llm, nil
}

package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

var ErrEmbeddingUnavailable = errors.New("embedding unavailable")

// EmbedderConfig represents the configuration for an embedding provider.
type EmbedderConfig struct {
	Provider   string // "ollama" or "openai"
	Model      string
	BaseURL    string
	Dimensions int
	APIKey     string // openai only
}

// EmbeddingClient is the part of a langchaingo model the embedder needs.
type EmbeddingClient interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder turns query text into a vector of a fixed, checked length.
type Embedder struct {
	Config EmbedderConfig
	client EmbeddingClient
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	// Validate and set default values for config fields if necessary
	if config.Provider == "" {
		config.Provider = "ollama"
	}
	if config.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive")
	}

	var client EmbeddingClient
	switch config.Provider {
	case "ollama":
		if config.Model == "" {
			config.Model = "nomic-embed-text:latest" // Default Ollama model
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
		}
		client = emb
	case "openai":
		if config.Model == "" {
			config.Model = "text-embedding-3-small"
		}
		opts := []openai.Option{openai.WithToken(config.APIKey), openai.WithEmbeddingModel(config.Model)}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		emb, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
		}
		client = emb
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", config.Provider)
	}

	return NewEmbedderWithClient(config, client), nil
}

func NewEmbedderWithClient(config EmbedderConfig, client EmbeddingClient) *Embedder {
	return &Embedder{
		Config: config,
		client: client,
	}
}

// Embed fails with ErrEmbeddingUnavailable on provider error or when the
// vector length differs from the configured dimensions.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.client.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%w: provider returned no vectors", ErrEmbeddingUnavailable)
	}

	vector := embeddings[0]
	if len(vector) != e.Config.Dimensions {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrEmbeddingUnavailable, len(vector), e.Config.Dimensions)
	}

	return vector, nil
}

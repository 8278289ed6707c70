package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbeddingClient struct {
	vectors [][]float32
	err     error
	texts   []string
}

func (f *fakeEmbeddingClient) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	f.texts = texts
	return f.vectors, f.err
}

func TestNewEmbedderWithConfig(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:      "nomic-embed-text:latest",
		BaseURL:    "http://localhost:11434",
		Dimensions: 768,
	})
	require.NoError(t, err)
	assert.Equal(t, "ollama", emb.Config.Provider)

	_, err = llm.NewEmbedderWithConfig(llm.EmbedderConfig{Provider: "bert", Dimensions: 768})
	assert.Error(t, err)

	_, err = llm.NewEmbedderWithConfig(llm.EmbedderConfig{})
	assert.Error(t, err)
}

func TestEmbed(t *testing.T) {
	config := llm.EmbedderConfig{Dimensions: 3}

	tests := []struct {
		name    string
		client  *fakeEmbeddingClient
		want    []float32
		wantErr bool
	}{
		{
			name:   "ok",
			client: &fakeEmbeddingClient{vectors: [][]float32{{0.1, 0.2, 0.3}}},
			want:   []float32{0.1, 0.2, 0.3},
		},
		{
			name:    "provider error",
			client:  &fakeEmbeddingClient{err: errors.New("connection refused")},
			wantErr: true,
		},
		{
			name:    "no vectors",
			client:  &fakeEmbeddingClient{},
			wantErr: true,
		},
		{
			name:    "dimension mismatch",
			client:  &fakeEmbeddingClient{vectors: [][]float32{{0.1, 0.2}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := llm.NewEmbedderWithClient(config, tt.client)

			got, err := emb.Embed(context.Background(), "직장 내 괴롭힘")
			assert.Equal(t, []string{"직장 내 괴롭힘"}, tt.client.texts)
			if tt.wantErr {
				assert.ErrorIs(t, err, llm.ErrEmbeddingUnavailable)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

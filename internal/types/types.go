package types

import (
	"context"

	"github.com/kyj44123-afk/cpla.ai-sub001/internal/models"
)

// Core interfaces
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type ChunkIndex interface {
	NearestChunks(ctx context.Context, vector []float32, k int) ([]models.ScoredChunk, error)
	DocumentMeta(ctx context.Context, documentIDs []string) (map[string]models.DocumentMeta, error)
}

type SecretSource interface {
	Get(name string) (string, error)
}

type LegalSearcher interface {
	Search(ctx context.Context, sourceType, keyword string, resultCap int) ([]models.ExternalRecordRef, error)
	FetchAll(ctx context.Context, refs []models.ExternalRecordRef) ([]models.ExternalRecord, []models.FetchFailure)
}

type SemanticSearcher interface {
	Search(ctx context.Context, text string, k int) ([]models.RetrievedItem, error)
}

type Generator interface {
	Answer(ctx context.Context, query models.Query, bundle models.ContextBundle) (string, error)
}

type EventSink interface {
	Publish(event models.RetrievalEvent)
}

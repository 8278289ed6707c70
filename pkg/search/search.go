package search

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kyj44123-afk/cpla.ai-sub001/internal/models"
	"github.com/kyj44123-afk/cpla.ai-sub001/internal/types"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/logger"
	"github.com/sirupsen/logrus"
)

// ErrEmptyQuery is returned when there is no text to embed.
var ErrEmptyQuery = errors.New("empty query text")

type SearcherConfig struct {
	Embedder types.Embedder
	Index    types.ChunkIndex
	TopK     int
	Logger   logrus.FieldLogger
}

// Searcher is the internal semantic search over the curated chunk index.
// Similarity is trusted as the only filter for this source.
type Searcher struct {
	config SearcherConfig
	log    logrus.FieldLogger
}

func NewWithConfig(config SearcherConfig) (*Searcher, error) {
	if config.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if config.Index == nil {
		return nil, fmt.Errorf("chunk index is required")
	}
	if config.TopK == 0 {
		config.TopK = 5
	}

	return &Searcher{
		config: config,
		log:    logger.OrStandard(config.Logger),
	}, nil
}

// Search embeds text and returns the k nearest chunks as retrieved items,
// most similar first. Equal scores keep the index order. Embedding failures
// are returned unchanged so callers can match them with errors.Is.
func (s *Searcher) Search(ctx context.Context, text string, k int) ([]models.RetrievedItem, error) {
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = s.config.TopK
	}

	vector, err := s.config.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	chunks, err := s.config.Index.NearestChunks(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunk index: %w", err)
	}
	if len(chunks) > k {
		chunks = chunks[:k]
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})

	meta := s.lookupMeta(ctx, chunks)

	items := make([]models.RetrievedItem, 0, len(chunks))
	for i, sc := range chunks {
		m := meta[sc.Chunk.DocumentID]
		items = append(items, models.RetrievedItem{
			Source:     models.SourceInternal,
			ID:         sc.Chunk.ChunkID,
			Title:      m.Title,
			Text:       sc.Chunk.Text,
			Score:      sc.Score,
			Rank:       i,
			DocumentID: sc.Chunk.DocumentID,
			Filename:   m.Filename,
		})
	}

	return items, nil
}

// lookupMeta resolves citation metadata. A failed lookup costs only the
// display fields, so it is logged and the chunks are kept.
func (s *Searcher) lookupMeta(ctx context.Context, chunks []models.ScoredChunk) map[string]models.DocumentMeta {
	if len(chunks) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var ids []string
	for _, sc := range chunks {
		if id := sc.Chunk.DocumentID; id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	meta, err := s.config.Index.DocumentMeta(ctx, ids)
	if err != nil {
		s.log.WithError(err).WithField("documents", len(ids)).Warn("Document metadata lookup failed")
		return nil
	}
	return meta
}

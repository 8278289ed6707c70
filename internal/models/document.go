package models

import "time"

// Source tags carried by retrieved items and citations.
const (
	SourceInternal = "internal"
	SourceExternal = "external"
)

// Upstream record kinds served by the government legal database.
const (
	SourceTypePrecedent = "prec"
	SourceTypeStatute   = "law"
)

type Query struct {
	Text      string
	SessionID string
	Audience  string
}

type SynonymRule struct {
	Terms   []string `yaml:"terms"`
	Expands []string `yaml:"expands"`
}

type KeywordSet struct {
	Domain   string        `yaml:"domain"`
	Keywords []string      `yaml:"keywords"`
	Synonyms []SynonymRule `yaml:"synonyms"`
}

type Classification struct {
	DomainTags       []string
	ExpandedKeywords []string
}

func (c Classification) Empty() bool {
	return len(c.DomainTags) == 0 && len(c.ExpandedKeywords) == 0
}

type ExternalRecordRef struct {
	ID         string
	SourceType string
}

type ExternalRecord struct {
	ID                  string
	Title               string
	CaseOrStatuteNumber string
	FullText            string
	SourceType          string
}

type FetchFailure struct {
	Ref ExternalRecordRef
	Err error
}

type DocumentChunk struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	Embedding  []float32
	Text       string
}

type DocumentMeta struct {
	DocumentID string
	Title      string
	Source     string
	Filename   string
}

type ScoredChunk struct {
	Chunk DocumentChunk
	Score float64
}

// RetrievedItem is the normalised form both sources are reduced to before
// assembly. Rank is the position in the upstream result order and is only
// meaningful for external items.
type RetrievedItem struct {
	Source     string
	ID         string
	Title      string
	Number     string
	Text       string
	Score      float64
	Rank       int
	DocumentID string
	Filename   string
	SourceType string
}

type Citation struct {
	Source     string  `json:"source"`
	ID         string  `json:"id"`
	Title      string  `json:"title,omitempty"`
	Number     string  `json:"number,omitempty"`
	Snippet    string  `json:"snippet,omitempty"`
	Score      float64 `json:"score,omitempty"`
	DocumentID string  `json:"documentId,omitempty"`
	Filename   string  `json:"filename,omitempty"`
}

type ContextBundle struct {
	PromptText string
	Citations  []Citation
	DomainTags []string
}

type RetrievalEvent struct {
	RequestID        string
	SessionID        string
	DomainTags       []string
	SearchKeywords   []string
	ExternalRefs     int
	ExternalFetched  int
	ExternalDropped  int
	ExternalRelevant int
	InternalHits     int
	Citations        int
	PromptRunes      int
	ExternalErr      string
	InternalErr      string
	ExternalDuration time.Duration
	InternalDuration time.Duration
	TotalDuration    time.Duration
	CompletedAt      time.Time
}

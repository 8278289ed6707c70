package processor

import (
	"strings"
	"unicode/utf8"

	"github.com/kyj44123-afk/cpla.ai-sub001/internal/models"
)

type ProcessorConfig struct {
	ExcerptRunes    int
	MinSentenceRune int
	NoisePatterns   []string
}

// Processor turns hydrated upstream records into assembler input.
type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ExcerptRunes == 0 {
		config.ExcerptRunes = 1200
	}
	if config.MinSentenceRune == 0 {
		config.MinSentenceRune = 2
	}
	if config.NoisePatterns == nil {
		config.NoisePatterns = []string{"【전문】", "【이유】"}
	}

	return Processor{
		config: config,
	}
}

// ExternalItems normalises records into retrieved items. Rank is the
// record's position in the upstream result order.
func (p *Processor) ExternalItems(records []models.ExternalRecord) []models.RetrievedItem {
	items := make([]models.RetrievedItem, 0, len(records))

	for i, rec := range records {
		items = append(items, models.RetrievedItem{
			Source:     models.SourceExternal,
			ID:         rec.ID,
			Title:      rec.Title,
			Number:     rec.CaseOrStatuteNumber,
			Text:       p.Excerpt(rec.FullText),
			Rank:       i,
			SourceType: rec.SourceType,
		})
	}

	return items
}

// Clean collapses whitespace and drops boilerplate section markers.
func (p *Processor) Clean(text string) string {
	for _, pattern := range p.config.NoisePatterns {
		text = strings.ReplaceAll(text, pattern, " ")
	}

	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}

// Excerpt returns whole leading sentences of text up to ExcerptRunes runes.
// If even the first sentence is longer, it is cut at the rune limit.
func (p *Processor) Excerpt(text string) string {
	text = p.Clean(text)
	if utf8.RuneCountInString(text) <= p.config.ExcerptRunes {
		return text
	}

	var b strings.Builder
	count := 0
	for _, sentence := range p.splitIntoSentences(text) {
		n := utf8.RuneCountInString(sentence)
		sep := 0
		if b.Len() > 0 {
			sep = 1
		}
		if count+sep+n > p.config.ExcerptRunes {
			break
		}
		if sep == 1 {
			b.WriteByte(' ')
		}
		b.WriteString(sentence)
		count += sep + n
	}

	if b.Len() == 0 {
		return string([]rune(text)[:p.config.ExcerptRunes])
	}
	return b.String()
}

func (p *Processor) splitIntoSentences(text string) []string {
	sentenceEnders := []string{". ", "! ", "? "}
	var sentences []string

	current := strings.Builder{}

	for _, r := range text {
		current.WriteRune(r)

		// Check for sentence endings
		for _, ender := range sentenceEnders {
			if strings.HasSuffix(current.String(), ender) {
				s := strings.TrimSpace(current.String())
				if utf8.RuneCountInString(s) >= p.config.MinSentenceRune {
					sentences = append(sentences, s)
					current.Reset()
				}
				break
			}
		}
	}

	// Add any remaining text
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

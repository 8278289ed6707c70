package assembler

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kyj44123-afk/cpla.ai-sub001/internal/models"
)

type AssemblerConfig struct {
	Separator    string
	SnippetRunes int
}

// Assembler packs retrieved items into the prompt context. It holds no
// per-request state and is safe for concurrent use.
type Assembler struct {
	config AssemblerConfig
}

func NewWithConfig(config AssemblerConfig) *Assembler {
	if config.Separator == "" {
		config.Separator = "\n\n"
	}
	if config.SnippetRunes == 0 {
		config.SnippetRunes = 200
	}

	return &Assembler{
		config: config,
	}
}

// Assemble builds the context bundle for one query. Internal items come
// first by descending score, then external items in upstream order. Each
// candidate is appended whole if it still fits in budget runes, otherwise
// it is skipped and the next one is tried. Citations follow append order.
func (a *Assembler) Assemble(cls models.Classification, external, internal []models.RetrievedItem, budget int) models.ContextBundle {
	bundle := models.ContextBundle{
		Citations:  []models.Citation{},
		DomainTags: append([]string{}, cls.DomainTags...),
	}

	var b strings.Builder
	used := 0
	sepRunes := utf8.RuneCountInString(a.config.Separator)

	seenIDs := make(map[string]bool)
	seenText := make(map[string]bool)

	for _, item := range a.candidates(external, internal) {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			continue
		}
		key := item.Source + "\x00" + item.ID
		if seenIDs[key] || seenText[text] {
			continue
		}

		block := a.render(item, text)
		cost := utf8.RuneCountInString(block)
		if used > 0 {
			cost += sepRunes
		}
		if used+cost > budget {
			continue
		}

		if used > 0 {
			b.WriteString(a.config.Separator)
		}
		b.WriteString(block)
		used += cost

		seenIDs[key] = true
		seenText[text] = true
		bundle.Citations = append(bundle.Citations, a.cite(item, text))
	}

	bundle.PromptText = b.String()
	return bundle
}

func (a *Assembler) candidates(external, internal []models.RetrievedItem) []models.RetrievedItem {
	in := append([]models.RetrievedItem(nil), internal...)
	sort.SliceStable(in, func(i, j int) bool {
		return in[i].Score > in[j].Score
	})

	ex := append([]models.RetrievedItem(nil), external...)
	sort.SliceStable(ex, func(i, j int) bool {
		return ex[i].Rank < ex[j].Rank
	})

	return append(in, ex...)
}

func (a *Assembler) render(item models.RetrievedItem, text string) string {
	return header(item) + "\n" + text
}

func header(item models.RetrievedItem) string {
	label := "참고"
	switch {
	case item.Source == models.SourceInternal:
		label = "내부 자료"
	case item.SourceType == models.SourceTypePrecedent:
		label = "판례"
	case item.SourceType == models.SourceTypeStatute:
		label = "법령"
	}

	title := item.Title
	if title == "" {
		title = item.Filename
	}
	if title == "" {
		title = item.ID
	}
	if item.Number != "" {
		return fmt.Sprintf("[%s] %s (%s)", label, title, item.Number)
	}
	return fmt.Sprintf("[%s] %s", label, title)
}

func (a *Assembler) cite(item models.RetrievedItem, text string) models.Citation {
	c := models.Citation{
		Source:     item.Source,
		ID:         item.ID,
		Title:      item.Title,
		Number:     item.Number,
		Snippet:    truncateRunes(text, a.config.SnippetRunes),
		DocumentID: item.DocumentID,
		Filename:   item.Filename,
	}
	if item.Source == models.SourceInternal {
		c.Score = item.Score
	}
	return c
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

package classifier

import (
	"strings"

	"github.com/kyj44123-afk/cpla.ai-sub001/internal/models"
)

// Classifier maps free text onto the configured domains. The table is
// read-only after construction and safe to share between requests.
type Classifier struct {
	sets []models.KeywordSet
}

func New(sets []models.KeywordSet) *Classifier {
	return &Classifier{sets: sets}
}

// Classify tags every domain the text overlaps with. A domain's exact
// keywords win; its synonym rules are consulted only when none of them
// appear, so colloquial text still gets an expansion.
func (c *Classifier) Classify(text string) models.Classification {
	var cls models.Classification
	norm := normalize(text)
	if norm == "" {
		return cls
	}

	seen := make(map[string]bool)
	add := func(keyword string) {
		if !seen[keyword] {
			seen[keyword] = true
			cls.ExpandedKeywords = append(cls.ExpandedKeywords, keyword)
		}
	}

	for _, set := range c.sets {
		var hits []string
		for _, kw := range set.Keywords {
			if containsNormalized(norm, kw) {
				hits = append(hits, kw)
			}
		}

		if len(hits) == 0 {
			for _, rule := range set.Synonyms {
				if matchesAny(norm, rule.Terms) {
					hits = append(hits, rule.Expands...)
				}
			}
		}

		if len(hits) == 0 {
			continue
		}
		cls.DomainTags = append(cls.DomainTags, set.Domain)
		for _, kw := range hits {
			add(kw)
		}
	}

	return cls
}

// IsRelevant reports whether title or body mentions at least one keyword
// of domain. Coincidental matches are accepted.
func (c *Classifier) IsRelevant(domain, title, body string) bool {
	for _, set := range c.sets {
		if set.Domain != domain {
			continue
		}
		t, b := normalize(title), normalize(body)
		for _, kw := range set.Keywords {
			if containsNormalized(t, kw) || containsNormalized(b, kw) {
				return true
			}
		}
	}
	return false
}

// RelevantToAny applies IsRelevant across tags. With no tags there is no
// predicate to apply and every item passes.
func (c *Classifier) RelevantToAny(tags []string, title, body string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, tag := range tags {
		if c.IsRelevant(tag, title, body) {
			return true
		}
	}
	return false
}

// FilterRecords keeps the records whose title or full body is relevant to
// any of tags, preserving order.
func (c *Classifier) FilterRecords(tags []string, records []models.ExternalRecord) []models.ExternalRecord {
	out := make([]models.ExternalRecord, 0, len(records))
	for _, rec := range records {
		if c.RelevantToAny(tags, rec.Title, rec.FullText) {
			out = append(out, rec)
		}
	}
	return out
}

// SearchKeywords picks what to send to the external search: the first n
// expanded keywords, or the raw text unmodified when nothing matched.
func SearchKeywords(cls models.Classification, raw string, n int) []string {
	if len(cls.ExpandedKeywords) == 0 {
		if strings.TrimSpace(raw) == "" {
			return nil
		}
		return []string{raw}
	}
	if n <= 0 || n > len(cls.ExpandedKeywords) {
		n = len(cls.ExpandedKeywords)
	}
	return append([]string(nil), cls.ExpandedKeywords[:n]...)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// containsNormalized matches kw against already-normalised text, also
// ignoring spacing since Korean spacing is inconsistent.
func containsNormalized(norm, kw string) bool {
	k := normalize(kw)
	if k == "" {
		return false
	}
	if strings.Contains(norm, k) {
		return true
	}
	return strings.Contains(stripSpaces(norm), stripSpaces(k))
}

func matchesAny(norm string, terms []string) bool {
	for _, term := range terms {
		if containsNormalized(norm, term) {
			return true
		}
	}
	return false
}

func stripSpaces(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

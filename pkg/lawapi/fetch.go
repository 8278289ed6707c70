package lawapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kyj44123-afk/cpla.ai-sub001/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Fetch hydrates a single record.
func (c *Client) Fetch(ctx context.Context, ref models.ExternalRecordRef) (models.ExternalRecord, error) {
	spec, err := c.source(ref.SourceType)
	if err != nil {
		return models.ExternalRecord{}, err
	}

	oc, err := c.credential()
	if err != nil {
		return models.ExternalRecord{}, err
	}

	params := url.Values{}
	params.Set("OC", oc)
	params.Set("target", spec.Target)
	params.Set("type", "JSON")
	params.Set(spec.IDParam, ref.ID)

	body, status, err := c.get(ctx, c.config.FetchPath, params)
	if err != nil {
		return models.ExternalRecord{}, err
	}
	if status != http.StatusOK {
		return models.ExternalRecord{}, fmt.Errorf("%w: status %d for %s", ErrRecordNotFound, status, ref.ID)
	}

	return decodeRecord(body, spec, ref)
}

// FetchAll hydrates refs through a bounded pool. Records come back in ref
// order; a failed fetch is dropped and reported, never fatal.
func (c *Client) FetchAll(ctx context.Context, refs []models.ExternalRecordRef) ([]models.ExternalRecord, []models.FetchFailure) {
	results := make([]models.ExternalRecord, len(refs))
	errs := make([]error, len(refs))

	var g errgroup.Group
	g.SetLimit(c.config.Workers)

	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			results[i], errs[i] = c.Fetch(ctx, ref)
			return nil
		})
	}
	_ = g.Wait()

	records := make([]models.ExternalRecord, 0, len(refs))
	var failures []models.FetchFailure
	for i, ref := range refs {
		if errs[i] != nil {
			c.log.WithFields(logrus.Fields{
				"source_type": ref.SourceType,
				"id":          ref.ID,
				"error":       errs[i].Error(),
			}).Warn("Dropping external record")
			failures = append(failures, models.FetchFailure{Ref: ref, Err: errs[i]})
			continue
		}
		records = append(records, results[i])
	}

	return records, failures
}

func decodeRecord(body []byte, spec SourceSpec, ref models.ExternalRecordRef) (models.ExternalRecord, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return models.ExternalRecord{}, fmt.Errorf("%w: empty body for %s", ErrRecordNotFound, ref.ID)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return models.ExternalRecord{}, fmt.Errorf("%w: unreadable body for %s", ErrRecordNotFound, ref.ID)
	}

	// The upstream answers a miss with a bare message object instead of the root.
	root, ok := doc[spec.FetchRoot]
	if !ok || root == nil {
		return models.ExternalRecord{}, fmt.Errorf("%w: %s", ErrRecordNotFound, ref.ID)
	}

	title := strings.Join(lookup(root, splitPath(spec.TitlePath)), " ")
	if strings.TrimSpace(title) == "" {
		return models.ExternalRecord{}, &ParseError{Field: spec.TitlePath, Reason: "title field missing"}
	}

	var parts []string
	for _, p := range spec.TextPaths {
		parts = append(parts, lookup(root, splitPath(p))...)
	}
	text := stripMarkup(strings.Join(parts, "\n"))
	if text == "" {
		return models.ExternalRecord{}, &ParseError{Field: strings.Join(spec.TextPaths, ","), Reason: "record body missing"}
	}

	return models.ExternalRecord{
		ID:                  ref.ID,
		Title:               stripMarkup(title),
		CaseOrStatuteNumber: strings.Join(lookup(root, splitPath(spec.NumberPath)), " "),
		FullText:            text,
		SourceType:          ref.SourceType,
	}, nil
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// lookup walks a decoded JSON value along parts. Arrays are flattened so a
// path through a list of objects collects the leaf from every element.
func lookup(node interface{}, parts []string) []string {
	switch v := node.(type) {
	case []interface{}:
		var out []string
		for _, el := range v {
			out = append(out, lookup(el, parts)...)
		}
		return out
	case map[string]interface{}:
		if len(parts) == 0 {
			return nil
		}
		return lookup(v[parts[0]], parts[1:])
	case string:
		if len(parts) == 0 && strings.TrimSpace(v) != "" {
			return []string{strings.TrimSpace(v)}
		}
	case float64:
		if len(parts) == 0 {
			return []string{strconv.FormatFloat(v, 'f', -1, 64)}
		}
	}
	return nil
}

// stripMarkup removes the HTML the upstream embeds in text fields and
// collapses whitespace.
func stripMarkup(s string) string {
	if strings.Contains(s, "<") {
		s = strings.NewReplacer("<br/>", " ", "<br>", " ", "<br />", " ").Replace(s)
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

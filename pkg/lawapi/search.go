package lawapi

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/kyj44123-afk/cpla.ai-sub001/internal/models"
	"github.com/sirupsen/logrus"
)

// Search runs one keyword search and returns the record identifiers found
// in the response, in document order, truncated to resultCap.
func (c *Client) Search(ctx context.Context, sourceType, keyword string, resultCap int) ([]models.ExternalRecordRef, error) {
	spec, err := c.source(sourceType)
	if err != nil {
		return nil, err
	}
	if resultCap <= 0 {
		return nil, nil
	}

	oc, err := c.credential()
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("OC", oc)
	params.Set("target", spec.Target)
	params.Set("type", "XML")
	params.Set("query", keyword)
	params.Set("display", strconv.Itoa(resultCap))

	body, status, err := c.get(ctx, c.config.SearchPath, params)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", status)
	}

	refs, err := extractRefs(body, spec, sourceType)
	if err != nil {
		return nil, err
	}
	if len(refs) > resultCap {
		refs = refs[:resultCap]
	}

	c.log.WithFields(logrus.Fields{
		"source_type": sourceType,
		"refs":        len(refs),
	}).Debug("Legal database search completed")

	return refs, nil
}

// extractRefs pulls every id marker inside the search root out of a search
// document, in document order. The markers are Korean element names, which
// an HTML tokenizer does not treat as tags, so the document is read as XML.
func extractRefs(body []byte, spec SourceSpec, sourceType string) ([]models.ExternalRecordRef, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))

	var refs []models.ExternalRecordRef
	var text strings.Builder
	rootSeen := false
	inRoot, inMarker := 0, false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Field: spec.SearchRoot, Reason: err.Error()}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == spec.SearchRoot:
				rootSeen = true
				inRoot++
			case inRoot > 0 && t.Name.Local == spec.IDMarker:
				inMarker = true
				text.Reset()
			}
		case xml.CharData:
			if inMarker {
				text.Write(t)
			}
		case xml.EndElement:
			switch {
			case inMarker && t.Name.Local == spec.IDMarker:
				inMarker = false
				id := strings.TrimSpace(text.String())
				if !isNumeric(id) {
					return nil, &ParseError{Field: spec.IDMarker, Reason: fmt.Sprintf("non-numeric record id %q", id)}
				}
				refs = append(refs, models.ExternalRecordRef{ID: id, SourceType: sourceType})
			case t.Name.Local == spec.SearchRoot:
				inRoot--
			}
		}
	}

	if !rootSeen {
		return nil, &ParseError{Field: spec.SearchRoot, Reason: "search root element missing"}
	}
	return refs, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

package citation

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/kyj44123-afk/cpla.ai-sub001/internal/models"
)

// HeaderName is the response field that carries encoded citations. It is
// omitted when there are none.
const HeaderName = "X-Citations"

// Encode serialises citations as compact JSON and then as standard base64,
// so the result only contains [A-Za-z0-9+/=]. A nil list encodes like an
// empty one.
func Encode(citations []models.Citation) (string, error) {
	if citations == nil {
		citations = []models.Citation{}
	}

	data, err := json.Marshal(citations)
	if err != nil {
		return "", fmt.Errorf("failed to marshal citations: %w", err)
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode is the inverse of Encode. An empty string means no citations.
func Decode(encoded string) ([]models.Citation, error) {
	if encoded == "" {
		return []models.Citation{}, nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode citations: %w", err)
	}

	var citations []models.Citation
	if err := json.Unmarshal(data, &citations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal citations: %w", err)
	}
	if citations == nil {
		citations = []models.Citation{}
	}

	return citations, nil
}

package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "completion provider base URL is required",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 1",
		})
	}

	// Validate embedding config
	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		errors = append(errors, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unsupported embedding provider: %s", c.Embedding.Provider),
		})
	}

	if c.Embedding.Dimensions < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.dimensions",
			Message: "dimensions must be positive",
		})
	}

	// Validate Database config
	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim != c.Embedding.Dimensions {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must match embedding.dimensions",
		})
	}

	// Validate legal database client
	if u, err := url.Parse(c.LawAPI.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "law_api.base_url",
			Message: "invalid legal database base URL",
		})
	}

	if c.LawAPI.CallTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "law_api.call_timeout",
			Message: "call_timeout must be positive",
		})
	}

	if c.LawAPI.Workers < 1 || c.LawAPI.Workers > 9 {
		errors = append(errors, ValidationError{
			Field:   "law_api.workers",
			Message: "workers must be between 1 and 9",
		})
	}

	if c.LawAPI.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "law_api.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	for _, st := range c.LawAPI.SourceTypes {
		if st != "prec" && st != "law" {
			errors = append(errors, ValidationError{
				Field:   "law_api.source_types",
				Message: fmt.Sprintf("unknown source type: %s", st),
			})
		}
	}

	// Validate retrieval config
	if c.Retrieval.Budget < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.budget",
			Message: "budget must be positive",
		})
	}

	if c.Retrieval.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.Retrieval.ResultCap < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.result_cap",
			Message: "result_cap must be positive",
		})
	}

	if c.Retrieval.ExcerptRunes < 1 || c.Retrieval.ExcerptRunes > c.Retrieval.Budget {
		errors = append(errors, ValidationError{
			Field:   "retrieval.excerpt_runes",
			Message: "excerpt_runes must be positive and not larger than budget",
		})
	}

	return errors
}

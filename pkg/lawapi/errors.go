package lawapi

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrUpstreamTimeout = errors.New("upstream call timed out")
)

// ConfigurationError is returned before any request is issued when the
// credential cannot be resolved. It wraps the secrets error so callers can
// still tell a missing credential from a corrupted one.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("legal database client misconfigured: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ParseError reports an upstream document that lacks an expected marker or
// field, or carries a value of the wrong shape.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s: %s", e.Field, e.Reason)
}

package lawapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kyj44123-afk/cpla.ai-sub001/internal/types"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type ClientConfig struct {
	BaseURL        string
	SearchPath     string
	FetchPath      string
	CredentialName string
	Credentials    types.SecretSource
	CallTimeout    time.Duration
	Workers        int
	RateLimit      float64 // requests per second
	Sources        map[string]SourceSpec
	HTTPClient     *http.Client
	Logger         logrus.FieldLogger
}

// Client talks to the government legal database. Search returns record
// identifiers, Fetch hydrates one identifier per call.
type Client struct {
	config  ClientConfig
	client  *http.Client
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

func NewWithConfig(config ClientConfig) (*Client, error) {
	if config.SearchPath == "" {
		config.SearchPath = "/DRF/lawSearch.do"
	}
	if config.FetchPath == "" {
		config.FetchPath = "/DRF/lawService.do"
	}
	if config.CredentialName == "" {
		config.CredentialName = "law_api_oc"
	}
	if config.CallTimeout == 0 {
		config.CallTimeout = 8 * time.Second
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}
	if config.Sources == nil {
		config.Sources = DefaultSources()
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}

	if _, err := url.ParseRequestURI(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid legal database base URL: %w", err)
	}

	return &Client{
		config:  config,
		client:  config.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.Workers),
		log:     logger.OrStandard(config.Logger),
	}, nil
}

func (c *Client) source(sourceType string) (SourceSpec, error) {
	spec, ok := c.config.Sources[sourceType]
	if !ok {
		return SourceSpec{}, fmt.Errorf("unknown source type %q", sourceType)
	}
	return spec, nil
}

// credential resolves the API credential for a single call. The plaintext
// is never stored on the client.
func (c *Client) credential() (string, error) {
	if c.config.Credentials == nil {
		return "", &ConfigurationError{Err: errors.New("no credential source configured")}
	}

	oc, err := c.config.Credentials.Get(c.config.CredentialName)
	if err != nil {
		return "", &ConfigurationError{Err: err}
	}
	if strings.TrimSpace(oc) == "" {
		return "", &ConfigurationError{Err: errors.New("credential is empty")}
	}
	return oc, nil
}

// get issues one rate-limited GET under its own deadline. A deadline hit on
// this call alone is reported as ErrUpstreamTimeout; cancellation of the
// parent context is returned as the context error.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, c.callError(ctx, callCtx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, c.callError(ctx, callCtx, err)
	}

	c.log.WithFields(logrus.Fields{
		"path":     path,
		"target":   params.Get("target"),
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("Legal database call completed")

	return body, resp.StatusCode, nil
}

func (c *Client) callError(ctx, callCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrUpstreamTimeout, c.config.CallTimeout)
	}
	// url.Error embeds the request URL, which carries the credential.
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}
	return fmt.Errorf("request failed: %w", err)
}

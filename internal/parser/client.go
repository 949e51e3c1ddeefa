// Package parser is the HTTP client for the legislation parsing service,
// which re-parses stored laws and imports laws that are not yet stored.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

// Compile-time interface checks.
var (
	_ types.Reparser = (*Client)(nil)
	_ types.Importer = (*Client)(nil)
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// StatusError is a non-2xx response from the parsing service.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("parser returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("parser returned status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether the request may succeed if retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client calls the parsing service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetryMaxElapsed bounds the retries of one call.
func WithRetryMaxElapsed(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.newBackOff = func() backoff.BackOff {
				bo := backoff.NewExponentialBackOff()
				bo.MaxElapsedTime = d
				return bo
			}
		}
	}
}

// WithBackOff replaces the retry policy.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) {
		if fn != nil {
			c.newBackOff = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient returns a client for the service at baseURL. An empty baseURL
// yields a client whose calls fail with types.ErrNoCollaborator.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = types.DefaultParserTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	WithRetryMaxElapsed(types.DefaultRetryMaxElapsed)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type importResponse struct {
	RecordID string `json:"record_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ReparseLaw asks the service to re-derive id's amendment metadata.
func (c *Client) ReparseLaw(ctx context.Context, id types.LawID) (*types.ReparseResult, error) {
	var res types.ReparseResult
	if err := c.post(ctx, id, "reparse", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ImportLaw asks the service to fetch and persist id.
func (c *Client) ImportLaw(ctx context.Context, id types.LawID) (string, error) {
	var resp importResponse
	if err := c.post(ctx, id, "import", &resp); err != nil {
		return "", err
	}
	if resp.RecordID == "" {
		return "", fmt.Errorf("import %s: response has no record_id", id)
	}
	return resp.RecordID, nil
}

// post sends POST {base}/laws/{id}/{action} and decodes the JSON reply into
// out. Transport errors, 429 and 5xx are retried; other statuses are not.
func (c *Client) post(ctx context.Context, id types.LawID, action string, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("parser url: %w", types.ErrNoCollaborator)
	}
	if err := id.Validate(); err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/laws/%s/%s", c.baseURL, url.PathEscape(string(id)), action)

	attempt := 0
	op := func() error {
		attempt++
		body, err := c.do(ctx, endpoint)
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return backoff.Permanent(fmt.Errorf("decoding %s response: %w", action, err))
			}
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		c.logger.Warn("parser request failed, retrying", "action", action, "law", id, "attempt", attempt, "error", err)
		return err
	}
	return backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx))
}

func (c *Client) do(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

// errorMessage extracts {"error": "..."} or falls back to the raw body.
func errorMessage(body []byte) string {
	var er errorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		return er.Error
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return strings.TrimSpace(string(body))
}

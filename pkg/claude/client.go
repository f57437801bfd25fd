package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	defaultVersion = "2023-06-01"

	// Overload retry policy: up to maxAttempts calls, waiting 2s then 4s
	// (doubling) between them. Any non-overload error surfaces immediately.
	maxAttempts      = 3
	initialBackoff   = 2 * time.Second
	statusOverloaded = 529
)

// APIError is a structured error returned by the Messages endpoint.
type APIError struct {
	StatusCode int
	Type       string `json:"type"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("anthropic api error (%d %s): %s", e.StatusCode, e.Type, e.Message)
}

// IsOverloaded reports whether err carries the transient-overload signature.
// Only this error is retried; everything else is fatal for the request.
func IsOverloaded(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == statusOverloaded || apiErr.Type == "overloaded_error" {
		return true
	}
	return apiErr.Type == "api_error" && apiErr.Message == "Overloaded"
}

// Sleeper waits the given duration or returns early with the context error.
// Tests inject a fake to assert the backoff sequence without real delays.
type Sleeper func(ctx context.Context, d time.Duration) error

func realSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Client implements the Messages API (v1) with bounded retry on overload.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	sleep   Sleeper
	logger  zerolog.Logger
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.client = h }
}

func WithSleeper(s Sleeper) ClientOption {
	return func(c *Client) { c.sleep = s }
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 120 * time.Second},
		sleep:   realSleep,
		logger:  log.With().Str("component", "claude").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends one Messages request, retrying only on the overload
// signature: up to 3 attempts with 2s then 4s waits. Exhausting the retries
// surfaces the last error.
func (c *Client) Complete(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	var lastErr error
	backoff := initialBackoff
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := c.post(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsOverloaded(err) || attempt == maxAttempts-1 {
			return nil, err
		}
		c.logger.Warn().
			Dur("wait", backoff).
			Int("attempt", attempt+1).
			Int("max_attempts", maxAttempts).
			Msg("api overloaded, backing off")
		if err := c.sleep(ctx, backoff); err != nil {
			return nil, err
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (c *Client) post(ctx context.Context, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", defaultVersion)
	req.Header.Set("content-type", "application/json")

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic request")
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, parseAPIError(httpResp.StatusCode, respBody)
	}

	var resp Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	if len(resp.Content) == 0 {
		return nil, errors.New("anthropic empty response")
	}
	return &resp, nil
}

// parseAPIError decodes the nested error envelope
// {"type":"error","error":{"type":...,"message":...}}.
func parseAPIError(status int, body []byte) error {
	var envelope struct {
		Error APIError `json:"error"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Type != "" {
		apiErr.Type = envelope.Error.Type
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Message = string(body)
	}
	return apiErr
}

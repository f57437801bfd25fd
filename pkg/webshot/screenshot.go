package webshot

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Viewport clamp bounds. Whatever the model asks for, the screenshot service
// only ever sees dimensions in this range.
const (
	MinViewport     = 64
	MaxViewport     = 4096
	DefaultViewport = 1280
)

var ErrSchemeNotAllowed = errors.New("only http and https URLs can be imported")

// Shot is one captured webpage screenshot.
type Shot struct {
	Bytes    []byte
	MimeType string
}

type CaptureRequest struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Screenshotter captures a rendering of an external webpage. The headless
// browser itself lives behind an HTTP service; this package only talks to it.
type Screenshotter interface {
	Capture(ctx context.Context, req CaptureRequest) (*Shot, error)
}

// HTTPService is a client for a screenshot service exposing
// POST {url, width, height} -> image bytes.
type HTTPService struct {
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
}

var _ Screenshotter = &HTTPService{}

type ServiceOption func(*HTTPService)

func WithHTTPClient(c *http.Client) ServiceOption {
	return func(s *HTTPService) { s.client = c }
}

func NewHTTPService(endpoint string, opts ...ServiceOption) *HTTPService {
	s := &HTTPService{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   log.With().Str("component", "webshot").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPService) Capture(ctx context.Context, req CaptureRequest) (*Shot, error) {
	if err := ValidateURL(req.URL); err != nil {
		return nil, err
	}
	req.Width = ClampViewport(req.Width)
	req.Height = ClampViewport(req.Height)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal capture request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build capture request")
	}
	httpReq.Header.Set("content-type", "application/json")

	s.logger.Debug().Str("url", req.URL).Int("width", req.Width).Int("height", req.Height).Msg("capturing webpage")
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "screenshot service request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Errorf("screenshot service: %s - %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read screenshot")
	}
	mimeType := resp.Header.Get("content-type")
	if mimeType == "" || !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/png"
	}
	return &Shot{Bytes: data, MimeType: mimeType}, nil
}

// ValidateURL confines imports to http/https. Anything else (file, data,
// javascript, ...) is rejected before it reaches the headless browser.
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return errors.Wrap(err, "parse url")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return errors.New("url has no host")
		}
		return nil
	}
	return ErrSchemeNotAllowed
}

func ClampViewport(v int) int {
	if v <= 0 {
		return DefaultViewport
	}
	if v < MinViewport {
		return MinViewport
	}
	if v > MaxViewport {
		return MaxViewport
	}
	return v
}

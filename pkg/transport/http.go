// Package transport implements the attribution service contract over HTTP.
package transport

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
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/penshort/deeplink/pkg/attribution"
	"github.com/penshort/deeplink/pkg/fingerprint"
)

// Version is reported in the User-Agent header.
const Version = "0.3.0"

const (
	verifyPath = "/v1/verify"
	linksPath  = "/v1/links"

	maxResponseBytes = 1 << 20
	maxErrorBody     = 512
)

var _ attribution.Transport = (*Client)(nil)

// Client talks to the attribution service.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	userAgent   string
	backoff     func(attempt int) time.Duration
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout builds the default HTTP client with a custom total timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient = NewHTTPClient(timeout)
	}
}

// WithMaxAttempts sets the number of tries per request. Values below 1 mean 1.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n < 1 {
			n = 1
		}
		c.maxAttempts = n
	}
}

// WithBackoff overrides the delay between tries.
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(c *Client) {
		if fn != nil {
			c.backoff = fn
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the service rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrBaseURL, baseURL)
	}

	c := &Client{
		baseURL:     strings.TrimRight(u.String(), "/"),
		httpClient:  NewHTTPClient(0),
		maxAttempts: DefaultMaxAttempts,
		userAgent:   "deeplink-go/" + Version,
		backoff:     NextRetryDelay,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "transport")

	return c, nil
}

// Verify posts the fingerprint to the verify endpoint.
// Fields of the wrong type are dropped rather than failing the call.
func (c *Client) Verify(ctx context.Context, fp fingerprint.Fingerprint, credential string) (*attribution.VerifyResponse, error) {
	var raw map[string]json.RawMessage
	if err := c.post(ctx, verifyPath, credential, fp, &raw); err != nil {
		return nil, err
	}

	resp := &attribution.VerifyResponse{}
	var first bool
	if decodeField(raw, "isFirstSession", &first) {
		resp.IsFirstSession = &first
	}
	var link string
	if decodeField(raw, "link", &link) {
		resp.Link = &link
	}
	return resp, nil
}

// CreateLink posts link parameters and returns the url field of the response.
// A response without a string url yields "".
func (c *Client) CreateLink(ctx context.Context, params map[string]any, credential string) (string, error) {
	var raw map[string]json.RawMessage
	if err := c.post(ctx, linksPath, credential, params, &raw); err != nil {
		return "", err
	}

	var u string
	decodeField(raw, "url", &u)
	return u, nil
}

// decodeField unmarshals raw[key] into out. Missing, null and mistyped
// values report false.
func decodeField(raw map[string]json.RawMessage, key string, out any) bool {
	v, ok := raw[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return false
	}
	return json.Unmarshal(v, out) == nil
}

func (c *Client) post(ctx context.Context, path, credential string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	endpoint := c.baseURL + path
	requestID := ulid.Make().String()

	for attempt := 0; ; attempt++ {
		status, respBody, err := c.send(ctx, endpoint, credential, requestID, payload)
		if err == nil && status >= 200 && status < 300 {
			if len(bytes.TrimSpace(respBody)) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		retry := true
		if err == nil {
			err = statusError(status, respBody, credential)
			retry = retryable(status)
		}

		if !retry || IsExhausted(attempt+1, c.maxAttempts) {
			return err
		}

		delay := c.backoff(attempt)
		c.logger.Warn("request failed, retrying",
			"path", path,
			"request_id", requestID,
			"attempt", attempt+1,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// send performs one HTTP round trip and returns the status and a bounded body.
func (c *Client) send(ctx context.Context, endpoint, credential, requestID string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	setHeaders(req, credential, requestID, c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("request completed",
		"url", endpoint,
		"request_id", requestID,
		"http_status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return resp.StatusCode, body, nil
}

func statusError(status int, body []byte, credential string) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		if credential == "" {
			return fmt.Errorf("%w: %w", ErrUnauthorized, attribution.ErrMissingCredentials)
		}
		return ErrUnauthorized
	}

	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(snippet[cut]) {
			cut--
		}
		snippet = snippet[:cut]
	}
	return &StatusError{StatusCode: status, Body: snippet}
}

// IsUnauthorized reports whether err is a rejected credential.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

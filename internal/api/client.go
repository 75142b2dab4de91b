package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultUserAgent identifies the client to the service.
const DefaultUserAgent = "clouddrive-go/0.1"

// maxErrorBody caps how much of a failed response body is read for the message.
const maxErrorBody = 64 * 1024

// CredentialSource supplies the bearer credential for outgoing requests.
// Defined at the consumer; the session store provides the implementation.
// ok is false when no session is active.
type CredentialSource interface {
	Credential() (token string, ok bool)
}

// Client is an HTTP client for the Cloud Drive service. It builds requests,
// attaches the current credential, and classifies failures. It performs no
// retries: every failure is returned to the caller as-is.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialSource
	logger     *slog.Logger
	userAgent  string

	// OnRequest, when set, is called after every completed round trip with
	// the HTTP method, status code (0 for network failures), and latency.
	OnRequest func(method string, status int, elapsed time.Duration)
}

// NewClient creates a service client. baseURL is the service root, e.g.
// "http://127.0.0.1:8000". creds may be nil for an anonymous client.
func NewClient(baseURL string, httpClient *http.Client, creds CredentialSource, logger *slog.Logger, userAgent string) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		creds:      creds,
		logger:     logger,
		userAgent:  userAgent,
	}
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request describes a single outgoing call.
type request struct {
	method      string
	path        string
	contentType string
	body        io.Reader
	length      int64 // -1 when unknown
	anonymous   bool  // no Authorization header (login, signup)
}

// Do executes an authenticated request with an optional JSON body.
// The caller is responsible for closing the response body on success.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	r := request{method: method, path: path, body: body, length: -1}
	if body != nil {
		r.contentType = "application/json"
	}

	return c.send(ctx, r)
}

// send executes one request. 2xx responses are returned open; anything else
// is read, closed, and converted into a *TransportError.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, fmt.Errorf("api: creating request: %w", err)
	}

	if r.length >= 0 {
		req.ContentLength = r.length
	}

	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	req.Header.Set("User-Agent", c.userAgent)

	// The credential is captured here, at dispatch. A logout that happens
	// while this request is in flight does not affect it.
	if !r.anonymous && c.creds != nil {
		if tok, ok := c.creds.Credential(); ok {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(r.method, 0, start)

		if ctx.Err() != nil {
			return nil, fmt.Errorf("api: request canceled: %w", ctx.Err())
		}

		c.logger.Warn("request failed before response",
			slog.String("method", r.method),
			slog.String("path", r.path),
			slog.String("error", err.Error()),
		)

		return nil, newNetworkError(err)
	}

	c.observe(r.method, resp.StatusCode, start)

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", r.method),
			slog.String("path", r.path),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	terr := newStatusError(resp.StatusCode, errBody)

	c.logger.Debug("request rejected",
		slog.String("method", r.method),
		slog.String("path", r.path),
		slog.Int("status", resp.StatusCode),
		slog.String("message", terr.Message),
	)

	return nil, terr
}

func (c *Client) observe(method string, status int, start time.Time) {
	if c.OnRequest != nil {
		c.OnRequest(method, status, time.Since(start))
	}
}

// drain discards and closes a response body so the connection can be reused.
func drain(resp *http.Response) error {
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("api: draining response body: %w", err)
	}

	return nil
}

// decodeJSON decodes a response body into v and closes it.
func decodeJSON(resp *http.Response, v any, what string) error {
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("api: decoding %s response: %w", what, err)
	}

	return nil
}

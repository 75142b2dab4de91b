package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned when an auth endpoint answers 2xx without an access token.
var ErrNoToken = errors.New("api: response carried no access token")

const (
	loginPath  = "/auth/token"
	signupPath = "/auth/signup"
)

// Login exchanges username and password for an access token using the
// form-encoded password grant. No Authorization header is sent.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	c.logger.Info("logging in", slog.String("user", username))

	cfg := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.baseURL + loginPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	// oauth2 picks up the HTTP client from the context.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
		Transport: userAgentTransport{base: c.transport(), userAgent: c.userAgent},
		Timeout:   c.httpClient.Timeout,
	})

	start := time.Now()

	tok, err := cfg.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		return "", c.loginError(ctx, err, start)
	}

	c.observe(http.MethodPost, http.StatusOK, start)

	if tok.AccessToken == "" {
		return "", ErrNoToken
	}

	return tok.AccessToken, nil
}

// loginError converts an oauth2 token exchange failure into the package's
// error taxonomy.
func (c *Client) loginError(ctx context.Context, err error, start time.Time) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		c.observe(http.MethodPost, rerr.Response.StatusCode, start)

		return newStatusError(rerr.Response.StatusCode, rerr.Body)
	}

	c.observe(http.MethodPost, 0, start)

	if ctx.Err() != nil {
		return fmt.Errorf("api: request canceled: %w", ctx.Err())
	}

	// oauth2 reports a 2xx response without access_token as a plain error.
	if strings.Contains(err.Error(), "missing access_token") {
		return ErrNoToken
	}

	return newNetworkError(err)
}

// Signup creates an account and returns the access token for it.
func (c *Client) Signup(ctx context.Context, username, password string) (string, error) {
	c.logger.Info("signing up", slog.String("user", username))

	payload, err := json.Marshal(credentialsRequest{Username: username, Password: password})
	if err != nil {
		return "", fmt.Errorf("api: encoding signup request: %w", err)
	}

	resp, err := c.send(ctx, request{
		method:      http.MethodPost,
		path:        signupPath,
		contentType: "application/json",
		body:        bytes.NewReader(payload),
		length:      int64(len(payload)),
		anonymous:   true,
	})
	if err != nil {
		return "", err
	}

	var tr tokenResponse
	if err := decodeJSON(resp, &tr, "signup"); err != nil {
		return "", err
	}

	if tr.AccessToken == "" {
		return "", ErrNoToken
	}

	return tr.AccessToken, nil
}

// transport returns the round tripper of the configured HTTP client.
func (c *Client) transport() http.RoundTripper {
	if c.httpClient.Transport != nil {
		return c.httpClient.Transport
	}

	return http.DefaultTransport
}

// userAgentTransport sets the User-Agent header on requests it did not build.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)

	return t.base.RoundTrip(req)
}

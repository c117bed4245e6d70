// Package storefront is the HTTP client for the storefront backend. Every
// response is a {success, data, message} envelope that is decoded once
// here into either a typed payload or a *RejectedError.
package storefront

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const maxBodySize = 4 << 20

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, e.g. https://shop.example.com/api.
	BaseURL string
	// Token is sent as a bearer token when non-empty.
	Token string
	// Timeout bounds each request. Zero means no client-side timeout.
	Timeout time.Duration
	// HTTPClient overrides the default traced client.
	HTTPClient *http.Client
}

// Client talks to the storefront backend.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	now     func() time.Time
}

// New creates a Client. The default HTTP client is instrumented with
// otelhttp.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("storefront base URL is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Timeout,
		}
	}
	return &Client{
		http:    hc,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		now:     time.Now,
	}, nil
}

// checkSession fails fast on a JWT whose exp has passed. Opaque tokens are
// left for the server to judge.
func (c *Client) checkSession() error {
	if c.token == "" {
		return nil
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt != nil && !c.now().Before(claims.ExpiresAt.Time) {
		return ErrSessionExpired
	}
	return nil
}

// do sends one request and returns the envelope's data on success.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte, header http.Header) (jx.Raw, error) {
	if err := c.checkSession(); err != nil {
		return nil, err
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}

	zctx.From(ctx).Debug("Storefront call",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, &TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if !env.Success || resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RejectedError{Op: op, Status: resp.StatusCode, Message: env.Message}
	}
	return env.Data, nil
}

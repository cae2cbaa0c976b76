// Package rest provides the HTTP plumbing shared by the graph and partner
// clients: bearer authentication, bounded retries with backoff, rate-limit
// handling, pagination, and CSV report parsing. Upstream failures are
// classified into the domain error taxonomy before they leave this package.
package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/domain"
)

const (
	// DefaultTimeout is the per-request wall-clock timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries bounds retry attempts after the initial request.
	DefaultMaxRetries = 3

	baseBackoff = 500 * time.Millisecond
	maxBackoff  = 8 * time.Second

	// maxLoggedBody caps how much of an upstream body reaches debug logs,
	// after redaction.
	maxLoggedBody = 500
)

// TokenSource supplies bearer tokens per key and reacts to upstream
// rejections. The graph client keys by tenant id; the partner client uses a
// single fixed key.
type TokenSource interface {
	// Token returns a valid bearer token for the key.
	Token(ctx context.Context, key string) (string, error)
	// Invalidate drops any cached token for the key.
	Invalidate(key string)
	// MarkInvalid records that upstream rejected the key's credentials even
	// after a fresh token. Implementations flip the stored validity flag.
	MarkInvalid(ctx context.Context, key string) error
}

// Config holds client configuration.
type Config struct {
	// Name labels the client in logs and error operations ("graph",
	// "partner", "authority").
	Name string
	// BaseURL prefixes relative request paths.
	BaseURL string
	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration
	// MaxRetries overrides DefaultMaxRetries when positive.
	MaxRetries int
	// Tokens is optional; when nil requests go out unauthenticated (the
	// authority token endpoint itself).
	Tokens TokenSource
	Log    zerolog.Logger
}

// Client is one logical client for an external API.
type Client struct {
	name       string
	baseURL    string
	http       *http.Client
	tokens     TokenSource
	maxRetries int
	log        zerolog.Logger

	// sleep and now are swapped out by tests for deterministic retry timing.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New creates a client from cfg.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	return &Client{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		http:       &http.Client{Timeout: timeout},
		tokens:     cfg.Tokens,
		maxRetries: maxRetries,
		log:        cfg.Log.With().Str("client", cfg.Name).Logger(),
		sleep:      sleepContext,
		now:        time.Now,
	}
}

// Get issues an authenticated GET for a path relative to the base URL and
// returns the response body.
func (c *Client) Get(ctx context.Context, tokenKey, path string) ([]byte, error) {
	return c.do(ctx, tokenKey, http.MethodGet, c.absolute(path), "", nil)
}

// GetURL issues an authenticated GET against a fully qualified URL. Used for
// pagination next links, which are opaque and never reconstructed.
func (c *Client) GetURL(ctx context.Context, tokenKey, rawURL string) ([]byte, error) {
	return c.do(ctx, tokenKey, http.MethodGet, rawURL, "", nil)
}

// PostForm issues an unauthenticated URL-encoded POST. This is the shape of
// the OAuth token endpoint; the form is never logged.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	body := []byte(form.Encode())
	return c.do(ctx, "", http.MethodPost, c.absolute(path), "application/x-www-form-urlencoded", body)
}

func (c *Client) absolute(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// do runs the retry loop. Retries cover network errors, 429, and 5xx; a
// 401/403 triggers exactly one token refresh before failing Unauthorized.
// Other 4xx statuses never retry.
func (c *Client) do(ctx context.Context, tokenKey, method, rawURL, contentType string, body []byte) ([]byte, error) {
	pathOnly := safePath(rawURL)
	authRetried := false
	attempt := 0

	for {
		payload, status, header, err := c.roundTrip(ctx, tokenKey, method, rawURL, contentType, body)
		if err != nil {
			// Token-source failures arrive already classified by the
			// authority client; retrying here would re-issue authority
			// requests and mask a credential rejection as transient.
			if domain.KindOf(err) != domain.KindInternal {
				return nil, err
			}
			// Network-level failure. Context cancellation is not retried.
			if ctx.Err() != nil {
				return nil, domain.Transient(c.name, fmt.Sprintf("%s %s cancelled", method, pathOnly), ctx.Err())
			}
			if attempt >= c.maxRetries {
				return nil, domain.Transient(c.name, fmt.Sprintf("%s %s failed after %d attempts", method, pathOnly, attempt+1), err)
			}
			if serr := c.backoff(ctx, attempt, 0); serr != nil {
				return nil, domain.Transient(c.name, fmt.Sprintf("%s %s cancelled during backoff", method, pathOnly), serr)
			}
			attempt++
			continue
		}

		switch {
		case status >= 200 && status < 300:
			return payload, nil

		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			if c.tokens == nil || tokenKey == "" {
				return nil, domain.Unauthorized(c.name, fmt.Sprintf("%s %s returned %d", method, pathOnly, status))
			}
			if authRetried {
				// Second rejection with a fresh token: the credentials are bad.
				if merr := c.tokens.MarkInvalid(ctx, tokenKey); merr != nil {
					c.log.Warn().Err(merr).Str("token_key", tokenKey).Msg("Failed to mark credentials invalid")
				}
				c.log.Warn().
					Str("token_key", tokenKey).
					Int("status", status).
					Str("path", pathOnly).
					Msg("Credentials rejected after token refresh")
				return nil, domain.Unauthorized(c.name, fmt.Sprintf("%s %s returned %d after token refresh", method, pathOnly, status))
			}
			c.tokens.Invalidate(tokenKey)
			authRetried = true
			c.log.Debug().
				Str("token_key", tokenKey).
				Int("status", status).
				Str("path", pathOnly).
				Msg("Token rejected, retrying with fresh token")
			continue

		case status == http.StatusTooManyRequests:
			retryAfter := c.parseRetryAfter(header.Get("Retry-After"))
			if attempt >= c.maxRetries {
				return nil, domain.RateLimited(c.name, retryAfter,
					fmt.Errorf("%s %s returned 429 after %d attempts", method, pathOnly, attempt+1))
			}
			if serr := c.backoff(ctx, attempt, retryAfter); serr != nil {
				return nil, domain.Transient(c.name, fmt.Sprintf("%s %s cancelled during backoff", method, pathOnly), serr)
			}
			attempt++
			continue

		case status >= 500:
			if attempt >= c.maxRetries {
				return nil, domain.Transient(c.name,
					fmt.Sprintf("%s %s returned %d after %d attempts", method, pathOnly, status, attempt+1), nil)
			}
			if serr := c.backoff(ctx, attempt, 0); serr != nil {
				return nil, domain.Transient(c.name, fmt.Sprintf("%s %s cancelled during backoff", method, pathOnly), serr)
			}
			attempt++
			continue

		case status == http.StatusNotFound:
			return nil, domain.NotFound(c.name, fmt.Sprintf("%s %s returned 404", method, pathOnly))

		default:
			c.logBody(status, pathOnly, payload)
			return nil, domain.BadRequest(c.name, fmt.Sprintf("%s %s returned %d", method, pathOnly, status))
		}
	}
}

// roundTrip performs one HTTP exchange and drains the body so the
// connection can be reused across retries.
func (c *Client) roundTrip(ctx context.Context, tokenKey, method, rawURL, contentType string, body []byte) ([]byte, int, http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json, text/csv")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if c.tokens != nil && tokenKey != "" {
		token, terr := c.tokens.Token(ctx, tokenKey)
		if terr != nil {
			return nil, 0, nil, terr
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return payload, resp.StatusCode, resp.Header, nil
}

// backoff sleeps before the next attempt. A server-provided retryAfter wins
// over the computed exponential delay.
func (c *Client) backoff(ctx context.Context, attempt int, retryAfter time.Duration) error {
	delay := calculateBackoff(attempt)
	if retryAfter > delay {
		delay = retryAfter
	}
	return c.sleep(ctx, delay)
}

// calculateBackoff computes the exponential backoff delay with jitter.
func calculateBackoff(attempt int) time.Duration {
	// Exponential backoff: baseBackoff * 2^attempt
	delay := float64(baseBackoff) * math.Pow(2, float64(attempt))
	if delay > float64(maxBackoff) {
		delay = float64(maxBackoff)
	}

	// Full jitter keeps concurrent tenants from retrying in lockstep.
	half := delay / 2
	return time.Duration(half + rand.Float64()*half)
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func (c *Client) parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		delta := at.Sub(c.now())
		if delta > 0 {
			return delta
		}
	}

	return 0
}

// logBody emits a truncated, redacted body at debug level. Raw bodies never
// reach errors or higher log levels.
func (c *Client) logBody(status int, path string, payload []byte) {
	if len(payload) == 0 {
		return
	}
	c.log.Debug().
		Int("status", status).
		Str("path", path).
		Str("body", Redact(truncate(string(payload), maxLoggedBody))).
		Msg("Upstream error body")
}

// safePath strips query and fragment so logged URLs cannot leak parameters.
func safePath(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "(unparseable url)"
	}
	if parsed.Path == "" {
		return "/"
	}
	return parsed.Path
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// sleepContext waits for the delay or the context, whichever ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

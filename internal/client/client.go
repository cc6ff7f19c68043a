// Package client talks to the raid seed service over HTTP.
//
// Requests that fail with a transport error, a 429 or a 5xx are retried with
// capped exponential backoff. Submitting a result is safe to retry: a seed
// settles at most once, so a replayed submission comes back as
// seed_consumed rather than a second credit.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"

	"github.com/MJE43/raid-extract/internal/api"
	"github.com/MJE43/raid-extract/internal/fairness"
	"github.com/MJE43/raid-extract/internal/store"
	"github.com/MJE43/raid-extract/internal/validate"
)

// Config holds configuration for the seed service client.
type Config struct {
	// BaseURL is the service root, e.g. "http://localhost:8080".
	BaseURL string

	// Token is the player's bearer token.
	Token string

	// MaxRetries is the number of retries after the first attempt.
	// Defaults to 3 if zero.
	MaxRetries uint64

	// BaseRetryDelay is the initial backoff. Defaults to 250ms if zero.
	BaseRetryDelay time.Duration

	// MaxRetryDelay caps the backoff. Defaults to 5s if zero.
	MaxRetryDelay time.Duration

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	// Defaults to a client with a 10s timeout.
	HTTPClient *http.Client

	UserAgent string
}

// Client is a seed service client. It is safe for concurrent use.
type Client struct {
	config Config
	http   *http.Client
	mu     sync.RWMutex
}

// NewClient creates a new client with the given configuration.
func NewClient(cfg Config) *Client {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseRetryDelay == 0 {
		cfg.BaseRetryDelay = 250 * time.Millisecond
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 5 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "raid-extract/" + api.EngineVersion
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{config: cfg, http: httpClient}
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.Token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.Token
}

// RequestSeed asks the service to commit to a fresh server seed.
func (c *Client) RequestSeed(ctx context.Context) (fairness.Commitment, error) {
	var out fairness.Commitment
	err := c.do(ctx, http.MethodPost, "/api/v1/seeds", nil, &out)
	return out, err
}

// SubmitResult settles claim against seedID and returns the verdict.
func (c *Client) SubmitResult(ctx context.Context, seedID string, claim validate.Claim) (fairness.Verdict, error) {
	var out fairness.Verdict
	err := c.do(ctx, http.MethodPost, "/api/v1/raids/"+url.PathEscape(seedID)+"/result", claim, &out)
	return out, err
}

// Validate dry-runs claim through the server validator.
func (c *Client) Validate(ctx context.Context, claim validate.Claim) (api.ValidateResponse, error) {
	var out api.ValidateResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/raids/validate", claim, &out)
	return out, err
}

// Profile returns the player's ledger.
func (c *Client) Profile(ctx context.Context) (store.Profile, error) {
	var out store.Profile
	err := c.do(ctx, http.MethodGet, "/api/v1/profile", nil, &out)
	return out, err
}

// History returns the player's settled raids, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]store.RaidResult, error) {
	var out api.HistoryResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/history"+limitQuery(limit), nil, &out)
	return out.Raids, err
}

// Feed returns recent public feed entries.
func (c *Client) Feed(ctx context.Context, limit int) ([]store.FeedEntry, error) {
	var out api.FeedResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/feed"+limitQuery(limit), nil, &out)
	return out.Entries, err
}

// Rules returns the published difficulty table, catalog and limits.
func (c *Client) Rules(ctx context.Context) (api.RulesResponse, error) {
	var out api.RulesResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/rules", nil, &out)
	return out, err
}

func limitQuery(limit int) string {
	if limit <= 0 {
		return ""
	}
	return "?limit=" + strconv.Itoa(limit)
}

// do sends a request with retry on transport errors and retryable statuses.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return errors.Wrap(err, "marshal request")
		}
	}

	b := retry.NewExponential(c.config.BaseRetryDelay)
	b = retry.WithCappedDuration(c.config.MaxRetryDelay, b)
	b = retry.WithJitterPercent(10, b)
	b = retry.WithMaxRetries(c.config.MaxRetries, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		if apiErr, ok := AsAPIError(err); ok {
			if apiErr.IsRetryable() {
				return retry.RetryableError(err)
			}
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		if _, ok := errors.Cause(err).(*decodeError); ok {
			return err
		}
		return retry.RetryableError(err)
	})
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		if apiErr.Type == "" {
			apiErr.Type = resp.Header.Get("X-Error-Type")
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.WithStack(&decodeError{err: fmt.Errorf("%s %s: %w", method, path, err)})
	}
	return nil
}

// Package jiraclient talks to Jira Cloud's REST v3 API on behalf of
// JiraExtractor. It generalizes the teacher's internal/jira/client.go from
// a single-issue sync adapter into the paginated, multi-entity puller
// spec.md §4.3 describes, keeping the same doRequest/setAuth shape and
// backoff idiom.
package jiraclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Client is an authenticated handle to one Jira Cloud site.
type Client struct {
	BaseURL    string
	Email      string
	APIToken   string
	HTTPClient *http.Client
}

// New constructs a Client. baseURL is the site root, e.g.
// "https://example.atlassian.net".
func New(baseURL, email, apiToken string) *Client {
	return &Client{
		BaseURL:  strings.TrimSuffix(baseURL, "/"),
		Email:    email,
		APIToken: apiToken,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// StatusError is returned for any non-2xx Jira response; callers use
// errors.As to branch on StatusCode (401/403/404 are treated specially by
// JiraExtractor's per-issue endpoints).
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jira: HTTP %d: %s", e.StatusCode, truncate(string(e.Body), 500))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// doRequest executes one authenticated call, retrying 429/5xx per spec.md
// §4.3: initial delay 1s, doubling per attempt, capped at 5 attempts,
// honoring a numeric Retry-After header verbatim, with jitter up to 0.5x
// the base delay. A non-retryable status (anything else in 4xx) returns
// immediately via backoff.Permanent so the caller's own 401/403/404
// handling sees it on the first attempt.
func (c *Client) doRequest(ctx context.Context, method, rawURL string, body []byte) ([]byte, error) {
	if c.BaseURL == "" || c.APIToken == "" {
		return nil, fmt.Errorf("jiraclient: base URL or API token not configured")
	}

	var respBody []byte

	bo := backoff.NewExponentialBackOff()
	// 1.25s ±20% keeps every delay between the base (1s, 2s, 4s, ...) and
	// 1.5x the base.
	bo.InitialInterval = 1250 * time.Millisecond
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2
	boCtx := backoff.WithContext(backoff.WithMaxRetries(bo, 4), ctx) // 5 total attempts

	op := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("jiraclient: build request: %w", err))
		}
		c.setAuth(req)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err // transport error: retryable
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusNoContent {
			respBody = nil
			return nil
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			respBody = data
			return nil
		}

		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: data}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			if wait, ok := retryAfter(resp.Header.Get("Retry-After")); ok {
				time.Sleep(wait)
			}
			return statusErr // retryable
		}
		return backoff.Permanent(statusErr)
	}

	if err := backoff.Retry(op, boCtx); err != nil {
		return nil, err
	}
	return respBody, nil
}

// retryAfter parses a positive-integer Retry-After header into a duration.
func retryAfter(h string) (time.Duration, bool) {
	if h == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(h)
	if err != nil || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func (c *Client) setAuth(req *http.Request) {
	auth := base64.StdEncoding.EncodeToString([]byte(c.Email + ":" + c.APIToken))
	req.Header.Set("Authorization", "Basic "+auth)
}

// AuthenticatedGet issues a GET against an absolute URL (an attachment's
// `content` link, which points outside BaseURL's REST path) and returns
// the live response for the caller to stream, rather than buffering the
// whole body the way doRequest does. The caller must close the body.
func (c *Client) AuthenticatedGet(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("jiraclient: build download request: %w", err)
	}
	c.setAuth(req)
	return c.HTTPClient.Do(req)
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.doRequest(ctx, http.MethodGet, u, nil)
}

func (c *Client) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	return c.doRequest(ctx, http.MethodPost, c.BaseURL+path, payload)
}

// Package sharepoint offloads large attachments to a Microsoft Graph
// drive via a chunked upload session, spec.md §4.8 step 3. Its OAuth
// client-credentials token is cached with ristretto the way the
// teacher-pack's tangled.sh mirror caches git commit lookups, and its
// HTTP retry shape mirrors internal/jiraclient/internal/redmine's
// doRequest idiom.
package sharepoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/ristretto"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Config holds the operator-configured Graph/SharePoint settings spec.md
// §3 names.
type Config struct {
	TenantID       string
	ClientID       string
	ClientSecret   string
	SiteID         string
	DriveID        string
	Folder         string
	ChunkSizeBytes int64
}

func (c Config) chunkSize() int64 {
	const oneMiB = 1 << 20
	if c.ChunkSizeBytes < oneMiB {
		return oneMiB
	}
	return c.ChunkSizeBytes
}

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// tokenCacheTTLSlack is how far before a cached token's real expiry this
// client treats it as already stale, spec.md §4.8 step 3's "120 s
// pre-expiry refresh".
const tokenCacheTTLSlack = 120 * time.Second

// Client drives one SharePoint drive's upload sessions.
type Client struct {
	cfg        Config
	httpClient *http.Client
	oauthConf  *clientcredentials.Config
	tokens     *ristretto.Cache

	// accessTokenFunc and graphBaseURLOverride let tests substitute a fake
	// token source and a local httptest server for Microsoft Graph; both
	// are empty/nil in production, where New's defaults apply.
	accessTokenFunc      func(context.Context) (string, error)
	graphBaseURLOverride string
}

// New constructs a Client; its token cache is keyed by (tenant, client),
// so one process can in principle talk to multiple tenants without
// cross-contaminating cached tokens.
func New(cfg Config) *Client {
	cache, _ := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		oauthConf: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     "https://login.microsoftonline.com/" + cfg.TenantID + "/oauth2/v2.0/token",
			Scopes:       []string{"https://graph.microsoft.com/.default"},
		},
		tokens: cache,
	}
}

func (c *Client) tokenCacheKey() string {
	return c.cfg.TenantID + "|" + c.cfg.ClientID
}

// accessToken returns a cached app-only token, refreshing through the
// client-credentials grant once the cached one is within
// tokenCacheTTLSlack of expiring.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.accessTokenFunc != nil {
		return c.accessTokenFunc(ctx)
	}
	if v, ok := c.tokens.Get(c.tokenCacheKey()); ok {
		if tok, ok := v.(*oauth2.Token); ok && tok.Expiry.After(time.Now().Add(tokenCacheTTLSlack)) {
			return tok.AccessToken, nil
		}
	}

	tok, err := c.oauthConf.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("sharepoint: client-credentials token: %w", err)
	}

	ttl := time.Until(tok.Expiry) - tokenCacheTTLSlack
	if ttl < 0 {
		ttl = 0
	}
	c.tokens.SetWithTTL(c.tokenCacheKey(), tok, 1, ttl)
	c.tokens.Wait()
	return tok.AccessToken, nil
}

type uploadSession struct {
	UploadURL string `json:"uploadUrl"`
}

type driveItem struct {
	WebURL string `json:"webUrl"`
}

// Upload streams the local file at localPath in chunks through a Graph
// drive upload session, retrying per spec.md §4.8 step 3, and returns the
// resulting item's webUrl.
func (c *Client) Upload(ctx context.Context, localPath, filename string, size int64) (string, error) {
	session, err := c.createUploadSession(ctx, filename)
	if err != nil {
		return "", fmt.Errorf("sharepoint: create upload session: %w", err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("sharepoint: open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	chunkSize := c.cfg.chunkSize()
	buf := make([]byte, chunkSize)

	var offset int64
	sessionRestarts := 0
	for offset < size {
		n := chunkSize
		if remaining := size - offset; remaining < n {
			n = remaining
		}

		if _, err := io.ReadFull(f, buf[:n]); err != nil {
			return "", fmt.Errorf("sharepoint: read chunk at offset %d: %w", offset, err)
		}

		item, restart, err := c.putChunk(ctx, session.UploadURL, buf[:n], offset, n, size)
		switch {
		case err != nil:
			return "", fmt.Errorf("sharepoint: upload chunk at offset %d: %w", offset, err)
		case restart:
			if sessionRestarts >= 2 {
				return "", fmt.Errorf("sharepoint: upload session expired twice, giving up")
			}
			sessionRestarts++
			session, err = c.createUploadSession(ctx, filename)
			if err != nil {
				return "", fmt.Errorf("sharepoint: recreate upload session: %w", err)
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return "", fmt.Errorf("sharepoint: rewind source file: %w", err)
			}
			offset = 0
			continue
		case item != nil:
			return item.WebURL, nil
		}

		offset += n
	}

	return "", fmt.Errorf("sharepoint: upload session ended without a final item response")
}

func (c *Client) graphBaseURL() string {
	if c.graphBaseURLOverride != "" {
		return c.graphBaseURLOverride
	}
	return graphBaseURL
}

func (c *Client) createUploadSession(ctx context.Context, filename string) (uploadSession, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return uploadSession{}, err
	}

	path := fmt.Sprintf("/drives/%s/root:/%s/%s:/createUploadSession", c.cfg.DriveID, c.cfg.Folder, filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphBaseURL()+path, bytes.NewReader([]byte(`{}`)))
	if err != nil {
		return uploadSession{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return uploadSession{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return uploadSession{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return uploadSession{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 500))
	}

	var s uploadSession
	if err := json.Unmarshal(body, &s); err != nil {
		return uploadSession{}, fmt.Errorf("decode upload session: %w", err)
	}
	return s, nil
}

// putChunk PUTs one Content-Range chunk, retrying 429/502/503/504 with
// exponential backoff and reporting 401/404/410 as a session restart
// instead of an error, per spec.md §4.8 step 3.
func (c *Client) putChunk(ctx context.Context, uploadURL string, chunk []byte, offset, n, total int64) (*driveItem, bool, error) {
	var item *driveItem
	var restart bool

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.5
	boCtx := backoff.WithContext(backoff.WithMaxRetries(bo, 4), ctx)

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(chunk))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.ContentLength = n
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+n-1, total))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			restart = true
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 502 || resp.StatusCode == 503 || resp.StatusCode == 504:
			if wait, ok := retryAfter(resp.Header.Get("Retry-After")); ok {
				time.Sleep(wait)
			}
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 500))
		case resp.StatusCode == 200 || resp.StatusCode == 201:
			var di driveItem
			if err := json.Unmarshal(body, &di); err != nil {
				return backoff.Permanent(fmt.Errorf("decode final chunk response: %w", err))
			}
			item = &di
			return nil
		case resp.StatusCode == 202:
			// accepted, more chunks expected
			return nil
		default:
			return backoff.Permanent(fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 500)))
		}
	}

	if err := backoff.Retry(op, boCtx); err != nil {
		return nil, false, err
	}
	return item, restart, nil
}

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

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	appLog "danceimport/internal/log"
)

const defaultHTTPTimeout = 15 * time.Second

// validators are the response headers replayed on the next request.
type validators struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// diskCache keeps the last good body for one URL plus its validators.
type diskCache struct {
	dir string
}

func (c diskCache) bodyPath() string { return filepath.Join(c.dir, "body") }
func (c diskCache) metaPath() string { return filepath.Join(c.dir, "meta.json") }

// load returns whatever is cached; a missing or corrupt entry is empty.
func (c diskCache) load() (validators, []byte) {
	var v validators
	if data, err := os.ReadFile(c.metaPath()); err == nil {
		if json.Unmarshal(data, &v) != nil {
			v = validators{}
		}
	}
	body, _ := os.ReadFile(c.bodyPath())
	return v, body
}

// store writes the body before the validators, so validators never point at
// a body that is not there.
func (c diskCache) store(v validators, body []byte) error {
	if err := os.WriteFile(c.bodyPath(), body, 0o600); err != nil {
		return err
	}
	v.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.metaPath(), data, 0o600)
}

// HTTPSource fetches a listing page or JSON document with conditional
// requests (ETag / Last-Modified) backed by a disk cache. When the network
// fails or the server answers non-OK, the last cached body is served.
type HTTPSource struct {
	url      string
	client   *http.Client
	cacheDir string
}

// NewHTTPSource creates an HTTPSource. An empty cacheDir falls back to a
// relative directory so development runs work without extra setup.
func NewHTTPSource(rawURL, cacheDir string, timeout time.Duration) *HTTPSource {
	if cacheDir == "" {
		cacheDir = "./var/source-cache"
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPSource{
		url:      rawURL,
		client:   &http.Client{Timeout: timeout},
		cacheDir: cacheDir,
	}
}

func (h *HTTPSource) Describe() string {
	return redactURL(h.url)
}

func (h *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	cache := h.cache()
	if err := os.MkdirAll(cache.dir, 0o700); err != nil {
		return nil, err
	}
	prev, cached := cache.load()

	req, err := h.newRequest(ctx, prev)
	if err != nil {
		return nil, err
	}

	appLog.Info("source fetch start", "url", h.Describe())
	resp, err := h.client.Do(req)
	if err != nil {
		return fallback(cached, err, h.Describe())
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		next := validators{
			URL:          h.url,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := cache.store(next, body); err != nil {
			appLog.Error("source cache save failed", err, "url", h.Describe())
		}
		appLog.Info("source fetch success", "url", h.Describe(), "bytes", len(body))
		return body, nil
	case http.StatusNotModified:
		if len(cached) == 0 {
			return nil, errors.New("304 Not Modified without a cached body")
		}
		appLog.Info("source not modified; using cache", "url", h.Describe())
		return cached, nil
	default:
		return fallback(cached, fmt.Errorf("unexpected status %s", resp.Status), h.Describe())
	}
}

func (h *HTTPSource) newRequest(ctx context.Context, prev validators) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "danceimport/1.0")
	if prev.ETag != "" {
		req.Header.Set("If-None-Match", prev.ETag)
	}
	if prev.LastModified != "" {
		req.Header.Set("If-Modified-Since", prev.LastModified)
	}
	return req, nil
}

// cache keys the cache directory by a hash of the URL.
func (h *HTTPSource) cache() diskCache {
	sum := sha256.Sum256([]byte(h.url))
	return diskCache{dir: filepath.Join(h.cacheDir, hex.EncodeToString(sum[:8]))}
}

// fallback serves the cached body when one exists, otherwise returns err.
func fallback(cached []byte, err error, where string) ([]byte, error) {
	if len(cached) == 0 {
		return nil, err
	}
	appLog.Error("source fetch failed, using cached body", err, "url", where)
	return cached, nil
}

// redactURL keeps only scheme and host, dropping paths and query tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "source://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}

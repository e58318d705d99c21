package feed

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	appLog "freetrack/internal/log"
)

// FetchFunc is the injected fetch capability: given a URL it returns raw
// calendar text or fails. Failure for one feed never aborts aggregation of
// its siblings; the caller treats it as zero occurrences.
type FetchFunc func(ctx context.Context, url string) (string, error)

// Fetcher retrieves raw calendar text over HTTP, backed by the in-memory
// body cache. Within the cache TTL repeat fetches hit the cache; after
// that, a captured ETag is replayed so unchanged feeds revalidate cheaply.
type Fetcher struct {
	client *http.Client
	cache  *Cache
}

func NewFetcher(cache *Cache) *Fetcher {
	if cache == nil {
		cache = NewCache()
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		cache: cache,
	}
}

// Fetch returns the feed body for url, from cache when fresh.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	url = NormalizeURL(url)

	if body, ok := f.cache.Get(url); ok {
		appLog.Debug("feed cache hit", "url", redactURL(url))
		return body, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	prev, hasPrev := f.cache.stale(url)
	if hasPrev && prev.etag != "" {
		req.Header.Set("If-None-Match", prev.etag)
	}

	appLog.Debug("feed fetch start", "url", redactURL(url))

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", readErr
		}
		body := string(data)
		f.cache.put(url, body, resp.Header.Get("ETag"))
		appLog.Info("feed fetch success", "url", redactURL(url), "bytes", len(data))
		return body, nil

	case http.StatusNotModified:
		if !hasPrev {
			return "", errors.New("received 304 Not Modified but no cached body available")
		}
		f.cache.touch(url)
		appLog.Info("feed not modified; reusing cached body", "url", redactURL(url))
		return prev.body, nil

	default:
		return "", errors.New(resp.Status)
	}
}

// redactURL hides the path and query of a feed URL for logging; private
// calendar URLs routinely embed access tokens.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "feed://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}

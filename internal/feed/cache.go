package feed

import (
	"strings"
	"time"
)

// cacheTTL is how long a fetched feed body stays usable. Entries older
// than this are treated as absent at lookup time; there is no eviction
// sweep.
const cacheTTL = 5 * time.Minute

// entry holds one fetched feed body keyed by normalized URL, plus the
// ETag needed to revalidate it once it has gone stale.
type entry struct {
	body      string
	etag      string
	fetchedAt time.Time
}

// Cache is a short-lived in-memory cache of raw feed text per URL. It
// avoids redundant network calls within a refresh cycle. Not safe for
// unsynchronized concurrent writers to the same key; refresh processes
// feeds sequentially.
type Cache struct {
	entries map[string]entry
	now     func() time.Time
}

func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached body for url if a fresh entry exists.
func (c *Cache) Get(url string) (string, bool) {
	e, ok := c.entries[NormalizeURL(url)]
	if !ok || c.now().Sub(e.fetchedAt) > cacheTTL {
		return "", false
	}
	return e.body, true
}

// Put stores a freshly fetched body for url.
func (c *Cache) Put(url, body string) {
	c.put(url, body, "")
}

func (c *Cache) put(url, body, etag string) {
	c.entries[NormalizeURL(url)] = entry{
		body:      body,
		etag:      etag,
		fetchedAt: c.now(),
	}
}

// stale returns the entry for url even when it is past its TTL, so the
// fetcher can attempt conditional revalidation.
func (c *Cache) stale(url string) (entry, bool) {
	e, ok := c.entries[NormalizeURL(url)]
	return e, ok
}

// touch refreshes the entry's fetch time after a 304 revalidation.
func (c *Cache) touch(url string) {
	key := NormalizeURL(url)
	if e, ok := c.entries[key]; ok {
		e.fetchedAt = c.now()
		c.entries[key] = e
	}
}

// NormalizeURL rewrites the webcal:// scheme to https://. Cache keys and
// outgoing requests both use the normalized form.
func NormalizeURL(url string) string {
	const webcal = "webcal://"
	if len(url) >= len(webcal) && strings.EqualFold(url[:len(webcal)], webcal) {
		return "https://" + url[len(webcal):]
	}
	return url
}

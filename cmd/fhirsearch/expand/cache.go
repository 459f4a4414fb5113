// Package expand replaces references inside search results with the content they point
// to: Binary-backed attachments get their data inlined and Medication references become
// medicationCodeableConcept. Every fetch goes through a Cache that lives for one invocation.
package expand

import (
	"context"
	"sync"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/client"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/metrics"
	"github.com/rs/zerolog"
)

type cacheEntry struct {
	resp *client.Response
	err  error
}

// Cache fetches references relative to the server base and remembers every outcome, so a
// URL is requested at most once while the cache lives. Failures are remembered too.
type Cache struct {
	transport client.Transport
	baseURL   string
	headers   map[string]string

	mu      sync.Mutex
	entries map[string]cacheEntry
	hits    int
	misses  int
	log     zerolog.Logger
}

// NewCache creates an empty cache for one invocation. headers are sent with every fetch.
func NewCache(transport client.Transport, baseURL string, headers map[string]string, log zerolog.Logger) *Cache {
	return &Cache{
		transport: transport,
		baseURL:   baseURL,
		headers:   headers,
		entries:   make(map[string]cacheEntry),
		log:       log.With().Str("component", "ReferenceCache").Logger(),
	}
}

// Resolve returns the absolute URL a reference is fetched from.
func (c *Cache) Resolve(ref string) string {
	return client.JoinURL(c.baseURL, ref)
}

// Fetch returns the response for ref, going to the transport only on the first request
// for its resolved URL. The returned URL is the resolved one.
func (c *Cache) Fetch(ctx context.Context, ref string) (*client.Response, string, error) {
	url := c.Resolve(ref)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[url]; ok {
		c.hits++
		metrics.ReferenceCacheTotal.WithLabelValues("hit").Inc()
		c.log.Debug().Str("url", url).Msg("Found reference in cache")
		return entry.resp, url, entry.err
	}

	c.misses++
	metrics.ReferenceCacheTotal.WithLabelValues("miss").Inc()
	c.log.Debug().Str("url", url).Msg("Reference not cached, querying server")

	resp, err := c.transport.Get(ctx, url, c.headers)
	if err != nil && ctx.Err() != nil {
		return nil, url, err
	}
	c.entries[url] = cacheEntry{resp: resp, err: err}
	return resp, url, err
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

func (c *Cache) Misses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.misses
}

// Clear drops every entry. Hit and miss counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) > 0 {
		c.log.Debug().Int("entries", len(c.entries)).Msg("Clearing reference cache")
	}
	c.entries = make(map[string]cacheEntry)
}

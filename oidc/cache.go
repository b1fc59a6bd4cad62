package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/upb/dataset-search-api/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultRefreshInterval is how long a fetched document is served before refetching
	DefaultRefreshInterval = 10 * time.Minute

	// DefaultFetchTimeout bounds a single identity provider request
	DefaultFetchTimeout = 5 * time.Second

	maxDocumentSize = 1 << 20
)

// CacheEntry is a fetched JSON document and the time it was fetched
type CacheEntry struct {
	Data       json.RawMessage
	LastUpdate time.Time
}

// CacheConfig holds configuration for KeySetCache
type CacheConfig struct {
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	HTTPClient      *http.Client
	Metrics         *observability.Metrics
}

// KeySetCache fetches and caches JSON documents (discovery documents and
// key sets) by URL. Each URL is refreshed by at most one in-flight request.
type KeySetCache struct {
	refreshInterval time.Duration
	fetchTimeout    time.Duration
	httpClient      *http.Client
	metrics         *observability.Metrics
	logger          *zap.Logger

	mu      sync.RWMutex
	entries map[string]*CacheEntry
	flights singleflight.Group

	now func() time.Time
}

// NewKeySetCache creates a new cache
func NewKeySetCache(config CacheConfig, logger *zap.Logger) *KeySetCache {
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = DefaultRefreshInterval
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = DefaultFetchTimeout
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &KeySetCache{
		refreshInterval: config.RefreshInterval,
		fetchTimeout:    config.FetchTimeout,
		httpClient:      config.HTTPClient,
		metrics:         config.Metrics,
		logger:          logger,
		entries:         make(map[string]*CacheEntry),
		now:             time.Now,
	}
}

// Get returns the cached document for url, fetching it when it is missing or
// older than the refresh interval. When a refresh fails and a previous copy
// exists, the previous copy is returned.
func (c *KeySetCache) Get(ctx context.Context, url string) (*CacheEntry, error) {
	if entry, ok := c.fresh(url); ok {
		c.metrics.RecordCacheLookup(true)
		return entry, nil
	}
	c.metrics.RecordCacheLookup(false)

	// The flight is shared between callers, so it must not be cancelled by
	// whichever caller happened to start it.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(url, func() (interface{}, error) {
		return c.refresh(flightCtx, url)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, url, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*CacheEntry), nil
	}
}

// GetJSON fetches url through the cache and decodes it into v
func (c *KeySetCache) GetJSON(ctx context.Context, url string, v interface{}) error {
	entry, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(entry.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFetch, url, err)
	}
	return nil
}

// Invalidate drops the cached document for url so the next Get refetches it
func (c *KeySetCache) Invalidate(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, url)
}

// Stats returns cache statistics
func (c *KeySetCache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stale := 0
	now := c.now()
	for _, entry := range c.entries {
		if now.Sub(entry.LastUpdate) > c.refreshInterval {
			stale++
		}
	}

	return map[string]interface{}{
		"cached_documents": len(c.entries),
		"stale_documents":  stale,
		"refresh_interval": c.refreshInterval.String(),
	}
}

func (c *KeySetCache) lookup(url string) (*CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[url]
	return entry, ok
}

func (c *KeySetCache) fresh(url string) (*CacheEntry, bool) {
	entry, ok := c.lookup(url)
	if !ok || c.now().Sub(entry.LastUpdate) > c.refreshInterval {
		return nil, false
	}
	return entry, true
}

// refresh runs inside the flight for url
func (c *KeySetCache) refresh(ctx context.Context, url string) (*CacheEntry, error) {
	// A flight that finished just before this one started may already have
	// refreshed the entry.
	if entry, ok := c.fresh(url); ok {
		return entry, nil
	}

	c.logger.Debug("refreshing identity provider document", zap.String("url", url))

	start := time.Now()
	data, err := c.fetch(ctx, url)
	if err != nil {
		previous, ok := c.lookup(url)
		if ok {
			c.metrics.RecordDocumentFetch("stale", time.Since(start))
			c.logger.Warn("refresh failed, serving stale document",
				zap.String("url", url),
				zap.Time("last_update", previous.LastUpdate),
				zap.Error(err))
			return previous, nil
		}
		c.metrics.RecordDocumentFetch("failure", time.Since(start))
		c.logger.Error("failed to refresh identity provider document",
			zap.String("url", url),
			zap.Error(err))
		return nil, err
	}
	c.metrics.RecordDocumentFetch("success", time.Since(start))

	entry := &CacheEntry{Data: data, LastUpdate: c.now()}

	c.mu.Lock()
	c.entries[url] = entry
	c.mu.Unlock()

	c.logger.Debug("refreshed identity provider document",
		zap.String("url", url),
		zap.Duration("took", time.Since(start)))

	return entry, nil
}

func (c *KeySetCache) fetch(ctx context.Context, url string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status code %d", ErrFetch, url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrFetch, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: %s: response is not valid JSON", ErrFetch, url)
	}

	return json.RawMessage(body), nil
}

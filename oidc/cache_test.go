package oidc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/dataset-search-api/internal/observability"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T, fetchTimeout time.Duration) (*KeySetCache, *clock) {
	t.Helper()
	clk := newClock()
	cache := NewKeySetCache(CacheConfig{
		RefreshInterval: 10 * time.Minute,
		FetchTimeout:    fetchTimeout,
		Metrics:         observability.NewMetrics(),
	}, zap.NewNop())
	cache.now = clk.Now
	return cache, clk
}

func TestKeySetCache_Get(t *testing.T) {
	t.Run("fresh entry is served without refetching", func(t *testing.T) {
		idp := newMockIDP(t)
		cache, clk := newTestCache(t, time.Second)

		first, err := cache.Get(context.Background(), idp.discoveryURL())
		require.NoError(t, err)

		clk.Advance(5 * time.Minute)
		second, err := cache.Get(context.Background(), idp.discoveryURL())
		require.NoError(t, err)

		assert.Equal(t, int32(1), idp.discoveryHits.Load())
		assert.Equal(t, first.LastUpdate, second.LastUpdate)
	})

	t.Run("stale entry is refetched", func(t *testing.T) {
		idp := newMockIDP(t)
		cache, clk := newTestCache(t, time.Second)

		first, err := cache.Get(context.Background(), idp.discoveryURL())
		require.NoError(t, err)

		clk.Advance(11 * time.Minute)
		second, err := cache.Get(context.Background(), idp.discoveryURL())
		require.NoError(t, err)

		assert.Equal(t, int32(2), idp.discoveryHits.Load())
		assert.True(t, second.LastUpdate.After(first.LastUpdate))
	})

	t.Run("decodes document", func(t *testing.T) {
		idp := newMockIDP(t)
		cache, _ := newTestCache(t, time.Second)

		var doc DiscoveryDocument
		err := cache.GetJSON(context.Background(), idp.discoveryURL(), &doc)
		require.NoError(t, err)

		assert.Equal(t, idp.issuer, doc.Issuer)
		assert.Equal(t, idp.server.URL+"/jwks", doc.JWKSURI)
	})
}

func TestKeySetCache_SingleFlight(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"keys":[]}`))
	}))
	defer server.Close()

	cache, _ := newTestCache(t, 5*time.Second)

	const callers = 20
	var wg sync.WaitGroup
	entries := make([]*CacheEntry, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries[i], errs[i] = cache.Get(context.Background(), server.URL)
		}(i)
	}

	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)
	// Give late callers time to join the flight before it completes
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.JSONEq(t, `{"keys":[]}`, string(entries[i].Data))
	}
}

func TestKeySetCache_Failures(t *testing.T) {
	t.Run("timeout without previous entry", func(t *testing.T) {
		idp := newMockIDP(t)
		idp.setDelay(2 * time.Second)
		cache, _ := newTestCache(t, 50*time.Millisecond)

		start := time.Now()
		_, err := cache.Get(context.Background(), idp.discoveryURL())

		assert.ErrorIs(t, err, ErrFetch)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("error status without previous entry", func(t *testing.T) {
		idp := newMockIDP(t)
		idp.setFailing(true)
		cache, _ := newTestCache(t, time.Second)

		_, err := cache.Get(context.Background(), idp.discoveryURL())
		assert.ErrorIs(t, err, ErrFetch)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>not json</html>"))
		}))
		defer server.Close()
		cache, _ := newTestCache(t, time.Second)

		_, err := cache.Get(context.Background(), server.URL)
		assert.ErrorIs(t, err, ErrFetch)
	})

	t.Run("unreachable host", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()
		cache, _ := newTestCache(t, time.Second)

		_, err := cache.Get(context.Background(), url)
		assert.ErrorIs(t, err, ErrFetch)
	})

	t.Run("stale entry served when refresh fails", func(t *testing.T) {
		idp := newMockIDP(t)
		cache, clk := newTestCache(t, 50*time.Millisecond)

		first, err := cache.Get(context.Background(), idp.discoveryURL())
		require.NoError(t, err)

		idp.setFailing(true)
		clk.Advance(11 * time.Minute)

		second, err := cache.Get(context.Background(), idp.discoveryURL())
		require.NoError(t, err)
		assert.Equal(t, first.LastUpdate, second.LastUpdate)
		assert.Equal(t, first.Data, second.Data)

		// Recovery replaces the stale entry
		idp.setFailing(false)
		third, err := cache.Get(context.Background(), idp.discoveryURL())
		require.NoError(t, err)
		assert.True(t, third.LastUpdate.After(first.LastUpdate))
	})
}

func TestKeySetCache_CallerCancellation(t *testing.T) {
	idp := newMockIDP(t)
	idp.setDelay(100 * time.Millisecond)
	cache, _ := newTestCache(t, 2*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := cache.Get(ctx, idp.discoveryURL())
	assert.ErrorIs(t, err, ErrFetch)

	// The abandoned flight still completes and populates the cache
	require.Eventually(t, func() bool {
		_, ok := cache.fresh(idp.discoveryURL())
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	_, err = cache.Get(context.Background(), idp.discoveryURL())
	require.NoError(t, err)
	assert.Equal(t, int32(1), idp.discoveryHits.Load())
}

func TestKeySetCache_InvalidateAndStats(t *testing.T) {
	idp := newMockIDP(t)
	cache, clk := newTestCache(t, time.Second)

	_, err := cache.Get(context.Background(), idp.discoveryURL())
	require.NoError(t, err)

	stats := cache.Stats()
	assert.Equal(t, 1, stats["cached_documents"])
	assert.Equal(t, 0, stats["stale_documents"])

	clk.Advance(11 * time.Minute)
	assert.Equal(t, 1, cache.Stats()["stale_documents"])

	cache.Invalidate(idp.discoveryURL())
	assert.Equal(t, 0, cache.Stats()["cached_documents"])
}

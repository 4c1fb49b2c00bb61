package fetch

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
	"go.uber.org/zap"

	"pricewatch/cache"
)

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://amazon.com/dp/B0ABC", NormalizeURL("https://AMAZON.com/dp/B0ABC/#reviews"))
	assert.Equal(t, "https://a.com/p", NormalizeURL("https://a.com/p/"))
	assert.Equal(t, "https://a.com/p?x=1", NormalizeURL("https://a.com/p?x=1"))
}

func TestLimiterPerDomainCeiling(t *testing.T) {
	const perDomain = 2
	l := NewLimiter(16, perDomain, 0)

	var (
		wg      sync.WaitGroup
		current atomic.Int32
		peak    atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "amazon.com")
			require.NoError(t, err)
			defer release()

			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(perDomain),
		"concurrent fetches for one domain must never exceed the ceiling")
}

func TestLimiterIndependentDomains(t *testing.T) {
	l := NewLimiter(16, 1, 0)

	releaseA, err := l.Acquire(context.Background(), "a.com")
	require.NoError(t, err)
	defer releaseA()

	// A saturated a.com must not block b.com.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := l.Acquire(ctx, "b.com")
	require.NoError(t, err)
	releaseB()
}

func TestLimiterAcquireRespectsContext(t *testing.T) {
	l := NewLimiter(16, 1, 0)

	release, err := l.Acquire(context.Background(), "a.com")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "a.com")
	assert.Error(t, err)
	assert.Zero(t, l.InFlight("b.com"))
}

func TestRobotsDisallow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	})
	server := httptest.NewTLSServer(mux)
	defer server.Close()

	r := NewRobots(server.Client(), "pricewatch", zap.NewNop())

	assert.True(t, r.Allowed(context.Background(), server.URL+"/product/1"))
	assert.False(t, r.Allowed(context.Background(), server.URL+"/private/page"))
}

func TestRobotsUnreachableAllows(t *testing.T) {
	r := NewRobots(&http.Client{Timeout: 50 * time.Millisecond}, "pricewatch", zap.NewNop())

	assert.True(t, r.Allowed(context.Background(), "https://127.0.0.1:1/page"),
		"unreachable robots.txt must default to allowing")
}

func newTestFetcher(t *testing.T, client *http.Client) *Fetcher {
	t.Helper()
	m := cache.NewMemory(time.Minute)
	t.Cleanup(func() { m.Close() })
	tiered := cache.NewTiered(m, nil, zap.NewNop())
	limiter := NewLimiter(4, 2, 0)
	robots := NewRobots(client, "pricewatch", zap.NewNop())
	return NewFetcher(client, nil, limiter, robots, tiered, "pricewatch",
		5*time.Second, time.Minute, zap.NewNop())
}

func TestFetchCachesPage(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>product</body></html>"))
	}))
	defer server.Close()

	f := newTestFetcher(t, server.Client())

	first, err := f.Fetch(context.Background(), server.URL+"/product/1")
	require.NoError(t, err)
	assert.Contains(t, string(first.Body), "product")

	second, err := f.Fetch(context.Background(), server.URL+"/product/1")
	require.NoError(t, err)
	assert.Equal(t, first.Body, second.Body)

	assert.Equal(t, int32(1), hits.Load(), "second fetch must come from the page cache")
}

func TestFetchBadStatus(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	f := newTestFetcher(t, server.Client())

	_, err := f.Fetch(context.Background(), server.URL+"/product/404")
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, CauseStatus, failure.Cause)
}

func TestFetchRobotsDisallowed(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /\n"))
			return
		}
		w.Write([]byte("should never be fetched"))
	}))
	defer server.Close()

	f := newTestFetcher(t, server.Client())

	_, err := f.Fetch(context.Background(), server.URL+"/product/1")
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, CauseRobots, failure.Cause)
}

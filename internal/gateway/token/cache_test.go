package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/walletpay/internal/gateway/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticSettings struct {
	baseURL string
}

func (s staticSettings) Settings(scope string) domain.Settings {
	return domain.Settings{Scope: scope, BaseURL: s.baseURL, ClientID: "cid", ClientSecret: "secret", SubscriptionKey: "sub", MerchantSerialNumber: "123"}
}

type countingFetcher struct {
	calls atomic.Int32
	delay time.Duration
}

func (f *countingFetcher) Fetch(ctx context.Context, settings domain.Settings) (string, time.Duration, error) {
	n := f.calls.Add(1)
	time.Sleep(f.delay)
	return "token-" + string(rune('0'+n)), time.Hour, nil
}

func TestCacheReusesStoredToken(t *testing.T) {
	fetcher := &countingFetcher{}
	c := NewCache(NewMemoryStore(), fetcher, staticSettings{}, zap.NewNop(), Options{Margin: time.Minute})

	first, err := c.Token(context.Background(), "store-1")
	require.NoError(t, err)
	second, err := c.Token(context.Background(), "store-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestCacheForceRefreshReplacesToken(t *testing.T) {
	fetcher := &countingFetcher{}
	c := NewCache(NewMemoryStore(), fetcher, staticSettings{}, zap.NewNop(), Options{})

	first, _ := c.Token(context.Background(), "store-1")
	refreshed, err := c.ForceRefresh(context.Background(), "store-1")
	require.NoError(t, err)
	current, _ := c.Token(context.Background(), "store-1")

	assert.NotEqual(t, first, refreshed)
	assert.Equal(t, refreshed, current)
}

func TestCacheConcurrentRefreshSharesFetch(t *testing.T) {
	fetcher := &countingFetcher{delay: 50 * time.Millisecond}
	c := NewCache(NewMemoryStore(), fetcher, staticSettings{}, zap.NewNop(), Options{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Token(context.Background(), "store-1")
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fetcher.calls.Load())
}

type blockingFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	ctxErr  atomic.Value
}

func (f *blockingFetcher) Fetch(ctx context.Context, settings domain.Settings) (string, time.Duration, error) {
	f.calls.Add(1)
	close(f.started)
	select {
	case <-f.release:
		return "shared", time.Hour, nil
	case <-ctx.Done():
		f.ctxErr.Store(ctx.Err())
		return "", 0, ctx.Err()
	}
}

func TestCacheFetchOutlivesCancelledCaller(t *testing.T) {
	fetcher := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	store := NewMemoryStore()
	c := NewCache(store, fetcher, staticSettings{}, zap.NewNop(), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Token(ctx, "store-1")
		errCh <- err
	}()

	<-fetcher.started
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(fetcher.release)
	require.Eventually(t, func() bool {
		_, ok, _ := store.Get(context.Background(), c.key(staticSettings{}.Settings("store-1")))
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Nil(t, fetcher.ctxErr.Load())

	token, err := c.Token(context.Background(), "store-1")
	require.NoError(t, err)
	assert.Equal(t, "shared", token)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, accessTokenPath, r.URL.Path)
		assert.Equal(t, "cid", r.Header.Get("client_id"))
		assert.Equal(t, "sub", r.Header.Get("Ocp-Apim-Subscription-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"Bearer","expires_in":"86398","access_token":"abc"}`))
	}))
	defer srv.Close()

	token, ttl, err := NewHTTPFetcher(srv.Client()).Fetch(context.Background(), staticSettings{baseURL: srv.URL}.Settings("s"))
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
	assert.Equal(t, 86398*time.Second, ttl)
}

func TestHTTPFetcherRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, _, err := NewHTTPFetcher(srv.Client()).Fetch(context.Background(), staticSettings{baseURL: srv.URL}.Settings("s"))
	assert.ErrorIs(t, err, ErrTokenRejected)
}

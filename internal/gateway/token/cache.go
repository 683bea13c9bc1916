// Package token caches provider access tokens per scope.
package token

import (
	"context"
	"time"

	"github.com/smallbiznis/walletpay/internal/gateway/domain"
	"github.com/smallbiznis/walletpay/internal/observability/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cache implements domain.TokenProvider. Concurrent refreshes for one scope share a fetch.
type Cache struct {
	store    Store
	fetcher  Fetcher
	settings domain.SettingsSource
	margin   time.Duration
	timeout  time.Duration
	prefix   string
	metrics  *metrics.PaymentMetrics
	log      *zap.Logger
	group    singleflight.Group
}

// Options tune a Cache. FetchTimeout bounds a shared fetch, which is not tied
// to any single caller's context.
type Options struct {
	Margin       time.Duration
	FetchTimeout time.Duration
	Prefix       string
	Metrics      *metrics.PaymentMetrics
}

const defaultFetchTimeout = 15 * time.Second

func NewCache(store Store, fetcher Fetcher, settings domain.SettingsSource, log *zap.Logger, opts Options) *Cache {
	if opts.Prefix == "" {
		opts.Prefix = "walletpay:token"
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		store:    store,
		fetcher:  fetcher,
		settings: settings,
		margin:   opts.Margin,
		timeout:  opts.FetchTimeout,
		prefix:   opts.Prefix,
		metrics:  opts.Metrics,
		log:      log.Named("gateway.token"),
	}
}

func (c *Cache) Token(ctx context.Context, scope string) (string, error) {
	settings := c.settings.Settings(scope)
	key := c.key(settings)

	token, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("token store read failed", zap.String("scope", settings.Scope), zap.Error(err))
	}
	if ok {
		return token, nil
	}
	return c.refresh(ctx, settings, key, "miss")
}

func (c *Cache) ForceRefresh(ctx context.Context, scope string) (string, error) {
	settings := c.settings.Settings(scope)
	return c.refresh(ctx, settings, c.key(settings), "rejected")
}

// refresh shares one fetch per key. The fetch runs detached from the caller
// that started it, so a cancelled caller does not fail the others waiting.
func (c *Cache) refresh(ctx context.Context, settings domain.Settings, key, reason string) (string, error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		c.metrics.IncTokenRefresh(reason)
		token, ttl, err := c.fetcher.Fetch(fetchCtx, settings)
		if err != nil {
			return "", err
		}

		ttl -= c.margin
		if ttl < time.Second {
			ttl = time.Second
		}
		if err := c.store.Set(fetchCtx, key, token, ttl); err != nil {
			c.log.Warn("token store write failed", zap.String("scope", settings.Scope), zap.Error(err))
		}
		c.log.Debug("access token refreshed", zap.String("scope", settings.Scope), zap.String("reason", reason), zap.Duration("ttl", ttl))
		return token, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Cache) key(settings domain.Settings) string {
	return c.prefix + ":" + settings.Scope + ":" + settings.MerchantSerialNumber + ":" + settings.ClientID
}

var _ domain.TokenProvider = (*Cache)(nil)

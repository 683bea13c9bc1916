// Package ratelimit throttles inbound provider callbacks per scope and client.
package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const keyCallback = "walletpay:ratelimit:callback:%s"

// Limiter decides whether one more request for key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// CallbackLimiter allows everything when no bucket is configured. Redis errors fail open.
type CallbackLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewCallbackLimiter(bucket *TokenBucket, rate float64, burst int, log *zap.Logger) *CallbackLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &CallbackLimiter{bucket: bucket, rate: rate, burst: burst, log: log.Named("ratelimit")}
}

func (l *CallbackLimiter) Allow(ctx context.Context, key string) (Result, error) {
	if l == nil || l.bucket == nil || l.rate <= 0 || l.burst <= 0 {
		return Result{Allowed: true}, nil
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyCallback, strings.TrimSpace(key)), l.rate, l.burst)
	if err != nil {
		l.log.Warn("callback rate limit check failed", zap.Error(err))
		return Result{Allowed: true}, nil
	}
	return res, nil
}

package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

// Callbacks are limited to 5 per second with bursts of 20 per key.
func NewLimiter(p Params) Limiter {
	var bucket *TokenBucket
	if p.Redis != nil {
		bucket = NewTokenBucket(p.Redis)
	}
	return NewCallbackLimiter(bucket, 5, 20, p.Log)
}

var Module = fx.Module("rate.limit",
	fx.Provide(NewLimiter),
)

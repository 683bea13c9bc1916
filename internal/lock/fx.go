package lock

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

func NewLocker(p Params) Locker {
	if p.Redis == nil {
		p.Log.Named("lock").Warn("redis not configured, using in-process locks")
		return NewLocalLocker()
	}
	return NewRedisLocker(p.Redis)
}

var Module = fx.Module("lock",
	fx.Provide(NewLocker),
)

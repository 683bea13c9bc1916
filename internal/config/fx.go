package config

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("config",
	fx.Provide(
		Load,
		func(cfg Config, log *zap.Logger) (*StoreConfigHolder, error) {
			return NewStoreConfigHolder(cfg.StoreConfigPaths, log)
		},
	),
)

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/walletpay/internal/attempt"
	"github.com/smallbiznis/walletpay/internal/authorization"
	"github.com/smallbiznis/walletpay/internal/cache"
	"github.com/smallbiznis/walletpay/internal/checkout"
	"github.com/smallbiznis/walletpay/internal/clock"
	"github.com/smallbiznis/walletpay/internal/config"
	"github.com/smallbiznis/walletpay/internal/gateway"
	"github.com/smallbiznis/walletpay/internal/lock"
	"github.com/smallbiznis/walletpay/internal/migration"
	"github.com/smallbiznis/walletpay/internal/notification"
	"github.com/smallbiznis/walletpay/internal/observability"
	"github.com/smallbiznis/walletpay/internal/order"
	"github.com/smallbiznis/walletpay/internal/ratelimit"
	"github.com/smallbiznis/walletpay/internal/scheduler"
	"github.com/smallbiznis/walletpay/internal/server"
	"github.com/smallbiznis/walletpay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,
		lock.Module,
		ratelimit.Module,
		notification.Module,

		// Payments
		gateway.Module,
		order.Module,
		attempt.Module,
		checkout.Module,
		authorization.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

package gateway

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/walletpay/internal/config"
	"github.com/smallbiznis/walletpay/internal/gateway/command"
	"github.com/smallbiznis/walletpay/internal/gateway/domain"
	"github.com/smallbiznis/walletpay/internal/gateway/protocol"
	"github.com/smallbiznis/walletpay/internal/gateway/token"
	"github.com/smallbiznis/walletpay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type TokenParams struct {
	fx.In

	Log      *zap.Logger
	Config   config.Config
	Settings domain.SettingsSource
	Redis    *redis.Client           `optional:"true"`
	Metrics  *metrics.PaymentMetrics `optional:"true"`
}

func NewTokenProvider(p TokenParams) domain.TokenProvider {
	var store token.Store
	if p.Redis != nil {
		store = token.NewRedisStore(p.Redis)
	} else {
		store = token.NewMemoryStore()
	}
	return token.NewCache(store, token.NewHTTPFetcher(nil), p.Settings, p.Log, token.Options{
		Margin:  p.Config.Gateway.TokenMargin,
		Prefix:  p.Config.Gateway.TokenKeyPrefix,
		Metrics: p.Metrics,
	})
}

var Module = fx.Module("gateway",
	fx.Provide(
		protocol.NewDefaultSelector,
		fx.Annotate(NewStoreSettings, fx.As(new(domain.SettingsSource))),
		NewTokenProvider,
		command.NewExecutor,
		New,
	),
)

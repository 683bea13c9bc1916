package attempt

import (
	"github.com/smallbiznis/walletpay/internal/attempt/repository"
	"github.com/smallbiznis/walletpay/internal/attempt/service"
	"github.com/smallbiznis/walletpay/internal/gateway"
	"go.uber.org/fx"
)

var Module = fx.Module("attempt.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(g *gateway.Gateway) service.Gateway { return g }),
	fx.Provide(service.NewService),
)

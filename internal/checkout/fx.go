package checkout

import (
	"github.com/smallbiznis/walletpay/internal/gateway"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	fx.Provide(func(g *gateway.Gateway) Gateway { return g }),
	fx.Provide(NewService),
)

package notification

import (
	"context"

	"github.com/smallbiznis/walletpay/internal/config"
	"github.com/smallbiznis/walletpay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Lc      fx.Lifecycle
	Config  config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

func NewFromConfig(p Params) *Notifier {
	var provider Provider = &NoOpProvider{}
	if p.Config.SMTP.Host != "" {
		provider = NewSMTP(Config{
			Host:     p.Config.SMTP.Host,
			Port:     p.Config.SMTP.Port,
			Username: p.Config.SMTP.Username,
			Password: p.Config.SMTP.Password,
			From:     p.Config.SMTP.From,
		})
	} else {
		p.Log.Named("notification").Warn("smtp not configured, notifications disabled")
	}

	n := NewNotifier(provider, p.Config.AdminEmails, p.Log)
	if p.Metrics != nil {
		n.onSent = func(template string) {
			p.Metrics.RecordNotification(context.Background(), template)
		}
	}
	p.Lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			n.Wait()
			return nil
		},
	})
	return n
}

var Module = fx.Module("notification",
	fx.Provide(NewFromConfig),
)

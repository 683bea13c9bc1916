package notification

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	TemplateMerchantError      = "merchant_error"
	TemplateCancellationFailed = "cancellation_failed"
)

const sendTimeout = 30 * time.Second

// Notifier sends templated messages in the background. Delivery failures are logged only.
type Notifier struct {
	provider Provider
	admins   []string
	log      *zap.Logger
	onSent   func(template string)
	wg       sync.WaitGroup
}

func NewNotifier(provider Provider, admins []string, log *zap.Logger) *Notifier {
	if provider == nil {
		provider = &NoOpProvider{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		provider: provider,
		admins:   admins,
		log:      log.Named("notification"),
	}
}

// Send queues template for recipient and returns immediately.
func (n *Notifier) Send(ctx context.Context, template string, recipient string, vars map[string]any) {
	n.dispatch(ctx, template, []string{recipient}, vars)
}

// NotifyAdmin sends template to the configured store administrators.
func (n *Notifier) NotifyAdmin(ctx context.Context, template string, vars map[string]any) {
	if n == nil {
		return
	}
	n.dispatch(ctx, template, n.admins, vars)
}

// Wait blocks until queued messages are delivered or failed.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

func (n *Notifier) dispatch(ctx context.Context, template string, to []string, vars map[string]any) {
	if n == nil {
		return
	}
	recipients := make([]string, 0, len(to))
	for _, r := range to {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	if len(recipients) == 0 {
		n.log.Debug("notification dropped, no recipients", zap.String("template", template))
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer cancel()
		if err := n.provider.SendTemplate(sendCtx, recipients, template, vars); err != nil {
			n.log.Warn("notification delivery failed", zap.String("template", template), zap.Error(err))
			return
		}
		n.log.Info("notification sent", zap.String("template", template), zap.Int("recipients", len(recipients)))
		if n.onSent != nil {
			n.onSent(template)
		}
	}()
}

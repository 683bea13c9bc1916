package command

import (
	"context"
	"fmt"

	"github.com/smallbiznis/walletpay/internal/gateway/domain"
)

// Guard runs before any network call. skip ends the command successfully without a request.
type Guard func(ctx context.Context, subj domain.Subject, settings domain.Settings, proto domain.Protocol) (skip bool, err error)

// CurrencyGuard refuses currencies the protocol cannot process.
func CurrencyGuard(ctx context.Context, subj domain.Subject, settings domain.Settings, proto domain.Protocol) (bool, error) {
	currency := subj.EffectiveCurrency(settings)
	if domain.SupportsCurrency(proto, currency) {
		return false, nil
	}
	return false, &domain.GatewayError{
		Kind:    domain.KindMerchant,
		Message: fmt.Sprintf("currency %q is not supported by the %s protocol", currency, proto.Name()),
	}
}

// CancelGuard blocks cancelling captured funds. With offline partial void
// enabled the cancel is treated as done locally and no request is sent.
// A subject without a snapshot counts as nothing captured.
func CancelGuard(ctx context.Context, subj domain.Subject, settings domain.Settings, proto domain.Protocol) (bool, error) {
	if subj.Snapshot == nil {
		return false, nil
	}
	if subj.Snapshot.Summary().Captured <= 0 {
		return false, nil
	}
	if settings.OfflinePartialVoid {
		return true, nil
	}
	return false, domain.ErrCannotCancelCaptured
}

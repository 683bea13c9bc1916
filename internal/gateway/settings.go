package gateway

import (
	"strings"

	"github.com/smallbiznis/walletpay/internal/config"
	"github.com/smallbiznis/walletpay/internal/gateway/domain"
)

// StoreSettings resolves gateway settings from the store configuration.
type StoreSettings struct {
	stores *config.StoreConfigHolder
}

func NewStoreSettings(stores *config.StoreConfigHolder) *StoreSettings {
	return &StoreSettings{stores: stores}
}

func (s *StoreSettings) Settings(scope string) domain.Settings {
	get := func(key string) string {
		return strings.TrimSpace(s.stores.GetValue(key, scope))
	}

	policy := domain.CancellationPolicy(strings.ToLower(get(config.KeyCancellationPolicy)))
	if policy != domain.CancellationManual {
		policy = domain.CancellationAutomatic
	}

	return domain.Settings{
		Scope:                scope,
		Protocol:             get(config.KeyProtocol),
		Environment:          get(config.KeyEnvironment),
		BaseURL:              s.stores.BaseURL(scope),
		BaseCurrency:         strings.ToUpper(get(config.KeyBaseCurrency)),
		MerchantSerialNumber: get(config.KeyMerchantSerialNumber),
		ClientID:             get(config.KeyClientID),
		ClientSecret:         get(config.KeyClientSecret),
		SubscriptionKey:      get(config.KeySubscriptionKey),
		ReturnURL:            get(config.KeyReturnURL),
		CallbackPrefix:       get(config.KeyCallbackPrefix),
		FallbackURL:          get(config.KeyFallbackURL),
		PaymentDescription:   get(config.KeyPaymentDescription),
		SystemName:           get(config.KeySystemName),
		CancellationPolicy:   policy,
		OfflinePartialVoid:   s.stores.GetBool(config.KeyOfflinePartialVoid, scope),
	}
}

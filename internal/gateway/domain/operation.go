package domain

import (
	"context"
	"strings"

	"github.com/smallbiznis/walletpay/internal/transaction"
)

type Operation string

const (
	OperationInitiate Operation = "initiate"
	OperationStatus   Operation = "status"
	OperationCapture  Operation = "capture"
	OperationCancel   Operation = "cancel"
	OperationRefund   Operation = "refund"
)

// CancellationPolicy controls whether a local cancellation also cancels at the provider.
type CancellationPolicy string

const (
	CancellationAutomatic CancellationPolicy = "automatic"
	CancellationManual    CancellationPolicy = "manual"
)

// Settings is the per-scope provider configuration a command runs with.
type Settings struct {
	Scope                string
	Protocol             string
	Environment          string
	BaseURL              string
	BaseCurrency         string
	MerchantSerialNumber string
	ClientID             string
	ClientSecret         string
	SubscriptionKey      string
	ReturnURL            string
	CallbackPrefix       string
	FallbackURL          string
	PaymentDescription   string
	SystemName           string
	CancellationPolicy   CancellationPolicy
	OfflinePartialVoid   bool
}

// SettingsSource resolves settings for a configuration scope.
type SettingsSource interface {
	Settings(scope string) Settings
}

// Subject is the context bag a command is built from.
type Subject struct {
	Scope         string
	Reference     string
	Amount        int64
	Currency      string
	AuthToken     string
	CustomerPhone string
	Description   string
	Snapshot      transaction.Snapshot
	Extra         map[string]any
}

// EffectiveCurrency falls back to the scope base currency.
func (s Subject) EffectiveCurrency(settings Settings) string {
	if c := strings.ToUpper(strings.TrimSpace(s.Currency)); c != "" {
		return c
	}
	return strings.ToUpper(strings.TrimSpace(settings.BaseCurrency))
}

// TokenProvider hands out provider access tokens per scope.
type TokenProvider interface {
	Token(ctx context.Context, scope string) (string, error)
	ForceRefresh(ctx context.Context, scope string) (string, error)
}

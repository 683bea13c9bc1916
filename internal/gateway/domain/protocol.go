package domain

import (
	"strings"

	"github.com/smallbiznis/walletpay/internal/transaction"
)

// RequestBuilder contributes one fragment of a request body.
type RequestBuilder func(subj Subject, settings Settings) (map[string]any, error)

// Request is an assembled outbound call.
type Request struct {
	Operation      Operation
	Method         string
	Path           string
	Body           map[string]any
	IdempotencyKey string
}

// InitiateResult is what the customer needs to continue a new session.
type InitiateResult struct {
	Reference    string
	RedirectURL  string
	SessionToken string
}

// Protocol is one provider API generation. Implementations are stateless.
type Protocol interface {
	Name() string
	Currencies() []string
	Endpoint(op Operation, subj Subject) (method, path string, err error)
	Builders(op Operation) []RequestBuilder
	// AllowedFields lists the dotted body paths that may be sent for op.
	AllowedFields(op Operation) []string
	// Headers returns protocol specific headers added to every call.
	Headers(settings Settings) map[string]string
	// ResponseSchema is the JSON schema a successful response for op must satisfy.
	ResponseSchema(op Operation) string
	ResponseReference(body map[string]any) string
	ResponseCurrency(body map[string]any) string
	ParseError(status int, raw []byte) (*GatewayError, bool)
	ParseInitiate(raw []byte) (InitiateResult, error)
	DeriveSnapshot(raw []byte) (transaction.Snapshot, error)
	CallbackReference(raw []byte) (string, error)
}

// SupportsCurrency reports whether currency is in the protocol's currency set.
func SupportsCurrency(p Protocol, currency string) bool {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return false
	}
	for _, c := range p.Currencies() {
		if c == currency {
			return true
		}
	}
	return false
}

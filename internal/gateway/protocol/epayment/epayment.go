// Package epayment implements the modern wallet protocol, which reports a
// flattened state label plus an aggregate of moved amounts.
package epayment

import (
	"embed"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/smallbiznis/walletpay/internal/gateway/domain"
	"github.com/smallbiznis/walletpay/internal/transaction"
)

const Name = transaction.ProtocolModern

const basePath = "/epayment/v1/payments"

//go:embed schemas/*.json
var schemaFS embed.FS

type Protocol struct{}

func New() *Protocol {
	return &Protocol{}
}

func (p *Protocol) Name() string { return Name }

func (p *Protocol) Currencies() []string { return []string{"NOK", "EUR", "DKK"} }

func (p *Protocol) Endpoint(op domain.Operation, subj domain.Subject) (string, string, error) {
	if op == domain.OperationInitiate {
		return http.MethodPost, basePath, nil
	}
	ref := strings.TrimSpace(subj.Reference)
	if ref == "" {
		return "", "", domain.ErrMissingReference
	}
	prefix := basePath + "/" + url.PathEscape(ref)
	switch op {
	case domain.OperationStatus:
		return http.MethodGet, prefix, nil
	case domain.OperationCapture:
		return http.MethodPost, prefix + "/capture", nil
	case domain.OperationCancel:
		return http.MethodPost, prefix + "/cancel", nil
	case domain.OperationRefund:
		return http.MethodPost, prefix + "/refund", nil
	default:
		return "", "", fmt.Errorf("%w: %s", domain.ErrUnsupportedOp, op)
	}
}

func (p *Protocol) Builders(op domain.Operation) []domain.RequestBuilder {
	switch op {
	case domain.OperationInitiate:
		return []domain.RequestBuilder{initiateAmount, initiateCustomer, initiateFlow}
	case domain.OperationCapture, domain.OperationRefund:
		return []domain.RequestBuilder{modificationAmount}
	case domain.OperationCancel:
		return []domain.RequestBuilder{cancelOptions}
	default:
		return nil
	}
}

func (p *Protocol) AllowedFields(op domain.Operation) []string {
	switch op {
	case domain.OperationInitiate:
		return []string{
			"amount.currency",
			"amount.value",
			"paymentMethod.type",
			"customer.phoneNumber",
			"reference",
			"returnUrl",
			"userFlow",
			"paymentDescription",
		}
	case domain.OperationCapture, domain.OperationRefund:
		return []string{"modificationAmount.currency", "modificationAmount.value"}
	case domain.OperationCancel:
		return []string{"cancelTransactionOnly"}
	default:
		return nil
	}
}

func (p *Protocol) Headers(settings domain.Settings) map[string]string {
	name := settings.SystemName
	if name == "" {
		name = "walletpay"
	}
	return map[string]string{
		"Vipps-System-Name":    name,
		"Vipps-System-Version": "1",
	}
}

func (p *Protocol) ResponseSchema(op domain.Operation) string {
	var file string
	switch op {
	case domain.OperationInitiate:
		file = "initiate.json"
	case domain.OperationStatus, domain.OperationCapture, domain.OperationCancel, domain.OperationRefund:
		file = "payment.json"
	default:
		return ""
	}
	raw, err := schemaFS.ReadFile("schemas/" + file)
	if err != nil {
		return ""
	}
	return string(raw)
}

func (p *Protocol) ResponseReference(body map[string]any) string {
	ref, _ := body["reference"].(string)
	return strings.TrimSpace(ref)
}

func (p *Protocol) ResponseCurrency(body map[string]any) string {
	for _, key := range []string{"amount", "aggregate"} {
		section, ok := body[key].(map[string]any)
		if !ok {
			continue
		}
		if c, ok := section["currency"].(string); ok && c != "" {
			return strings.ToUpper(c)
		}
		if authorized, ok := section["authorizedAmount"].(map[string]any); ok {
			if c, ok := authorized["currency"].(string); ok && c != "" {
				return strings.ToUpper(c)
			}
		}
	}
	return ""
}

func money(subj domain.Subject, settings domain.Settings) map[string]any {
	return map[string]any{
		"currency": subj.EffectiveCurrency(settings),
		"value":    subj.Amount,
	}
}

func initiateAmount(subj domain.Subject, settings domain.Settings) (map[string]any, error) {
	if subj.Amount <= 0 {
		return nil, fmt.Errorf("initiate %s: amount must be positive", subj.Reference)
	}
	return map[string]any{
		"amount":    money(subj, settings),
		"reference": subj.Reference,
	}, nil
}

func initiateCustomer(subj domain.Subject, settings domain.Settings) (map[string]any, error) {
	phone := strings.TrimSpace(subj.CustomerPhone)
	if phone == "" {
		return nil, nil
	}
	return map[string]any{
		"customer": map[string]any{"phoneNumber": phone},
	}, nil
}

func initiateFlow(subj domain.Subject, settings domain.Settings) (map[string]any, error) {
	description := subj.Description
	if description == "" {
		description = settings.PaymentDescription
	}
	if description == "" {
		description = "Order " + subj.Reference
	}
	return map[string]any{
		"paymentMethod":      map[string]any{"type": "WALLET"},
		"userFlow":           "WEB_REDIRECT",
		"returnUrl":          returnURL(settings, subj.Reference),
		"paymentDescription": description,
	}, nil
}

func modificationAmount(subj domain.Subject, settings domain.Settings) (map[string]any, error) {
	if subj.Amount <= 0 {
		return nil, fmt.Errorf("modify %s: amount must be positive", subj.Reference)
	}
	return map[string]any{"modificationAmount": money(subj, settings)}, nil
}

func cancelOptions(subj domain.Subject, settings domain.Settings) (map[string]any, error) {
	only, _ := subj.Extra["cancelTransactionOnly"].(bool)
	if !only {
		return nil, nil
	}
	return map[string]any{"cancelTransactionOnly": true}, nil
}

func returnURL(settings domain.Settings, reference string) string {
	base := settings.ReturnURL
	if base == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "reference=" + url.QueryEscape(reference)
}

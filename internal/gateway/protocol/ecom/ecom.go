// Package ecom implements the legacy wallet protocol, whose status endpoint
// returns the full operation log of a payment.
package ecom

import (
	"embed"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/walletpay/internal/gateway/domain"
	"github.com/smallbiznis/walletpay/internal/transaction"
)

const Name = transaction.ProtocolLegacy

const basePath = "/ecomm/v2/payments"

//go:embed schemas/*.json
var schemaFS embed.FS

type Protocol struct {
	now func() time.Time
}

func New() *Protocol {
	return &Protocol{now: time.Now}
}

func (p *Protocol) Name() string { return Name }

func (p *Protocol) Currencies() []string { return []string{"NOK"} }

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
		return http.MethodGet, prefix + "/details", nil
	case domain.OperationCapture:
		return http.MethodPost, prefix + "/capture", nil
	case domain.OperationCancel:
		return http.MethodPut, prefix + "/cancel", nil
	case domain.OperationRefund:
		return http.MethodPost, prefix + "/refund", nil
	default:
		return "", "", fmt.Errorf("%w: %s", domain.ErrUnsupportedOp, op)
	}
}

func (p *Protocol) Builders(op domain.Operation) []domain.RequestBuilder {
	switch op {
	case domain.OperationInitiate:
		return []domain.RequestBuilder{initiateMerchantInfo, customerInfo, p.initiateTransaction}
	case domain.OperationCapture, domain.OperationRefund:
		return []domain.RequestBuilder{merchantInfo, amountTransaction}
	case domain.OperationCancel:
		return []domain.RequestBuilder{merchantInfo, textTransaction}
	default:
		return nil
	}
}

func (p *Protocol) AllowedFields(op domain.Operation) []string {
	switch op {
	case domain.OperationInitiate:
		return []string{
			"merchantInfo.merchantSerialNumber",
			"merchantInfo.callbackPrefix",
			"merchantInfo.fallBack",
			"merchantInfo.authToken",
			"merchantInfo.isApp",
			"merchantInfo.paymentType",
			"customerInfo.mobileNumber",
			"transaction.orderId",
			"transaction.amount",
			"transaction.transactionText",
			"transaction.timeStamp",
		}
	case domain.OperationCapture, domain.OperationRefund:
		return []string{
			"merchantInfo.merchantSerialNumber",
			"transaction.amount",
			"transaction.transactionText",
		}
	case domain.OperationCancel:
		return []string{
			"merchantInfo.merchantSerialNumber",
			"transaction.transactionText",
		}
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
		"Vipps-System-Version": "2",
	}
}

func (p *Protocol) ResponseSchema(op domain.Operation) string {
	var file string
	switch op {
	case domain.OperationInitiate:
		file = "initiate.json"
	case domain.OperationStatus:
		file = "details.json"
	case domain.OperationCapture, domain.OperationCancel, domain.OperationRefund:
		file = "modification.json"
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
	ref, _ := body["orderId"].(string)
	return strings.TrimSpace(ref)
}

func (p *Protocol) ResponseCurrency(body map[string]any) string {
	return ""
}

func initiateMerchantInfo(subj domain.Subject, settings domain.Settings) (map[string]any, error) {
	if subj.AuthToken == "" {
		return nil, fmt.Errorf("initiate %s: callback auth token is required", subj.Reference)
	}
	return map[string]any{
		"merchantInfo": map[string]any{
			"merchantSerialNumber": settings.MerchantSerialNumber,
			"callbackPrefix":       settings.CallbackPrefix,
			"fallBack":             fallbackURL(settings, subj.Reference),
			"authToken":            subj.AuthToken,
			"isApp":                false,
			"paymentType":          "eComm Regular Payment",
		},
	}, nil
}

func merchantInfo(subj domain.Subject, settings domain.Settings) (map[string]any, error) {
	return map[string]any{
		"merchantInfo": map[string]any{
			"merchantSerialNumber": settings.MerchantSerialNumber,
		},
	}, nil
}

func customerInfo(subj domain.Subject, settings domain.Settings) (map[string]any, error) {
	phone := strings.TrimSpace(subj.CustomerPhone)
	if phone == "" {
		return nil, nil
	}
	return map[string]any{
		"customerInfo": map[string]any{"mobileNumber": phone},
	}, nil
}

func (p *Protocol) initiateTransaction(subj domain.Subject, settings domain.Settings) (map[string]any, error) {
	if subj.Amount <= 0 {
		return nil, fmt.Errorf("initiate %s: amount must be positive", subj.Reference)
	}
	return map[string]any{
		"transaction": map[string]any{
			"orderId":         subj.Reference,
			"amount":          subj.Amount,
			"transactionText": transactionText(subj, settings),
			"timeStamp":       p.now().UTC().Format(time.RFC3339),
		},
	}, nil
}

func amountTransaction(subj domain.Subject, settings domain.Settings) (map[string]any, error) {
	return map[string]any{
		"transaction": map[string]any{
			"amount":          subj.Amount,
			"transactionText": transactionText(subj, settings),
		},
	}, nil
}

func textTransaction(subj domain.Subject, settings domain.Settings) (map[string]any, error) {
	return map[string]any{
		"transaction": map[string]any{
			"transactionText": transactionText(subj, settings),
		},
	}, nil
}

func transactionText(subj domain.Subject, settings domain.Settings) string {
	if subj.Description != "" {
		return subj.Description
	}
	if settings.PaymentDescription != "" {
		return settings.PaymentDescription
	}
	return "Order " + subj.Reference
}

func fallbackURL(settings domain.Settings, reference string) string {
	base := settings.FallbackURL
	if base == "" {
		base = settings.ReturnURL
	}
	if base == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "order_id=" + url.QueryEscape(reference)
}

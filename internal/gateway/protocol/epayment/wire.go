package epayment

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/smallbiznis/walletpay/internal/gateway/domain"
	"github.com/smallbiznis/walletpay/internal/transaction"
)

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
	Code   *int   `json:"code"`
}

type amount struct {
	Currency string `json:"currency"`
	Value    int64  `json:"value"`
}

type paymentResponse struct {
	Reference    string `json:"reference"`
	State        string `json:"state"`
	PSPReference string `json:"pspReference"`
	Aborted      bool   `json:"aborted"`
	Expired      bool   `json:"expired"`
	Amount       amount `json:"amount"`
	Aggregate    struct {
		AuthorizedAmount amount `json:"authorizedAmount"`
		CancelledAmount  amount `json:"cancelledAmount"`
		CapturedAmount   amount `json:"capturedAmount"`
		RefundedAmount   amount `json:"refundedAmount"`
	} `json:"aggregate"`
}

type initiateResponse struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirectUrl"`
	Token       string `json:"token"`
}

type webhookEvent struct {
	Reference string `json:"reference"`
	Name      string `json:"name"`
}

// ParseError decodes problem+json bodies. They usually carry no numeric code.
func (p *Protocol) ParseError(status int, raw []byte) (*domain.GatewayError, bool) {
	var body problem
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, false
	}
	message := strings.TrimSpace(body.Detail)
	if message == "" {
		message = strings.TrimSpace(body.Title)
	}
	if message == "" && body.Code == nil {
		return nil, false
	}

	gwErr := domain.Classify(body.Code, message)
	if body.Code == nil && status >= http.StatusInternalServerError {
		gwErr.Kind = domain.KindProviderSide
	}
	gwErr.HTTPStatus = status
	return gwErr, true
}

func (p *Protocol) ParseInitiate(raw []byte) (domain.InitiateResult, error) {
	var resp initiateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.InitiateResult{}, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	return domain.InitiateResult{
		Reference:    resp.Reference,
		RedirectURL:  resp.RedirectURL,
		SessionToken: resp.Token,
	}, nil
}

func (p *Protocol) DeriveSnapshot(raw []byte) (transaction.Snapshot, error) {
	var resp paymentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}

	currency := resp.Aggregate.AuthorizedAmount.Currency
	if currency == "" {
		currency = resp.Amount.Currency
	}
	return transaction.NewModernSnapshot(transaction.ModernFields{
		Reference:    resp.Reference,
		State:        transaction.ModernState(resp.State),
		Aborted:      resp.Aborted,
		Expired:      resp.Expired,
		Currency:     currency,
		PSPReference: resp.PSPReference,
		Authorized:   resp.Aggregate.AuthorizedAmount.Value,
		Captured:     resp.Aggregate.CapturedAmount.Value,
		Refunded:     resp.Aggregate.RefundedAmount.Value,
		Cancelled:    resp.Aggregate.CancelledAmount.Value,
	}), nil
}

func (p *Protocol) CallbackReference(raw []byte) (string, error) {
	var event webhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	ref := strings.TrimSpace(event.Reference)
	if ref == "" {
		return "", domain.ErrCallbackReference
	}
	return ref, nil
}

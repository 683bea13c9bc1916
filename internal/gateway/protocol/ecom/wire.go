package ecom

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/walletpay/internal/gateway/domain"
	"github.com/smallbiznis/walletpay/internal/transaction"
)

type errorItem struct {
	ErrorGroup   string          `json:"errorGroup"`
	ErrorMessage string          `json:"errorMessage"`
	ErrorCode    json.RawMessage `json:"errorCode"`
	ContextID    string          `json:"contextId"`
}

type initiateResponse struct {
	OrderID string `json:"orderId"`
	URL     string `json:"url"`
}

type detailsResponse struct {
	OrderID               string     `json:"orderId"`
	TransactionLogHistory []logEntry `json:"transactionLogHistory"`
}

type logEntry struct {
	Amount           int64  `json:"amount"`
	TransactionText  string `json:"transactionText"`
	TransactionID    string `json:"transactionId"`
	TimeStamp        string `json:"timeStamp"`
	Operation        string `json:"operation"`
	RequestID        string `json:"requestId"`
	OperationSuccess bool   `json:"operationSuccess"`
}

type callbackPayload struct {
	MerchantSerialNumber string `json:"merchantSerialNumber"`
	OrderID              string `json:"orderId"`
	TransactionInfo      struct {
		Amount        int64  `json:"amount"`
		Status        string `json:"status"`
		TimeStamp     string `json:"timeStamp"`
		TransactionID string `json:"transactionId"`
	} `json:"transactionInfo"`
}

// ParseError decodes the legacy error array. The first entry wins.
func (p *Protocol) ParseError(status int, raw []byte) (*domain.GatewayError, bool) {
	var items []errorItem
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		var single errorItem
		if err := json.Unmarshal(raw, &single); err != nil || (single.ErrorMessage == "" && len(single.ErrorCode) == 0) {
			return nil, false
		}
		items = []errorItem{single}
	}

	first := items[0]
	gwErr := domain.Classify(parseCode(first.ErrorCode), strings.TrimSpace(first.ErrorMessage))
	gwErr.HTTPStatus = status
	return gwErr, true
}

func parseCode(raw json.RawMessage) *int {
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if text == "" || text == "null" {
		return nil
	}
	code, err := strconv.Atoi(text)
	if err != nil {
		zero := 0
		return &zero
	}
	return &code
}

func (p *Protocol) ParseInitiate(raw []byte) (domain.InitiateResult, error) {
	var resp initiateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.InitiateResult{}, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	return domain.InitiateResult{
		Reference:   resp.OrderID,
		RedirectURL: resp.URL,
	}, nil
}

// DeriveSnapshot builds a snapshot from the details response. The provider
// lists the log newest first.
func (p *Protocol) DeriveSnapshot(raw []byte) (transaction.Snapshot, error) {
	var resp detailsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}

	entries := make([]transaction.LogEntry, 0, len(resp.TransactionLogHistory))
	for i := len(resp.TransactionLogHistory) - 1; i >= 0; i-- {
		item := resp.TransactionLogHistory[i]
		entries = append(entries, transaction.LogEntry{
			Operation:     transaction.Operation(strings.ToUpper(strings.TrimSpace(item.Operation))),
			Amount:        item.Amount,
			Success:       item.OperationSuccess,
			RequestID:     item.RequestID,
			TransactionID: item.TransactionID,
			Timestamp:     parseTime(item.TimeStamp),
		})
	}
	if timestamped(entries) {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		})
	}

	return transaction.NewLegacySnapshot(resp.OrderID, entries), nil
}

func (p *Protocol) CallbackReference(raw []byte) (string, error) {
	var payload callbackPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	ref := strings.TrimSpace(payload.OrderID)
	if ref == "" {
		return "", domain.ErrCallbackReference
	}
	return ref, nil
}

func timestamped(entries []transaction.LogEntry) bool {
	for _, entry := range entries {
		if entry.Timestamp.IsZero() {
			return false
		}
	}
	return true
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z0700", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

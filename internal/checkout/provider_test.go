package checkout

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeEntry struct {
	Amount           int64  `json:"amount"`
	Operation        string `json:"operation"`
	OperationSuccess bool   `json:"operationSuccess"`
	TimeStamp        string `json:"timeStamp"`
	TransactionID    string `json:"transactionId"`
}

// fakeProvider serves the legacy wallet API from memory.
type fakeProvider struct {
	mu       sync.Mutex
	payments map[string][]fakeEntry
	calls    map[string]int
	tick     time.Time
	srv      *httptest.Server
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{
		payments: map[string][]fakeEntry{},
		calls:    map[string]int{},
		tick:     time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	p.srv = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeProvider) count(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *fakeProvider) append(ref, op string, amount int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appendLocked(ref, op, amount)
}

func (p *fakeProvider) appendLocked(ref, op string, amount int64) {
	p.tick = p.tick.Add(time.Second)
	p.payments[ref] = append(p.payments[ref], fakeEntry{
		Amount:           amount,
		Operation:        op,
		OperationSuccess: true,
		TimeStamp:        p.tick.Format(time.RFC3339),
		TransactionID:    "tx-" + strings.ToLower(op),
	})
}

func (p *fakeProvider) reserve(ref string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	amount := int64(0)
	if entries := p.payments[ref]; len(entries) > 0 {
		amount = entries[0].Amount
	}
	p.appendLocked(ref, "RESERVE", amount)
}

func (p *fakeProvider) serve(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	const base = "/ecomm/v2/payments"
	if r.URL.Path == base && r.Method == http.MethodPost {
		p.calls["initiate"]++
		var body struct {
			Transaction struct {
				OrderID string `json:"orderId"`
				Amount  int64  `json:"amount"`
			} `json:"transaction"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.appendLocked(body.Transaction.OrderID, "INITIATE", body.Transaction.Amount)
		writeBody(w, map[string]any{"orderId": body.Transaction.OrderID, "url": "https://pay.example/" + body.Transaction.OrderID})
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, base+"/"), "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	ref, action := parts[0], parts[1]
	p.calls[action]++

	if action == "details" {
		entries := p.payments[ref]
		newestFirst := make([]fakeEntry, 0, len(entries))
		for i := len(entries) - 1; i >= 0; i-- {
			newestFirst = append(newestFirst, entries[i])
		}
		writeBody(w, map[string]any{"orderId": ref, "transactionLogHistory": newestFirst})
		return
	}

	var body struct {
		Transaction struct {
			Amount int64 `json:"amount"`
		} `json:"transaction"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	p.appendLocked(ref, strings.ToUpper(action), body.Transaction.Amount)
	writeBody(w, map[string]any{
		"orderId": ref,
		"transactionInfo": map[string]any{
			"status":        strings.ToUpper(action) + "D",
			"amount":        body.Transaction.Amount,
			"transactionId": "tx-" + action,
		},
	})
}

func writeBody(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

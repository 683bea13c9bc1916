// Package command runs provider operations through guards, request assembly,
// the authenticated transport, response validation and a caller handler.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/walletpay/internal/config"
	"github.com/smallbiznis/walletpay/internal/gateway/domain"
	"github.com/smallbiznis/walletpay/internal/gateway/protocol"
	obscontext "github.com/smallbiznis/walletpay/internal/observability/context"
	"github.com/smallbiznis/walletpay/internal/observability/logger"
	"github.com/smallbiznis/walletpay/internal/observability/metrics"
	"github.com/smallbiznis/walletpay/internal/observability/tracing"
	"github.com/smallbiznis/walletpay/internal/transaction"
	"github.com/smallbiznis/walletpay/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// maxAuthAttempts bounds the requests sent per command when the token is rejected.
const maxAuthAttempts = 2

const defaultTimeout = 30 * time.Second

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Handler consumes a validated response.
type Handler interface {
	Handle(ctx context.Context, subj domain.Subject, resp *Response) error
}

type HandlerFunc func(ctx context.Context, subj domain.Subject, resp *Response) error

func (f HandlerFunc) Handle(ctx context.Context, subj domain.Subject, resp *Response) error {
	return f(ctx, subj, resp)
}

// Command describes one provider operation.
type Command struct {
	Operation  domain.Operation
	Guards     []Guard
	Validators []Validator
	Handler    Handler
}

// Response is a decoded provider response.
type Response struct {
	Protocol   domain.Protocol
	Operation  domain.Operation
	StatusCode int
	Raw        []byte
	Body       map[string]any
	Reference  string
	Currency   string
	// Snapshot is set for status responses.
	Snapshot transaction.Snapshot
	// Initiate is set for initiate responses.
	Initiate *domain.InitiateResult
}

type Result struct {
	Response *Response
	// Skipped is true when a guard completed the command without a request.
	Skipped bool
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Config   config.Config
	Selector *protocol.Selector
	Tokens   domain.TokenProvider
	Settings domain.SettingsSource
	Client   Doer                    `optional:"true"`
	Metrics  *metrics.PaymentMetrics `optional:"true"`
}

type Executor struct {
	log      *zap.Logger
	selector *protocol.Selector
	tokens   domain.TokenProvider
	settings domain.SettingsSource
	client   Doer
	metrics  *metrics.PaymentMetrics
}

func NewExecutor(p Params) *Executor {
	client := p.Client
	if client == nil {
		timeout := p.Config.Gateway.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		log:      log.Named("gateway.command"),
		selector: p.Selector,
		tokens:   p.Tokens,
		settings: p.Settings,
		client:   client,
		metrics:  p.Metrics,
	}
}

// Protocol returns the protocol configured for scope.
func (e *Executor) Protocol(scope string) domain.Protocol {
	return e.selector.Resolve(e.settings.Settings(scope).Protocol)
}

// Settings returns the settings of scope.
func (e *Executor) Settings(scope string) domain.Settings {
	return e.settings.Settings(scope)
}

// Execute runs cmd against the protocol configured for the subject scope.
func (e *Executor) Execute(ctx context.Context, cmd Command, subj domain.Subject) (*Result, error) {
	settings := e.settings.Settings(subj.Scope)
	proto := e.selector.Resolve(settings.Protocol)
	if proto == nil {
		return nil, domain.ErrProtocolNotFound
	}

	ctx = obscontext.WithScope(ctx, settings.Scope)
	ctx, span := otel.Tracer("walletpay/gateway").Start(ctx, "gateway."+string(cmd.Operation))
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("walletpay.protocol", proto.Name()),
		attribute.String("walletpay.operation", string(cmd.Operation)),
		attribute.String("walletpay.scope", settings.Scope),
		attribute.String("walletpay.reference", subj.Reference),
	)...)

	log := logger.WithContext(ctx, e.log).With(
		zap.String("protocol", proto.Name()),
		zap.String("operation", string(cmd.Operation)),
		zap.String("reference", subj.Reference),
	)

	started := time.Now()
	result, err := e.execute(ctx, cmd, subj, settings, proto)
	outcome := outcomeOf(result, err)
	e.metrics.ObserveCommand(proto.Name(), string(cmd.Operation), outcome, time.Since(started))

	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, outcome)
		log.Warn("provider command failed", zap.String("outcome", outcome), zap.Error(err))
		return result, err
	}
	log.Info("provider command completed", zap.String("outcome", outcome))
	return result, nil
}

func (e *Executor) execute(ctx context.Context, cmd Command, subj domain.Subject, settings domain.Settings, proto domain.Protocol) (*Result, error) {
	for _, guard := range cmd.Guards {
		skip, err := guard(ctx, subj, settings, proto)
		if err != nil {
			return nil, err
		}
		if skip {
			return &Result{Skipped: true}, nil
		}
	}

	req, err := BuildRequest(proto, cmd.Operation, subj, settings)
	if err != nil {
		return nil, err
	}

	status, raw, err := e.send(ctx, subj.Scope, settings, proto, req)
	if err != nil {
		return nil, err
	}

	if status >= http.StatusBadRequest {
		if gwErr, ok := proto.ParseError(status, raw); ok {
			gwErr.Operation = cmd.Operation
			gwErr.HTTPStatus = status
			return nil, gwErr
		}
		return nil, &domain.TransportError{
			Operation:  cmd.Operation,
			StatusCode: status,
			Err:        fmt.Errorf("unexpected response status %d", status),
		}
	}

	resp, err := decode(proto, cmd.Operation, status, raw)
	if err != nil {
		return nil, err
	}

	if messages := runValidators(cmd.Validators, subj, resp); len(messages) > 0 {
		return &Result{Response: resp}, &domain.CommandError{Operation: cmd.Operation, Messages: messages}
	}

	result := &Result{Response: resp}
	if cmd.Handler != nil {
		if err := cmd.Handler.Handle(ctx, subj, resp); err != nil {
			return result, err
		}
	}
	return result, nil
}

// send performs the call, refreshing the token once when the provider rejects it.
func (e *Executor) send(ctx context.Context, scope string, settings domain.Settings, proto domain.Protocol, req *domain.Request) (int, []byte, error) {
	var payload []byte
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return 0, nil, err
		}
		payload = encoded
	}

	token, err := e.tokens.Token(ctx, scope)
	if err != nil {
		return 0, nil, &domain.TransportError{Operation: req.Operation, Err: err}
	}

	for attempt := 1; ; attempt++ {
		status, raw, err := e.do(ctx, settings, proto, req, payload, token)
		if err != nil {
			return 0, nil, &domain.TransportError{Operation: req.Operation, Err: err}
		}
		if status != http.StatusUnauthorized {
			return status, raw, nil
		}
		if attempt >= maxAuthAttempts {
			return 0, nil, &domain.TransportError{Operation: req.Operation, StatusCode: status, Err: domain.ErrAuthExpired}
		}
		token, err = e.tokens.ForceRefresh(ctx, scope)
		if err != nil {
			return 0, nil, &domain.TransportError{Operation: req.Operation, StatusCode: status, Err: err}
		}
	}
}

func (e *Executor) do(ctx context.Context, settings domain.Settings, proto domain.Protocol, req *domain.Request, payload []byte, token string) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	endpoint := strings.TrimRight(settings.BaseURL, "/") + req.Path
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}

	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", settings.SubscriptionKey)
	httpReq.Header.Set("Merchant-Serial-Number", settings.MerchantSerialNumber)
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range proto.Headers(settings) {
		httpReq.Header.Set(key, value)
	}
	correlation.Inject(ctx, httpReq.Header)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}

func decode(proto domain.Protocol, op domain.Operation, status int, raw []byte) (*Response, error) {
	resp := &Response{
		Protocol:   proto,
		Operation:  op,
		StatusCode: status,
		Raw:        raw,
		Body:       map[string]any{},
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &resp.Body); err != nil {
			return nil, &domain.TransportError{Operation: op, StatusCode: status, Err: fmt.Errorf("%w: %v", domain.ErrDecode, err)}
		}
	}
	resp.Reference = proto.ResponseReference(resp.Body)
	resp.Currency = proto.ResponseCurrency(resp.Body)

	switch op {
	case domain.OperationStatus:
		snapshot, err := proto.DeriveSnapshot(raw)
		if err != nil {
			return nil, &domain.TransportError{Operation: op, StatusCode: status, Err: err}
		}
		resp.Snapshot = snapshot
	case domain.OperationInitiate:
		initiated, err := proto.ParseInitiate(raw)
		if err != nil {
			return nil, &domain.TransportError{Operation: op, StatusCode: status, Err: err}
		}
		resp.Initiate = &initiated
	}
	return resp, nil
}

func outcomeOf(result *Result, err error) string {
	var (
		gwErr        *domain.GatewayError
		commandErr   *domain.CommandError
		transportErr *domain.TransportError
	)
	switch {
	case err == nil && result != nil && result.Skipped:
		return metrics.OutcomeSkipped
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &transportErr):
		return metrics.OutcomeTransportError
	case errors.As(err, &commandErr):
		return metrics.OutcomeValidationError
	case errors.As(err, &gwErr):
		if gwErr.HTTPStatus == 0 {
			return metrics.OutcomeRefused
		}
		return metrics.OutcomeProviderError
	default:
		return metrics.OutcomeRefused
	}
}

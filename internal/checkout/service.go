// Package checkout is the payment surface used by the storefront, the
// provider callback endpoint, operators and background jobs.
package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	attemptdomain "github.com/smallbiznis/walletpay/internal/attempt/domain"
	attemptsvc "github.com/smallbiznis/walletpay/internal/attempt/service"
	"github.com/smallbiznis/walletpay/internal/clock"
	"github.com/smallbiznis/walletpay/internal/config"
	"github.com/smallbiznis/walletpay/internal/gateway/command"
	gwdomain "github.com/smallbiznis/walletpay/internal/gateway/domain"
	"github.com/smallbiznis/walletpay/internal/notification"
	"github.com/smallbiznis/walletpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/walletpay/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/walletpay/internal/order/domain"
	ordersvc "github.com/smallbiznis/walletpay/internal/order/service"
	"github.com/smallbiznis/walletpay/internal/transaction"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Gateway is the provider surface checkout drives.
type Gateway interface {
	Settings(scope string) gwdomain.Settings
	Protocols() []gwdomain.Protocol
	Initiate(ctx context.Context, subj gwdomain.Subject, h command.Handler) (gwdomain.InitiateResult, error)
	Status(ctx context.Context, scope, reference string, h command.Handler) (transaction.Snapshot, error)
	Capture(ctx context.Context, subj gwdomain.Subject, h command.Handler) (*command.Result, error)
	Cancel(ctx context.Context, subj gwdomain.Subject, h command.Handler) (*command.Result, error)
	Refund(ctx context.Context, subj gwdomain.Subject, h command.Handler) (*command.Result, error)
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Config   config.Config
	Clock    clock.Clock
	Gateway  Gateway
	Attempts *attemptsvc.Service
	Orders   *ordersvc.Service
	Notifier *notification.Notifier `optional:"true"`
	Metrics  *obsmetrics.Metrics    `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	clock    clock.Clock
	gateway  Gateway
	attempts *attemptsvc.Service
	orders   *ordersvc.Service
	notifier *notification.Notifier
	metrics  *obsmetrics.Metrics
	poll     PollPolicy
}

func NewService(p Params) *Service {
	return &Service{
		log:      p.Log.Named("checkout.service"),
		clock:    p.Clock,
		gateway:  p.Gateway,
		attempts: p.Attempts,
		orders:   p.Orders,
		notifier: p.Notifier,
		metrics:  p.Metrics,
		poll: PollPolicy{
			MaxAttempts:  p.Config.Scheduler.PollMaxAttempts,
			SessionLapse: p.Config.Scheduler.SessionLapse,
		}.withDefaults(),
	}
}

type InitiateOptions struct {
	CustomerPhone string
	Description   string
	Actor         string
}

type InitiateResponse struct {
	AttemptID    snowflake.ID `json:"attempt_id"`
	Reference    string       `json:"reference"`
	RedirectURL  string       `json:"redirect_url,omitempty"`
	SessionToken string       `json:"session_token,omitempty"`
}

// Initiate starts a provider session for the draft and opens a PENDING attempt.
func (s *Service) Initiate(ctx context.Context, draftID snowflake.ID, opts InitiateOptions) (*InitiateResponse, error) {
	draft, err := s.orders.GetDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if !draft.IsActive {
		return nil, orderdomain.ErrDraftInactive
	}
	current, err := s.attempts.Current(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if current != nil && current.Active() {
		return nil, attemptdomain.ErrAttemptInProgress
	}

	reference, err := s.orders.ReserveReference(ctx, draftID)
	if err != nil {
		return nil, err
	}

	phone := strings.TrimSpace(opts.CustomerPhone)
	if phone == "" {
		phone = draft.CustomerPhone
	}
	subj := gwdomain.Subject{
		Scope:         draft.Scope,
		Reference:     reference,
		Amount:        draft.GrandTotal,
		Currency:      draft.Currency,
		AuthToken:     uuid.NewString(),
		CustomerPhone: phone,
		Description:   opts.Description,
	}

	var opened *attemptdomain.Attempt
	result, err := s.gateway.Initiate(ctx, subj, command.HandlerFunc(func(ctx context.Context, subj gwdomain.Subject, resp *command.Response) error {
		attempt, err := s.attempts.Open(ctx, attemptsvc.OpenRequest{
			Scope:        subj.Scope,
			OrderDraftID: draftID,
			Reference:    subj.Reference,
			Protocol:     resp.Protocol.Name(),
			AuthToken:    subj.AuthToken,
			SessionToken: resp.Initiate.SessionToken,
			RedirectURL:  resp.Initiate.RedirectURL,
			Actor:        opts.Actor,
		})
		opened = attempt
		return err
	}))
	if err != nil {
		s.reportFailure(ctx, subj, gwdomain.OperationInitiate, err)
		return nil, err
	}

	return &InitiateResponse{
		AttemptID:    opened.ID,
		Reference:    result.Reference,
		RedirectURL:  result.RedirectURL,
		SessionToken: result.SessionToken,
	}, nil
}

// GetStatus fetches the provider snapshot of reference.
func (s *Service) GetStatus(ctx context.Context, reference string) (transaction.Snapshot, error) {
	attempt, err := s.attempts.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.gateway.Status(ctx, attempt.Scope, attempt.Reference, nil)
}

type CancelOptions struct {
	Reason string
	Actor  string
}

// Cancel is the local cancellation of the payment behind reference. It
// reports whether the attempt ended cancelled or reverted.
func (s *Service) Cancel(ctx context.Context, reference string, opts CancelOptions) (bool, error) {
	attempt, err := s.attempts.GetByReference(ctx, reference)
	if err != nil {
		return false, err
	}
	outcome, err := s.attempts.Cancel(ctx, attempt.ID, attemptsvc.CancelRequest{
		Origin:  attemptdomain.OriginLocal,
		Reason:  opts.Reason,
		Actor:   opts.Actor,
		Handler: s.closePayment(),
	})
	if err != nil {
		s.reportFailure(ctx, gwdomain.Subject{Scope: attempt.Scope, Reference: attempt.Reference}, gwdomain.OperationCancel, err)
		return false, err
	}
	if err := s.markOrderCanceled(ctx, attempt.Reference); err != nil {
		return false, err
	}
	return outcome.Attempt.Status == attemptdomain.StatusCanceled || outcome.Attempt.Status == attemptdomain.StatusReverted, nil
}

// Capture charges amount of the reservation. A non-positive amount captures the remainder.
func (s *Service) Capture(ctx context.Context, reference string, amount int64) (bool, error) {
	attempt, order, err := s.reservedOrder(ctx, reference)
	if err != nil {
		return false, err
	}
	if amount <= 0 {
		amount = order.GrandTotal - order.CapturedAmount
	}
	if amount <= 0 {
		return false, ErrNothingToCapture
	}

	subj := gwdomain.Subject{Scope: attempt.Scope, Reference: attempt.Reference, Amount: amount, Currency: order.Currency}
	_, err = s.gateway.Capture(ctx, subj, command.HandlerFunc(func(ctx context.Context, subj gwdomain.Subject, resp *command.Response) error {
		return s.orders.RecordCapture(ctx, subj.Reference, subj.Amount, transactionID(resp.Body))
	}))
	if err != nil {
		s.reportFailure(ctx, subj, gwdomain.OperationCapture, err)
		return false, err
	}
	return true, nil
}

// Refund returns amount of the captured funds. A non-positive amount refunds the remainder.
func (s *Service) Refund(ctx context.Context, reference string, amount int64) (bool, error) {
	attempt, order, err := s.reservedOrder(ctx, reference)
	if err != nil {
		return false, err
	}
	if amount <= 0 {
		amount = order.CapturedAmount - order.RefundedAmount
	}
	if amount <= 0 {
		return false, ErrNothingToRefund
	}

	subj := gwdomain.Subject{Scope: attempt.Scope, Reference: attempt.Reference, Amount: amount, Currency: order.Currency}
	_, err = s.gateway.Refund(ctx, subj, command.HandlerFunc(func(ctx context.Context, subj gwdomain.Subject, resp *command.Response) error {
		return s.orders.RecordRefund(ctx, subj.Reference, subj.Amount)
	}))
	if err != nil {
		s.reportFailure(ctx, subj, gwdomain.OperationRefund, err)
		return false, err
	}
	return true, nil
}

// Restart lets an operator retry a failed or expired attempt.
func (s *Service) Restart(ctx context.Context, id snowflake.ID, actor string) (*attemptdomain.Attempt, error) {
	return s.attempts.Restart(ctx, id, actor)
}

// ManualCancel is the operator cancel of an attempt.
func (s *Service) ManualCancel(ctx context.Context, id snowflake.ID, actor, reason string) (*attemptdomain.Attempt, error) {
	outcome, err := s.attempts.ManualCancel(ctx, id, actor, reason, s.closePayment())
	if err != nil {
		if outcome != nil {
			return outcome.Attempt, err
		}
		return nil, err
	}
	if err := s.markOrderCanceled(ctx, outcome.Attempt.Reference); err != nil {
		return nil, err
	}
	return outcome.Attempt, nil
}

func (s *Service) Detail(ctx context.Context, id snowflake.ID) (*attemptdomain.Detail, error) {
	return s.attempts.Detail(ctx, id)
}

func (s *Service) ListAttempts(ctx context.Context, req attemptsvc.ListRequest) (*attemptsvc.ListResponse, error) {
	return s.attempts.List(ctx, req)
}

func (s *Service) reservedOrder(ctx context.Context, reference string) (*attemptdomain.Attempt, *orderdomain.Order, error) {
	attempt, err := s.attempts.GetByReference(ctx, reference)
	if err != nil {
		return nil, nil, err
	}
	if attempt.Status != attemptdomain.StatusReserved {
		return nil, nil, ErrNotReserved
	}
	order, err := s.orders.GetOrderByReference(ctx, reference)
	if err != nil {
		return nil, nil, err
	}
	return attempt, order, nil
}

func (s *Service) closePayment() command.Handler {
	return command.HandlerFunc(func(ctx context.Context, subj gwdomain.Subject, resp *command.Response) error {
		err := s.orders.MarkPaymentClosed(ctx, subj.Reference)
		if errors.Is(err, orderdomain.ErrOrderNotFound) {
			return nil
		}
		return err
	})
}

func (s *Service) markOrderCanceled(ctx context.Context, reference string) error {
	err := s.orders.MarkCanceled(ctx, reference)
	if errors.Is(err, orderdomain.ErrOrderNotFound) {
		return nil
	}
	return err
}

// reportFailure logs a provider failure and alerts administrators on merchant errors.
func (s *Service) reportFailure(ctx context.Context, subj gwdomain.Subject, op gwdomain.Operation, err error) {
	log := logger.WithContext(ctx, s.log).With(
		zap.String("scope", subj.Scope),
		zap.String("reference", subj.Reference),
		zap.String("operation", string(op)),
	)

	var commandErr *gwdomain.CommandError
	switch {
	case errors.Is(err, gwdomain.ErrKindMerchant):
		log.Error("merchant configuration error", zap.String("error", gwdomain.Describe(err)))
		s.notifier.NotifyAdmin(ctx, notification.TemplateMerchantError, map[string]any{
			"scope":     subj.Scope,
			"reference": subj.Reference,
			"operation": string(op),
			"error":     gwdomain.Describe(err),
		})
	case errors.As(err, &commandErr):
		log.Warn("provider response rejected", zap.Bool("security_event", true), zap.Strings("messages", commandErr.Messages))
	default:
		log.Warn("payment operation failed", zap.String("error", gwdomain.Describe(err)))
	}
}

// transactionID reads the provider transaction id from a modification response.
func transactionID(body map[string]any) string {
	if info, ok := body["transactionInfo"].(map[string]any); ok {
		if id, ok := info["transactionId"].(string); ok {
			return id
		}
	}
	if id, ok := body["pspReference"].(string); ok {
		return id
	}
	return ""
}

// PollPolicy bounds status polling of PENDING attempts.
type PollPolicy struct {
	MaxAttempts  int
	SessionLapse time.Duration
}

func (p PollPolicy) withDefaults() PollPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 30
	}
	if p.SessionLapse <= 0 {
		p.SessionLapse = 15 * time.Minute
	}
	return p
}

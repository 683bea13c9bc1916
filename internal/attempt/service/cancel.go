package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/walletpay/internal/attempt/domain"
	"github.com/smallbiznis/walletpay/internal/gateway/command"
	gwdomain "github.com/smallbiznis/walletpay/internal/gateway/domain"
	"github.com/smallbiznis/walletpay/internal/notification"
	"github.com/smallbiznis/walletpay/internal/transaction"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CancelRequest is one cancellation trigger.
type CancelRequest struct {
	Origin domain.CancelOrigin
	Reason string
	Actor  string
	// Handler runs after a successful provider cancel.
	Handler command.Handler
}

// CancelOutcome describes what a cancellation did.
type CancelOutcome struct {
	Attempt        *domain.Attempt
	CancelType     domain.CancelType
	ProviderCalled bool
	NoOp           bool
}

// ManualCancel is the operator cancel. It is legal from NEW, PENDING, RESERVE_FAILED and REVERT_FAILED.
func (s *Service) ManualCancel(ctx context.Context, id snowflake.ID, actor, reason string, h command.Handler) (*CancelOutcome, error) {
	return s.Cancel(ctx, id, CancelRequest{Origin: domain.OriginOperator, Actor: actor, Reason: reason, Handler: h})
}

// Cancel records a cancellation decision and moves the attempt to its
// cancelled or reverted status. The provider is cancelled too when an operator
// asks, or when the trigger is local under the automatic policy, and only if
// the provider snapshot shows a reservation. A returned error with a non-nil
// outcome carries the provider failure that led to a *_FAILED status.
func (s *Service) Cancel(ctx context.Context, id snowflake.ID, req CancelRequest) (*CancelOutcome, error) {
	switch req.Origin {
	case domain.OriginLocal, domain.OriginProvider, domain.OriginOperator:
	default:
		return nil, domain.ErrInvalidOrigin
	}

	key := fmt.Sprintf("walletpay:attempt:%d:cancel", id)
	token, locked, err := s.locker.TryLock(ctx, key, s.lockTTL)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, domain.ErrCancellationInProgress
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("release cancel lock failed", zap.String("attempt_id", id.String()), zap.Error(err))
		}
	}()

	attempt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	success, failure, ok := domain.CancelTargets(attempt.Status)
	if req.Origin == domain.OriginOperator && !domain.CanManualCancel(attempt.Status) {
		ok = false
	}
	if !ok {
		if req.Origin == domain.OriginProvider {
			return &CancelOutcome{Attempt: attempt, NoOp: true}, nil
		}
		return nil, fmt.Errorf("%w: cancel from %s", domain.ErrInvalidTransition, attempt.Status)
	}

	called, providerErr := s.cancelAtProvider(ctx, attempt, req)

	to := success
	if providerErr != nil {
		to = failure
	}
	cancelType := domain.CancelTypeLocal
	switch {
	case req.Origin == domain.OriginProvider:
		cancelType = domain.CancelTypeProvider
	case called:
		cancelType = domain.CancelTypeBoth
	}

	action := domain.ActionCancelled
	if success == domain.StatusReverted {
		action = domain.ActionReverted
	}
	meta := map[string]any{
		"origin":          string(req.Origin),
		"cancel_type":     string(cancelType),
		"provider_called": called,
	}
	if req.Reason != "" {
		meta["reason"] = req.Reason
	}
	if providerErr != nil {
		meta["error"] = gwdomain.Describe(providerErr)
	}

	now := s.clock.Now()
	from := attempt.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertCancellation(ctx, tx, &domain.CancellationRecord{
			ID:         s.genID.Generate(),
			AttemptID:  attempt.ID,
			CancelType: cancelType,
			Origin:     req.Origin,
			Reason:     req.Reason,
			Actor:      req.Actor,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		ok, err := s.repo.Transition(ctx, tx, attempt.ID, from, to, domain.Changes{}, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentUpdate
		}
		if providerErr != nil {
			if err := s.repo.RecordError(ctx, tx, attempt.ID, errorInfo(providerErr), now); err != nil {
				return err
			}
		}
		return s.writeEvent(ctx, tx, attempt.ID, from, to, action, req.Actor, meta, now)
	})
	if err != nil {
		return nil, s.mapTxErr(err)
	}

	s.metrics.IncTransition(string(from), string(to))
	attempt.Status = to
	attempt.UpdatedAt = now
	outcome := &CancelOutcome{Attempt: attempt, CancelType: cancelType, ProviderCalled: called}

	log := s.log.With(
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("reference", attempt.Reference),
		zap.String("origin", string(req.Origin)),
		zap.String("cancel_type", string(cancelType)),
		zap.String("status", string(to)),
	)
	if providerErr != nil {
		log.Error("attempt cancellation failed at provider", zap.Error(providerErr))
		s.notifier.NotifyAdmin(ctx, notification.TemplateCancellationFailed, map[string]any{
			"scope":      attempt.Scope,
			"reference":  attempt.Reference,
			"attempt_id": attempt.ID.String(),
			"status":     string(to),
			"error":      gwdomain.Describe(providerErr),
		})
		return outcome, providerErr
	}
	log.Info("attempt cancelled")
	return outcome, nil
}

// cancelAtProvider reports whether a cancel request reached the provider and its failure.
func (s *Service) cancelAtProvider(ctx context.Context, attempt *domain.Attempt, req CancelRequest) (bool, error) {
	switch req.Origin {
	case domain.OriginProvider:
		return false, nil
	case domain.OriginLocal:
		if s.gateway.Settings(attempt.Scope).CancellationPolicy != gwdomain.CancellationAutomatic {
			return false, nil
		}
	}

	snapshot, err := s.gateway.Status(ctx, attempt.Scope, attempt.Reference, nil)
	if err != nil {
		return false, fmt.Errorf("fetch provider status: %w", err)
	}
	if !transaction.Inspect(snapshot).Reserved {
		return false, nil
	}

	result, err := s.gateway.Cancel(ctx, gwdomain.Subject{
		Scope:     attempt.Scope,
		Reference: attempt.Reference,
		Snapshot:  snapshot,
	}, req.Handler)
	if err != nil {
		return !refusedBeforeSend(err), err
	}
	if result != nil && result.Skipped {
		s.log.Info("provider cancel skipped, offline partial void",
			zap.String("attempt_id", attempt.ID.String()),
			zap.String("reference", attempt.Reference),
		)
		return false, nil
	}
	return true, nil
}

// refusedBeforeSend reports gateway errors raised before any request left the process.
func refusedBeforeSend(err error) bool {
	var localized *gwdomain.LocalizedError
	if errors.As(err, &localized) {
		return true
	}
	return errors.Is(err, gwdomain.ErrUnsupportedOp) || errors.Is(err, gwdomain.ErrMissingReference)
}

// IsCancellationConflict reports errors from a trigger that lost a race with another cancellation.
func IsCancellationConflict(err error) bool {
	return errors.Is(err, domain.ErrCancellationInProgress) || errors.Is(err, domain.ErrConcurrentUpdate)
}

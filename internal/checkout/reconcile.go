package checkout

import (
	"context"
	"errors"

	attemptdomain "github.com/smallbiznis/walletpay/internal/attempt/domain"
	attemptsvc "github.com/smallbiznis/walletpay/internal/attempt/service"
	"github.com/smallbiznis/walletpay/internal/transaction"
	"go.uber.org/zap"
)

// Reconcile triggers.
const (
	TriggerCallback = "callback"
	TriggerPoll     = "poll"
	TriggerOperator = "operator"
)

// Reconcile fetches the provider snapshot of the attempt and applies it.
func (s *Service) Reconcile(ctx context.Context, attempt *attemptdomain.Attempt, trigger string) (*attemptdomain.Attempt, error) {
	updated, _, err := s.reconcile(ctx, attempt, trigger)
	return updated, err
}

// ReconcileReference reconciles the attempt behind reference.
func (s *Service) ReconcileReference(ctx context.Context, reference, trigger string) (*attemptdomain.Attempt, error) {
	attempt, err := s.attempts.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.Reconcile(ctx, attempt, trigger)
}

func (s *Service) reconcile(ctx context.Context, attempt *attemptdomain.Attempt, trigger string) (*attemptdomain.Attempt, transaction.Predicates, error) {
	snapshot, err := s.gateway.Status(ctx, attempt.Scope, attempt.Reference, nil)
	if err != nil {
		if recErr := s.attempts.RecordError(ctx, attempt.ID, err); recErr != nil {
			s.log.Warn("record attempt error failed", zap.String("attempt_id", attempt.ID.String()), zap.Error(recErr))
		}
		return attempt, transaction.Predicates{}, err
	}
	p := transaction.Inspect(snapshot)
	meta := map[string]any{
		"trigger":         trigger,
		"provider_status": string(p.Status()),
		"reserved_amount": snapshot.Summary().Reserved,
	}

	updated := attempt
	switch attempt.Status {
	case attemptdomain.StatusPending:
		switch {
		case p.Cancelled || p.Voided:
			updated, err = s.attempts.MarkReserveFailed(ctx, attempt.ID, meta)
		case p.Expired:
			updated, err = s.attempts.MarkExpired(ctx, attempt.ID, meta)
		case p.Reserved || p.Captured:
			if _, err = s.orders.PlaceFromDraft(ctx, attempt.OrderDraftID, attempt.Reference); err == nil {
				updated, err = s.attempts.MarkReserved(ctx, attempt.ID, meta)
			}
		}
	case attemptdomain.StatusReserved:
		if p.Cancelled || p.Voided || p.Expired {
			var outcome *attemptsvc.CancelOutcome
			outcome, err = s.attempts.Cancel(ctx, attempt.ID, attemptsvc.CancelRequest{
				Origin: attemptdomain.OriginProvider,
				Reason: "closed at provider: " + string(p.Status()),
			})
			if err == nil {
				updated = outcome.Attempt
				err = s.markOrderCanceled(ctx, attempt.Reference)
			}
		}
	}

	if err != nil {
		if errors.Is(err, attemptdomain.ErrInvalidTransition) || attemptsvc.IsCancellationConflict(err) {
			// Another trigger moved the attempt first.
			latest, getErr := s.attempts.Get(ctx, attempt.ID)
			if getErr == nil {
				return latest, p, nil
			}
		}
		return attempt, p, err
	}

	s.metrics.RecordReconcile(ctx, trigger, string(updated.Status))
	return updated, p, nil
}

// Poll reconciles a PENDING attempt for the background poller. Attempts that
// stay unresolved past the session lapse expire; attempts that exhaust the
// poll budget fail.
func (s *Service) Poll(ctx context.Context, attempt *attemptdomain.Attempt) (*attemptdomain.Attempt, error) {
	updated, p, err := s.reconcile(ctx, attempt, TriggerPoll)
	if err == nil && updated.Status != attemptdomain.StatusPending {
		return updated, nil
	}

	if err == nil && !p.Reserved && s.clock.Now().Sub(updated.PendingAt()) > s.poll.SessionLapse {
		return s.attempts.MarkExpired(ctx, attempt.ID, map[string]any{"trigger": TriggerPoll, "reason": "session_lapsed"})
	}

	count, countErr := s.attempts.RecordPoll(ctx, attempt.ID)
	if countErr != nil {
		if err != nil {
			return attempt, err
		}
		return attempt, countErr
	}
	if count >= s.poll.MaxAttempts {
		meta := map[string]any{"trigger": TriggerPoll, "reason": "poll_limit_reached", "polls": count}
		return s.attempts.MarkReserveFailed(ctx, attempt.ID, meta)
	}
	return updated, err
}

// SweepAbandoned cancels a PENDING attempt nobody completed.
func (s *Service) SweepAbandoned(ctx context.Context, attempt *attemptdomain.Attempt) (*attemptdomain.Attempt, error) {
	outcome, err := s.attempts.Cancel(ctx, attempt.ID, attemptsvc.CancelRequest{
		Origin:  attemptdomain.OriginLocal,
		Reason:  "abandoned",
		Actor:   "scheduler",
		Handler: s.closePayment(),
	})
	if err != nil {
		if outcome != nil {
			return outcome.Attempt, err
		}
		return attempt, err
	}
	return outcome.Attempt, nil
}

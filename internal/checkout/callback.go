package checkout

import (
	"context"
	"crypto/subtle"
	"strings"

	attemptdomain "github.com/smallbiznis/walletpay/internal/attempt/domain"
	gwdomain "github.com/smallbiznis/walletpay/internal/gateway/domain"
	"go.uber.org/zap"
)

// Callback outcomes.
const (
	CallbackAccepted     = "accepted"
	CallbackUnauthorized = "unauthorized"
	CallbackUnknown      = "unknown_reference"
	CallbackFailed       = "failed"
)

// HandleCallback authenticates a provider callback against the attempt's auth
// token and reconciles the attempt from a fresh provider snapshot. The body
// only identifies the payment.
func (s *Service) HandleCallback(ctx context.Context, raw []byte, authToken string) (*attemptdomain.Attempt, error) {
	reference, protocol := s.callbackReference(raw)
	if reference == "" {
		s.metrics.RecordCallback(ctx, "", CallbackUnknown)
		return nil, gwdomain.ErrCallbackReference
	}

	attempt, err := s.attempts.GetByReference(ctx, reference)
	if err != nil {
		s.metrics.RecordCallback(ctx, protocol, CallbackUnknown)
		return nil, err
	}

	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(authToken), "Bearer "))
	if token == "" || subtle.ConstantTimeCompare([]byte(attempt.AuthToken), []byte(token)) != 1 {
		s.log.Warn("callback rejected", zap.String("reference", reference), zap.Bool("security_event", true))
		s.metrics.RecordCallback(ctx, protocol, CallbackUnauthorized)
		return nil, ErrUnauthorizedCallback
	}

	updated, err := s.Reconcile(ctx, attempt, TriggerCallback)
	if err != nil {
		s.metrics.RecordCallback(ctx, protocol, CallbackFailed)
		return nil, err
	}
	s.metrics.RecordCallback(ctx, protocol, CallbackAccepted)
	return updated, nil
}

func (s *Service) callbackReference(raw []byte) (string, string) {
	for _, p := range s.gateway.Protocols() {
		ref, err := p.CallbackReference(raw)
		if err == nil && strings.TrimSpace(ref) != "" {
			return strings.TrimSpace(ref), p.Name()
		}
	}
	return "", ""
}

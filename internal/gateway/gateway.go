// Package gateway exposes the provider operations used by checkout and reconciliation.
package gateway

import (
	"context"
	"strings"

	"github.com/smallbiznis/walletpay/internal/gateway/command"
	"github.com/smallbiznis/walletpay/internal/gateway/domain"
	"github.com/smallbiznis/walletpay/internal/gateway/protocol"
	"github.com/smallbiznis/walletpay/internal/transaction"
)

// Gateway assembles the command pipeline for each provider operation.
type Gateway struct {
	executor *command.Executor
	selector *protocol.Selector
}

func New(executor *command.Executor, selector *protocol.Selector) *Gateway {
	return &Gateway{executor: executor, selector: selector}
}

// Settings returns the provider settings of scope.
func (g *Gateway) Settings(scope string) domain.Settings {
	return g.executor.Settings(scope)
}

// Protocols lists every registered protocol.
func (g *Gateway) Protocols() []domain.Protocol {
	return g.selector.All()
}

// Initiate starts a payment session. The handler runs before the result is returned.
func (g *Gateway) Initiate(ctx context.Context, subj domain.Subject, h command.Handler) (domain.InitiateResult, error) {
	result, err := g.executor.Execute(ctx, command.Command{
		Operation:  domain.OperationInitiate,
		Guards:     []command.Guard{command.CurrencyGuard},
		Validators: []command.Validator{command.ReferenceMatches, command.StatusFieldPresent},
		Handler:    h,
	}, subj)
	if err != nil {
		return domain.InitiateResult{}, err
	}
	initiated := *result.Response.Initiate
	if initiated.Reference == "" {
		initiated.Reference = subj.Reference
	}
	return initiated, nil
}

// Status fetches the provider snapshot of reference.
func (g *Gateway) Status(ctx context.Context, scope, reference string, h command.Handler) (transaction.Snapshot, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, domain.ErrMissingReference
	}
	result, err := g.executor.Execute(ctx, command.Command{
		Operation:  domain.OperationStatus,
		Validators: []command.Validator{command.ReferenceMatches, command.StatusFieldPresent},
		Handler:    h,
	}, domain.Subject{Scope: scope, Reference: reference})
	if err != nil {
		return nil, err
	}
	return result.Response.Snapshot, nil
}

func (g *Gateway) Capture(ctx context.Context, subj domain.Subject, h command.Handler) (*command.Result, error) {
	return g.executor.Execute(ctx, command.Command{
		Operation:  domain.OperationCapture,
		Guards:     []command.Guard{command.CurrencyGuard},
		Validators: []command.Validator{command.ReferenceMatches, command.StatusFieldPresent, command.CurrencySupported},
		Handler:    h,
	}, subj)
}

// Cancel releases a reservation. Captured funds are never cancelled.
func (g *Gateway) Cancel(ctx context.Context, subj domain.Subject, h command.Handler) (*command.Result, error) {
	return g.executor.Execute(ctx, command.Command{
		Operation:  domain.OperationCancel,
		Guards:     []command.Guard{command.CancelGuard},
		Validators: []command.Validator{command.ReferenceMatches, command.StatusFieldPresent},
		Handler:    h,
	}, subj)
}

func (g *Gateway) Refund(ctx context.Context, subj domain.Subject, h command.Handler) (*command.Result, error) {
	return g.executor.Execute(ctx, command.Command{
		Operation:  domain.OperationRefund,
		Guards:     []command.Guard{command.CurrencyGuard},
		Validators: []command.Validator{command.ReferenceMatches, command.StatusFieldPresent, command.CurrencySupported},
		Handler:    h,
	}, subj)
}

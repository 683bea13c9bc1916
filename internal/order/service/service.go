package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/walletpay/internal/clock"
	"github.com/smallbiznis/walletpay/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReferencePrefix starts every order reference sent to the provider.
const ReferencePrefix = "wp-"

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("order.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

type CreateDraftRequest struct {
	Scope         string `json:"scope"`
	Currency      string `json:"currency"`
	GrandTotal    int64  `json:"grand_total"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
}

func (s *Service) CreateDraft(ctx context.Context, req CreateDraftRequest) (*domain.Draft, error) {
	if req.GrandTotal <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return nil, domain.ErrInvalidCurrency
	}

	now := s.clock.Now()
	draft := &domain.Draft{
		ID:            s.genID.Generate(),
		Scope:         strings.TrimSpace(req.Scope),
		Currency:      currency,
		GrandTotal:    req.GrandTotal,
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertDraft(ctx, s.db, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

func (s *Service) GetDraft(ctx context.Context, id snowflake.ID) (*domain.Draft, error) {
	draft, err := s.repo.FindDraft(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, domain.ErrDraftNotFound
	}
	return draft, nil
}

func (s *Service) SaveDraft(ctx context.Context, draft *domain.Draft) error {
	if draft == nil || draft.ID == 0 {
		return domain.ErrInvalidDraft
	}
	draft.UpdatedAt = s.clock.Now()
	return s.repo.UpdateDraft(ctx, s.db, draft)
}

// ReserveReference assigns a fresh provider order reference to the draft.
// Every attempt gets its own reference.
func (s *Service) ReserveReference(ctx context.Context, draftID snowflake.ID) (string, error) {
	draft, err := s.GetDraft(ctx, draftID)
	if err != nil {
		return "", err
	}
	if !draft.IsActive {
		return "", domain.ErrDraftInactive
	}
	draft.ReservedReference = ReferencePrefix + s.genID.Generate().String()
	if err := s.SaveDraft(ctx, draft); err != nil {
		return "", err
	}
	return draft.ReservedReference, nil
}

func (s *Service) GetOrderByReference(ctx context.Context, reference string) (*domain.Order, error) {
	order, err := s.repo.FindOrderByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

// PlaceFromDraft turns the draft into an order once funds are reserved.
// Placing the same reference twice returns the existing order.
func (s *Service) PlaceFromDraft(ctx context.Context, draftID snowflake.ID, reference string) (*domain.Order, error) {
	reference = strings.TrimSpace(reference)
	var placed *domain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		draft, err := s.repo.FindDraft(ctx, tx, draftID)
		if err != nil {
			return err
		}
		if draft == nil {
			return domain.ErrDraftNotFound
		}

		now := s.clock.Now()
		order := &domain.Order{
			ID:         s.genID.Generate(),
			DraftID:    draft.ID,
			Scope:      draft.Scope,
			Reference:  reference,
			Status:     domain.OrderStatusPlaced,
			Currency:   draft.Currency,
			GrandTotal: draft.GrandTotal,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		inserted, err := s.repo.InsertOrder(ctx, tx, order)
		if err != nil {
			return err
		}
		if !inserted {
			placed, err = s.repo.FindOrderByReference(ctx, tx, reference)
			return err
		}

		draft.IsActive = false
		draft.UpdatedAt = now
		if err := s.repo.UpdateDraft(ctx, tx, draft); err != nil {
			return err
		}
		placed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("order placed", zap.String("reference", reference), zap.String("order_id", placed.ID.String()))
	return placed, nil
}

// MarkPaymentClosed flags that no further provider operation is expected for the order.
func (s *Service) MarkPaymentClosed(ctx context.Context, reference string) error {
	closed := true
	return s.update(ctx, reference, domain.PaymentUpdate{PaymentClosed: &closed})
}

func (s *Service) MarkCanceled(ctx context.Context, reference string) error {
	status := domain.OrderStatusCanceled
	closed := true
	return s.update(ctx, reference, domain.PaymentUpdate{Status: &status, PaymentClosed: &closed})
}

func (s *Service) RecordCapture(ctx context.Context, reference string, amount int64, transactionID string) error {
	order, err := s.GetOrderByReference(ctx, reference)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if order.CapturedAmount+amount > order.GrandTotal {
		return fmt.Errorf("%w: captured %d of %d", domain.ErrAmountExceeded, order.CapturedAmount+amount, order.GrandTotal)
	}
	status := domain.OrderStatusCaptured
	update := domain.PaymentUpdate{Status: &status, AddCaptured: amount}
	if transactionID != "" {
		update.TransactionID = &transactionID
	}
	return s.update(ctx, reference, update)
}

func (s *Service) RecordRefund(ctx context.Context, reference string, amount int64) error {
	order, err := s.GetOrderByReference(ctx, reference)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if order.RefundedAmount+amount > order.CapturedAmount {
		return fmt.Errorf("%w: refunded %d of %d captured", domain.ErrAmountExceeded, order.RefundedAmount+amount, order.CapturedAmount)
	}
	update := domain.PaymentUpdate{AddRefunded: amount}
	if order.RefundedAmount+amount == order.CapturedAmount {
		status := domain.OrderStatusRefunded
		closed := true
		update.Status = &status
		update.PaymentClosed = &closed
	}
	return s.update(ctx, reference, update)
}

func (s *Service) update(ctx context.Context, reference string, update domain.PaymentUpdate) error {
	ok, err := s.repo.UpdatePayment(ctx, s.db, reference, update, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrOrderNotFound
	}
	return nil
}

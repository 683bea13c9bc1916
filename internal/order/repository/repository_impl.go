package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/walletpay/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertDraft(ctx context.Context, db *gorm.DB, draft *domain.Draft) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO order_drafts (
			id, scope, currency, grand_total, customer_email, customer_phone,
			reserved_reference, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		draft.ID,
		draft.Scope,
		draft.Currency,
		draft.GrandTotal,
		draft.CustomerEmail,
		draft.CustomerPhone,
		draft.ReservedReference,
		draft.IsActive,
		draft.CreatedAt,
		draft.UpdatedAt,
	).Error
}

func (r *repo) FindDraft(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Draft, error) {
	var item domain.Draft
	err := db.WithContext(ctx).Raw(
		`SELECT id, scope, currency, grand_total, customer_email, customer_phone,
			reserved_reference, is_active, created_at, updated_at
		 FROM order_drafts
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateDraft(ctx context.Context, db *gorm.DB, draft *domain.Draft) error {
	return db.WithContext(ctx).Exec(
		`UPDATE order_drafts
		 SET currency = ?, grand_total = ?, customer_email = ?, customer_phone = ?,
			reserved_reference = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		draft.Currency,
		draft.GrandTotal,
		draft.CustomerEmail,
		draft.CustomerPhone,
		draft.ReservedReference,
		draft.IsActive,
		draft.UpdatedAt,
		draft.ID,
	).Error
}

func (r *repo) InsertOrder(ctx context.Context, db *gorm.DB, order *domain.Order) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, draft_id, scope, reference, status, currency, grand_total,
			captured_amount, refunded_amount, payment_closed, transaction_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (reference) DO NOTHING`,
		order.ID,
		order.DraftID,
		order.Scope,
		order.Reference,
		order.Status,
		order.Currency,
		order.GrandTotal,
		order.CapturedAmount,
		order.RefundedAmount,
		order.PaymentClosed,
		order.TransactionID,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindOrderByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, draft_id, scope, reference, status, currency, grand_total,
			captured_amount, refunded_amount, payment_closed, transaction_id,
			created_at, updated_at
		 FROM orders
		 WHERE reference = ?
		 LIMIT 1`,
		strings.TrimSpace(reference),
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdatePayment(ctx context.Context, db *gorm.DB, reference string, update domain.PaymentUpdate, at time.Time) (bool, error) {
	updates := map[string]any{"updated_at": at}
	if update.Status != nil {
		updates["status"] = *update.Status
	}
	if update.AddCaptured != 0 {
		updates["captured_amount"] = gorm.Expr("captured_amount + ?", update.AddCaptured)
	}
	if update.AddRefunded != 0 {
		updates["refunded_amount"] = gorm.Expr("refunded_amount + ?", update.AddRefunded)
	}
	if update.PaymentClosed != nil {
		updates["payment_closed"] = *update.PaymentClosed
	}
	if update.TransactionID != nil {
		updates["transaction_id"] = *update.TransactionID
	}

	res := db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("reference = ?", strings.TrimSpace(reference)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/walletpay/internal/attempt/domain"
	"gorm.io/gorm"
)

const attemptColumns = `id, scope, order_draft_id, reference, protocol, status, auth_token,
	session_token, redirect_url, attempt_count, last_error_kind, last_error_code,
	last_error_message, superseded_at, pending_since, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, attempt *domain.Attempt) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_attempts (`+attemptColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID,
		attempt.Scope,
		attempt.OrderDraftID,
		attempt.Reference,
		attempt.Protocol,
		attempt.Status,
		attempt.AuthToken,
		attempt.SessionToken,
		attempt.RedirectURL,
		attempt.AttemptCount,
		attempt.LastErrorKind,
		attempt.LastErrorCode,
		attempt.LastErrorMessage,
		attempt.SupersededAt,
		attempt.PendingSince,
		attempt.CreatedAt,
		attempt.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Attempt, error) {
	return r.findOne(ctx, db, `SELECT `+attemptColumns+` FROM payment_attempts WHERE id = ? LIMIT 1`, id)
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Attempt, error) {
	return r.findOne(ctx, db, `SELECT `+attemptColumns+` FROM payment_attempts WHERE reference = ? LIMIT 1`, strings.TrimSpace(reference))
}

func (r *repo) FindCurrentByDraft(ctx context.Context, db *gorm.DB, draftID snowflake.ID) (*domain.Attempt, error) {
	return r.findOne(ctx, db,
		`SELECT `+attemptColumns+`
		 FROM payment_attempts
		 WHERE order_draft_id = ? AND superseded_at IS NULL
		 ORDER BY id DESC
		 LIMIT 1`,
		draftID,
	)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Attempt, error) {
	var item domain.Attempt
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, status domain.Status, updatedBefore time.Time, limit int) ([]domain.Attempt, error) {
	var items []domain.Attempt
	err := db.WithContext(ctx).Raw(
		`SELECT `+attemptColumns+`
		 FROM payment_attempts
		 WHERE status = ? AND updated_at <= ?
		 ORDER BY updated_at ASC, id ASC
		 LIMIT ?`,
		status,
		updatedBefore,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListPendingSince returns PENDING attempts that entered PENDING at or before
// the cutoff. Rows without a stamp fall back to created_at.
func (r *repo) ListPendingSince(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]domain.Attempt, error) {
	var items []domain.Attempt
	err := db.WithContext(ctx).Raw(
		`SELECT `+attemptColumns+`
		 FROM payment_attempts
		 WHERE status = ? AND COALESCE(pending_since, created_at) <= ?
		 ORDER BY COALESCE(pending_since, created_at) ASC, id ASC
		 LIMIT ?`,
		domain.StatusPending,
		before,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM payment_attempts WHERE 1 = 1`
	args := []any{}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Scope != "" {
		query += ` AND scope = ?`
		args = append(args, filter.Scope)
	}
	if filter.AfterID != 0 {
		query += ` AND id < ?`
		args = append(args, filter.AfterID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, filter.Limit)

	var items []domain.Attempt
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkSuperseded(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_attempts
		 SET superseded_at = ?, updated_at = ?
		 WHERE id = ? AND superseded_at IS NULL`,
		at,
		at,
		id,
	).Error
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, changes domain.Changes, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": at,
	}
	if changes.SessionToken != nil {
		updates["session_token"] = *changes.SessionToken
	}
	if changes.RedirectURL != nil {
		updates["redirect_url"] = *changes.RedirectURL
	}
	if changes.ResetAttemptCount {
		updates["attempt_count"] = 0
	}
	if to == domain.StatusPending {
		updates["pending_since"] = at
	}

	res := db.WithContext(ctx).
		Model(&domain.Attempt{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) IncrementAttemptCount(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_attempts
		 SET attempt_count = attempt_count + 1, updated_at = ?
		 WHERE id = ? AND status = ?`,
		at,
		id,
		status,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) RecordError(ctx context.Context, db *gorm.DB, id snowflake.ID, info domain.ErrorInfo, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_attempts
		 SET last_error_kind = ?, last_error_code = ?, last_error_message = ?, updated_at = ?
		 WHERE id = ?`,
		info.Kind,
		info.Code,
		info.Message,
		at,
		id,
	).Error
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.Event) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_attempt_events (
			id, attempt_id, from_status, to_status, action, actor, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.AttemptID,
		event.FromStatus,
		event.ToStatus,
		event.Action,
		event.Actor,
		event.Metadata,
		event.CreatedAt,
	).Error
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, attemptID snowflake.ID) ([]domain.Event, error) {
	var items []domain.Event
	err := db.WithContext(ctx).Raw(
		`SELECT id, attempt_id, from_status, to_status, action, actor, metadata, created_at
		 FROM payment_attempt_events
		 WHERE attempt_id = ?
		 ORDER BY id ASC`,
		attemptID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertCancellation(ctx context.Context, db *gorm.DB, record *domain.CancellationRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_attempt_cancellations (
			id, attempt_id, cancel_type, origin, reason, actor, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.AttemptID,
		record.CancelType,
		record.Origin,
		record.Reason,
		record.Actor,
		record.CreatedAt,
	).Error
}

func (r *repo) ListCancellations(ctx context.Context, db *gorm.DB, attemptID snowflake.ID) ([]domain.CancellationRecord, error) {
	var items []domain.CancellationRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, attempt_id, cancel_type, origin, reason, actor, created_at
		 FROM payment_attempt_cancellations
		 WHERE attempt_id = ?
		 ORDER BY id ASC`,
		attemptID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

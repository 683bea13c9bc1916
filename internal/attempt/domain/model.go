package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusNew           Status = "NEW"
	StatusPending       Status = "PENDING"
	StatusReserved      Status = "RESERVED"
	StatusReserveFailed Status = "RESERVE_FAILED"
	StatusExpired       Status = "EXPIRED"
	StatusCanceled      Status = "CANCELED"
	StatusCancelFailed  Status = "CANCEL_FAILED"
	StatusReverted      Status = "REVERTED"
	StatusRevertFailed  Status = "REVERT_FAILED"
)

// ParseStatus accepts known statuses in any case.
func ParseStatus(raw string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case StatusNew, StatusPending, StatusReserved, StatusReserveFailed, StatusExpired,
		StatusCanceled, StatusCancelFailed, StatusReverted, StatusRevertFailed:
		return status, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Attempt is one checkout-to-resolution cycle for an order draft.
type Attempt struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	Scope            string       `json:"scope" gorm:"type:text;not null"`
	OrderDraftID     snowflake.ID `json:"order_draft_id" gorm:"not null;index"`
	Reference        string       `json:"reference" gorm:"type:text;not null;uniqueIndex"`
	Protocol         string       `json:"protocol" gorm:"type:text;not null"`
	Status           Status       `json:"status" gorm:"type:text;not null"`
	AuthToken        string       `json:"-" gorm:"type:text;not null"`
	SessionToken     string       `json:"session_token,omitempty" gorm:"type:text"`
	RedirectURL      string       `json:"redirect_url,omitempty" gorm:"type:text"`
	AttemptCount     int          `json:"attempt_count" gorm:"not null;default:0"`
	LastErrorKind    string       `json:"last_error_kind,omitempty" gorm:"type:text"`
	LastErrorCode    int          `json:"last_error_code,omitempty"`
	LastErrorMessage string       `json:"last_error_message,omitempty" gorm:"type:text"`
	SupersededAt     *time.Time   `json:"superseded_at,omitempty"`
	PendingSince     *time.Time   `json:"pending_since,omitempty"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null"`
}

func (Attempt) TableName() string { return "payment_attempts" }

// Active reports whether the attempt occupies its draft.
func (a *Attempt) Active() bool {
	switch a.Status {
	case StatusNew, StatusPending, StatusReserved:
		return true
	default:
		return false
	}
}

// PendingAt is when the attempt last entered PENDING.
func (a *Attempt) PendingAt() time.Time {
	if a.PendingSince != nil {
		return *a.PendingSince
	}
	return a.CreatedAt
}

// Event is an append-only attempt history row.
type Event struct {
	ID         snowflake.ID   `json:"id" gorm:"primaryKey"`
	AttemptID  snowflake.ID   `json:"attempt_id" gorm:"not null;index"`
	FromStatus Status         `json:"from_status" gorm:"type:text"`
	ToStatus   Status         `json:"to_status" gorm:"type:text;not null"`
	Action     string         `json:"action" gorm:"type:text;not null"`
	Actor      string         `json:"actor,omitempty" gorm:"type:text"`
	Metadata   datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time      `json:"created_at" gorm:"not null"`
}

func (Event) TableName() string { return "payment_attempt_events" }

const (
	ActionCreated        = "created"
	ActionSessionCreated = "session_created"
	ActionReserved       = "reserved"
	ActionReserveFailed  = "reserve_failed"
	ActionExpired        = "expired"
	ActionRestarted      = "restarted"
	ActionCancelled      = "cancelled"
	ActionReverted       = "reverted"
)

type CancelType string

const (
	CancelTypeProvider CancelType = "PROVIDER"
	CancelTypeLocal    CancelType = "LOCAL"
	CancelTypeBoth     CancelType = "BOTH"
)

// CancelOrigin is where a cancellation trigger came from.
type CancelOrigin string

const (
	OriginLocal    CancelOrigin = "local"
	OriginProvider CancelOrigin = "provider"
	OriginOperator CancelOrigin = "operator"
)

// CancellationRecord is written once per cancellation decision and never mutated.
type CancellationRecord struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	AttemptID  snowflake.ID `json:"attempt_id" gorm:"not null;index"`
	CancelType CancelType   `json:"cancel_type" gorm:"type:text;not null"`
	Origin     CancelOrigin `json:"origin" gorm:"type:text;not null"`
	Reason     string       `json:"reason,omitempty" gorm:"type:text"`
	Actor      string       `json:"actor,omitempty" gorm:"type:text"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
}

func (CancellationRecord) TableName() string { return "payment_attempt_cancellations" }

// ErrorInfo is the last classified provider error of an attempt.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Detail is the operator view of an attempt.
type Detail struct {
	Attempt       *Attempt             `json:"attempt"`
	Events        []Event              `json:"events"`
	Cancellations []CancellationRecord `json:"cancellations"`
	LastError     *ErrorInfo           `json:"last_error,omitempty"`
}

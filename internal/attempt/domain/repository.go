package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Changes are the extra columns written with a status transition.
type Changes struct {
	SessionToken      *string
	RedirectURL       *string
	ResetAttemptCount bool
}

// ListFilter selects attempts newest first. AfterID is the keyset cursor.
type ListFilter struct {
	Status  Status
	Scope   string
	AfterID snowflake.ID
	Limit   int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, attempt *Attempt) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Attempt, error)
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Attempt, error)
	FindCurrentByDraft(ctx context.Context, db *gorm.DB, draftID snowflake.ID) (*Attempt, error)
	ListByStatus(ctx context.Context, db *gorm.DB, status Status, updatedBefore time.Time, limit int) ([]Attempt, error)
	ListPendingSince(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]Attempt, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Attempt, error)
	MarkSuperseded(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	// Transition moves the attempt to `to` only while its status is still `from`.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, changes Changes, at time.Time) (bool, error)
	IncrementAttemptCount(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, at time.Time) (bool, error)
	RecordError(ctx context.Context, db *gorm.DB, id snowflake.ID, info ErrorInfo, at time.Time) error

	InsertEvent(ctx context.Context, db *gorm.DB, event *Event) error
	ListEvents(ctx context.Context, db *gorm.DB, attemptID snowflake.ID) ([]Event, error)
	InsertCancellation(ctx context.Context, db *gorm.DB, record *CancellationRecord) error
	ListCancellations(ctx context.Context, db *gorm.DB, attemptID snowflake.ID) ([]CancellationRecord, error)
}

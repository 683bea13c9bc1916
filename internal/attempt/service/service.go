package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/walletpay/internal/attempt/domain"
	"github.com/smallbiznis/walletpay/internal/clock"
	"github.com/smallbiznis/walletpay/internal/config"
	"github.com/smallbiznis/walletpay/internal/gateway/command"
	gwdomain "github.com/smallbiznis/walletpay/internal/gateway/domain"
	"github.com/smallbiznis/walletpay/internal/lock"
	"github.com/smallbiznis/walletpay/internal/notification"
	obsmetrics "github.com/smallbiznis/walletpay/internal/observability/metrics"
	"github.com/smallbiznis/walletpay/internal/transaction"
	"github.com/smallbiznis/walletpay/pkg/db"
	"github.com/smallbiznis/walletpay/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultCancelLockTTL = 45 * time.Second

// Gateway is the provider side used by cancellations.
type Gateway interface {
	Settings(scope string) gwdomain.Settings
	Status(ctx context.Context, scope, reference string, h command.Handler) (transaction.Snapshot, error)
	Cancel(ctx context.Context, subj gwdomain.Subject, h command.Handler) (*command.Result, error)
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Clock    clock.Clock
	Locker   lock.Locker
	Gateway  Gateway
	Config   config.Config
	Notifier *notification.Notifier     `optional:"true"`
	Metrics  *obsmetrics.PaymentMetrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	clock    clock.Clock
	locker   lock.Locker
	gateway  Gateway
	notifier *notification.Notifier
	metrics  *obsmetrics.PaymentMetrics
	lockTTL  time.Duration
}

func NewService(p Params) *Service {
	ttl := p.Config.Gateway.CancelLockTTL
	if ttl <= 0 {
		ttl = defaultCancelLockTTL
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("attempt.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    p.Clock,
		locker:   p.Locker,
		gateway:  p.Gateway,
		notifier: p.Notifier,
		metrics:  p.Metrics,
		lockTTL:  ttl,
	}
}

// OpenRequest describes a checkout session the provider accepted.
type OpenRequest struct {
	Scope        string
	OrderDraftID snowflake.ID
	Reference    string
	Protocol     string
	AuthToken    string
	SessionToken string
	RedirectURL  string
	Actor        string
}

// Open records a new attempt for a draft and moves it to PENDING.
// A previous failed attempt of the draft is superseded.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*domain.Attempt, error) {
	req.Reference = strings.TrimSpace(req.Reference)
	if req.OrderDraftID == 0 || req.Reference == "" || req.AuthToken == "" {
		return nil, domain.ErrInvalidAttempt
	}

	now := s.clock.Now()
	attempt := &domain.Attempt{
		ID:           s.genID.Generate(),
		Scope:        req.Scope,
		OrderDraftID: req.OrderDraftID,
		Reference:    req.Reference,
		Protocol:     req.Protocol,
		Status:       domain.StatusNew,
		AuthToken:    req.AuthToken,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindCurrentByDraft(ctx, tx, req.OrderDraftID)
		if err != nil {
			return err
		}
		if current != nil {
			if current.Active() {
				return domain.ErrAttemptInProgress
			}
			if err := s.repo.MarkSuperseded(ctx, tx, current.ID, now); err != nil {
				return err
			}
		}

		if err := s.repo.Insert(ctx, tx, attempt); err != nil {
			return err
		}
		if err := s.writeEvent(ctx, tx, attempt.ID, "", domain.StatusNew, domain.ActionCreated, req.Actor, nil, now); err != nil {
			return err
		}

		changes := domain.Changes{SessionToken: &req.SessionToken, RedirectURL: &req.RedirectURL}
		ok, err := s.repo.Transition(ctx, tx, attempt.ID, domain.StatusNew, domain.StatusPending, changes, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentUpdate
		}
		return s.writeEvent(ctx, tx, attempt.ID, domain.StatusNew, domain.StatusPending, domain.ActionSessionCreated, req.Actor, nil, now)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAttemptInProgress
		}
		return nil, s.mapTxErr(err)
	}

	attempt.Status = domain.StatusPending
	attempt.PendingSince = &now
	attempt.SessionToken = req.SessionToken
	attempt.RedirectURL = req.RedirectURL
	s.metrics.IncTransition(string(domain.StatusNew), string(domain.StatusPending))
	return attempt, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Attempt, error) {
	attempt, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *Service) GetByReference(ctx context.Context, reference string) (*domain.Attempt, error) {
	attempt, err := s.repo.FindByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

// Current returns the live or latest attempt of a draft, or nil.
func (s *Service) Current(ctx context.Context, draftID snowflake.ID) (*domain.Attempt, error) {
	return s.repo.FindCurrentByDraft(ctx, s.db, draftID)
}

// Detail returns the attempt with its history for operators.
func (s *Service) Detail(ctx context.Context, id snowflake.ID) (*domain.Detail, error) {
	attempt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	cancellations, err := s.repo.ListCancellations(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	detail := &domain.Detail{Attempt: attempt, Events: events, Cancellations: cancellations}
	if attempt.LastErrorKind != "" || attempt.LastErrorMessage != "" {
		detail.LastError = &domain.ErrorInfo{
			Kind:    attempt.LastErrorKind,
			Code:    attempt.LastErrorCode,
			Message: attempt.LastErrorMessage,
		}
	}
	return detail, nil
}

// ListPending returns PENDING attempts not touched since before.
func (s *Service) ListPending(ctx context.Context, before time.Time, limit int) ([]domain.Attempt, error) {
	return s.repo.ListByStatus(ctx, s.db, domain.StatusPending, before, limit)
}

// ListAbandoned returns attempts that have sat in PENDING since before.
// Polls refresh updated_at but leave the pending stamp alone.
func (s *Service) ListAbandoned(ctx context.Context, before time.Time, limit int) ([]domain.Attempt, error) {
	return s.repo.ListPendingSince(ctx, s.db, before, limit)
}

type ListRequest struct {
	Status string
	Scope  string
	pagination.Pagination
}

type ListResponse struct {
	Attempts []domain.Attempt    `json:"attempts"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

// List pages through attempts newest first.
func (s *Service) List(ctx context.Context, req ListRequest) (*ListResponse, error) {
	filter := domain.ListFilter{
		Scope: strings.TrimSpace(req.Scope),
		Limit: req.Limit() + 1,
	}
	if strings.TrimSpace(req.Status) != "" {
		status, err := domain.ParseStatus(req.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return nil, err
	}
	if cursor.ID != "" {
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
		}
		filter.AfterID = id
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	items, info := pagination.BuildPageInfo(items, req.Limit(), func(a domain.Attempt) string {
		return a.ID.String()
	})
	if items == nil {
		items = []domain.Attempt{}
	}
	return &ListResponse{Attempts: items, PageInfo: info}, nil
}

func (s *Service) MarkReserved(ctx context.Context, id snowflake.ID, meta map[string]any) (*domain.Attempt, error) {
	return s.transition(ctx, id, domain.StatusPending, domain.StatusReserved, domain.ActionReserved, "", meta, domain.Changes{})
}

func (s *Service) MarkReserveFailed(ctx context.Context, id snowflake.ID, meta map[string]any) (*domain.Attempt, error) {
	return s.transition(ctx, id, domain.StatusPending, domain.StatusReserveFailed, domain.ActionReserveFailed, "", meta, domain.Changes{})
}

func (s *Service) MarkExpired(ctx context.Context, id snowflake.ID, meta map[string]any) (*domain.Attempt, error) {
	return s.transition(ctx, id, domain.StatusPending, domain.StatusExpired, domain.ActionExpired, "", meta, domain.Changes{})
}

// Restart re-enters PENDING from RESERVE_FAILED or EXPIRED and clears the attempt counter.
func (s *Service) Restart(ctx context.Context, id snowflake.ID, actor string) (*domain.Attempt, error) {
	attempt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanRestart(attempt.Status) {
		return nil, fmt.Errorf("%w: restart from %s", domain.ErrInvalidTransition, attempt.Status)
	}
	if attempt.SupersededAt != nil {
		return nil, domain.ErrAttemptSuperseded
	}
	updated, err := s.transition(ctx, id, attempt.Status, domain.StatusPending, domain.ActionRestarted, actor, nil, domain.Changes{ResetAttemptCount: true})
	if err != nil && db.IsDuplicateKeyErr(err) {
		return nil, domain.ErrAttemptInProgress
	}
	return updated, err
}

// RecordPoll counts an unresolved status poll and returns the new count.
func (s *Service) RecordPoll(ctx context.Context, id snowflake.ID) (int, error) {
	ok, err := s.repo.IncrementAttemptCount(ctx, s.db, id, domain.StatusPending, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, domain.ErrConcurrentUpdate
	}
	attempt, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return attempt.AttemptCount, nil
}

// RecordError stores the classified provider error for the operator view.
func (s *Service) RecordError(ctx context.Context, id snowflake.ID, cause error) error {
	if cause == nil {
		return nil
	}
	return s.repo.RecordError(ctx, s.db, id, errorInfo(cause), s.clock.Now())
}

func (s *Service) transition(
	ctx context.Context,
	id snowflake.ID,
	from, to domain.Status,
	action, actor string,
	meta map[string]any,
	changes domain.Changes,
) (*domain.Attempt, error) {
	if err := domain.ValidateTransition(from, to); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.Transition(ctx, tx, id, from, to, changes, now)
		if err != nil {
			return err
		}
		if !ok {
			current, err := s.repo.FindByID(ctx, tx, id)
			if err != nil {
				return err
			}
			if current == nil {
				return domain.ErrAttemptNotFound
			}
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, to)
		}
		return s.writeEvent(ctx, tx, id, from, to, action, actor, meta, now)
	})
	if err != nil {
		return nil, s.mapTxErr(err)
	}

	s.metrics.IncTransition(string(from), string(to))
	s.log.Info("attempt transitioned",
		zap.String("attempt_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("action", action),
	)
	return s.Get(ctx, id)
}

func (s *Service) writeEvent(
	ctx context.Context,
	tx *gorm.DB,
	attemptID snowflake.ID,
	from, to domain.Status,
	action, actor string,
	meta map[string]any,
	at time.Time,
) error {
	var metadata datatypes.JSON
	if len(meta) > 0 {
		raw, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		metadata = datatypes.JSON(raw)
	}
	return s.repo.InsertEvent(ctx, tx, &domain.Event{
		ID:         s.genID.Generate(),
		AttemptID:  attemptID,
		FromStatus: from,
		ToStatus:   to,
		Action:     action,
		Actor:      actor,
		Metadata:   metadata,
		CreatedAt:  at,
	})
}

func (s *Service) mapTxErr(err error) error {
	if db.IsSerializationErr(err) {
		return fmt.Errorf("%w: %v", domain.ErrConcurrentUpdate, err)
	}
	return err
}

func errorInfo(err error) domain.ErrorInfo {
	var gwErr *gwdomain.GatewayError
	if errors.As(err, &gwErr) {
		return domain.ErrorInfo{Kind: string(gwErr.Kind), Code: gwErr.Code, Message: gwErr.Message}
	}
	var commandErr *gwdomain.CommandError
	if errors.As(err, &commandErr) {
		return domain.ErrorInfo{Kind: "validation", Message: strings.Join(commandErr.Messages, "; ")}
	}
	var transportErr *gwdomain.TransportError
	if errors.As(err, &transportErr) {
		return domain.ErrorInfo{Kind: "transport", Code: transportErr.StatusCode, Message: transportErr.Error()}
	}
	return domain.ErrorInfo{Kind: "local", Message: err.Error()}
}

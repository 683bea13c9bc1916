package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/walletpay/internal/config"
	"github.com/smallbiznis/walletpay/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const ObjectAttempt = "attempt"

const (
	ActionAttemptView    = "attempt.view"
	ActionAttemptRestart = "attempt.restart"
	ActionAttemptCancel  = "attempt.cancel"
	ActionAttemptSync    = "attempt.reconcile"
)

const (
	RoleAdmin   = "role:admin"
	RoleSupport = "role:support"
	RoleSystem  = "role:system"
)

// SystemActor is the subject background jobs act as.
const SystemActor = "system"

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads the stored policy and seeds the role permissions and the
// configured operator roles.
func NewEnforcer(db *gorm.DB, cfg config.Config) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := seedActors(enforcer, cfg.AdminActors, RoleAdmin); err != nil {
		return nil, err
	}
	if err := seedActors(enforcer, cfg.SupportActors, RoleSupport); err != nil {
		return nil, err
	}
	if _, err := enforcer.AddGroupingPolicy(SystemActor, RoleSystem); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor = normalizeActor(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(actor, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		logger.WithContext(ctx, s.log).Warn("authorization denied",
			zap.String("actor", actor),
			zap.String("object", object),
			zap.String("action", action),
			zap.Bool("security_event", true),
		)
		return ErrForbidden
	}
	return nil
}

// Role returns the first role bound to actor, or "" when it has none.
func (s *ServiceImpl) Role(actor string) string {
	roles, err := s.enforcer.GetRolesForUser(normalizeActor(actor))
	if err != nil || len(roles) == 0 {
		return ""
	}
	return roles[0]
}

func normalizeActor(actor string) string {
	return strings.ToLower(strings.TrimSpace(actor))
}

func seedActors(enforcer *casbin.SyncedEnforcer, actors []string, role string) error {
	for _, actor := range actors {
		actor = normalizeActor(actor)
		if actor == "" {
			continue
		}
		if _, err := enforcer.AddGroupingPolicy(actor, role); err != nil {
			return err
		}
	}
	return nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Support can look but not touch.
		{RoleSupport, ObjectAttempt, ActionAttemptView},

		{RoleAdmin, ObjectAttempt, "*"},

		// Background jobs
		{RoleSystem, ObjectAttempt, ActionAttemptSync},
		{RoleSystem, ObjectAttempt, ActionAttemptCancel},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}

package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/moviestore/internal/audit/domain"
	authdomain "github.com/smallbiznis/moviestore/internal/auth/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectMovie    = "movie"
	ObjectRent     = "rent"
	ObjectSale     = "sale"
	ObjectAuditLog = "audit_log"
)

const (
	ActionMovieCreate = "movie.create"
	ActionMovieUpdate = "movie.update"
	ActionMovieDelete = "movie.delete"
	ActionMovieLike   = "movie.like"

	ActionRentCreate  = "rent.create"
	ActionRentView    = "rent.view"
	ActionRentViewAll = "rent.view_all"
	ActionRentReturn  = "rent.return"

	ActionSaleCreate  = "sale.create"
	ActionSaleView    = "sale.view"
	ActionSaleViewAll = "sale.view_all"

	ActionAuditLogView = "audit_log.view"
)

const (
	RoleAdmin    = "role:admin"
	RoleCustomer = "role:customer"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer loads policies from the casbin_rule table and seeds the
// built-in role grants.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
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
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, principal authdomain.Principal, object string, action string) error {
	if principal.UserID == 0 || !principal.Role.Valid() {
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

	subject := subjectFor(principal)
	if err := s.ensureGrouping(subject, roleFor(principal.Role)); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, principal, object, action)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role link per user subject.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			s.log.Warn("failed to drop stale role link", zap.String("subject", subject), zap.Error(err))
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, principal authdomain.Principal, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	actorID := principal.UserID.String()
	targetID := object
	if err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeUser), &actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"role":    string(principal.Role),
		"subject": subjectFor(principal),
	}); err != nil {
		s.log.Warn("failed to audit denied request", zap.Error(err))
	}
}

func subjectFor(principal authdomain.Principal) string {
	return fmt.Sprintf("user:%s", principal.UserID)
}

func roleFor(role authdomain.Role) string {
	return fmt.Sprintf("role:%s", strings.ToLower(string(role)))
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Customer permissions
		{RoleCustomer, ObjectMovie, ActionMovieLike},
		{RoleCustomer, ObjectRent, ActionRentCreate},
		{RoleCustomer, ObjectRent, ActionRentView},
		{RoleCustomer, ObjectRent, ActionRentReturn},
		{RoleCustomer, ObjectSale, ActionSaleCreate},
		{RoleCustomer, ObjectSale, ActionSaleView},

		// Admin permissions
		{RoleAdmin, ObjectMovie, ActionMovieCreate},
		{RoleAdmin, ObjectMovie, ActionMovieUpdate},
		{RoleAdmin, ObjectMovie, ActionMovieDelete},
		{RoleAdmin, ObjectMovie, ActionMovieLike},
		{RoleAdmin, ObjectRent, ActionRentCreate},
		{RoleAdmin, ObjectRent, ActionRentView},
		{RoleAdmin, ObjectRent, ActionRentViewAll},
		{RoleAdmin, ObjectRent, ActionRentReturn},
		{RoleAdmin, ObjectSale, ActionSaleCreate},
		{RoleAdmin, ObjectSale, ActionSaleView},
		{RoleAdmin, ObjectSale, ActionSaleViewAll},
		{RoleAdmin, ObjectAuditLog, ActionAuditLogView},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}

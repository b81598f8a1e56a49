package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/launchpad/internal/audit/domain"
	"github.com/smallbiznis/launchpad/internal/identity"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectCatalog        = "catalog"
	ObjectOrder          = "order"
	ObjectCheckout       = "checkout"
	ObjectLaunchRequest  = "launch_request"
	ObjectLaunchAdmin    = "launch_admin"
	ObjectLaunchProgress = "launch_progress"
	ObjectBenefit        = "benefit"
	ObjectAuditLog       = "audit_log"
	ObjectPayment        = "payment"
)

const (
	ActionCatalogCreate = "catalog.create"
	ActionCatalogUpdate = "catalog.update"

	ActionOrderCreate = "order.create"
	ActionOrderView   = "order.view"
	ActionOrderCancel = "order.cancel"

	ActionCheckoutBegin = "checkout.begin"

	ActionLaunchRequestEdit   = "launch_request.edit"
	ActionLaunchRequestView   = "launch_request.view"
	ActionLaunchRequestSubmit = "launch_request.submit"

	ActionLaunchBoardView    = "launch_admin.board_view"
	ActionLaunchStatusUpdate = "launch_admin.status_update"
	ActionLaunchReopen       = "launch_admin.reopen"
	ActionLaunchWaivePayment = "launch_admin.waive_payment"

	ActionLaunchProgressView   = "launch_progress.view"
	ActionLaunchProgressUpdate = "launch_progress.update"

	ActionBenefitClaim  = "benefit.claim"
	ActionBenefitRedeem = "benefit.redeem"
	ActionBenefitManage = "benefit.manage"

	ActionAuditLogView = "audit_log.view"

	ActionOverpaymentView = "payment.overpayment_view"
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

// NewEnforcer persists policies through the gorm adapter.
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
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// NewMemoryEnforcer builds an enforcer without a storage adapter.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, role string, object string, action string) error {
	parsed, ok := identity.ParseRole(role)
	if !ok {
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

	allowed, err := s.enforcer.Enforce(subject(parsed), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.Record(ctx, "authorization.denied", "authorization", object, map[string]any{
		"object": object,
		"action": action,
	}); err != nil {
		s.log.Warn("audit authorization denial failed", zap.Error(err))
	}
}

func subject(role identity.Role) string {
	return fmt.Sprintf("role:%s", role)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	client := subject(identity.RoleClient)
	tier1 := subject(identity.RoleStaffTier1)
	tier2 := subject(identity.RoleStaffTier2)
	superadmin := subject(identity.RoleSuperadmin)

	policies := [][]string{
		// Clients act on their own records; ownership is checked by each service.
		{client, ObjectOrder, ActionOrderCreate},
		{client, ObjectOrder, ActionOrderView},
		{client, ObjectOrder, ActionOrderCancel},
		{client, ObjectCheckout, ActionCheckoutBegin},
		{client, ObjectLaunchRequest, ActionLaunchRequestEdit},
		{client, ObjectLaunchRequest, ActionLaunchRequestView},
		{client, ObjectLaunchRequest, ActionLaunchRequestSubmit},
		{client, ObjectLaunchProgress, ActionLaunchProgressView},
		{client, ObjectBenefit, ActionBenefitClaim},
		{client, ObjectBenefit, ActionBenefitRedeem},

		// Tier 1 staff run the day to day workflow.
		{tier1, ObjectOrder, ActionOrderView},
		{tier1, ObjectLaunchRequest, ActionLaunchRequestView},
		{tier1, ObjectLaunchAdmin, ActionLaunchBoardView},
		{tier1, ObjectLaunchAdmin, ActionLaunchStatusUpdate},
		{tier1, ObjectLaunchProgress, ActionLaunchProgressView},
		{tier1, ObjectLaunchProgress, ActionLaunchProgressUpdate},

		// Tier 2 staff may unlock forms and waive payment.
		{tier2, ObjectLaunchAdmin, ActionLaunchReopen},
		{tier2, ObjectLaunchAdmin, ActionLaunchWaivePayment},
		{tier2, ObjectBenefit, ActionBenefitRedeem},
		{tier2, ObjectAuditLog, ActionAuditLogView},
		{tier2, ObjectPayment, ActionOverpaymentView},

		{superadmin, ObjectCatalog, ActionCatalogCreate},
		{superadmin, ObjectCatalog, ActionCatalogUpdate},
		{superadmin, ObjectBenefit, ActionBenefitManage},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	inheritance := [][]string{
		{superadmin, tier2},
		{tier2, tier1},
	}
	for _, rule := range inheritance {
		has, err := enforcer.HasGroupingPolicy(rule)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddGroupingPolicy(rule); err != nil {
			return err
		}
	}
	return nil
}

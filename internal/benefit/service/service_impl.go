package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/launchpad/internal/audit/domain"
	"github.com/smallbiznis/launchpad/internal/benefit/domain"
	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/internal/identity"
	obsmetrics "github.com/smallbiznis/launchpad/internal/observability/metrics"
	"github.com/smallbiznis/launchpad/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("benefit.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) ListBenefits(ctx context.Context) ([]domain.Benefit, error) {
	if _, err := identity.Require(ctx); err != nil {
		return nil, err
	}
	items, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Benefit{}
	}
	return items, nil
}

func (s *Service) CreateBenefit(ctx context.Context, req domain.CreateRequest) (*domain.Benefit, error) {
	if _, err := identity.RequireStaff(ctx, identity.RoleSuperadmin); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	partner := strings.TrimSpace(req.Partner)
	if partner == "" {
		return nil, domain.ErrInvalidPartner
	}

	benefit := &domain.Benefit{
		ID:          s.genID.Generate().Int64(),
		Name:        name,
		Partner:     partner,
		Description: trimmed(req.Description),
		IsActive:    true,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.repo.InsertBenefit(ctx, s.db, benefit); err != nil {
		return nil, err
	}
	s.audit(ctx, "benefit.created", benefit.ID, map[string]any{"name": name, "partner": partner})
	return benefit, nil
}

func (s *Service) Issue(ctx context.Context, benefitID int64) (*domain.Code, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.requireActive(ctx, benefitID); err != nil {
		return nil, err
	}

	code := &domain.Code{
		ID:        s.genID.Generate().Int64(),
		BenefitID: benefitID,
		UserID:    caller.UserID,
		Code:      domain.CodePrefix + ulid.Make().String(),
		CreatedAt: s.clock.Now(),
	}
	// The (benefit_id, user_id) unique index decides concurrent issues.
	if err := s.repo.InsertCode(ctx, s.db, code); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrCodeAlreadyIssued
		}
		return nil, err
	}

	s.obsMetrics.RecordBenefitCodeIssued(ctx)
	s.log.Info("benefit code issued",
		zap.Int64("benefit_id", benefitID),
		zap.String("user_id", caller.UserID),
	)
	return code, nil
}

func (s *Service) GetIssued(ctx context.Context, benefitID int64) (*domain.Code, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	if benefitID <= 0 {
		return nil, domain.ErrInvalidID
	}
	code, err := s.repo.FindCode(ctx, s.db, benefitID, caller.UserID)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, domain.ErrCodeNotFound
	}
	return code, nil
}

// Redeem marks a code used. Holders redeem their own codes; staff may redeem any.
func (s *Service) Redeem(ctx context.Context, raw string) (*domain.Code, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	value := strings.ToUpper(strings.TrimSpace(raw))
	if !strings.HasPrefix(value, domain.CodePrefix) || len(value) == len(domain.CodePrefix) {
		return nil, domain.ErrInvalidCode
	}

	code, err := s.repo.FindByCode(ctx, s.db, value)
	if err != nil {
		return nil, err
	}
	if code == nil || !caller.CanAccess(code.UserID) {
		return nil, domain.ErrCodeNotFound
	}

	updated, err := s.repo.MarkUsed(ctx, s.db, code.ID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.ErrCodeAlreadyUsed
	}
	if caller.Role.IsStaff() {
		s.audit(ctx, "benefit_code.redeemed", code.BenefitID, map[string]any{"code_id": strconv.FormatInt(code.ID, 10)})
	}
	return s.repo.FindByCode(ctx, s.db, value)
}

func (s *Service) requireActive(ctx context.Context, benefitID int64) error {
	if benefitID <= 0 {
		return domain.ErrInvalidID
	}
	benefit, err := s.repo.FindBenefit(ctx, s.db, benefitID)
	if err != nil {
		return err
	}
	if benefit == nil || !benefit.IsActive {
		return domain.ErrBenefitNotFound
	}
	return nil
}

func (s *Service) audit(ctx context.Context, action string, benefitID int64, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.Record(ctx, action, "benefit", strconv.FormatInt(benefitID, 10), metadata); err != nil {
		s.log.Warn("audit benefit action", zap.String("action", action), zap.Error(err))
	}
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}

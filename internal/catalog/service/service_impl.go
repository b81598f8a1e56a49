package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/launchpad/internal/audit/domain"
	"github.com/smallbiznis/launchpad/internal/catalog/domain"
	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository

	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
	sfg   singleflight.Group

	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,

		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Offering, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidID
	}

	// Checkout bursts read the same offerings; share one query per id.
	v, err, _ := s.sfg.Do(fmt.Sprintf("offering:%d", id), func() (interface{}, error) {
		return s.repo.FindByID(ctx, s.db, id)
	})
	if err != nil {
		return nil, err
	}
	item, _ := v.(*domain.Offering)
	if item == nil {
		return nil, domain.ErrNotFound
	}
	copied := *item
	return &copied, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Offering, error) {
	category := strings.TrimSpace(req.Category)
	if category != "" && !domain.IsValidCategory(category) {
		return nil, domain.ErrInvalidCategory
	}
	return s.repo.List(ctx, s.db, domain.ListRequest{
		Category:   category,
		ActiveOnly: req.ActiveOnly,
	})
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Offering, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	category := strings.TrimSpace(req.Category)
	if !domain.IsValidCategory(category) {
		return nil, domain.ErrInvalidCategory
	}
	if req.UnitPrice < 0 {
		return nil, domain.ErrInvalidPrice
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		return nil, domain.ErrInvalidCurrency
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = name
	}
	code = slug.Make(code)

	features := req.Features
	if features == nil {
		features = []string{}
	}
	rawFeatures, err := json.Marshal(features)
	if err != nil {
		return nil, err
	}

	var description *string
	if req.Description != nil {
		trimmed := strings.TrimSpace(*req.Description)
		if trimmed != "" {
			description = &trimmed
		}
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.clock.Now()
	offering := &domain.Offering{
		ID:          s.genID.Generate().Int64(),
		Code:        code,
		Name:        name,
		Category:    category,
		Description: description,
		UnitPrice:   req.UnitPrice,
		Currency:    currency,
		Features:    datatypes.JSON(rawFeatures),
		IsActive:    active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, s.db, offering); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrCodeTaken
		}
		return nil, err
	}

	s.log.Info("offering created", zap.Int64("offering_id", offering.ID), zap.String("code", code))
	s.audit(ctx, "offering.created", offering.ID, map[string]any{
		"code":       code,
		"category":   category,
		"unit_price": offering.UnitPrice,
	})
	return offering, nil
}

func (s *Service) SetActive(ctx context.Context, id int64, active bool) (*domain.Offering, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidID
	}
	updated, err := s.repo.SetActive(ctx, s.db, id, active, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.ErrNotFound
	}
	s.sfg.Forget(fmt.Sprintf("offering:%d", id))
	s.audit(ctx, "offering.active_changed", id, map[string]any{"active": active})
	return s.Get(ctx, id)
}

func (s *Service) audit(ctx context.Context, action string, offeringID int64, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.Record(ctx, action, "offering", strconv.FormatInt(offeringID, 10), metadata); err != nil {
		s.log.Warn("audit offering action", zap.String("action", action), zap.Error(err))
	}
}

package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/launchpad/internal/audit/domain"
	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/internal/config"
	eventdomain "github.com/smallbiznis/launchpad/internal/events/domain"
	fulfillmentdomain "github.com/smallbiznis/launchpad/internal/fulfillment/domain"
	"github.com/smallbiznis/launchpad/internal/identity"
	"github.com/smallbiznis/launchpad/internal/launch/domain"
	"github.com/smallbiznis/launchpad/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         config.Config
	Repo        domain.Repository
	Recorder    eventdomain.Recorder
	Dispatcher  eventdomain.Dispatcher
	Fulfillment fulfillmentdomain.Service
	AuditSvc    auditdomain.Service `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	cfg         config.Config
	repo        domain.Repository
	recorder    eventdomain.Recorder
	dispatcher  eventdomain.Dispatcher
	fulfillment fulfillmentdomain.Service
	auditSvc    auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("launch.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		cfg:         p.Cfg,
		repo:        p.Repo,
		recorder:    p.Recorder,
		dispatcher:  p.Dispatcher,
		fulfillment: p.Fulfillment,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) Start(ctx context.Context) (*domain.LaunchRequest, bool, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.repo.FindOpenByUser(ctx, s.db, caller.UserID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	now := s.clock.Now()
	req := &domain.LaunchRequest{
		ID:             s.genID.Generate().Int64(),
		UserID:         caller.UserID,
		CurrentStep:    domain.StepPersonal,
		IsStarted:      true,
		IsFormComplete: false,
		PaymentStatus:  domain.PaymentPending,
		AdminStatus:    domain.AdminNew,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, req); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// A concurrent start won; hand back its record.
			existing, err := s.repo.FindOpenByUser(ctx, s.db, caller.UserID)
			if err != nil {
				return nil, false, err
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("start launch request: %w", err)
	}

	s.log.Info("launch request started", zap.Int64("launch_request_id", req.ID), zap.String("user_id", caller.UserID))
	return req, true, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.LaunchRequest, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	req, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(req.UserID) {
		return nil, domain.ErrNotFound
	}
	return req, nil
}

func (s *Service) GetCurrent(ctx context.Context) (*domain.LaunchRequest, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	req, err := s.repo.FindOpenByUser(ctx, s.db, caller.UserID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, domain.ErrNotFound
	}
	return req, nil
}

func (s *Service) Lookup(ctx context.Context, id int64) (*domain.LaunchRequest, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidID
	}
	req, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, domain.ErrNotFound
	}
	return req, nil
}

// owned loads a request the caller may edit. Only the owner edits form fields.
func (s *Service) owned(ctx context.Context, id int64) (*domain.LaunchRequest, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	req, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != caller.UserID {
		if caller.Role.IsStaff() {
			return nil, identity.ErrForbidden
		}
		return nil, domain.ErrNotFound
	}
	return req, nil
}

func (s *Service) SaveStep(ctx context.Context, id int64, step int, payload []byte) (*domain.LaunchRequest, error) {
	if step < 1 || step > domain.StepCount {
		return nil, domain.ErrInvalidStep
	}
	req, err := s.owned(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.IsFormComplete {
		return nil, domain.ErrFormLocked
	}
	if step > req.CurrentStep {
		return nil, domain.ErrStepOutOfOrder
	}

	columns, err := domain.DecodeStep(step, payload)
	if err != nil {
		return nil, err
	}

	saved, err := s.repo.SaveStepColumns(ctx, s.db, id, columns, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("save step %d: %w", step, err)
	}
	if !saved {
		// The form was submitted between our read and the write.
		return nil, domain.ErrFormLocked
	}
	return s.Lookup(ctx, id)
}

func (s *Service) AdvanceStep(ctx context.Context, id int64, step int) (*domain.LaunchRequest, error) {
	if step < 1 || step > domain.StepCount {
		return nil, domain.ErrInvalidStep
	}
	req, err := s.owned(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.IsFormComplete {
		return nil, domain.ErrFormLocked
	}
	if step > req.CurrentStep {
		return nil, domain.ErrStepOutOfOrder
	}
	if missing := req.MissingFields(step); len(missing) > 0 {
		return nil, &domain.IncompleteError{Err: domain.ErrIncompleteStep, Steps: []int{step}, Missing: missing}
	}

	next := step + 1
	if next > domain.StepCount {
		next = domain.StepCount
	}
	if _, err := s.repo.AdvanceStep(ctx, s.db, id, next, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("advance step: %w", err)
	}
	return s.Lookup(ctx, id)
}

func (s *Service) SubmitForm(ctx context.Context, id int64) (*domain.LaunchRequest, error) {
	req, err := s.owned(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.IsFormComplete {
		return s.evaluateFulfillment(ctx, req)
	}
	if missing := req.MissingSteps(); len(missing) > 0 {
		return nil, &domain.IncompleteError{Err: domain.ErrIncompleteForm, Steps: missing}
	}

	now := s.clock.Now()
	var event *eventdomain.Event
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated, err := s.repo.MarkFormComplete(ctx, tx, id, now)
		if err != nil || !updated {
			return err
		}
		event, err = s.recorder.Record(ctx, tx, eventdomain.EventLaunchRequestSubmitted, eventdomain.AggregateLaunchRequest, strconv.FormatInt(id, 10), eventdomain.LaunchRequestSubmittedPayload{
			LaunchRequestID: strconv.FormatInt(id, 10),
			UserID:          req.UserID,
			SubmittedAt:     now,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("submit form: %w", err)
	}
	if event != nil {
		s.dispatcher.Dispatch(ctx, event)
	}
	s.log.Info("launch request form completed", zap.Int64("launch_request_id", id))

	req, err = s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.evaluateFulfillment(ctx, req)
}

func (s *Service) ConfirmPayment(ctx context.Context, id int64, conf domain.PaymentConfirmation) (*domain.LaunchRequest, bool, error) {
	conf.TransactionID = strings.TrimSpace(conf.TransactionID)
	if conf.TransactionID == "" {
		return nil, false, domain.ErrInvalidTransactionID
	}
	if id <= 0 {
		return nil, false, domain.ErrInvalidID
	}
	conf.Currency = strings.ToUpper(strings.TrimSpace(conf.Currency))

	var (
		applied bool
		event   *eventdomain.Event
	)
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated, err := s.repo.MarkPaymentCompleted(ctx, tx, id, conf, now)
		if err != nil {
			return err
		}
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if !updated {
			if current.ProviderTransactionID != nil && *current.ProviderTransactionID != conf.TransactionID {
				s.log.Warn("duplicate launch payment with different transaction",
					zap.Int64("launch_request_id", id),
					zap.String("provider_transaction_id", conf.TransactionID),
				)
			}
			return nil
		}

		applied = true
		event, err = s.recorder.Record(ctx, tx, eventdomain.EventLaunchRequestPaid, eventdomain.AggregateLaunchRequest, strconv.FormatInt(id, 10), eventdomain.LaunchRequestPaidPayload{
			LaunchRequestID: strconv.FormatInt(id, 10),
			UserID:          current.UserID,
			TransactionID:   conf.TransactionID,
			Amount:          conf.Amount,
			Currency:        conf.Currency,
			PaidAt:          now,
		})
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if event != nil {
		s.dispatcher.Dispatch(ctx, event)
	}
	if applied {
		s.log.Info("launch request paid",
			zap.Int64("launch_request_id", id),
			zap.String("provider_transaction_id", conf.TransactionID),
		)
	}

	req, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, false, err
	}
	req, err = s.evaluateFulfillment(ctx, req)
	if err != nil {
		return nil, applied, err
	}
	return req, applied, nil
}

func (s *Service) MarkPaymentFailed(ctx context.Context, id int64, reason string) (*domain.LaunchRequest, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidID
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "payment_failed"
	}
	if _, err := s.repo.MarkPaymentFailed(ctx, s.db, id, reason, s.clock.Now()); err != nil {
		return nil, err
	}
	req, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.PaymentStatus.Settled() {
		return nil, domain.ErrPaymentSettled
	}
	return req, nil
}

func (s *Service) SimulatePayment(ctx context.Context, id int64) (*domain.LaunchRequest, error) {
	if !s.cfg.SimulationAllowed() {
		return nil, domain.ErrSimulationDisabled
	}
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	conf := domain.PaymentConfirmation{
		TransactionID: "sim_" + s.genID.Generate().String(),
		Currency:      "USD",
	}
	if req.PackageOfferingID != nil {
		conf.OfferingID = req.PackageOfferingID
	}
	req, _, err = s.ConfirmPayment(ctx, id, conf)
	if err != nil {
		return nil, err
	}
	s.log.Warn("simulated payment applied", zap.Int64("launch_request_id", id))
	return req, nil
}

func (s *Service) WaivePayment(ctx context.Context, id int64) (*domain.LaunchRequest, error) {
	if _, err := identity.RequireStaff(ctx, identity.RoleStaffTier2); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, domain.ErrInvalidID
	}
	updated, err := s.repo.WaivePayment(ctx, s.db, id, s.clock.Now())
	if err != nil {
		return nil, err
	}
	req, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !updated && req.PaymentStatus == domain.PaymentCompleted {
		return nil, domain.ErrPaymentSettled
	}
	if updated {
		s.audit(ctx, "launch_request.payment_waived", id, nil)
	}
	return s.evaluateFulfillment(ctx, req)
}

func (s *Service) SetAdminStatus(ctx context.Context, id int64, status domain.AdminStatus) (*domain.LaunchRequest, error) {
	if _, err := identity.RequireStaff(ctx, identity.RoleStaffTier1); err != nil {
		return nil, err
	}
	status, ok := domain.ParseAdminStatus(strings.TrimSpace(string(status)))
	if !ok {
		return nil, domain.ErrInvalidAdminStatus
	}
	before, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	// Any column to any column: staff may move cards backward or skip ahead.
	updated, err := s.repo.SetAdminStatus(ctx, s.db, id, status, s.clock.Now())
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrOpenRequestExists
		}
		return nil, err
	}
	if !updated {
		return nil, domain.ErrNotFound
	}

	s.audit(ctx, "launch_request.admin_status_changed", id, map[string]any{
		"from": string(before.AdminStatus),
		"to":   string(status),
	})
	return s.Lookup(ctx, id)
}

func (s *Service) ReopenForm(ctx context.Context, id int64) (*domain.LaunchRequest, error) {
	if _, err := identity.RequireStaff(ctx, identity.RoleStaffTier2); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, domain.ErrInvalidID
	}
	updated, err := s.repo.ReopenForm(ctx, s.db, id, s.clock.Now())
	if err != nil {
		return nil, err
	}
	req, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if updated {
		s.audit(ctx, "launch_request.form_reopened", id, nil)
	}
	return req, nil
}

func (s *Service) Board(ctx context.Context) ([]domain.Column, error) {
	if _, err := identity.RequireStaff(ctx, identity.RoleStaffTier1); err != nil {
		return nil, err
	}
	items, err := s.repo.ListForBoard(ctx, s.db)
	if err != nil {
		return nil, err
	}

	columns := make([]domain.Column, len(domain.AdminStatuses))
	index := make(map[domain.AdminStatus]int, len(domain.AdminStatuses))
	for i, status := range domain.AdminStatuses {
		columns[i] = domain.Column{Status: status, Requests: []domain.Card{}}
		index[status] = i
	}
	for _, item := range items {
		i, ok := index[item.AdminStatus]
		if !ok {
			s.log.Warn("launch request with unknown admin status", zap.Int64("launch_request_id", item.ID))
			continue
		}
		columns[i].Requests = append(columns[i].Requests, domain.Card{
			ID:             item.ID,
			UserID:         item.UserID,
			CompanyName:    deref(item.CompanyName),
			FullName:       deref(item.FullName),
			CurrentStep:    item.CurrentStep,
			IsFormComplete: item.IsFormComplete,
			PaymentStatus:  item.PaymentStatus,
			AdminStatus:    item.AdminStatus,
			UpdatedAt:      item.UpdatedAt,
		})
	}
	return columns, nil
}

// evaluateFulfillment opens the fulfillment tracker once both the form and
// payment axes are satisfied. Re-evaluating is harmless.
func (s *Service) evaluateFulfillment(ctx context.Context, req *domain.LaunchRequest) (*domain.LaunchRequest, error) {
	if !req.ReadyForFulfillment() {
		return req, nil
	}
	_, created, err := s.fulfillment.EnsureStarted(ctx, req.ID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("start fulfillment: %w", err)
	}
	if req.FulfillmentStartedAt != nil {
		return req, nil
	}
	if _, err := s.repo.MarkFulfillmentStarted(ctx, s.db, req.ID, s.clock.Now()); err != nil {
		return nil, err
	}
	if created {
		s.log.Info("launch request entered fulfillment", zap.Int64("launch_request_id", req.ID))
	}
	return s.Lookup(ctx, req.ID)
}

func (s *Service) audit(ctx context.Context, action string, id int64, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.Record(ctx, action, "launch_request", strconv.FormatInt(id, 10), metadata); err != nil {
		s.log.Warn("audit record failed", zap.String("action", action), zap.Error(err))
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

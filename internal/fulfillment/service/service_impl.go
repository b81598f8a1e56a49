package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/launchpad/internal/audit/domain"
	"github.com/smallbiznis/launchpad/internal/clock"
	eventdomain "github.com/smallbiznis/launchpad/internal/events/domain"
	"github.com/smallbiznis/launchpad/internal/fulfillment/domain"
	"github.com/smallbiznis/launchpad/internal/identity"
	obsmetrics "github.com/smallbiznis/launchpad/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Recorder   eventdomain.Recorder
	Dispatcher eventdomain.Dispatcher
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	recorder   eventdomain.Recorder
	dispatcher eventdomain.Dispatcher
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics

	starts singleflight.Group
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("fulfillment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		recorder:   p.Recorder,
		dispatcher: p.Dispatcher,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

type startResult struct {
	progress *domain.Progress
	created  bool
}

func (s *Service) EnsureStarted(ctx context.Context, launchRequestID int64, userID string) (*domain.Progress, bool, error) {
	if launchRequestID <= 0 {
		return nil, false, domain.ErrInvalidLaunchRequest
	}

	var leader bool
	key := strconv.FormatInt(launchRequestID, 10)
	v, err, _ := s.starts.Do(key, func() (any, error) {
		leader = true
		return s.start(ctx, launchRequestID, userID)
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(startResult)
	// Callers that piggybacked on another goroutine's start did not create anything.
	return res.progress, res.created && leader, nil
}

func (s *Service) start(ctx context.Context, launchRequestID int64, userID string) (startResult, error) {
	now := s.clock.Now()
	progress := &domain.Progress{
		ID:              s.genID.Generate().Int64(),
		LaunchRequestID: launchRequestID,
		UserID:          strings.TrimSpace(userID),
		StartedAt:       now,
		UpdatedAt:       now,
	}

	var (
		created bool
		event   *eventdomain.Event
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.repo.InsertProgress(ctx, tx, progress)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		created = true

		deliverables := make([]domain.Deliverable, 0, len(domain.Kinds))
		for i, kind := range domain.Kinds {
			deliverables = append(deliverables, domain.Deliverable{
				ID:               s.genID.Generate().Int64(),
				LaunchProgressID: progress.ID,
				Kind:             kind,
				Position:         i + 1,
				Status:           domain.StatusPending,
				UpdatedAt:        now,
			})
		}
		if err := s.repo.InsertDeliverables(ctx, tx, deliverables); err != nil {
			return err
		}

		event, err = s.recorder.Record(ctx, tx, eventdomain.EventLaunchProgressStarted, eventdomain.AggregateLaunchProgress, strconv.FormatInt(launchRequestID, 10), eventdomain.LaunchProgressStartedPayload{
			LaunchRequestID:  strconv.FormatInt(launchRequestID, 10),
			LaunchProgressID: strconv.FormatInt(progress.ID, 10),
			UserID:           progress.UserID,
			StartedAt:        now,
		})
		return err
	})
	if err != nil {
		return startResult{}, fmt.Errorf("start fulfillment: %w", err)
	}

	if event != nil {
		s.dispatcher.Dispatch(ctx, event)
	}
	if created {
		s.obsMetrics.RecordFulfillmentStarted(ctx)
		s.log.Info("fulfillment started",
			zap.Int64("launch_request_id", launchRequestID),
			zap.Int64("launch_progress_id", progress.ID),
		)
	}

	stored, err := s.load(ctx, launchRequestID)
	if err != nil {
		return startResult{}, err
	}
	return startResult{progress: stored, created: created}, nil
}

func (s *Service) Get(ctx context.Context, launchRequestID int64) (*domain.Progress, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	if launchRequestID <= 0 {
		return nil, domain.ErrInvalidLaunchRequest
	}
	progress, err := s.load(ctx, launchRequestID)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(progress.UserID) {
		return nil, domain.ErrNotStarted
	}
	return progress, nil
}

func (s *Service) UpdateDeliverable(ctx context.Context, launchRequestID int64, kind domain.Kind, patch domain.DeliverablePatch) (*domain.Progress, error) {
	if _, err := identity.RequireStaff(ctx, identity.RoleStaffTier1); err != nil {
		return nil, err
	}
	if launchRequestID <= 0 {
		return nil, domain.ErrInvalidLaunchRequest
	}
	if _, ok := domain.ParseKind(string(kind)); !ok {
		return nil, domain.ErrInvalidKind
	}
	columns, err := patchColumns(patch)
	if err != nil {
		return nil, err
	}

	progress, err := s.repo.FindByLaunchRequest(ctx, s.db, launchRequestID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return nil, domain.ErrNotStarted
	}

	now := s.clock.Now()
	columns["updated_at"] = now
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated, err := s.repo.UpdateDeliverable(ctx, tx, progress.ID, kind, columns)
		if err != nil {
			return err
		}
		if !updated {
			return domain.ErrInvalidKind
		}
		return s.repo.Touch(ctx, tx, progress.ID, now)
	})
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{"kind": string(kind)}
	for column, value := range columns {
		if column != "updated_at" {
			metadata[column] = value
		}
	}
	s.audit(ctx, "launch_progress.deliverable_updated", strconv.FormatInt(launchRequestID, 10), metadata)

	return s.load(ctx, launchRequestID)
}

func (s *Service) load(ctx context.Context, launchRequestID int64) (*domain.Progress, error) {
	progress, err := s.repo.FindByLaunchRequest(ctx, s.db, launchRequestID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return nil, domain.ErrNotStarted
	}
	deliverables, err := s.repo.ListDeliverables(ctx, s.db, progress.ID)
	if err != nil {
		return nil, err
	}
	progress.Deliverables = deliverables
	return progress, nil
}

func (s *Service) audit(ctx context.Context, action, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.Record(ctx, action, "launch_progress", targetID, metadata); err != nil {
		s.log.Warn("audit record failed", zap.String("action", action), zap.Error(err))
	}
}

func patchColumns(patch domain.DeliverablePatch) (map[string]any, error) {
	if patch.IsEmpty() {
		return nil, domain.ErrEmptyPatch
	}
	columns := map[string]any{}

	if patch.Progress != nil {
		if *patch.Progress < 0 || *patch.Progress > 100 {
			return nil, domain.ErrInvalidProgress
		}
		columns["progress"] = *patch.Progress
	}
	if patch.Status != nil {
		status, ok := domain.ParseStatus(string(*patch.Status))
		if !ok {
			return nil, domain.ErrInvalidStatus
		}
		columns["status"] = status
		if status == domain.StatusCompleted {
			columns["progress"] = 100
		}
	}
	if patch.DeliveryURL != nil {
		raw := strings.TrimSpace(*patch.DeliveryURL)
		if raw == "" {
			columns["delivery_url"] = nil
		} else {
			parsed, err := url.Parse(raw)
			if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
				return nil, domain.ErrInvalidDeliveryURL
			}
			columns["delivery_url"] = raw
		}
	}
	if patch.CurrentStepLabel != nil {
		columns["current_step_label"] = nullable(*patch.CurrentStepLabel)
	}
	if patch.NextStepLabel != nil {
		columns["next_step_label"] = nullable(*patch.NextStepLabel)
	}
	return columns, nil
}

func nullable(value string) any {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return value
}

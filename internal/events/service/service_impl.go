package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/internal/events/domain"
	"github.com/smallbiznis/launchpad/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	pendingBatchSize = 100
	// pendingGrace leaves freshly committed events to the request that recorded them.
	pendingGrace = 30 * time.Second
	// claimLease is how long a dispatcher owns an event before another may retry it.
	claimLease = 5 * time.Minute
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Repo        domain.Repository
	Subscribers []domain.Subscriber `group:"event_subscribers"`
	Publisher   domain.Publisher    `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        domain.Repository
	subscribers []domain.Subscriber
	publisher   domain.Publisher
}

func New(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("events.service"),
		clock:       p.Clock,
		repo:        p.Repo,
		subscribers: p.Subscribers,
		publisher:   p.Publisher,
	}
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, eventType, aggregateType, aggregateID string, payload any) (*domain.Event, error) {
	eventType = strings.TrimSpace(eventType)
	aggregateType = strings.TrimSpace(aggregateType)
	aggregateID = strings.TrimSpace(aggregateID)
	if eventType == "" || aggregateType == "" || aggregateID == "" {
		return nil, domain.ErrInvalidEvent
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		tx = s.db
	}

	event := &domain.Event{
		ID:            ulid.Make().String(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       datatypes.JSON(body),
		OccurredAt:    s.clock.Now(),
	}
	inserted, err := s.repo.Insert(ctx, tx, event)
	if err != nil {
		return nil, err
	}
	if !inserted {
		s.log.Debug("event already recorded",
			zap.String("event_type", eventType),
			zap.String("aggregate_id", aggregateID),
		)
		return nil, nil
	}
	return event, nil
}

// Dispatch delivers committed events to subscribers and the broker, then marks
// them dispatched. Each event is claimed first so concurrent dispatchers never
// deliver it twice; only a dispatcher that dies mid-delivery leaves it for retry.
func (s *Service) Dispatch(ctx context.Context, events ...*domain.Event) {
	for _, event := range events {
		if event == nil {
			continue
		}
		s.dispatchOne(ctx, *event)
	}
}

func (s *Service) DispatchPending(ctx context.Context) error {
	pending, err := s.repo.ListPending(ctx, s.db, s.clock.Now().Add(-pendingGrace), pendingBatchSize)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		s.log.Info("dispatching pending events", zap.Int("count", len(pending)))
	}
	s.Dispatch(ctx, pending...)
	return nil
}

func (s *Service) dispatchOne(ctx context.Context, event domain.Event) {
	ctx = correlation.ContextWithCorrelationID(ctx, event.ID)
	log := s.log.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", event.EventType),
		zap.String("aggregate_id", event.AggregateID),
	)

	now := s.clock.Now()
	claimed, err := s.repo.Claim(ctx, s.db, event.ID, now, now.Add(-claimLease))
	if err != nil {
		log.Warn("claim event failed", zap.Error(err))
		return
	}
	if !claimed {
		log.Debug("event already claimed")
		return
	}

	for _, sub := range s.subscribers {
		if sub == nil || !sub.Handles(event.EventType) {
			continue
		}
		if err := sub.Handle(ctx, event); err != nil {
			log.Warn("event subscriber failed", zap.String("subscriber", sub.Name()), zap.Error(err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, event); err != nil {
			log.Warn("event publish failed", zap.Error(err))
		}
	}

	if err := s.repo.MarkDispatched(ctx, s.db, event.ID, s.clock.Now()); err != nil {
		log.Warn("mark event dispatched failed", zap.Error(err))
	}
}

package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/launchpad/internal/events/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.Event) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO domain_events (id, event_type, aggregate_type, aggregate_id, payload, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_type, aggregate_type, aggregate_id) DO NOTHING`,
		event.ID,
		event.EventType,
		event.AggregateType,
		event.AggregateID,
		event.Payload,
		event.OccurredAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, id string, at, staleBefore time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE domain_events SET claimed_at = ?
		WHERE id = ? AND dispatched_at IS NULL AND (claimed_at IS NULL OR claimed_at <= ?)`,
		at,
		id,
		staleBefore,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkDispatched(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE domain_events SET dispatched_at = ? WHERE id = ? AND dispatched_at IS NULL`,
		at,
		id,
	).Error
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []*domain.Event
	err := db.WithContext(ctx).Raw(
		`SELECT id, event_type, aggregate_type, aggregate_id, payload, occurred_at, claimed_at, dispatched_at
		FROM domain_events
		WHERE dispatched_at IS NULL AND occurred_at <= ?
		ORDER BY occurred_at ASC, id ASC
		LIMIT ?`,
		before,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindByAggregate(ctx context.Context, db *gorm.DB, eventType, aggregateType, aggregateID string) (*domain.Event, error) {
	var event domain.Event
	err := db.WithContext(ctx).Raw(
		`SELECT id, event_type, aggregate_type, aggregate_id, payload, occurred_at, claimed_at, dispatched_at
		FROM domain_events
		WHERE event_type = ? AND aggregate_type = ? AND aggregate_id = ?`,
		eventType,
		aggregateType,
		aggregateID,
	).Scan(&event).Error
	if err != nil {
		return nil, err
	}
	if event.ID == "" {
		return nil, nil
	}
	return &event, nil
}

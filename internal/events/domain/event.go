package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event types emitted by the lifecycle. Each is recorded at most once per aggregate.
const (
	EventOrderPaid              = "order.paid"
	EventLaunchRequestPaid      = "launch_request.paid"
	EventLaunchProgressStarted  = "launch_progress.started"
	EventLaunchRequestSubmitted = "launch_request.submitted"
)

const (
	AggregateOrder          = "order"
	AggregateLaunchRequest  = "launch_request"
	AggregateLaunchProgress = "launch_progress"
)

// Event is an outbox row written in the same transaction as the state change.
type Event struct {
	ID            string         `gorm:"primaryKey;type:text" json:"id"`
	EventType     string         `gorm:"type:text;not null" json:"event_type"`
	AggregateType string         `gorm:"type:text;not null" json:"aggregate_type"`
	AggregateID   string         `gorm:"type:text;not null" json:"aggregate_id"`
	Payload       datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	OccurredAt    time.Time      `gorm:"not null" json:"occurred_at"`
	ClaimedAt     *time.Time     `json:"claimed_at,omitempty"`
	DispatchedAt  *time.Time     `json:"dispatched_at,omitempty"`
}

func (Event) TableName() string { return "domain_events" }

type OrderPaidPayload struct {
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	CartSessionID string    `json:"cart_session_id,omitempty"`
	Total         int64     `json:"total"`
	Currency      string    `json:"currency"`
	TransactionID string    `json:"transaction_id"`
	PaidAt        time.Time `json:"paid_at"`
}

type LaunchRequestPaidPayload struct {
	LaunchRequestID string    `json:"launch_request_id"`
	UserID          string    `json:"user_id"`
	TransactionID   string    `json:"transaction_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	PaidAt          time.Time `json:"paid_at"`
}

type LaunchProgressStartedPayload struct {
	LaunchRequestID  string    `json:"launch_request_id"`
	LaunchProgressID string    `json:"launch_progress_id"`
	UserID           string    `json:"user_id"`
	StartedAt        time.Time `json:"started_at"`
}

type LaunchRequestSubmittedPayload struct {
	LaunchRequestID string    `json:"launch_request_id"`
	UserID          string    `json:"user_id"`
	SubmittedAt     time.Time `json:"submitted_at"`
}

type Repository interface {
	// Insert returns false when an event of the same type already exists for the aggregate.
	Insert(ctx context.Context, db *gorm.DB, event *Event) (bool, error)
	// Claim takes delivery of an undispatched event. A claim older than
	// staleBefore belongs to a dispatcher that died and may be taken over.
	Claim(ctx context.Context, db *gorm.DB, id string, at, staleBefore time.Time) (bool, error)
	MarkDispatched(ctx context.Context, db *gorm.DB, id string, at time.Time) error
	// ListPending returns undispatched events that occurred at or before before.
	ListPending(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*Event, error)
	FindByAggregate(ctx context.Context, db *gorm.DB, eventType, aggregateType, aggregateID string) (*Event, error)
}

// Subscriber reacts to dispatched events. Failures are logged and never roll back the source change.
type Subscriber interface {
	Name() string
	Handles(eventType string) bool
	Handle(ctx context.Context, event Event) error
}

// Publisher forwards dispatched events to an external broker.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type Recorder interface {
	// Record writes the event inside tx. A nil event with nil error means it was already recorded.
	Record(ctx context.Context, tx *gorm.DB, eventType, aggregateType, aggregateID string, payload any) (*Event, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, events ...*Event)
	DispatchPending(ctx context.Context) error
}

var (
	ErrInvalidEvent = errors.New("invalid_event")
)

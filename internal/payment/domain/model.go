package domain

import (
	"time"

	"gorm.io/datatypes"
)

// EventRecord is a received provider webhook, deduplicated on (provider, provider_event_id).
type EventRecord struct {
	ID              int64          `json:"id,string" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	TargetType      *string        `json:"target_type,omitempty" gorm:"type:text"`
	TargetID        *int64         `json:"target_id,omitempty,string"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
)

// PaymentEvent is a provider webhook normalised by an adapter.
type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	TransactionID   string
	HostedSessionID string
	Type            string
	TargetType      string
	TargetID        int64
	AttemptID       int64
	Amount          int64
	Currency        string
	FailureReason   string
	OccurredAt      time.Time
	RawPayload      []byte
}

const (
	TargetOrder         = "order"
	TargetLaunchRequest = "launch_request"
)

type State string

const (
	StateInit                 State = "init"
	StateAwaitingClientSecret State = "awaiting_client_secret"
	StateEmbeddedAttempt      State = "embedded_attempt"
	StateFallbackToHosted     State = "fallback_to_hosted"
	StateConfirming           State = "confirming"
	StateSucceeded            State = "succeeded"
	StateFailed               State = "failed"
)

func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Trigger names why an attempt left the embedded path.
type Trigger string

const (
	TriggerLoadTimeout        Trigger = "load_timeout"
	TriggerLoadError          Trigger = "load_error"
	TriggerIntentCreateFailed Trigger = "intent_create_failed"
)

// Mode tells the browser what to render for an attempt.
type Mode string

const (
	ModeEmbedded  Mode = "embedded"
	ModeRedirect  Mode = "redirect"
	ModePending   Mode = "pending"
	ModeCompleted Mode = "completed"
	ModeFailed    Mode = "failed"
)

// Attempt is one checkout of an order or launch request.
type Attempt struct {
	ID                    int64      `json:"id,string" gorm:"primaryKey"`
	TargetType            string     `json:"target_type" gorm:"type:text;not null"`
	TargetID              int64      `json:"target_id,string" gorm:"not null"`
	OfferingID            *int64     `json:"offering_id,omitempty,string"`
	UserID                string     `json:"user_id" gorm:"type:text;not null"`
	Amount                int64      `json:"amount" gorm:"not null"`
	Currency              string     `json:"currency" gorm:"type:text;not null"`
	State                 State      `json:"state" gorm:"type:text;not null"`
	Provider              string     `json:"provider" gorm:"type:text;not null"`
	ProviderTransactionID *string    `json:"provider_transaction_id,omitempty" gorm:"type:text"`
	ClientSecret          *string    `json:"client_secret,omitempty" gorm:"type:text"`
	HostedSessionID       *string    `json:"hosted_session_id,omitempty" gorm:"type:text"`
	HostedURL             *string    `json:"hosted_url,omitempty" gorm:"type:text"`
	FallbackTrigger       *Trigger   `json:"fallback_trigger,omitempty" gorm:"type:text"`
	FallbackDeadline      *time.Time `json:"fallback_deadline,omitempty"`
	EmbeddedReadyAt       *time.Time `json:"embedded_ready_at,omitempty"`
	FailureReason         *string    `json:"failure_reason,omitempty" gorm:"type:text"`
	CreatedAt             time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt             time.Time  `json:"updated_at" gorm:"not null"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
}

func (Attempt) TableName() string { return "checkout_attempts" }

// Mode derives the single path the browser may show. Embedded and redirect are never both offered.
func (a *Attempt) Mode() Mode {
	switch a.State {
	case StateAwaitingClientSecret, StateEmbeddedAttempt:
		return ModeEmbedded
	case StateFallbackToHosted:
		if a.HostedURL != nil {
			return ModeRedirect
		}
		return ModePending
	case StateSucceeded:
		return ModeCompleted
	case StateFailed:
		return ModeFailed
	}
	return ModePending
}

// TimedOut reports whether the embedded form missed its readiness deadline.
func (a *Attempt) TimedOut(now time.Time) bool {
	return a.State == StateAwaitingClientSecret &&
		a.EmbeddedReadyAt == nil &&
		a.FallbackDeadline != nil &&
		!now.Before(*a.FallbackDeadline)
}

// Overpayment is money received for a target that was already settled by
// another transaction. Staff refund it through the provider.
type Overpayment struct {
	ID                   int64      `json:"id,string" gorm:"primaryKey"`
	AttemptID            int64      `json:"attempt_id,string" gorm:"not null"`
	TargetType           string     `json:"target_type" gorm:"type:text;not null"`
	TargetID             int64      `json:"target_id,string" gorm:"not null"`
	Provider             string     `json:"provider" gorm:"type:text;not null"`
	TransactionID        string     `json:"transaction_id" gorm:"type:text;not null"`
	SettledTransactionID *string    `json:"settled_transaction_id,omitempty" gorm:"type:text"`
	Amount               int64      `json:"amount" gorm:"not null"`
	Currency             string     `json:"currency" gorm:"type:text;not null"`
	DetectedAt           time.Time  `json:"detected_at" gorm:"not null"`
	RefundedAt           *time.Time `json:"refunded_at,omitempty"`
}

func (Overpayment) TableName() string { return "payment_overpayments" }

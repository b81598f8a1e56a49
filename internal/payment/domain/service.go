package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gorm.io/gorm"
)

type AdapterConfig struct {
	Provider string
	Config   map[string]any
}

// PaymentAdapter verifies and parses one provider's webhooks.
type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

type Repository interface {
	InsertAttempt(ctx context.Context, db *gorm.DB, attempt *Attempt) error
	FindAttempt(ctx context.Context, db *gorm.DB, id int64) (*Attempt, error)
	FindAttemptByHostedSession(ctx context.Context, db *gorm.DB, sessionID string) (*Attempt, error)
	FindAttemptByTransaction(ctx context.Context, db *gorm.DB, transactionID string) (*Attempt, error)
	// FindLiveAttempt returns the non-terminal attempt of a target, if any.
	FindLiveAttempt(ctx context.Context, db *gorm.DB, targetType string, targetID int64) (*Attempt, error)

	IssueClientSecret(ctx context.Context, db *gorm.DB, id int64, transactionID, clientSecret string, deadline, at time.Time) (bool, error)
	MarkEmbeddedReady(ctx context.Context, db *gorm.DB, id int64, at time.Time) (bool, error)
	// ClaimFallback is the single guarded transition into the hosted path.
	ClaimFallback(ctx context.Context, db *gorm.DB, id int64, trigger Trigger, at time.Time) (bool, error)
	SetHostedSession(ctx context.Context, db *gorm.DB, id int64, sessionID, url string, at time.Time) error
	MarkConfirming(ctx context.Context, db *gorm.DB, id int64, at time.Time) (bool, error)
	MarkSucceeded(ctx context.Context, db *gorm.DB, id int64, transactionID string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, id int64, reason string, at time.Time) (bool, error)
	RecordFailureReason(ctx context.Context, db *gorm.DB, id int64, reason string, at time.Time) error
	// ListStaleAttempts returns non-terminal attempts untouched since before, oldest first.
	ListStaleAttempts(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]Attempt, error)

	InsertOverpayment(ctx context.Context, db *gorm.DB, overpayment *Overpayment) (bool, error)
	ListOverpayments(ctx context.Context, db *gorm.DB, limit int) ([]Overpayment, error)

	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id int64, processedAt time.Time) error
}

type Service interface {
	BeginOrderCheckout(ctx context.Context, orderID int64) (*Attempt, error)
	BeginLaunchCheckout(ctx context.Context, launchRequestID int64, offeringID int64) (*Attempt, error)
	// Get applies the load timeout lazily.
	Get(ctx context.Context, attemptID int64) (*Attempt, error)
	ReportReady(ctx context.Context, attemptID int64) (*Attempt, error)
	ReportLoadError(ctx context.Context, attemptID int64, reason string) (*Attempt, error)
	ConfirmEmbedded(ctx context.Context, attemptID int64) (*Attempt, error)
	CompleteHostedReturn(ctx context.Context, sessionID string) (*Attempt, error)
	// ExpireAbandoned fails open attempts idle since before. A late payment still settles them.
	ExpireAbandoned(ctx context.Context, before time.Time, limit int) (int, error)
	// ListOverpayments returns unrefunded duplicate payments, newest first.
	ListOverpayments(ctx context.Context, limit int) ([]Overpayment, error)
	// ApplyEvent settles or fails the target of a verified provider event.
	ApplyEvent(ctx context.Context, event *PaymentEvent) error
}

type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

var (
	ErrInvalidConfig          = errors.New("invalid_config")
	ErrInvalidProvider        = errors.New("invalid_provider")
	ErrProviderNotFound       = errors.New("provider_not_found")
	ErrInvalidPayload         = errors.New("invalid_payload")
	ErrInvalidEvent           = errors.New("invalid_event")
	ErrInvalidSignature       = errors.New("invalid_signature")
	ErrInvalidTarget          = errors.New("invalid_payment_target")
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrInvalidCurrency        = errors.New("invalid_currency")
	ErrEventIgnored           = errors.New("event_ignored")
	ErrEventAlreadyProcessed  = errors.New("event_already_processed")
	ErrInvalidAttemptID       = errors.New("invalid_checkout_attempt_id")
	ErrInvalidSessionID       = errors.New("invalid_hosted_session_id")
	ErrAttemptNotFound        = errors.New("checkout_attempt_not_found")
	ErrAttemptClosed          = errors.New("checkout_attempt_closed")
	ErrAlreadyPaid            = errors.New("checkout_target_already_paid")
	ErrNotPayable             = errors.New("checkout_target_not_payable")
	ErrInvalidPackage         = errors.New("invalid_launch_package")
	ErrCheckoutInProgress     = errors.New("checkout_in_progress")
	ErrRateLimited            = errors.New("checkout_rate_limited")
	ErrFallbackRefused        = errors.New("checkout_fallback_refused")
	ErrEmbeddedUnavailable    = errors.New("checkout_embedded_unavailable")
	ErrPriceChanged           = errors.New("checkout_price_changed")
	ErrAmountMismatch         = errors.New("checkout_amount_mismatch")
	ErrProviderUnavailable    = errors.New("payment_provider_unavailable")
	ErrPaymentDeclined        = errors.New("payment_declined")
	ErrCheckoutUnavailable    = errors.New("checkout_unavailable")
	ErrTransactionNotComplete = errors.New("payment_not_complete")
)

package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// DeliverablePatch carries staff edits; nil fields are left untouched.
type DeliverablePatch struct {
	Status           *Status `json:"status,omitempty"`
	Progress         *int    `json:"progress,omitempty"`
	DeliveryURL      *string `json:"delivery_url,omitempty"`
	CurrentStepLabel *string `json:"current_step_label,omitempty"`
	NextStepLabel    *string `json:"next_step_label,omitempty"`
}

func (p DeliverablePatch) IsEmpty() bool {
	return p.Status == nil && p.Progress == nil && p.DeliveryURL == nil &&
		p.CurrentStepLabel == nil && p.NextStepLabel == nil
}

type Repository interface {
	// InsertProgress returns false when the launch request already has a progress record.
	InsertProgress(ctx context.Context, db *gorm.DB, progress *Progress) (bool, error)
	InsertDeliverables(ctx context.Context, db *gorm.DB, deliverables []Deliverable) error
	FindByLaunchRequest(ctx context.Context, db *gorm.DB, launchRequestID int64) (*Progress, error)
	ListDeliverables(ctx context.Context, db *gorm.DB, progressID int64) ([]Deliverable, error)
	UpdateDeliverable(ctx context.Context, db *gorm.DB, progressID int64, kind Kind, columns map[string]any) (bool, error)
	Touch(ctx context.Context, db *gorm.DB, progressID int64, at time.Time) error
}

type Service interface {
	// EnsureStarted creates the progress record once; created is false on every later call.
	EnsureStarted(ctx context.Context, launchRequestID int64, userID string) (progress *Progress, created bool, err error)
	Get(ctx context.Context, launchRequestID int64) (*Progress, error)
	UpdateDeliverable(ctx context.Context, launchRequestID int64, kind Kind, patch DeliverablePatch) (*Progress, error)
}

var (
	ErrInvalidLaunchRequest = errors.New("invalid_launch_request_id")
	ErrInvalidKind          = errors.New("invalid_deliverable_kind")
	ErrInvalidStatus        = errors.New("invalid_deliverable_status")
	ErrInvalidProgress      = errors.New("invalid_deliverable_progress")
	ErrInvalidDeliveryURL   = errors.New("invalid_delivery_url")
	ErrEmptyPatch           = errors.New("empty_deliverable_patch")
	ErrNotStarted           = errors.New("fulfillment_not_started")
)

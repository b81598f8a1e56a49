package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// PaymentConfirmation is a provider-confirmed payment for a launch request.
type PaymentConfirmation struct {
	TransactionID string
	Amount        int64
	Currency      string
	OfferingID    *int64
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, req *LaunchRequest) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*LaunchRequest, error)
	FindOpenByUser(ctx context.Context, db *gorm.DB, userID string) (*LaunchRequest, error)
	ListForBoard(ctx context.Context, db *gorm.DB) ([]LaunchRequest, error)

	// SaveStepColumns fails (false) once the form is complete.
	SaveStepColumns(ctx context.Context, db *gorm.DB, id int64, columns map[string]any, at time.Time) (bool, error)
	AdvanceStep(ctx context.Context, db *gorm.DB, id int64, next int, at time.Time) (bool, error)
	MarkFormComplete(ctx context.Context, db *gorm.DB, id int64, at time.Time) (bool, error)
	ReopenForm(ctx context.Context, db *gorm.DB, id int64, at time.Time) (bool, error)

	MarkPaymentCompleted(ctx context.Context, db *gorm.DB, id int64, conf PaymentConfirmation, at time.Time) (bool, error)
	MarkPaymentFailed(ctx context.Context, db *gorm.DB, id int64, reason string, at time.Time) (bool, error)
	WaivePayment(ctx context.Context, db *gorm.DB, id int64, at time.Time) (bool, error)

	SetAdminStatus(ctx context.Context, db *gorm.DB, id int64, status AdminStatus, at time.Time) (bool, error)
	MarkFulfillmentStarted(ctx context.Context, db *gorm.DB, id int64, at time.Time) (bool, error)
}

type Service interface {
	Start(ctx context.Context) (req *LaunchRequest, created bool, err error)
	Get(ctx context.Context, id int64) (*LaunchRequest, error)
	GetCurrent(ctx context.Context) (*LaunchRequest, error)
	// Lookup skips ownership checks and is meant for internal collaborators.
	Lookup(ctx context.Context, id int64) (*LaunchRequest, error)

	SaveStep(ctx context.Context, id int64, step int, payload []byte) (*LaunchRequest, error)
	AdvanceStep(ctx context.Context, id int64, step int) (*LaunchRequest, error)
	SubmitForm(ctx context.Context, id int64) (*LaunchRequest, error)

	// ConfirmPayment is idempotent; applied is false when payment was already completed.
	ConfirmPayment(ctx context.Context, id int64, conf PaymentConfirmation) (req *LaunchRequest, applied bool, err error)
	MarkPaymentFailed(ctx context.Context, id int64, reason string) (*LaunchRequest, error)
	SimulatePayment(ctx context.Context, id int64) (*LaunchRequest, error)
	WaivePayment(ctx context.Context, id int64) (*LaunchRequest, error)

	SetAdminStatus(ctx context.Context, id int64, status AdminStatus) (*LaunchRequest, error)
	ReopenForm(ctx context.Context, id int64) (*LaunchRequest, error)
	Board(ctx context.Context) ([]Column, error)
}

var (
	ErrInvalidID            = errors.New("invalid_launch_request_id")
	ErrInvalidStep          = errors.New("invalid_step")
	ErrInvalidStepPayload   = errors.New("invalid_step_payload")
	ErrInvalidEmail         = errors.New("invalid_email")
	ErrInvalidURL           = errors.New("invalid_url")
	ErrInvalidCompanyType   = errors.New("invalid_company_type")
	ErrInvalidCapital       = errors.New("invalid_capital_amount")
	ErrInvalidShareholders  = errors.New("invalid_shareholders")
	ErrInvalidAdminStatus   = errors.New("invalid_admin_status")
	ErrInvalidTransactionID = errors.New("invalid_transaction_id")
	ErrNotFound             = errors.New("launch_request_not_found")
	ErrFormLocked           = errors.New("launch_request_form_locked")
	ErrStepOutOfOrder       = errors.New("launch_request_step_out_of_order")
	ErrIncompleteStep       = errors.New("launch_request_step_incomplete")
	ErrIncompleteForm       = errors.New("launch_request_form_incomplete")
	ErrFormNotComplete      = errors.New("launch_request_form_not_complete")
	ErrPaymentSettled       = errors.New("launch_request_payment_settled")
	ErrSimulationDisabled   = errors.New("payment_simulation_disabled")
	ErrOpenRequestExists    = errors.New("launch_request_already_open")
)

// IncompleteError names what is missing; it unwraps to ErrIncompleteStep or ErrIncompleteForm.
type IncompleteError struct {
	Err     error
	Steps   []int
	Missing []string
}

func (e *IncompleteError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: %s", e.Err.Error(), strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s: steps %v", e.Err.Error(), e.Steps)
}

func (e *IncompleteError) Unwrap() error { return e.Err }

package domain

import (
	"context"
	"errors"
	"io"
	"time"

	pricingdomain "github.com/smallbiznis/launchpad/internal/pricing/domain"
	"gorm.io/gorm"
)

type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type CreateOrderRequest struct {
	Items   []pricingdomain.LineRequest `json:"items"`
	Contact Contact                     `json:"contact"`
	// ClientTotal is what the browser displayed. It is logged, never charged.
	ClientTotal   *int64 `json:"client_total,omitempty"`
	CartSessionID string `json:"-"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	InsertLines(ctx context.Context, db *gorm.DB, lines []Line) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Order, error)
	FindLines(ctx context.Context, db *gorm.DB, orderID int64) ([]Line, error)
	MarkPaid(ctx context.Context, db *gorm.DB, id int64, providerTxID string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, id int64, reason string, at time.Time) (bool, error)
	Cancel(ctx context.Context, db *gorm.DB, id int64, at time.Time) (bool, error)
}

type Service interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	// Get enforces ownership; Lookup is for internal collaborators.
	Get(ctx context.Context, id int64) (*Order, error)
	Lookup(ctx context.Context, id int64) (*Order, error)
	// MarkPaid is idempotent; applied is false when the order was already paid.
	MarkPaid(ctx context.Context, id int64, providerTxID string) (order *Order, applied bool, err error)
	MarkFailed(ctx context.Context, id int64, reason string) (*Order, error)
	Cancel(ctx context.Context, id int64) (*Order, error)
	Receipt(ctx context.Context, id int64) (io.Reader, error)
}

var (
	ErrInvalidID            = errors.New("invalid_order_id")
	ErrInvalidContact       = errors.New("invalid_contact")
	ErrInvalidTransactionID = errors.New("invalid_transaction_id")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrInvalidTransition    = errors.New("invalid_order_transition")
	ErrNotPaid              = errors.New("order_not_paid")
)

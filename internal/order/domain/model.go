package domain

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Order is immutable after creation except for its status fields.
type Order struct {
	ID                    int64      `json:"id,string" gorm:"primaryKey"`
	UserID                string     `json:"user_id" gorm:"type:text;not null"`
	ContactName           string     `json:"contact_name" gorm:"type:text;not null"`
	ContactEmail          string     `json:"contact_email" gorm:"type:text;not null"`
	ContactPhone          *string    `json:"contact_phone,omitempty" gorm:"type:text"`
	CartSessionID         *string    `json:"-" gorm:"type:text"`
	TotalAmount           int64      `json:"total_amount" gorm:"not null"`
	Currency              string     `json:"currency" gorm:"type:text;not null"`
	Status                Status     `json:"status" gorm:"type:text;not null"`
	ProviderTransactionID *string    `json:"provider_transaction_id,omitempty" gorm:"type:text"`
	FailureReason         *string    `json:"failure_reason,omitempty" gorm:"type:text"`
	CreatedAt             time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt             time.Time  `json:"updated_at" gorm:"not null"`
	PaidAt                *time.Time `json:"paid_at,omitempty"`
	FailedAt              *time.Time `json:"failed_at,omitempty"`

	Lines []Line `json:"lines" gorm:"-"`
}

func (Order) TableName() string { return "orders" }

type Line struct {
	ID              int64  `json:"-" gorm:"primaryKey"`
	OrderID         int64  `json:"-" gorm:"not null"`
	LineNo          int    `json:"line_no" gorm:"not null"`
	OfferingID      int64  `json:"offering_id,string" gorm:"not null"`
	Name            string `json:"name" gorm:"type:text;not null"`
	Quantity        int    `json:"quantity" gorm:"not null"`
	PriceAtPurchase int64  `json:"price_at_purchase" gorm:"not null"`
	Amount          int64  `json:"amount" gorm:"not null"`
}

func (Line) TableName() string { return "order_lines" }

// CanTransition reports whether status may move from -> to.
// A confirmed payment is accepted from any non-paid state.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusPaid:
		return from != StatusPaid
	case StatusFailed, StatusCancelled:
		return from == StatusPending
	}
	return false
}

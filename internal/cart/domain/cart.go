package domain

import (
	"context"
	"errors"
	"time"
)

// Item is a client-selected offering. It never carries a price.
type Item struct {
	OfferingID int64 `json:"offering_id,string"`
	Quantity   int   `json:"quantity"`
}

type Cart struct {
	SessionID string    `json:"session_id"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KV is the persistence adapter behind a cart session.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// View is the display projection; Subtotal is advisory and never charged.
type View struct {
	Cart
	Subtotal int64  `json:"subtotal"`
	Currency string `json:"currency,omitempty"`
}

var (
	ErrMiss            = errors.New("cart_miss")
	ErrInvalidSession  = errors.New("invalid_cart_session")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrInvalidOffering = errors.New("invalid_offering")
)

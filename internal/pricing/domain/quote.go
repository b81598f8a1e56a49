package domain

import (
	"context"
	"errors"
	"fmt"
)

// MaxQuantity bounds a single line so totals cannot overflow.
const MaxQuantity = 1000

type LineRequest struct {
	OfferingID int64 `json:"offering_id,string"`
	Quantity   int   `json:"quantity"`
}

type Line struct {
	OfferingID int64  `json:"offering_id,string"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	Amount     int64  `json:"amount"`
}

type Quote struct {
	Lines    []Line `json:"lines"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

type Service interface {
	// Quote resolves authoritative prices from the catalog. It is the only
	// source of amounts attached to an order or payment.
	Quote(ctx context.Context, lines []LineRequest) (*Quote, error)
}

var (
	ErrEmptyQuote       = errors.New("empty_quote")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidOffering  = errors.New("invalid_offering")
	ErrCurrencyMismatch = errors.New("currency_mismatch")
)

// LineError pins a pricing failure to the offending input line.
type LineError struct {
	Index      int
	OfferingID int64
	Err        error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (offering %d): %v", e.Index, e.OfferingID, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// IsPricingError reports whether err belongs to the pricing taxonomy.
func IsPricingError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidOffering),
		errors.Is(err, ErrCurrencyMismatch):
		return true
	}
	return false
}

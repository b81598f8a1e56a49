package domain

import (
	"context"
	"errors"
)

type Service interface {
	Get(ctx context.Context, id int64) (*Offering, error)
	List(ctx context.Context, req ListRequest) ([]Offering, error)
	Create(ctx context.Context, req CreateRequest) (*Offering, error)
	SetActive(ctx context.Context, id int64, active bool) (*Offering, error)
}

type ListRequest struct {
	Category   string
	ActiveOnly bool
}

type CreateRequest struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description *string  `json:"description"`
	UnitPrice   int64    `json:"unit_price"`
	Currency    string   `json:"currency"`
	Features    []string `json:"features"`
	Active      *bool    `json:"active"`
}

var (
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidCategory = errors.New("invalid_category")
	ErrInvalidPrice    = errors.New("invalid_unit_price")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidID       = errors.New("invalid_id")
	ErrCodeTaken       = errors.New("offering_code_taken")
	ErrNotFound        = errors.New("offering_not_found")
)

var validCategories = map[string]struct{}{
	CategoryCompanyFormation: {},
	CategoryLegal:            {},
	CategoryBranding:         {},
	CategoryDigital:          {},
	CategoryLaunchPackage:    {},
}

func IsValidCategory(category string) bool {
	_, ok := validCategories[category]
	return ok
}

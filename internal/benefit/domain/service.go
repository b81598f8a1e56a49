package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type CreateRequest struct {
	Name        string  `json:"name"`
	Partner     string  `json:"partner"`
	Description *string `json:"description"`
}

type Repository interface {
	InsertBenefit(ctx context.Context, db *gorm.DB, benefit *Benefit) error
	FindBenefit(ctx context.Context, db *gorm.DB, id int64) (*Benefit, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]Benefit, error)

	InsertCode(ctx context.Context, db *gorm.DB, code *Code) error
	FindCode(ctx context.Context, db *gorm.DB, benefitID int64, userID string) (*Code, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Code, error)
	MarkUsed(ctx context.Context, db *gorm.DB, id int64, at time.Time) (bool, error)
}

type Service interface {
	ListBenefits(ctx context.Context) ([]Benefit, error)
	CreateBenefit(ctx context.Context, req CreateRequest) (*Benefit, error)
	// Issue creates the caller's code. A second call for the same benefit is a conflict.
	Issue(ctx context.Context, benefitID int64) (*Code, error)
	GetIssued(ctx context.Context, benefitID int64) (*Code, error)
	Redeem(ctx context.Context, code string) (*Code, error)
}

var (
	ErrInvalidID         = errors.New("invalid_benefit_id")
	ErrInvalidName       = errors.New("invalid_benefit_name")
	ErrInvalidPartner    = errors.New("invalid_benefit_partner")
	ErrInvalidCode       = errors.New("invalid_benefit_code")
	ErrBenefitNotFound   = errors.New("benefit_not_found")
	ErrCodeNotFound      = errors.New("benefit_code_not_found")
	ErrCodeAlreadyIssued = errors.New("benefit_code_already_issued")
	ErrCodeAlreadyUsed   = errors.New("benefit_code_already_used")
)

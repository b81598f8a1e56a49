package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, offering *Offering) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Offering, error)
	List(ctx context.Context, db *gorm.DB, filter ListRequest) ([]Offering, error)
	SetActive(ctx context.Context, db *gorm.DB, id int64, active bool, at time.Time) (bool, error)
}

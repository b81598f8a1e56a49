package repository

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/launchpad/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, offering *domain.Offering) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO offerings (id, code, name, category, description, unit_price, currency, features, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		offering.ID,
		offering.Code,
		offering.Name,
		offering.Category,
		offering.Description,
		offering.UnitPrice,
		offering.Currency,
		offering.Features,
		offering.IsActive,
		offering.CreatedAt,
		offering.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Offering, error) {
	var o domain.Offering
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, category, description, unit_price, currency, features, is_active, created_at, updated_at
		 FROM offerings WHERE id = ?`,
		id,
	).Scan(&o).Error
	if err != nil {
		return nil, err
	}
	if o.ID == 0 {
		return nil, nil
	}
	return &o, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListRequest) ([]domain.Offering, error) {
	var items []domain.Offering
	stmt := db.WithContext(ctx).Model(&domain.Offering{})

	if category := strings.TrimSpace(filter.Category); category != "" {
		stmt = stmt.Where("category = ?", category)
	}
	if filter.ActiveOnly {
		stmt = stmt.Where("is_active = ?", true)
	}

	if err := stmt.Order("category ASC, unit_price ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, id int64, active bool, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE offerings SET is_active = ?, updated_at = ? WHERE id = ?`,
		active,
		at,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

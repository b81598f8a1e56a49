package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/launchpad/internal/benefit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertBenefit(ctx context.Context, db *gorm.DB, benefit *domain.Benefit) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO benefits (id, name, partner, description, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		benefit.ID,
		benefit.Name,
		benefit.Partner,
		benefit.Description,
		benefit.IsActive,
		benefit.CreatedAt,
	).Error
}

func (r *repo) FindBenefit(ctx context.Context, db *gorm.DB, id int64) (*domain.Benefit, error) {
	var item domain.Benefit
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, partner, description, is_active, created_at FROM benefits WHERE id = ?`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]domain.Benefit, error) {
	var items []domain.Benefit
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, partner, description, is_active, created_at
		 FROM benefits WHERE is_active = ? ORDER BY name ASC, id ASC`,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertCode(ctx context.Context, db *gorm.DB, code *domain.Code) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO benefit_codes (id, benefit_id, user_id, code, is_used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		code.ID,
		code.BenefitID,
		code.UserID,
		code.Code,
		code.IsUsed,
		code.CreatedAt,
	).Error
}

func (r *repo) FindCode(ctx context.Context, db *gorm.DB, benefitID int64, userID string) (*domain.Code, error) {
	return r.findCode(ctx, db, `benefit_id = ? AND user_id = ?`, benefitID, userID)
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Code, error) {
	return r.findCode(ctx, db, `code = ?`, code)
}

func (r *repo) findCode(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Code, error) {
	var item domain.Code
	err := db.WithContext(ctx).Raw(
		`SELECT id, benefit_id, user_id, code, is_used, used_at, created_at
		 FROM benefit_codes WHERE `+where,
		args...,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkUsed(ctx context.Context, db *gorm.DB, id int64, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE benefit_codes SET is_used = ?, used_at = ? WHERE id = ? AND is_used = ?`,
		true, at, id, false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/launchpad/internal/fulfillment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertProgress(ctx context.Context, db *gorm.DB, progress *domain.Progress) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO launch_progress (id, launch_request_id, user_id, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (launch_request_id) DO NOTHING`,
		progress.ID,
		progress.LaunchRequestID,
		progress.UserID,
		progress.StartedAt,
		progress.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertDeliverables(ctx context.Context, db *gorm.DB, deliverables []domain.Deliverable) error {
	for _, d := range deliverables {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO launch_deliverables (
				id, launch_progress_id, kind, position, status, progress, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			d.ID,
			d.LaunchProgressID,
			d.Kind,
			d.Position,
			d.Status,
			d.Progress,
			d.UpdatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByLaunchRequest(ctx context.Context, db *gorm.DB, launchRequestID int64) (*domain.Progress, error) {
	var item domain.Progress
	err := db.WithContext(ctx).Raw(
		`SELECT id, launch_request_id, user_id, started_at, updated_at
		FROM launch_progress WHERE launch_request_id = ?`,
		launchRequestID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListDeliverables(ctx context.Context, db *gorm.DB, progressID int64) ([]domain.Deliverable, error) {
	var items []domain.Deliverable
	err := db.WithContext(ctx).Raw(
		`SELECT id, launch_progress_id, kind, position, status, progress,
			delivery_url, current_step_label, next_step_label, updated_at
		FROM launch_deliverables
		WHERE launch_progress_id = ?
		ORDER BY position ASC`,
		progressID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateDeliverable writes only the given columns so concurrent edits to other fields survive.
func (r *repo) UpdateDeliverable(ctx context.Context, db *gorm.DB, progressID int64, kind domain.Kind, columns map[string]any) (bool, error) {
	res := db.WithContext(ctx).
		Table("launch_deliverables").
		Where("launch_progress_id = ? AND kind = ?", progressID, kind).
		Updates(columns)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Touch(ctx context.Context, db *gorm.DB, progressID int64, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE launch_progress SET updated_at = ? WHERE id = ?`,
		at,
		progressID,
	).Error
}

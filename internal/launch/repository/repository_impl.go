package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/launchpad/internal/launch/domain"
	"gorm.io/gorm"
)

const selectColumns = `id, user_id, current_step, is_started, is_form_complete, form_completed_at,
	full_name, national_id, email, phone, nationality, shareholders,
	company_name, company_type, business_activity, city, capital_amount,
	brand_name, brand_colors, logo_url, brand_style,
	website_description, website_domain, website_pages, website_contact_email,
	billing_name, billing_tax_id, billing_email, billing_address,
	package_offering_id, payment_status, provider_transaction_id, paid_amount, paid_currency,
	paid_at, payment_failure_reason, admin_status, fulfillment_started_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, req *domain.LaunchRequest) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO launch_requests (
			id, user_id, current_step, is_started, is_form_complete,
			payment_status, admin_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		req.UserID,
		req.CurrentStep,
		req.IsStarted,
		req.IsFormComplete,
		req.PaymentStatus,
		req.AdminStatus,
		req.CreatedAt,
		req.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.LaunchRequest, error) {
	var item domain.LaunchRequest
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM launch_requests WHERE id = ?`,
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

func (r *repo) FindOpenByUser(ctx context.Context, db *gorm.DB, userID string) (*domain.LaunchRequest, error) {
	var item domain.LaunchRequest
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM launch_requests
		WHERE user_id = ? AND admin_status <> ?
		ORDER BY created_at DESC
		LIMIT 1`,
		userID,
		domain.AdminCompleted,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListForBoard(ctx context.Context, db *gorm.DB) ([]domain.LaunchRequest, error) {
	var items []domain.LaunchRequest
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, full_name, company_name, current_step, is_form_complete,
			payment_status, admin_status, updated_at
		FROM launch_requests
		ORDER BY updated_at DESC, id DESC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// SaveStepColumns only touches the step's own columns.
func (r *repo) SaveStepColumns(ctx context.Context, db *gorm.DB, id int64, columns map[string]any, at time.Time) (bool, error) {
	values := make(map[string]any, len(columns)+1)
	for k, v := range columns {
		values[k] = v
	}
	values["updated_at"] = at

	res := db.WithContext(ctx).
		Table("launch_requests").
		Where("id = ? AND is_form_complete = ?", id, false).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) AdvanceStep(ctx context.Context, db *gorm.DB, id int64, next int, at time.Time) (bool, error) {
	return r.exec(ctx, db,
		`UPDATE launch_requests
		SET current_step = ?, updated_at = ?
		WHERE id = ? AND current_step < ?`,
		next, at, id, next,
	)
}

func (r *repo) MarkFormComplete(ctx context.Context, db *gorm.DB, id int64, at time.Time) (bool, error) {
	return r.exec(ctx, db,
		`UPDATE launch_requests
		SET is_form_complete = ?, form_completed_at = ?, updated_at = ?
		WHERE id = ? AND is_form_complete = ?`,
		true, at, at, id, false,
	)
}

func (r *repo) ReopenForm(ctx context.Context, db *gorm.DB, id int64, at time.Time) (bool, error) {
	return r.exec(ctx, db,
		`UPDATE launch_requests
		SET is_form_complete = ?, form_completed_at = NULL, updated_at = ?
		WHERE id = ? AND is_form_complete = ?`,
		false, at, id, true,
	)
}

func (r *repo) MarkPaymentCompleted(ctx context.Context, db *gorm.DB, id int64, conf domain.PaymentConfirmation, at time.Time) (bool, error) {
	return r.exec(ctx, db,
		`UPDATE launch_requests
		SET payment_status = ?,
			provider_transaction_id = ?,
			paid_amount = ?,
			paid_currency = ?,
			paid_at = ?,
			package_offering_id = COALESCE(?, package_offering_id),
			payment_failure_reason = NULL,
			updated_at = ?
		WHERE id = ? AND payment_status <> ?`,
		domain.PaymentCompleted,
		conf.TransactionID,
		conf.Amount,
		conf.Currency,
		at,
		conf.OfferingID,
		at,
		id,
		domain.PaymentCompleted,
	)
}

func (r *repo) MarkPaymentFailed(ctx context.Context, db *gorm.DB, id int64, reason string, at time.Time) (bool, error) {
	return r.exec(ctx, db,
		`UPDATE launch_requests
		SET payment_status = ?, payment_failure_reason = ?, updated_at = ?
		WHERE id = ? AND payment_status = ?`,
		domain.PaymentFailed, reason, at, id, domain.PaymentPending,
	)
}

func (r *repo) WaivePayment(ctx context.Context, db *gorm.DB, id int64, at time.Time) (bool, error) {
	return r.exec(ctx, db,
		`UPDATE launch_requests
		SET payment_status = ?, payment_failure_reason = NULL, updated_at = ?
		WHERE id = ? AND payment_status IN (?, ?)`,
		domain.PaymentNotRequired, at, id, domain.PaymentPending, domain.PaymentFailed,
	)
}

func (r *repo) SetAdminStatus(ctx context.Context, db *gorm.DB, id int64, status domain.AdminStatus, at time.Time) (bool, error) {
	return r.exec(ctx, db,
		`UPDATE launch_requests SET admin_status = ?, updated_at = ? WHERE id = ?`,
		status, at, id,
	)
}

func (r *repo) MarkFulfillmentStarted(ctx context.Context, db *gorm.DB, id int64, at time.Time) (bool, error) {
	return r.exec(ctx, db,
		`UPDATE launch_requests
		SET fulfillment_started_at = ?, updated_at = ?
		WHERE id = ? AND fulfillment_started_at IS NULL`,
		at, at, id,
	)
}

func (r *repo) exec(ctx context.Context, db *gorm.DB, query string, args ...any) (bool, error) {
	res := db.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

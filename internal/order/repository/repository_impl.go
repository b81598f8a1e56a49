package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/launchpad/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, user_id, contact_name, contact_email, contact_phone, cart_session_id,
			total_amount, currency, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.UserID,
		order.ContactName,
		order.ContactEmail,
		order.ContactPhone,
		order.CartSessionID,
		order.TotalAmount,
		order.Currency,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) InsertLines(ctx context.Context, db *gorm.DB, lines []domain.Line) error {
	for _, line := range lines {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO order_lines (id, order_id, line_no, offering_id, name, quantity, price_at_purchase, amount)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			line.ID,
			line.OrderID,
			line.LineNo,
			line.OfferingID,
			line.Name,
			line.Quantity,
			line.PriceAtPurchase,
			line.Amount,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, contact_name, contact_email, contact_phone, cart_session_id,
			total_amount, currency, status, provider_transaction_id, failure_reason,
			created_at, updated_at, paid_at, failed_at
		FROM orders WHERE id = ?`,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) FindLines(ctx context.Context, db *gorm.DB, orderID int64) ([]domain.Line, error) {
	var lines []domain.Line
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, line_no, offering_id, name, quantity, price_at_purchase, amount
		FROM order_lines WHERE order_id = ? ORDER BY line_no ASC`,
		orderID,
	).Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id int64, providerTxID string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders
		SET status = ?, provider_transaction_id = ?, paid_at = ?, failure_reason = NULL, updated_at = ?
		WHERE id = ? AND status <> ?`,
		domain.StatusPaid,
		providerTxID,
		at,
		at,
		id,
		domain.StatusPaid,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id int64, reason string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders SET status = ?, failure_reason = ?, failed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		domain.StatusFailed,
		reason,
		at,
		at,
		id,
		domain.StatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Cancel(ctx context.Context, db *gorm.DB, id int64, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.StatusCancelled,
		at,
		id,
		domain.StatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

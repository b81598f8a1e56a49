package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/launchpad/internal/payment/domain"
	"gorm.io/gorm"
)

const attemptColumns = `id, target_type, target_id, offering_id, user_id, amount, currency, state, provider,
	provider_transaction_id, client_secret, hosted_session_id, hosted_url,
	fallback_trigger, fallback_deadline, embedded_ready_at, failure_reason,
	created_at, updated_at, completed_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertAttempt(ctx context.Context, db *gorm.DB, attempt *domain.Attempt) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO checkout_attempts (
			id, target_type, target_id, offering_id, user_id, amount, currency,
			state, provider, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID,
		attempt.TargetType,
		attempt.TargetID,
		attempt.OfferingID,
		attempt.UserID,
		attempt.Amount,
		attempt.Currency,
		attempt.State,
		attempt.Provider,
		attempt.CreatedAt,
		attempt.UpdatedAt,
	).Error
}

func (r *repo) FindAttempt(ctx context.Context, db *gorm.DB, id int64) (*domain.Attempt, error) {
	return r.findAttempt(ctx, db, `id = ?`, id)
}

func (r *repo) FindAttemptByHostedSession(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Attempt, error) {
	return r.findAttempt(ctx, db, `hosted_session_id = ?`, sessionID)
}

func (r *repo) FindAttemptByTransaction(ctx context.Context, db *gorm.DB, transactionID string) (*domain.Attempt, error) {
	return r.findAttempt(ctx, db, `provider_transaction_id = ? ORDER BY created_at DESC`, transactionID)
}

func (r *repo) FindLiveAttempt(ctx context.Context, db *gorm.DB, targetType string, targetID int64) (*domain.Attempt, error) {
	var item domain.Attempt
	err := db.WithContext(ctx).Raw(
		`SELECT `+attemptColumns+` FROM checkout_attempts
		 WHERE target_type = ? AND target_id = ? AND state NOT IN (?, ?)
		 ORDER BY created_at DESC
		 LIMIT 1`,
		targetType, targetID, domain.StateSucceeded, domain.StateFailed,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) findAttempt(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Attempt, error) {
	var item domain.Attempt
	err := db.WithContext(ctx).Raw(
		`SELECT `+attemptColumns+` FROM checkout_attempts WHERE `+where+` LIMIT 1`,
		arg,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) IssueClientSecret(ctx context.Context, db *gorm.DB, id int64, transactionID, clientSecret string, deadline, at time.Time) (bool, error) {
	return exec(ctx, db,
		`UPDATE checkout_attempts
		 SET state = ?, provider_transaction_id = ?, client_secret = ?, fallback_deadline = ?, updated_at = ?
		 WHERE id = ? AND state = ?`,
		domain.StateAwaitingClientSecret, transactionID, clientSecret, deadline, at,
		id, domain.StateInit,
	)
}

func (r *repo) MarkEmbeddedReady(ctx context.Context, db *gorm.DB, id int64, at time.Time) (bool, error) {
	return exec(ctx, db,
		`UPDATE checkout_attempts
		 SET state = ?, embedded_ready_at = ?, updated_at = ?
		 WHERE id = ? AND state = ? AND embedded_ready_at IS NULL`,
		domain.StateEmbeddedAttempt, at, at,
		id, domain.StateAwaitingClientSecret,
	)
}

func (r *repo) ClaimFallback(ctx context.Context, db *gorm.DB, id int64, trigger domain.Trigger, at time.Time) (bool, error) {
	return exec(ctx, db,
		`UPDATE checkout_attempts
		 SET state = ?, fallback_trigger = ?, updated_at = ?
		 WHERE id = ? AND state IN (?, ?) AND embedded_ready_at IS NULL`,
		domain.StateFallbackToHosted, trigger, at,
		id, domain.StateInit, domain.StateAwaitingClientSecret,
	)
}

func (r *repo) SetHostedSession(ctx context.Context, db *gorm.DB, id int64, sessionID, url string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE checkout_attempts
		 SET hosted_session_id = ?, hosted_url = ?, updated_at = ?
		 WHERE id = ? AND state = ?`,
		sessionID, url, at,
		id, domain.StateFallbackToHosted,
	).Error
}

func (r *repo) MarkConfirming(ctx context.Context, db *gorm.DB, id int64, at time.Time) (bool, error) {
	return exec(ctx, db,
		`UPDATE checkout_attempts
		 SET state = ?, updated_at = ?
		 WHERE id = ? AND state IN (?, ?, ?)`,
		domain.StateConfirming, at,
		id, domain.StateAwaitingClientSecret, domain.StateEmbeddedAttempt, domain.StateFallbackToHosted,
	)
}

// MarkSucceeded also accepts failed attempts: money that arrived late still settles.
func (r *repo) MarkSucceeded(ctx context.Context, db *gorm.DB, id int64, transactionID string, at time.Time) (bool, error) {
	return exec(ctx, db,
		`UPDATE checkout_attempts
		 SET state = ?, provider_transaction_id = COALESCE(?, provider_transaction_id),
			failure_reason = NULL, completed_at = ?, updated_at = ?
		 WHERE id = ? AND state <> ?`,
		domain.StateSucceeded, nullable(transactionID), at, at,
		id, domain.StateSucceeded,
	)
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id int64, reason string, at time.Time) (bool, error) {
	return exec(ctx, db,
		`UPDATE checkout_attempts
		 SET state = ?, failure_reason = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND state NOT IN (?, ?)`,
		domain.StateFailed, reason, at, at,
		id, domain.StateSucceeded, domain.StateFailed,
	)
}

func (r *repo) RecordFailureReason(ctx context.Context, db *gorm.DB, id int64, reason string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE checkout_attempts SET failure_reason = ?, updated_at = ? WHERE id = ? AND state <> ?`,
		reason, at, id, domain.StateSucceeded,
	).Error
}

func (r *repo) ListStaleAttempts(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]domain.Attempt, error) {
	var items []domain.Attempt
	err := db.WithContext(ctx).Raw(
		`SELECT `+attemptColumns+` FROM checkout_attempts
		 WHERE state NOT IN (?, ?) AND updated_at <= ?
		 ORDER BY updated_at ASC, id ASC
		 LIMIT ?`,
		domain.StateSucceeded, domain.StateFailed, before, limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertOverpayment(ctx context.Context, db *gorm.DB, overpayment *domain.Overpayment) (bool, error) {
	return exec(ctx, db,
		`INSERT INTO payment_overpayments (
			id, attempt_id, target_type, target_id, provider, transaction_id,
			settled_transaction_id, amount, currency, detected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, transaction_id) DO NOTHING`,
		overpayment.ID,
		overpayment.AttemptID,
		overpayment.TargetType,
		overpayment.TargetID,
		overpayment.Provider,
		overpayment.TransactionID,
		overpayment.SettledTransactionID,
		overpayment.Amount,
		overpayment.Currency,
		overpayment.DetectedAt,
	)
}

func (r *repo) ListOverpayments(ctx context.Context, db *gorm.DB, limit int) ([]domain.Overpayment, error) {
	var items []domain.Overpayment
	err := db.WithContext(ctx).Raw(
		`SELECT id, attempt_id, target_type, target_id, provider, transaction_id,
			settled_transaction_id, amount, currency, detected_at, refunded_at
		 FROM payment_overpayments
		 WHERE refunded_at IS NULL
		 ORDER BY detected_at DESC, id DESC
		 LIMIT ?`,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, target_type, target_id,
			payload, received_at, processed_at
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	return exec(ctx, db,
		`INSERT INTO payment_events (
			id, provider, provider_event_id, event_type, target_type, target_id,
			payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.TargetType,
		event.TargetID,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id int64, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events SET processed_at = ? WHERE id = ? AND processed_at IS NULL`,
		processedAt,
		id,
	).Error
}

func exec(ctx context.Context, db *gorm.DB, query string, args ...any) (bool, error) {
	res := db.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/smallbiznis/launchpad/internal/identity"
	launchdomain "github.com/smallbiznis/launchpad/internal/launch/domain"
	orderdomain "github.com/smallbiznis/launchpad/internal/order/domain"
	paymentdomain "github.com/smallbiznis/launchpad/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	sourceEmbedded     = "embedded"
	sourceHostedReturn = "hosted_return"
	sourceWebhook      = "webhook"
	sourceReconcile    = "reconcile"

	reasonSuperseded = "superseded"

	defaultOverpaymentLimit = 50
	maxOverpaymentLimit     = 200
)

// ConfirmEmbedded asks the provider for the outcome of the embedded form.
func (s *Service) ConfirmEmbedded(ctx context.Context, attemptID int64) (*paymentdomain.Attempt, error) {
	attempt, err := s.owned(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	switch attempt.State {
	case paymentdomain.StateSucceeded:
		return attempt, nil
	case paymentdomain.StateFailed:
		return nil, paymentdomain.ErrAttemptClosed
	case paymentdomain.StateAwaitingClientSecret, paymentdomain.StateEmbeddedAttempt, paymentdomain.StateConfirming:
		// A lost ready report does not stop a confirmation.
	default:
		return nil, paymentdomain.ErrEmbeddedUnavailable
	}
	if attempt.HostedSessionID != nil || attempt.ProviderTransactionID == nil {
		return nil, paymentdomain.ErrEmbeddedUnavailable
	}

	tx, resolved, err := s.reconcileIntent(ctx, attempt, sourceEmbedded)
	if err != nil {
		return nil, err
	}
	if resolved != nil {
		return resolved, nil
	}

	switch tx.Status {
	case paymentdomain.TransactionDeclined:
		reason := firstNonEmpty(tx.FailureReason, "payment_declined")
		if err := s.repo.RecordFailureReason(ctx, s.db, attempt.ID, reason, s.clock.Now()); err != nil {
			return nil, err
		}
		return nil, paymentdomain.ErrPaymentDeclined
	case paymentdomain.TransactionCanceled:
		return nil, paymentdomain.ErrAttemptClosed
	}
	return nil, paymentdomain.ErrTransactionNotComplete
}

// CompleteHostedReturn handles the browser coming back from the hosted page.
// The session is re-read from the provider; query parameters are never trusted.
func (s *Service) CompleteHostedReturn(ctx context.Context, sessionID string) (*paymentdomain.Attempt, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, paymentdomain.ErrInvalidSessionID
	}
	attempt, err := s.repo.FindAttemptByHostedSession(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	if attempt == nil || !caller.CanAccess(attempt.UserID) {
		return nil, paymentdomain.ErrAttemptNotFound
	}
	if attempt.State == paymentdomain.StateSucceeded {
		return attempt, nil
	}

	providerCtx, cancel := context.WithTimeout(ctx, s.checkout.Get().ProviderTimeout)
	defer cancel()
	session, err := s.gateway.RetrieveHostedSession(providerCtx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Paid {
		return s.settle(ctx, attempt, firstNonEmpty(session.TransactionID, session.ID), session.AmountTotal, session.Currency, sourceHostedReturn)
	}
	if _, err := s.repo.MarkConfirming(ctx, s.db, attempt.ID, s.clock.Now()); err != nil {
		return nil, err
	}
	return s.load(ctx, attempt.ID)
}

// ApplyEvent records a verified provider event once and applies it to its target.
func (s *Service) ApplyEvent(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	payload := event.RawPayload
	if !json.Valid(payload) {
		payload = []byte(`{}`)
	}
	now := s.clock.Now()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate().Int64(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		TargetType:      &event.TargetType,
		TargetID:        &event.TargetID,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded:
		err = s.applySucceeded(ctx, event)
	case paymentdomain.EventTypePaymentFailed:
		err = s.applyFailed(ctx, event)
	default:
		err = paymentdomain.ErrInvalidEvent
	}
	if err != nil {
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now()); err != nil {
		return err
	}
	if inserted {
		s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	}
	return nil
}

func (s *Service) applySucceeded(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	attempt, err := s.attemptFor(ctx, event)
	if err != nil {
		return err
	}
	if attempt != nil {
		_, err := s.settle(ctx, attempt, event.TransactionID, event.Amount, event.Currency, sourceWebhook)
		return err
	}

	s.log.Warn("payment event without checkout attempt",
		zap.String("provider_event_id", event.ProviderEventID),
		zap.String("target_type", event.TargetType),
		zap.Int64("target_id", event.TargetID),
	)
	if event.TargetType == paymentdomain.TargetOrder {
		order, err := s.orders.Lookup(ctx, event.TargetID)
		if err != nil {
			return err
		}
		if order.TotalAmount != event.Amount || !strings.EqualFold(order.Currency, event.Currency) {
			return paymentdomain.ErrAmountMismatch
		}
	}
	applied, settledWith, err := s.applyToTarget(ctx, event.TargetType, event.TargetID, nil, event.TransactionID, event.Amount, event.Currency)
	if err != nil {
		return err
	}
	overpaid := isOverpayment(applied, settledWith, event.TransactionID)
	if overpaid {
		if err := s.recordOverpayment(ctx, paymentdomain.Overpayment{
			TargetType:           event.TargetType,
			TargetID:             event.TargetID,
			Provider:             event.Provider,
			TransactionID:        event.TransactionID,
			SettledTransactionID: settledWith,
			Amount:               event.Amount,
			Currency:             event.Currency,
		}); err != nil {
			return err
		}
	}
	s.obsMetrics.RecordPaymentConfirmation(ctx, sourceWebhook, event.TargetType, outcome(applied, overpaid))
	return nil
}

func (s *Service) applyFailed(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	attempt, err := s.attemptFor(ctx, event)
	if err != nil {
		return err
	}
	reason := firstNonEmpty(event.FailureReason, "payment_failed")
	if attempt != nil {
		if attempt.State == paymentdomain.StateSucceeded {
			s.log.Info("ignoring failure for settled attempt", zap.Int64("attempt_id", attempt.ID))
			return nil
		}
		// A declined card may be retried in the same embedded form; a failed
		// hosted session is over.
		if event.HostedSessionID != "" {
			s.fail(ctx, attempt.ID, reason)
		} else if err := s.repo.RecordFailureReason(ctx, s.db, attempt.ID, reason, s.clock.Now()); err != nil {
			return err
		}
	}

	switch event.TargetType {
	case paymentdomain.TargetOrder:
		_, err = s.orders.MarkFailed(ctx, event.TargetID, reason)
		if errors.Is(err, orderdomain.ErrInvalidTransition) {
			return nil
		}
	case paymentdomain.TargetLaunchRequest:
		_, err = s.launches.MarkPaymentFailed(ctx, event.TargetID, reason)
		if errors.Is(err, launchdomain.ErrPaymentSettled) {
			return nil
		}
	default:
		return paymentdomain.ErrInvalidTarget
	}
	return err
}

// settle marks the target paid, then the attempt. Each step is idempotent so
// the embedded confirmation, the hosted return and webhooks may race freely.
func (s *Service) settle(ctx context.Context, attempt *paymentdomain.Attempt, transactionID string, amount int64, currency string, source string) (*paymentdomain.Attempt, error) {
	if amount != attempt.Amount || !strings.EqualFold(currency, attempt.Currency) {
		s.log.Error("payment amount does not match checkout attempt",
			zap.Int64("attempt_id", attempt.ID),
			zap.Int64("expected", attempt.Amount),
			zap.Int64("received", amount),
			zap.String("currency", currency),
		)
		if err := s.repo.RecordFailureReason(ctx, s.db, attempt.ID, "amount_mismatch", s.clock.Now()); err != nil {
			return nil, err
		}
		s.obsMetrics.RecordPaymentConfirmation(ctx, source, attempt.TargetType, "amount_mismatch")
		return nil, paymentdomain.ErrAmountMismatch
	}

	applied, settledWith, err := s.applyToTarget(ctx, attempt.TargetType, attempt.TargetID, attempt.OfferingID, transactionID, amount, attempt.Currency)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.MarkSucceeded(ctx, s.db, attempt.ID, transactionID, s.clock.Now()); err != nil {
		return nil, err
	}
	overpaid := isOverpayment(applied, settledWith, transactionID)
	if overpaid {
		if err := s.recordOverpayment(ctx, paymentdomain.Overpayment{
			AttemptID:            attempt.ID,
			TargetType:           attempt.TargetType,
			TargetID:             attempt.TargetID,
			Provider:             attempt.Provider,
			TransactionID:        transactionID,
			SettledTransactionID: settledWith,
			Amount:               amount,
			Currency:             strings.ToUpper(currency),
		}); err != nil {
			return nil, err
		}
	}
	s.obsMetrics.RecordPaymentConfirmation(ctx, source, attempt.TargetType, outcome(applied, overpaid))

	s.log.Info("payment confirmed",
		zap.Int64("attempt_id", attempt.ID),
		zap.String("target_type", attempt.TargetType),
		zap.Int64("target_id", attempt.TargetID),
		zap.String("source", source),
		zap.Bool("applied", applied),
	)
	return s.load(ctx, attempt.ID)
}

// applyToTarget marks the target paid. It also returns the transaction the
// target is settled with, which differs from transactionID for a second payment.
func (s *Service) applyToTarget(ctx context.Context, targetType string, targetID int64, offeringID *int64, transactionID string, amount int64, currency string) (bool, *string, error) {
	switch targetType {
	case paymentdomain.TargetOrder:
		order, applied, err := s.orders.MarkPaid(ctx, targetID, transactionID)
		if err != nil {
			return false, nil, err
		}
		return applied, order.ProviderTransactionID, nil
	case paymentdomain.TargetLaunchRequest:
		req, applied, err := s.launches.ConfirmPayment(ctx, targetID, launchdomain.PaymentConfirmation{
			TransactionID: transactionID,
			Amount:        amount,
			Currency:      currency,
			OfferingID:    offeringID,
		})
		if err != nil {
			return false, nil, err
		}
		return applied, req.ProviderTransactionID, nil
	}
	return false, nil, paymentdomain.ErrInvalidTarget
}

func isOverpayment(applied bool, settledWith *string, transactionID string) bool {
	if applied {
		return false
	}
	return settledWith == nil || *settledWith != transactionID
}

// recordOverpayment stores a payment for an already settled target so it can be refunded.
func (s *Service) recordOverpayment(ctx context.Context, op paymentdomain.Overpayment) error {
	op.ID = s.genID.Generate().Int64()
	op.DetectedAt = s.clock.Now()
	inserted, err := s.repo.InsertOverpayment(ctx, s.db, &op)
	if err != nil {
		return err
	}
	if inserted {
		s.log.Error("payment received for settled target",
			zap.Int64("attempt_id", op.AttemptID),
			zap.String("target_type", op.TargetType),
			zap.Int64("target_id", op.TargetID),
			zap.String("provider_transaction_id", op.TransactionID),
			zap.Int64("amount", op.Amount),
		)
	}
	return nil
}

func (s *Service) ListOverpayments(ctx context.Context, limit int) ([]paymentdomain.Overpayment, error) {
	switch {
	case limit <= 0:
		limit = defaultOverpaymentLimit
	case limit > maxOverpaymentLimit:
		limit = maxOverpaymentLimit
	}
	items, err := s.repo.ListOverpayments(ctx, s.db, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []paymentdomain.Overpayment{}
	}
	return items, nil
}

func (s *Service) attemptFor(ctx context.Context, event *paymentdomain.PaymentEvent) (*paymentdomain.Attempt, error) {
	var (
		attempt *paymentdomain.Attempt
		err     error
	)
	if event.AttemptID > 0 {
		attempt, err = s.repo.FindAttempt(ctx, s.db, event.AttemptID)
	}
	if err == nil && attempt == nil && event.HostedSessionID != "" {
		attempt, err = s.repo.FindAttemptByHostedSession(ctx, s.db, event.HostedSessionID)
	}
	if err == nil && attempt == nil && event.TransactionID != "" {
		attempt, err = s.repo.FindAttemptByTransaction(ctx, s.db, event.TransactionID)
	}
	if err != nil {
		return nil, err
	}
	if attempt != nil && (attempt.TargetType != event.TargetType || attempt.TargetID != event.TargetID) {
		return nil, paymentdomain.ErrInvalidTarget
	}
	return attempt, nil
}

func validateEvent(event *paymentdomain.PaymentEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" || strings.TrimSpace(event.Type) == "" {
		return paymentdomain.ErrInvalidEvent
	}
	switch event.TargetType {
	case paymentdomain.TargetOrder, paymentdomain.TargetLaunchRequest:
	default:
		return paymentdomain.ErrInvalidTarget
	}
	if event.TargetID <= 0 {
		return paymentdomain.ErrInvalidTarget
	}
	if event.Type == paymentdomain.EventTypePaymentSucceeded {
		if strings.TrimSpace(event.TransactionID) == "" {
			return paymentdomain.ErrInvalidEvent
		}
		if event.Amount <= 0 {
			return paymentdomain.ErrInvalidAmount
		}
		event.Currency = strings.ToUpper(strings.TrimSpace(event.Currency))
		if event.Currency == "" {
			return paymentdomain.ErrInvalidCurrency
		}
	}
	return nil
}

func outcome(applied, overpaid bool) string {
	switch {
	case applied:
		return "applied"
	case overpaid:
		return "overpaid"
	}
	return "duplicate"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

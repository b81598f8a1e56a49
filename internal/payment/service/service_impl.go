package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/launchpad/internal/catalog/domain"
	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/internal/config"
	"github.com/smallbiznis/launchpad/internal/identity"
	launchdomain "github.com/smallbiznis/launchpad/internal/launch/domain"
	obsmetrics "github.com/smallbiznis/launchpad/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/launchpad/internal/order/domain"
	paymentdomain "github.com/smallbiznis/launchpad/internal/payment/domain"
	pricingdomain "github.com/smallbiznis/launchpad/internal/pricing/domain"
	"github.com/smallbiznis/launchpad/internal/ratelimit"
	"github.com/smallbiznis/launchpad/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Checkout   *config.CheckoutConfigHolder
	Repo       paymentdomain.Repository
	Gateway    paymentdomain.Gateway
	Orders     orderdomain.Service
	Launches   launchdomain.Service
	Pricing    pricingdomain.Service
	Catalog    catalogdomain.Service
	Limiter    *ratelimit.CheckoutLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics        `optional:"true"`
}

// Service orchestrates checkout attempts. An attempt offers exactly one
// path at a time: the embedded form, or the hosted page after a fallback.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.Config
	checkout   *config.CheckoutConfigHolder
	repo       paymentdomain.Repository
	gateway    paymentdomain.Gateway
	orders     orderdomain.Service
	launches   launchdomain.Service
	pricing    pricingdomain.Service
	catalog    catalogdomain.Service
	limiter    *ratelimit.CheckoutLimiter
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) paymentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Cfg,
		checkout:   p.Checkout,
		repo:       p.Repo,
		gateway:    p.Gateway,
		orders:     p.Orders,
		launches:   p.Launches,
		pricing:    p.Pricing,
		catalog:    p.Catalog,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}
}

// checkoutTarget is what gets charged, resolved from server-side records only.
type checkoutTarget struct {
	Type        string
	ID          int64
	OfferingID  *int64
	Amount      int64
	Currency    string
	Email       string
	Description string
	Lines       []paymentdomain.HostedLine
}

func (s *Service) BeginOrderCheckout(ctx context.Context, orderID int64) (*paymentdomain.Attempt, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	target, err := orderTarget(order)
	if err != nil {
		return nil, err
	}
	return s.begin(ctx, caller, target)
}

func (s *Service) BeginLaunchCheckout(ctx context.Context, launchRequestID int64, offeringID int64) (*paymentdomain.Attempt, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	req, err := s.launches.Get(ctx, launchRequestID)
	if err != nil {
		return nil, err
	}
	target, err := s.launchTarget(ctx, req, offeringID)
	if err != nil {
		return nil, err
	}
	return s.begin(ctx, caller, target)
}

func (s *Service) begin(ctx context.Context, caller identity.Identity, target *checkoutTarget) (*paymentdomain.Attempt, error) {
	result, err := s.limiter.AllowUser(ctx, caller.UserID)
	if err != nil {
		s.log.Warn("checkout rate limit unavailable", zap.Error(err))
	} else if !result.Allowed {
		s.obsMetrics.RecordRateLimitDenied(ctx, "checkout_begin", "user")
		return nil, paymentdomain.ErrRateLimited
	}

	token, locked, err := s.limiter.TryLockTarget(ctx, target.Type, target.ID)
	if err != nil {
		s.log.Warn("checkout lock unavailable", zap.Error(err))
	} else if !locked {
		s.obsMetrics.RecordRateLimitDenied(ctx, "checkout_begin", "target_locked")
		return nil, paymentdomain.ErrCheckoutInProgress
	} else if token != "" {
		defer func() {
			if err := s.limiter.ReleaseTarget(context.WithoutCancel(ctx), target.Type, target.ID, token); err != nil {
				s.log.Warn("release checkout lock", zap.Error(err))
			}
		}()
	}

	live, err := s.repo.FindLiveAttempt(ctx, s.db, target.Type, target.ID)
	if err != nil {
		return nil, err
	}
	if live != nil {
		resumed, err := s.resume(ctx, caller, live, target)
		if err != nil || resumed != nil {
			return resumed, err
		}
	}

	now := s.clock.Now()
	attempt := &paymentdomain.Attempt{
		ID:         s.genID.Generate().Int64(),
		TargetType: target.Type,
		TargetID:   target.ID,
		OfferingID: target.OfferingID,
		UserID:     caller.UserID,
		Amount:     target.Amount,
		Currency:   target.Currency,
		State:      paymentdomain.StateInit,
		Provider:   s.gateway.Provider(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertAttempt(ctx, s.db, attempt); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, paymentdomain.ErrCheckoutInProgress
		}
		return nil, err
	}
	s.obsMetrics.RecordCheckoutStarted(ctx, attempt.Provider, attempt.TargetType)

	cfg := s.checkout.Get()
	providerCtx, cancel := context.WithTimeout(ctx, cfg.ProviderTimeout)
	tx, err := s.gateway.CreateTransaction(providerCtx, paymentdomain.TransactionRequest{
		Amount:         target.Amount,
		Currency:       target.Currency,
		Description:    target.Description,
		ReceiptEmail:   target.Email,
		Metadata:       s.metadata(attempt),
		IdempotencyKey: fmt.Sprintf("attempt:%d:intent", attempt.ID),
	})
	cancel()
	if err != nil {
		s.log.Warn("embedded checkout unavailable, falling back to hosted",
			zap.Int64("attempt_id", attempt.ID),
			zap.Error(err),
		)
		return s.fallback(ctx, attempt.ID, paymentdomain.TriggerIntentCreateFailed)
	}

	deadline := s.clock.Now().Add(cfg.FallbackTimeout)
	if _, err := s.repo.IssueClientSecret(ctx, s.db, attempt.ID, tx.ID, tx.ClientSecret, deadline, s.clock.Now()); err != nil {
		return nil, err
	}
	return s.load(ctx, attempt.ID)
}

// resume decides what happens to the live attempt of a target when checkout
// begins again. The caller's own attempt for the same charge is handed back;
// any other live attempt is closed with the provider before a new one may exist.
// A nil attempt and nil error mean the target is free for a new attempt.
func (s *Service) resume(ctx context.Context, caller identity.Identity, live *paymentdomain.Attempt, target *checkoutTarget) (*paymentdomain.Attempt, error) {
	if live.UserID == caller.UserID && sameCharge(live, target) {
		switch live.State {
		case paymentdomain.StateAwaitingClientSecret:
			return s.refresh(ctx, live)
		case paymentdomain.StateEmbeddedAttempt, paymentdomain.StateConfirming:
			return live, nil
		case paymentdomain.StateFallbackToHosted:
			if live.HostedURL != nil {
				return live, nil
			}
		}
	}

	switch live.State {
	case paymentdomain.StateConfirming:
		return nil, paymentdomain.ErrCheckoutInProgress
	case paymentdomain.StateInit, paymentdomain.StateFallbackToHosted:
		// Another request is still talking to the provider.
		if live.HostedURL == nil && s.clock.Now().Sub(live.UpdatedAt) < s.settleWindow() {
			return nil, paymentdomain.ErrCheckoutInProgress
		}
	}

	closed, err := s.closeAttempt(ctx, live, reasonSuperseded)
	if err != nil {
		return nil, err
	}
	switch closed.State {
	case paymentdomain.StateFailed:
		s.log.Info("checkout attempt superseded",
			zap.Int64("attempt_id", live.ID),
			zap.String("target_type", live.TargetType),
			zap.Int64("target_id", live.TargetID),
		)
		return nil, nil
	case paymentdomain.StateSucceeded:
		if caller.CanAccess(closed.UserID) {
			return closed, nil
		}
		return nil, paymentdomain.ErrAlreadyPaid
	}
	return nil, paymentdomain.ErrCheckoutInProgress
}

// settleWindow bounds how long an attempt may sit between provider calls.
func (s *Service) settleWindow() time.Duration {
	cfg := s.checkout.Get()
	return 2*cfg.ProviderTimeout + cfg.FallbackTimeout
}

func sameCharge(attempt *paymentdomain.Attempt, target *checkoutTarget) bool {
	if attempt.Amount != target.Amount || !strings.EqualFold(attempt.Currency, target.Currency) {
		return false
	}
	if (attempt.OfferingID == nil) != (target.OfferingID == nil) {
		return false
	}
	return attempt.OfferingID == nil || *attempt.OfferingID == *target.OfferingID
}

// closeAttempt retires an attempt with the provider, then marks it failed.
// A payment that already went through settles instead, and one still
// processing leaves the attempt confirming. The returned attempt shows which.
func (s *Service) closeAttempt(ctx context.Context, attempt *paymentdomain.Attempt, reason string) (*paymentdomain.Attempt, error) {
	if attempt.ProviderTransactionID != nil {
		tx, resolved, err := s.reconcileIntent(ctx, attempt, sourceReconcile)
		if err != nil {
			return nil, err
		}
		if resolved != nil {
			return resolved, nil
		}
		if tx.Status != paymentdomain.TransactionCanceled {
			if err := s.cancelIntent(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}

	if attempt.HostedSessionID != nil {
		cfg := s.checkout.Get()
		providerCtx, cancel := context.WithTimeout(ctx, cfg.ProviderTimeout)
		session, err := s.gateway.RetrieveHostedSession(providerCtx, *attempt.HostedSessionID)
		cancel()
		if err != nil {
			return nil, err
		}
		if session.Paid {
			return s.settle(ctx, attempt, firstNonEmpty(session.TransactionID, session.ID), session.AmountTotal, session.Currency, sourceReconcile)
		}
		expireCtx, cancel := context.WithTimeout(ctx, cfg.ProviderTimeout)
		err = s.gateway.ExpireHostedSession(expireCtx, *attempt.HostedSessionID)
		cancel()
		if err != nil {
			return nil, err
		}
	}

	if _, err := s.repo.MarkFailed(ctx, s.db, attempt.ID, reason, s.clock.Now()); err != nil {
		return nil, err
	}
	return s.load(ctx, attempt.ID)
}

// reconcileIntent asks the provider about the embedded transaction. The
// returned attempt is non-nil when the payment succeeded or is processing.
func (s *Service) reconcileIntent(ctx context.Context, attempt *paymentdomain.Attempt, source string) (*paymentdomain.Transaction, *paymentdomain.Attempt, error) {
	providerCtx, cancel := context.WithTimeout(ctx, s.checkout.Get().ProviderTimeout)
	tx, err := s.gateway.RetrieveTransaction(providerCtx, *attempt.ProviderTransactionID)
	cancel()
	if err != nil {
		return nil, nil, err
	}

	switch tx.Status {
	case paymentdomain.TransactionSucceeded:
		settled, err := s.settle(ctx, attempt, tx.ID, tx.Amount, tx.Currency, source)
		return tx, settled, err
	case paymentdomain.TransactionProcessing:
		if _, err := s.repo.MarkConfirming(ctx, s.db, attempt.ID, s.clock.Now()); err != nil {
			return tx, nil, err
		}
		current, err := s.load(ctx, attempt.ID)
		return tx, current, err
	}
	return tx, nil, nil
}

func (s *Service) cancelIntent(ctx context.Context, attempt *paymentdomain.Attempt) error {
	cancelCtx, cancel := context.WithTimeout(ctx, s.checkout.Get().ProviderTimeout)
	defer cancel()
	return s.gateway.CancelTransaction(cancelCtx, *attempt.ProviderTransactionID)
}

func (s *Service) Get(ctx context.Context, attemptID int64) (*paymentdomain.Attempt, error) {
	attempt, err := s.owned(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, attempt)
}

func (s *Service) refresh(ctx context.Context, attempt *paymentdomain.Attempt) (*paymentdomain.Attempt, error) {
	if !attempt.TimedOut(s.clock.Now()) {
		return attempt, nil
	}
	fallen, err := s.fallback(ctx, attempt.ID, paymentdomain.TriggerLoadTimeout)
	if errors.Is(err, paymentdomain.ErrFallbackRefused) {
		// The form reported ready first.
		return s.load(ctx, attempt.ID)
	}
	return fallen, err
}

// ReportReady records that the embedded form rendered. Past the deadline the
// attempt falls back instead and the returned mode is redirect.
func (s *Service) ReportReady(ctx context.Context, attemptID int64) (*paymentdomain.Attempt, error) {
	attempt, err := s.owned(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if attempt.TimedOut(now) {
		return s.fallback(ctx, attempt.ID, paymentdomain.TriggerLoadTimeout)
	}
	if attempt.State == paymentdomain.StateAwaitingClientSecret {
		if _, err := s.repo.MarkEmbeddedReady(ctx, s.db, attempt.ID, now); err != nil {
			return nil, err
		}
	}
	return s.load(ctx, attempt.ID)
}

func (s *Service) ReportLoadError(ctx context.Context, attemptID int64, reason string) (*paymentdomain.Attempt, error) {
	attempt, err := s.owned(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	s.log.Info("embedded checkout failed to load",
		zap.Int64("attempt_id", attempt.ID),
		zap.String("reason", strings.TrimSpace(reason)),
	)
	return s.fallback(ctx, attempt.ID, paymentdomain.TriggerLoadError)
}

// fallback moves an attempt to the hosted page. Only the caller that wins
// ClaimFallback talks to the provider; everyone else sees the stored state.
func (s *Service) fallback(ctx context.Context, attemptID int64, trigger paymentdomain.Trigger) (*paymentdomain.Attempt, error) {
	claimed, err := s.repo.ClaimFallback(ctx, s.db, attemptID, trigger, s.clock.Now())
	if err != nil {
		return nil, err
	}
	attempt, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		if attempt.State == paymentdomain.StateFallbackToHosted {
			return attempt, nil
		}
		return nil, paymentdomain.ErrFallbackRefused
	}

	// The form may have been paid even though it never reported ready.
	if attempt.ProviderTransactionID != nil {
		tx, resolved, err := s.reconcileIntent(ctx, attempt, sourceEmbedded)
		if err != nil {
			s.log.Warn("embedded transaction status unavailable", zap.Int64("attempt_id", attempt.ID), zap.Error(err))
		} else if resolved != nil {
			return resolved, nil
		}
		if tx == nil || tx.Status != paymentdomain.TransactionCanceled {
			if err := s.cancelIntent(ctx, attempt); err != nil {
				s.log.Warn("cancel embedded transaction", zap.Int64("attempt_id", attempt.ID), zap.Error(err))
				if _, resolved, err := s.reconcileIntent(ctx, attempt, sourceEmbedded); err == nil && resolved != nil {
					return resolved, nil
				}
			}
		}
	}
	s.obsMetrics.RecordCheckoutFallback(ctx, string(trigger))

	target, err := s.reprice(ctx, attempt)
	if err != nil {
		s.fail(ctx, attempt.ID, reasonFor(err))
		return nil, err
	}

	cfg := s.checkout.Get()
	providerCtx, cancel := context.WithTimeout(ctx, cfg.ProviderTimeout)
	defer cancel()
	session, err := s.gateway.CreateHostedSession(providerCtx, paymentdomain.HostedSessionRequest{
		Lines:          target.Lines,
		Currency:       target.Currency,
		CustomerEmail:  target.Email,
		SuccessURL:     s.cfg.PublicBaseURL + cfg.ReturnPath + "?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:      s.cfg.PublicBaseURL + cfg.CancelPath + "?attempt_id=" + strconv.FormatInt(attempt.ID, 10),
		Metadata:       s.metadata(attempt),
		IdempotencyKey: fmt.Sprintf("attempt:%d:hosted", attempt.ID),
	})
	if err != nil {
		s.log.Error("hosted checkout unavailable",
			zap.Int64("attempt_id", attempt.ID),
			zap.String("trigger", string(trigger)),
			zap.Error(err),
		)
		s.fail(ctx, attempt.ID, "hosted_checkout_unavailable")
		return nil, fmt.Errorf("%w: %w", paymentdomain.ErrCheckoutUnavailable, err)
	}

	if err := s.repo.SetHostedSession(ctx, s.db, attempt.ID, session.ID, session.URL, s.clock.Now()); err != nil {
		return nil, err
	}
	return s.load(ctx, attempt.ID)
}

// reprice re-derives the amount from current records before the hosted page
// is created. An attempt is never charged a different amount than it began with.
func (s *Service) reprice(ctx context.Context, attempt *paymentdomain.Attempt) (*checkoutTarget, error) {
	var target *checkoutTarget
	switch attempt.TargetType {
	case paymentdomain.TargetOrder:
		order, err := s.orders.Lookup(ctx, attempt.TargetID)
		if err != nil {
			return nil, err
		}
		target, err = orderTarget(order)
		if err != nil {
			return nil, err
		}
		requests := make([]pricingdomain.LineRequest, 0, len(order.Lines))
		for _, line := range order.Lines {
			requests = append(requests, pricingdomain.LineRequest{OfferingID: line.OfferingID, Quantity: line.Quantity})
		}
		quote, err := s.pricing.Quote(ctx, requests)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", paymentdomain.ErrPriceChanged, err)
		}
		if quote.Total != order.TotalAmount || !strings.EqualFold(quote.Currency, order.Currency) {
			return nil, paymentdomain.ErrPriceChanged
		}
	case paymentdomain.TargetLaunchRequest:
		if attempt.OfferingID == nil {
			return nil, paymentdomain.ErrInvalidPackage
		}
		req, err := s.launches.Lookup(ctx, attempt.TargetID)
		if err != nil {
			return nil, err
		}
		target, err = s.launchTarget(ctx, req, *attempt.OfferingID)
		if err != nil {
			return nil, err
		}
	default:
		return nil, paymentdomain.ErrInvalidTarget
	}

	if target.Amount != attempt.Amount || !strings.EqualFold(target.Currency, attempt.Currency) {
		s.log.Warn("price changed during checkout",
			zap.Int64("attempt_id", attempt.ID),
			zap.Int64("attempt_amount", attempt.Amount),
			zap.Int64("current_amount", target.Amount),
		)
		return nil, paymentdomain.ErrPriceChanged
	}
	return target, nil
}

func orderTarget(order *orderdomain.Order) (*checkoutTarget, error) {
	switch order.Status {
	case orderdomain.StatusPaid:
		return nil, paymentdomain.ErrAlreadyPaid
	case orderdomain.StatusPending, orderdomain.StatusFailed:
	default:
		return nil, paymentdomain.ErrNotPayable
	}
	if order.TotalAmount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}

	lines := make([]paymentdomain.HostedLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, paymentdomain.HostedLine{
			Name:       line.Name,
			UnitAmount: line.PriceAtPurchase,
			Quantity:   line.Quantity,
		})
	}
	return &checkoutTarget{
		Type:        paymentdomain.TargetOrder,
		ID:          order.ID,
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		Email:       order.ContactEmail,
		Description: fmt.Sprintf("Order %d", order.ID),
		Lines:       lines,
	}, nil
}

func (s *Service) launchTarget(ctx context.Context, req *launchdomain.LaunchRequest, offeringID int64) (*checkoutTarget, error) {
	switch req.PaymentStatus {
	case launchdomain.PaymentCompleted, launchdomain.PaymentNotRequired:
		return nil, paymentdomain.ErrAlreadyPaid
	}
	if offeringID <= 0 {
		return nil, paymentdomain.ErrInvalidPackage
	}
	offering, err := s.catalog.Get(ctx, offeringID)
	if err != nil {
		if errors.Is(err, catalogdomain.ErrNotFound) || errors.Is(err, catalogdomain.ErrInvalidID) {
			return nil, paymentdomain.ErrInvalidPackage
		}
		return nil, err
	}
	if !offering.IsActive || offering.Category != catalogdomain.CategoryLaunchPackage {
		return nil, paymentdomain.ErrInvalidPackage
	}
	quote, err := s.pricing.Quote(ctx, []pricingdomain.LineRequest{{OfferingID: offeringID, Quantity: 1}})
	if err != nil {
		if pricingdomain.IsPricingError(err) {
			return nil, paymentdomain.ErrInvalidPackage
		}
		return nil, err
	}

	email := ""
	if req.BillingEmail != nil {
		email = *req.BillingEmail
	} else if req.Email != nil {
		email = *req.Email
	}
	return &checkoutTarget{
		Type:        paymentdomain.TargetLaunchRequest,
		ID:          req.ID,
		OfferingID:  &offeringID,
		Amount:      quote.Total,
		Currency:    quote.Currency,
		Email:       email,
		Description: offering.Name,
		Lines: []paymentdomain.HostedLine{{
			Name:       offering.Name,
			UnitAmount: quote.Total,
			Quantity:   1,
		}},
	}, nil
}

func (s *Service) metadata(attempt *paymentdomain.Attempt) map[string]string {
	return map[string]string{
		"target_type": attempt.TargetType,
		"target_id":   strconv.FormatInt(attempt.TargetID, 10),
		"attempt_id":  strconv.FormatInt(attempt.ID, 10),
		"user_id":     attempt.UserID,
	}
}

func (s *Service) owned(ctx context.Context, attemptID int64) (*paymentdomain.Attempt, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	attempt, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(attempt.UserID) {
		return nil, paymentdomain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *Service) load(ctx context.Context, attemptID int64) (*paymentdomain.Attempt, error) {
	if attemptID <= 0 {
		return nil, paymentdomain.ErrInvalidAttemptID
	}
	attempt, err := s.repo.FindAttempt(ctx, s.db, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, paymentdomain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *Service) fail(ctx context.Context, attemptID int64, reason string) {
	if _, err := s.repo.MarkFailed(ctx, s.db, attemptID, reason, s.clock.Now()); err != nil {
		s.log.Error("mark checkout attempt failed", zap.Int64("attempt_id", attemptID), zap.Error(err))
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, paymentdomain.ErrPriceChanged):
		return "price_changed"
	case errors.Is(err, paymentdomain.ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(err, paymentdomain.ErrInvalidPackage):
		return "invalid_package"
	}
	return "checkout_unavailable"
}

package service

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/launchpad/internal/clock"
	eventdomain "github.com/smallbiznis/launchpad/internal/events/domain"
	"github.com/smallbiznis/launchpad/internal/identity"
	"github.com/smallbiznis/launchpad/internal/order/domain"
	pricingdomain "github.com/smallbiznis/launchpad/internal/pricing/domain"
	"github.com/smallbiznis/launchpad/internal/providers/pdf"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const issuerName = "Launchpad Ecuador"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Pricing    pricingdomain.Service
	Recorder   eventdomain.Recorder
	Dispatcher eventdomain.Dispatcher
	PDF        pdf.Provider
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	pricing    pricingdomain.Service
	recorder   eventdomain.Recorder
	dispatcher eventdomain.Dispatcher
	pdf        pdf.Provider
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("order.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		pricing:    p.Pricing,
		recorder:   p.Recorder,
		dispatcher: p.Dispatcher,
		pdf:        p.PDF,
	}
}

func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	contact, err := normalizeContact(req.Contact)
	if err != nil {
		return nil, err
	}

	quote, err := s.pricing.Quote(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	if req.ClientTotal != nil && *req.ClientTotal != quote.Total {
		s.log.Warn("client total differs from authoritative quote",
			zap.Int64("client_total", *req.ClientTotal),
			zap.Int64("quote_total", quote.Total),
		)
	}

	now := s.clock.Now()
	order := &domain.Order{
		ID:           s.genID.Generate().Int64(),
		UserID:       caller.UserID,
		ContactName:  contact.Name,
		ContactEmail: contact.Email,
		ContactPhone: optional(contact.Phone),
		TotalAmount:  quote.Total,
		Currency:     quote.Currency,
		Status:       domain.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	order.CartSessionID = optional(req.CartSessionID)

	lines := make([]domain.Line, 0, len(quote.Lines))
	for i, priced := range quote.Lines {
		lines = append(lines, domain.Line{
			ID:              s.genID.Generate().Int64(),
			OrderID:         order.ID,
			LineNo:          i + 1,
			OfferingID:      priced.OfferingID,
			Name:            priced.Name,
			Quantity:        priced.Quantity,
			PriceAtPurchase: priced.UnitPrice,
			Amount:          priced.Amount,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, order); err != nil {
			return err
		}
		return s.repo.InsertLines(ctx, tx, lines)
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	order.Lines = lines
	s.log.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("total_amount", order.TotalAmount),
		zap.Int("lines", len(lines)),
	)
	return order, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Order, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	order, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(order.UserID) {
		// Other clients' orders are indistinguishable from missing ones.
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) Lookup(ctx context.Context, id int64) (*domain.Order, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidID
	}
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	lines, err := s.repo.FindLines(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return order, nil
}

func (s *Service) MarkPaid(ctx context.Context, id int64, providerTxID string) (*domain.Order, bool, error) {
	providerTxID = strings.TrimSpace(providerTxID)
	if providerTxID == "" {
		return nil, false, domain.ErrInvalidTransactionID
	}
	if id <= 0 {
		return nil, false, domain.ErrInvalidID
	}

	var (
		applied bool
		event   *eventdomain.Event
	)
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated, err := s.repo.MarkPaid(ctx, tx, id, providerTxID, now)
		if err != nil {
			return err
		}
		if !updated {
			existing, err := s.repo.FindByID(ctx, tx, id)
			if err != nil {
				return err
			}
			if existing == nil {
				return domain.ErrOrderNotFound
			}
			if existing.ProviderTransactionID != nil && *existing.ProviderTransactionID != providerTxID {
				s.log.Warn("duplicate payment confirmation with different transaction",
					zap.Int64("order_id", id),
					zap.String("provider_transaction_id", providerTxID),
				)
			}
			return nil
		}

		applied = true
		order, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		event, err = s.recorder.Record(ctx, tx, eventdomain.EventOrderPaid, eventdomain.AggregateOrder, strconv.FormatInt(id, 10), eventdomain.OrderPaidPayload{
			OrderID:       strconv.FormatInt(id, 10),
			UserID:        order.UserID,
			CartSessionID: deref(order.CartSessionID),
			Total:         order.TotalAmount,
			Currency:      order.Currency,
			TransactionID: providerTxID,
			PaidAt:        now,
		})
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if event != nil {
		s.dispatcher.Dispatch(ctx, event)
	}
	if applied {
		s.log.Info("order paid", zap.Int64("order_id", id), zap.String("provider_transaction_id", providerTxID))
	}

	order, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return order, applied, nil
}

func (s *Service) MarkFailed(ctx context.Context, id int64, reason string) (*domain.Order, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidID
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "payment_failed"
	}

	updated, err := s.repo.MarkFailed(ctx, s.db, id, reason, s.clock.Now())
	if err != nil {
		return nil, err
	}
	order, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if updated || order.Status == domain.StatusFailed {
		return order, nil
	}
	return nil, domain.ErrInvalidTransition
}

func (s *Service) Cancel(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == domain.StatusCancelled {
		return order, nil
	}
	if !domain.CanTransition(order.Status, domain.StatusCancelled) {
		return nil, domain.ErrInvalidTransition
	}
	updated, err := s.repo.Cancel(ctx, s.db, id, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !updated {
		// Lost a race with a payment or failure; report the current state.
		return nil, domain.ErrInvalidTransition
	}
	return s.Lookup(ctx, id)
}

func (s *Service) Receipt(ctx context.Context, id int64) (io.Reader, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.StatusPaid || order.PaidAt == nil {
		return nil, domain.ErrNotPaid
	}

	items := make([]pdf.ReceiptItem, 0, len(order.Lines))
	for _, line := range order.Lines {
		items = append(items, pdf.ReceiptItem{
			Description: line.Name,
			Qty:         line.Quantity,
			UnitPrice:   line.PriceAtPurchase,
			Amount:      line.Amount,
		})
	}
	return s.pdf.GenerateReceipt(ctx, pdf.ReceiptData{
		IssuerName:    issuerName,
		OrderNumber:   strconv.FormatInt(order.ID, 10),
		DatePaid:      order.PaidAt.Format("2006-01-02"),
		TransactionID: deref(order.ProviderTransactionID),
		CustomerName:  order.ContactName,
		CustomerEmail: order.ContactEmail,
		CustomerPhone: deref(order.ContactPhone),
		Currency:      order.Currency,
		Items:         items,
		Total:         order.TotalAmount,
	})
}

func normalizeContact(c domain.Contact) (domain.Contact, error) {
	out := domain.Contact{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
		Phone: strings.TrimSpace(c.Phone),
	}
	if out.Name == "" || out.Email == "" {
		return domain.Contact{}, domain.ErrInvalidContact
	}
	addr, err := mail.ParseAddress(out.Email)
	if err != nil || addr.Address != out.Email {
		return domain.Contact{}, domain.ErrInvalidContact
	}
	return out, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

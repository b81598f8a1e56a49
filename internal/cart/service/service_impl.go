package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/launchpad/internal/cart/domain"
	catalogdomain "github.com/smallbiznis/launchpad/internal/catalog/domain"
	"github.com/smallbiznis/launchpad/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	KV      domain.KV
	Catalog catalogdomain.Service
}

type Service struct {
	log     *zap.Logger
	clock   clock.Clock
	kv      domain.KV
	catalog catalogdomain.Service
}

func New(p Params) *Service {
	return &Service{
		log:     p.Log.Named("cart.service"),
		clock:   p.Clock,
		kv:      p.KV,
		catalog: p.Catalog,
	}
}

func (s *Service) open(ctx context.Context, sessionID string) (*domain.Store, error) {
	return domain.Open(ctx, s.kv, sessionID, s.clock.Now)
}

func (s *Service) View(ctx context.Context, sessionID string) (*domain.View, error) {
	store, err := s.open(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, store), nil
}

// Put sets an item's quantity. Unknown or inactive offerings are refused up front
// so the cart does not fill with lines checkout would reject.
func (s *Service) Put(ctx context.Context, sessionID string, offeringID int64, quantity int) (*domain.View, error) {
	store, err := s.open(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	offering, err := s.catalog.Get(ctx, offeringID)
	if err != nil {
		if errors.Is(err, catalogdomain.ErrNotFound) || errors.Is(err, catalogdomain.ErrInvalidID) {
			return nil, domain.ErrInvalidOffering
		}
		return nil, err
	}
	if !offering.IsActive {
		return nil, domain.ErrInvalidOffering
	}
	if err := store.SetQuantity(ctx, offeringID, quantity); err != nil {
		return nil, err
	}
	return s.view(ctx, store), nil
}

func (s *Service) Remove(ctx context.Context, sessionID string, offeringID int64) (*domain.View, error) {
	store, err := s.open(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := store.Remove(ctx, offeringID); err != nil {
		return nil, err
	}
	return s.view(ctx, store), nil
}

func (s *Service) Clear(ctx context.Context, sessionID string) error {
	store, err := s.open(ctx, sessionID)
	if err != nil {
		return err
	}
	return store.Clear(ctx)
}

func (s *Service) view(ctx context.Context, store *domain.Store) *domain.View {
	cart := store.Cart()
	prices := make(map[int64]int64, len(cart.Items))
	currency := ""
	for _, item := range cart.Items {
		offering, err := s.catalog.Get(ctx, item.OfferingID)
		if err != nil || !offering.IsActive {
			continue
		}
		prices[item.OfferingID] = offering.UnitPrice
		if currency == "" {
			currency = offering.Currency
		}
	}
	return &domain.View{
		Cart:     cart,
		Subtotal: store.Subtotal(prices),
		Currency: currency,
	}
}

package service

import (
	"context"
	"errors"

	catalogdomain "github.com/smallbiznis/launchpad/internal/catalog/domain"
	"github.com/smallbiznis/launchpad/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// OfferingSource is the slice of the catalog the pricer reads.
type OfferingSource interface {
	Get(ctx context.Context, id int64) (*catalogdomain.Offering, error)
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Catalog catalogdomain.Service
}

type Service struct {
	log     *zap.Logger
	catalog OfferingSource
}

func New(p Params) domain.Service {
	return NewWithSource(p.Log, p.Catalog)
}

func NewWithSource(log *zap.Logger, source OfferingSource) *Service {
	return &Service{
		log:     log.Named("pricing.service"),
		catalog: source,
	}
}

func (s *Service) Quote(ctx context.Context, lines []domain.LineRequest) (*domain.Quote, error) {
	if len(lines) == 0 {
		return nil, domain.ErrEmptyQuote
	}

	merged, err := mergeLines(lines)
	if err != nil {
		return nil, err
	}

	quote := &domain.Quote{Lines: make([]domain.Line, 0, len(merged))}
	for i, req := range merged {
		offering, err := s.catalog.Get(ctx, req.OfferingID)
		if err != nil {
			if errors.Is(err, catalogdomain.ErrNotFound) || errors.Is(err, catalogdomain.ErrInvalidID) {
				return nil, &domain.LineError{Index: i, OfferingID: req.OfferingID, Err: domain.ErrInvalidOffering}
			}
			return nil, err
		}
		if !offering.IsActive {
			return nil, &domain.LineError{Index: i, OfferingID: req.OfferingID, Err: domain.ErrInvalidOffering}
		}
		if quote.Currency == "" {
			quote.Currency = offering.Currency
		} else if quote.Currency != offering.Currency {
			return nil, &domain.LineError{Index: i, OfferingID: req.OfferingID, Err: domain.ErrCurrencyMismatch}
		}

		amount := offering.UnitPrice * int64(req.Quantity)
		quote.Lines = append(quote.Lines, domain.Line{
			OfferingID: offering.ID,
			Code:       offering.Code,
			Name:       offering.Name,
			Quantity:   req.Quantity,
			UnitPrice:  offering.UnitPrice,
			Amount:     amount,
		})
		quote.Total += amount
	}
	return quote, nil
}

// mergeLines sums quantities of repeated offerings, keeping first-seen order.
func mergeLines(lines []domain.LineRequest) ([]domain.LineRequest, error) {
	index := make(map[int64]int, len(lines))
	merged := make([]domain.LineRequest, 0, len(lines))
	for i, line := range lines {
		if line.Quantity <= 0 || line.Quantity > domain.MaxQuantity {
			return nil, &domain.LineError{Index: i, OfferingID: line.OfferingID, Err: domain.ErrInvalidQuantity}
		}
		if pos, ok := index[line.OfferingID]; ok {
			merged[pos].Quantity += line.Quantity
			if merged[pos].Quantity > domain.MaxQuantity {
				return nil, &domain.LineError{Index: i, OfferingID: line.OfferingID, Err: domain.ErrInvalidQuantity}
			}
			continue
		}
		index[line.OfferingID] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}

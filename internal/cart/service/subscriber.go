package service

import (
	"context"
	"encoding/json"
	"strings"

	eventdomain "github.com/smallbiznis/launchpad/internal/events/domain"
	"go.uber.org/zap"
)

// ClearOnPaid empties the originating cart once an order is paid.
type ClearOnPaid struct {
	svc *Service
	log *zap.Logger
}

func NewClearOnPaid(svc *Service, log *zap.Logger) *ClearOnPaid {
	return &ClearOnPaid{svc: svc, log: log.Named("cart.clear_on_paid")}
}

func (c *ClearOnPaid) Name() string { return "cart.clear_on_paid" }

func (c *ClearOnPaid) Handles(eventType string) bool {
	return eventType == eventdomain.EventOrderPaid
}

func (c *ClearOnPaid) Handle(ctx context.Context, event eventdomain.Event) error {
	var payload eventdomain.OrderPaidPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return err
	}
	sessionID := strings.TrimSpace(payload.CartSessionID)
	if sessionID == "" {
		return nil
	}
	if err := c.svc.Clear(ctx, sessionID); err != nil {
		return err
	}
	c.log.Info("cart cleared after payment", zap.String("order_id", payload.OrderID))
	return nil
}

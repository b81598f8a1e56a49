// Package notification tells clients about their orders and launches.
// Delivery is best effort; a failed message never affects the lifecycle.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	eventdomain "github.com/smallbiznis/launchpad/internal/events/domain"
	launchdomain "github.com/smallbiznis/launchpad/internal/launch/domain"
	orderdomain "github.com/smallbiznis/launchpad/internal/order/domain"
	"github.com/smallbiznis/launchpad/internal/providers/email"
	"github.com/smallbiznis/launchpad/internal/providers/whatsapp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Orders   orderdomain.Service
	Launches launchdomain.Service
	Email    email.Provider
	WhatsApp whatsapp.Provider
}

// EmailNotifier mails the client on payment and fulfillment milestones.
type EmailNotifier struct {
	log      *zap.Logger
	orders   orderdomain.Service
	launches launchdomain.Service
	email    email.Provider
}

func NewEmailNotifier(p Params) *EmailNotifier {
	return &EmailNotifier{
		log:      p.Log.Named("notification.email"),
		orders:   p.Orders,
		launches: p.Launches,
		email:    p.Email,
	}
}

func (n *EmailNotifier) Name() string { return "notification.email" }

func (n *EmailNotifier) Handles(eventType string) bool {
	switch eventType {
	case eventdomain.EventOrderPaid,
		eventdomain.EventLaunchRequestSubmitted,
		eventdomain.EventLaunchRequestPaid,
		eventdomain.EventLaunchProgressStarted:
		return true
	}
	return false
}

func (n *EmailNotifier) Handle(ctx context.Context, event eventdomain.Event) error {
	if event.EventType == eventdomain.EventOrderPaid {
		var payload eventdomain.OrderPaidPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		id, err := strconv.ParseInt(payload.OrderID, 10, 64)
		if err != nil {
			return err
		}
		order, err := n.orders.Lookup(ctx, id)
		if err != nil {
			return err
		}
		return n.email.SendTemplate(ctx, []string{order.ContactEmail}, "order_paid", map[string]any{
			"name":     order.ContactName,
			"amount":   formatAmount(order.TotalAmount, order.Currency),
			"order_id": payload.OrderID,
		})
	}

	req, err := lookupLaunch(ctx, n.launches, event)
	if err != nil {
		return err
	}
	to := firstSet(req.BillingEmail, req.Email)
	if to == "" {
		n.log.Info("launch request has no email", zap.Int64("launch_request_id", req.ID))
		return nil
	}
	data := map[string]any{
		"name":    firstSet(req.FullName, req.BillingName),
		"company": firstSet(req.CompanyName, req.BrandName),
	}
	if req.PaidAmount != nil && req.PaidCurrency != nil {
		data["amount"] = formatAmount(*req.PaidAmount, *req.PaidCurrency)
	}
	return n.email.SendTemplate(ctx, []string{to}, templateFor(event.EventType), data)
}

// WhatsAppNotifier messages the client's phone when work starts.
type WhatsAppNotifier struct {
	log      *zap.Logger
	launches launchdomain.Service
	whatsapp whatsapp.Provider
}

func NewWhatsAppNotifier(p Params) *WhatsAppNotifier {
	return &WhatsAppNotifier{
		log:      p.Log.Named("notification.whatsapp"),
		launches: p.Launches,
		whatsapp: p.WhatsApp,
	}
}

func (n *WhatsAppNotifier) Name() string { return "notification.whatsapp" }

func (n *WhatsAppNotifier) Handles(eventType string) bool {
	return eventType == eventdomain.EventLaunchProgressStarted
}

func (n *WhatsAppNotifier) Handle(ctx context.Context, event eventdomain.Event) error {
	req, err := lookupLaunch(ctx, n.launches, event)
	if err != nil {
		return err
	}
	phone := firstSet(req.Phone)
	if phone == "" {
		return nil
	}
	company := firstSet(req.CompanyName, req.BrandName)
	if company == "" {
		company = "tu empresa"
	}
	return n.whatsapp.SendMessage(ctx, phone, fmt.Sprintf("Hola! Ya empezamos a trabajar en %s. Sigue el avance desde tu panel de Launchpad.", company))
}

type launchRef struct {
	LaunchRequestID string `json:"launch_request_id"`
}

func lookupLaunch(ctx context.Context, launches launchdomain.Service, event eventdomain.Event) (*launchdomain.LaunchRequest, error) {
	var ref launchRef
	if err := json.Unmarshal(event.Payload, &ref); err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(ref.LaunchRequestID, 10, 64)
	if err != nil {
		return nil, err
	}
	return launches.Lookup(ctx, id)
}

func templateFor(eventType string) string {
	switch eventType {
	case eventdomain.EventLaunchRequestSubmitted:
		return "launch_request_submitted"
	case eventdomain.EventLaunchRequestPaid:
		return "launch_request_paid"
	}
	return "launch_progress_started"
}

func formatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, minor/100, minor%100)
}

func firstSet(values ...*string) string {
	for _, v := range values {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

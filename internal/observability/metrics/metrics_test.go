package metrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("trigger", "load_timeout"),
		attribute.String("order_id", "456"),
		attribute.String("provider", "stripe"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "trigger" && attrs[1].Key != "trigger" {
		t.Fatalf("expected trigger to be retained")
	}
	if attrs[0].Key != "provider" && attrs[1].Key != "provider" {
		t.Fatalf("expected provider to be retained")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordCheckoutStarted(context.Background(), "stripe", "order")
	m.RecordCheckoutFallback(context.Background(), "load_error")
	m.RecordPaymentConfirmation(context.Background(), "webhook", "order", "applied")
	m.RecordJobRun(context.Background(), "dispatch_events", "ok", time.Second)
}

func TestNewRegistersInstruments(t *testing.T) {
	m, err := New(Config{ServiceName: "launchpad"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordFulfillmentStarted(context.Background())
	m.RecordBenefitCodeIssued(context.Background())
	m.RecordJobRun(context.Background(), "expire_checkouts", "timeout", 30*time.Second)
}

package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	checkoutsStarted     metric.Int64Counter
	checkoutFallbacks    metric.Int64Counter
	paymentConfirmations metric.Int64Counter
	paymentEvents        metric.Int64Counter
	fulfillmentStarts    metric.Int64Counter
	benefitCodesIssued   metric.Int64Counter
	rateLimitDenied      metric.Int64Counter
	jobRuns              metric.Int64Counter
	jobDuration          metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "launchpad"
	}
	meter := provider.Meter(name)

	checkoutsStarted, err := meter.Int64Counter("launchpad_checkouts_started_total")
	if err != nil {
		return nil, err
	}
	checkoutFallbacks, err := meter.Int64Counter("launchpad_checkout_fallbacks_total")
	if err != nil {
		return nil, err
	}
	paymentConfirmations, err := meter.Int64Counter("launchpad_payment_confirmations_total")
	if err != nil {
		return nil, err
	}
	paymentEvents, err := meter.Int64Counter("launchpad_payment_events_total")
	if err != nil {
		return nil, err
	}
	fulfillmentStarts, err := meter.Int64Counter("launchpad_fulfillment_starts_total")
	if err != nil {
		return nil, err
	}
	benefitCodesIssued, err := meter.Int64Counter("launchpad_benefit_codes_issued_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("launchpad_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}
	jobRuns, err := meter.Int64Counter("launchpad_scheduler_job_runs_total")
	if err != nil {
		return nil, err
	}
	jobDuration, err := meter.Float64Histogram("launchpad_scheduler_job_duration_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		checkoutsStarted:     checkoutsStarted,
		checkoutFallbacks:    checkoutFallbacks,
		paymentConfirmations: paymentConfirmations,
		paymentEvents:        paymentEvents,
		fulfillmentStarts:    fulfillmentStarts,
		benefitCodesIssued:   benefitCodesIssued,
		rateLimitDenied:      rateLimitDenied,
		jobRuns:              jobRuns,
		jobDuration:          jobDuration,
	}, nil
}

// RecordCheckoutStarted counts new checkout attempts per target kind.
func (m *Metrics) RecordCheckoutStarted(ctx context.Context, provider, targetType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("target_type", strings.TrimSpace(targetType)),
	)
	m.checkoutsStarted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCheckoutFallback counts embedded-to-hosted transitions by trigger.
func (m *Metrics) RecordCheckoutFallback(ctx context.Context, trigger string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("trigger", strings.TrimSpace(trigger)))
	m.checkoutFallbacks.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentConfirmation counts settlements; outcome is applied, duplicate, overpaid or amount_mismatch.
func (m *Metrics) RecordPaymentConfirmation(ctx context.Context, source, targetType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
		attribute.String("target_type", strings.TrimSpace(targetType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.paymentConfirmations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentEvent increments payment webhook event counts.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordFulfillmentStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.fulfillmentStarts.Add(ctx, 1)
}

func (m *Metrics) RecordBenefitCodeIssued(ctx context.Context) {
	if m == nil {
		return
	}
	m.benefitCodesIssued.Add(ctx, 1)
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordJobRun counts scheduler job runs; outcome is ok, error or timeout.
func (m *Metrics) RecordJobRun(ctx context.Context, job, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("job", strings.TrimSpace(job)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.jobRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.jobDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(FilterAttributes(attribute.String("job", strings.TrimSpace(job)))...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"provider":    {},
	"event_type":  {},
	"target_type": {},
	"trigger":     {},
	"source":      {},
	"outcome":     {},
	"reason":      {},
	"job":         {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

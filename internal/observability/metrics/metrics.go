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

const exportInterval = 10 * time.Second

// Config configures the OTLP meter provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

type counterName string

const (
	rentsCreated     counterName = "moviestore_rents_created_total"
	rentsReturned    counterName = "moviestore_rents_returned_total"
	salesCreated     counterName = "moviestore_sales_created_total"
	paymentEvents    counterName = "moviestore_payment_events_total"
	notifications    counterName = "moviestore_notifications_total"
	rateLimitAllowed counterName = "moviestore_rate_limit_allowed_total"
	rateLimitDenied  counterName = "moviestore_rate_limit_denied_total"
)

var counterHelp = map[counterName]string{
	rentsCreated:     "Rents accepted, by payment provider.",
	rentsReturned:    "Rents returned, by punctuality.",
	salesCreated:     "Sales completed.",
	paymentEvents:    "Payment provider events applied.",
	notifications:    "Notification deliveries, by template and result.",
	rateLimitAllowed: "Transaction requests admitted by the limiter.",
	rateLimitDenied:  "Transaction requests rejected by the limiter.",
}

// Metrics records store-level business counters over OTLP. A nil *Metrics
// discards every recording.
type Metrics struct {
	counters map[counterName]metric.Int64Counter
}

// NewProvider installs the global meter provider. When metrics are disabled a
// noop provider is installed instead.
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
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{OnStop: provider.Shutdown})
	}
	if log != nil {
		log.Info("otlp metrics enabled",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "moviestore"
	}
	meter := provider.Meter(name)

	m := &Metrics{counters: make(map[counterName]metric.Int64Counter, len(counterHelp))}
	for counter, help := range counterHelp {
		instrument, err := meter.Int64Counter(string(counter), metric.WithDescription(help))
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", counter, err)
		}
		m.counters[counter] = instrument
	}
	return m, nil
}

func (m *Metrics) add(ctx context.Context, name counterName, attrs ...attribute.KeyValue) {
	if m == nil {
		return
	}
	counter, ok := m.counters[name]
	if !ok {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func label(key, value string) attribute.KeyValue {
	return attribute.String(key, strings.TrimSpace(value))
}

func (m *Metrics) RecordRentCreated(ctx context.Context, provider string) {
	m.add(ctx, rentsCreated, label("provider", provider))
}

// RecordRentReturned takes the punctuality outcome of a return.
func (m *Metrics) RecordRentReturned(ctx context.Context, outcome string) {
	m.add(ctx, rentsReturned, label("outcome", outcome))
}

func (m *Metrics) RecordSaleCreated(ctx context.Context) {
	m.add(ctx, salesCreated)
}

func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	m.add(ctx, paymentEvents, label("provider", provider), label("event_type", eventType))
}

func (m *Metrics) RecordNotification(ctx context.Context, template string, ok bool) {
	status := "sent"
	if !ok {
		status = "failed"
	}
	m.add(ctx, notifications, label("template", template), label("status", status))
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	m.add(ctx, rateLimitAllowed, label("endpoint", endpoint))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	m.add(ctx, rateLimitDenied, label("endpoint", endpoint), label("reason", reason))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	case "", "grpc", "grpc/protobuf":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Labels outside this set would key series by user or movie.
var allowedLabelKeys = map[attribute.Key]bool{
	"endpoint":    true,
	"status_code": true,
	"provider":    true,
	"event_type":  true,
	"outcome":     true,
	"template":    true,
	"status":      true,
	"reason":      true,
}

func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if allowedLabelKeys[attr.Key] {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}

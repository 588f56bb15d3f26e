package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	opCounter     otelmetric.Int64Counter
	opDuration    otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	opCounter, _ := meter.Int64Counter(
		"operations.processed",
		otelmetric.WithDescription("Number of case operations processed"),
	)

	opDuration, _ := meter.Float64Histogram(
		"operations.duration",
		otelmetric.WithDescription("Case operation duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		opCounter:     opCounter,
		opDuration:    opDuration,
	}
}

func (o *Observability) RecordOperation(ctx context.Context, operation, status string) {
	if o.opCounter != nil {
		o.opCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordOperationDuration(ctx context.Context, operation string, duration time.Duration) {
	if o.opDuration != nil {
		o.opDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("operation", operation),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}

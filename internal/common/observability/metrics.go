package observability

import (
	"context"
	"time"

	"submission-workflow/internal/common/config"
	"submission-workflow/internal/common/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Observability owns the OpenTelemetry meter and tracer providers. The
// meter is exported through the Prometheus registry served on /metrics;
// spans go to Jaeger when tracing is enabled.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	jobCounter     otelmetric.Int64Counter
	jobDuration    otelmetric.Float64Histogram
	logger         logger.Logger
}

func New(serviceName string, tracing config.TracingConfig, log logger.Logger) *Observability {
	o := &Observability{
		tracer: noop.NewTracerProvider().Tracer(serviceName),
		logger: log,
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to create prometheus exporter", map[string]interface{}{"error": err.Error()})
	} else {
		o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter), metric.WithResource(res))
		otel.SetMeterProvider(o.meterProvider)
		meter := o.meterProvider.Meter(serviceName)

		o.jobCounter, _ = meter.Int64Counter(
			"jobs.processed",
			otelmetric.WithDescription("Number of jobs processed"),
		)
		o.jobDuration, _ = meter.Float64Histogram(
			"jobs.duration",
			otelmetric.WithDescription("Job processing duration"),
			otelmetric.WithUnit("ms"),
		)
	}

	if tracing.Enabled && tracing.JaegerEndpoint != "" {
		traceExporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(tracing.JaegerEndpoint)))
		if err != nil {
			log.Warn("failed to create jaeger exporter", map[string]interface{}{"error": err.Error()})
			return o
		}
		o.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(o.tracerProvider)
		o.tracer = o.tracerProvider.Tracer(serviceName)
		log.Info("tracing enabled", map[string]interface{}{"endpoint": tracing.JaegerEndpoint})
	}
	return o
}

// StartSpan opens a span on the service tracer. With tracing disabled the
// span is a no-op.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordJob implements camunda.JobRecorder.
func (o *Observability) RecordJob(ctx context.Context, taskType, outcome string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", outcome),
	)
	if o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, attrs)
	}
	if o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.tracerProvider != nil {
		if err := o.tracerProvider.Shutdown(ctx); err != nil {
			o.logger.Warn("tracer shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}
	if o.meterProvider != nil {
		if err := o.meterProvider.Shutdown(ctx); err != nil {
			o.logger.Warn("meter shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

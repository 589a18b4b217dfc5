package runtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"

	"github.com/fjlabs/fjchat-core/internal/config"
)

// setupTelemetry installs the global trace and meter providers. Spans go
// to an OTLP collector when one is configured, otherwise to stdout.
// Metrics are scraped through the returned Prometheus handler, which is
// nil when the exporter could not be built.
func setupTelemetry(cfg config.Config, logger *slog.Logger) (func(context.Context) error, http.Handler, error) {
	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.RuntimeName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	spans, exporterName, err := newSpanExporter(ctx, cfg.Telemetry)
	if err != nil {
		return nil, nil, err
	}
	traces := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spans),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(traces)
	logger.Info("tracing ready", slog.String("span_exporter", exporterName))

	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	var handler http.Handler
	if reader, err := prometheus.New(); err != nil {
		logger.Warn("prometheus exporter unavailable, metrics endpoint disabled",
			slog.String("error", err.Error()))
	} else {
		metricOpts = append(metricOpts, sdkmetric.WithReader(reader))
		handler = promhttp.Handler()
	}
	metrics := sdkmetric.NewMeterProvider(metricOpts...)
	otel.SetMeterProvider(metrics)

	shutdown := func(ctx context.Context) error {
		return errors.Join(metrics.Shutdown(ctx), traces.Shutdown(ctx))
	}
	return shutdown, handler, nil
}

func newSpanExporter(ctx context.Context, tc config.TelemetryConfig) (sdktrace.SpanExporter, string, error) {
	if endpoint := strings.TrimSpace(tc.OTLPEndpoint); endpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if tc.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, "", err
		}
		return exporter, "otlp " + endpoint, nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, "", err
	}
	return exporter, "stdout", nil
}

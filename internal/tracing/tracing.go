// Package tracing настраивает OpenTelemetry tracer provider сервиса.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	// ExporterNone оставляет глобальный no-op provider.
	ExporterNone = ""
	// ExporterStdout печатает спаны в stdout (локальная отладка).
	ExporterStdout = "stdout"
)

// ShutdownFunc останавливает provider и дописывает накопленные спаны.
type ShutdownFunc func(ctx context.Context) error

// Setup устанавливает глобальный tracer provider для exporter.
// Для ExporterNone возвращает no-op shutdown.
func Setup(ctx context.Context, exporter, serviceName, serviceVersion string) (ShutdownFunc, error) {
	return setup(ctx, exporter, serviceName, serviceVersion, os.Stdout)
}

func setup(_ context.Context, exporter, serviceName, serviceVersion string, out io.Writer) (ShutdownFunc, error) {
	logger := log.WithField("component", "tracing")

	switch strings.ToLower(strings.TrimSpace(exporter)) {
	case ExporterNone, "none", "off":
		return func(context.Context) error { return nil }, nil
	case ExporterStdout:
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q (use stdout or leave empty)", exporter)
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", serviceVersion),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	logger.WithField("exporter", exporter).Info("tracing enabled")
	return tp.Shutdown, nil
}

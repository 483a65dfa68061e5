// Package otel configures OpenTelemetry tracing for storyframe binaries.
package otel

import (
	"context"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/louisbranch/storyframe/internal/platform/config"
)

// Environment switches for tracing.
var (
	EnvEndpoint = config.EnvName("OTEL_ENDPOINT")
	EnvEnabled  = config.EnvName("OTEL_ENABLED")
	EnvSampling = config.EnvName("OTEL_SAMPLE_RATIO")
)

// Setup initialises OpenTelemetry tracing for the given service.
//
// Tracing is opt-in: when STORYFRAME_OTEL_ENDPOINT is empty or
// STORYFRAME_OTEL_ENABLED is "false", Setup returns a no-op shutdown
// function and no global provider is registered.
func Setup(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if strings.EqualFold(os.Getenv(EnvEnabled), "false") {
		return noop, nil
	}

	endpoint := strings.TrimSpace(os.Getenv(EnvEndpoint))
	if endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(endpoint),
	)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceNamespace("storyframe"),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// sampler honours STORYFRAME_OTEL_SAMPLE_RATIO, defaulting to always-on.
func sampler() sdktrace.Sampler {
	var cfg struct {
		Ratio float64 `env:"STORYFRAME_OTEL_SAMPLE_RATIO" envDefault:"1"`
	}
	if err := config.ParseEnv(&cfg); err != nil || cfg.Ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	if cfg.Ratio <= 0 {
		return sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Ratio))
}

// Package telemetry wires optional OpenTelemetry traces and metrics around
// completion enumeration and resolution.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	scope                 = "github.com/alexispurslane/tmpl-lsp/completion"
	defaultMetricInterval = time.Minute
)

type Config struct {
	ServiceName   string
	EnableMetrics bool
	EnableTraces  bool
	// TraceWriter receives pretty-printed spans. Defaults to stderr, since
	// stdout may be carrying the protocol.
	TraceWriter io.Writer
	// SpanProcessor replaces the stdout exporter when set.
	SpanProcessor sdktrace.SpanProcessor
	// MetricWriter receives metric exports every MetricInterval and on
	// Shutdown. Defaults to stderr.
	MetricWriter   io.Writer
	MetricInterval time.Duration
	// MetricReader replaces the periodic stdout exporter when set.
	MetricReader sdkmetric.Reader
}

// Provider owns the meter and tracer providers. A nil or disabled Provider
// hands out nil Instruments, which are safe to use.
type Provider struct {
	cfg            Config
	reader         sdkmetric.Reader
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider

	instruments  *Instruments
	shutdownOnce sync.Once
}

func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.EnableMetrics && !cfg.EnableTraces {
		return &Provider{cfg: cfg}, nil
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "tmpl-lsp"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	p := &Provider{cfg: cfg}
	var (
		meter  metric.Meter
		tracer trace.Tracer
	)

	if cfg.EnableMetrics {
		p.reader = cfg.MetricReader
		if p.reader == nil {
			w := cfg.MetricWriter
			if w == nil {
				w = os.Stderr
			}
			exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w), stdoutmetric.WithPrettyPrint())
			if err != nil {
				return nil, fmt.Errorf("init stdout metric exporter: %w", err)
			}
			interval := cfg.MetricInterval
			if interval <= 0 {
				interval = defaultMetricInterval
			}
			p.reader = sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))
		}
		p.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(p.reader),
			sdkmetric.WithResource(res),
		)
		meter = p.meterProvider.Meter(scope)
	}

	if cfg.EnableTraces {
		processor := cfg.SpanProcessor
		if processor == nil {
			w := cfg.TraceWriter
			if w == nil {
				w = os.Stderr
			}
			exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
			if err != nil {
				return nil, fmt.Errorf("init stdout trace exporter: %w", err)
			}
			processor = sdktrace.NewBatchSpanProcessor(exp, sdktrace.WithMaxExportBatchSize(64))
		}
		p.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithSpanProcessor(processor),
			sdktrace.WithResource(res),
		)
		tracer = p.tracerProvider.Tracer(scope)
	}

	p.instruments, err = newInstruments(meter, tracer)
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, fmt.Errorf("create instruments: %w", err)
	}
	return p, nil
}

// Instruments returns nil when telemetry is disabled.
func (p *Provider) Instruments() *Instruments {
	if p == nil {
		return nil
	}
	return p.instruments
}

// Collect reads the current metric state. It returns an empty result when
// metrics are disabled.
func (p *Provider) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	if p == nil || p.reader == nil {
		return rm, nil
	}
	err := p.reader.Collect(ctx, &rm)
	return rm, err
}

// Shutdown flushes and stops the configured providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var err error
	p.shutdownOnce.Do(func() {
		var errs []error
		if p.meterProvider != nil {
			if shutdownErr := p.meterProvider.Shutdown(ctx); shutdownErr != nil {
				errs = append(errs, shutdownErr)
			}
		}
		if p.tracerProvider != nil {
			if shutdownErr := p.tracerProvider.Shutdown(ctx); shutdownErr != nil {
				errs = append(errs, shutdownErr)
			}
		}
		err = errors.Join(errs...)
	})
	return err
}

// EnvBool interprets TMPL_LSP_* toggles.
func EnvBool(value string, defaultOn bool) bool {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "":
		return defaultOn
	case "1", "true", "on", "enable", "enabled", "yes":
		return true
	case "0", "false", "off", "disable", "disabled", "no":
		return false
	default:
		return defaultOn
	}
}

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Outcomes recorded on finished operations.
const (
	OutcomeOK        = "ok"
	OutcomeStale     = "stale"
	OutcomeDegraded  = "degraded"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// Instruments publishes completion metrics and spans. All methods accept a
// nil receiver.
type Instruments struct {
	enumerations metric.Int64Counter
	resolves     metric.Int64Counter
	duration     metric.Int64Histogram

	tracer trace.Tracer
}

// Op tracks one enumeration or resolution.
type Op struct {
	inst  *Instruments
	kind  string
	span  trace.Span
	start time.Time
	attrs []attribute.KeyValue
}

func newInstruments(meter metric.Meter, tracer trace.Tracer) (*Instruments, error) {
	inst := &Instruments{tracer: tracer}
	if meter == nil {
		return inst, nil
	}

	var err error
	if inst.enumerations, err = meter.Int64Counter(
		"completion.enumerations_total",
		metric.WithDescription("Number of completion enumerations"),
	); err != nil {
		return nil, fmt.Errorf("enumerations counter: %w", err)
	}
	if inst.resolves, err = meter.Int64Counter(
		"completion.resolves_total",
		metric.WithDescription("Number of completion item resolutions by outcome"),
	); err != nil {
		return nil, fmt.Errorf("resolves counter: %w", err)
	}
	if inst.duration, err = meter.Int64Histogram(
		"completion.resolve.duration",
		metric.WithDescription("Duration of completion item resolution in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("resolve duration histogram: %w", err)
	}
	return inst, nil
}

func (i *Instruments) StartEnumerate(ctx context.Context, attrs ...attribute.KeyValue) (context.Context, *Op) {
	return i.start(ctx, "completion.enumerate", attrs)
}

func (i *Instruments) StartResolve(ctx context.Context, attrs ...attribute.KeyValue) (context.Context, *Op) {
	return i.start(ctx, "completion.resolve", attrs)
}

func (i *Instruments) start(ctx context.Context, kind string, attrs []attribute.KeyValue) (context.Context, *Op) {
	if i == nil {
		return ctx, nil
	}
	op := &Op{inst: i, kind: kind, start: time.Now(), attrs: attrs}
	if i.tracer != nil {
		ctx, op.span = i.tracer.Start(ctx, kind, trace.WithAttributes(attrs...))
	}
	return ctx, op
}

// Stage marks the end of a pipeline stage on the span.
func (o *Op) Stage(name string, attrs ...attribute.KeyValue) {
	if o == nil || o.span == nil {
		return
	}
	o.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Finish records the outcome and ends the span.
func (o *Op) Finish(ctx context.Context, outcome string, err error) {
	if o == nil {
		return
	}
	attrs := append([]attribute.KeyValue{attribute.String("outcome", outcome)}, o.attrs...)

	i := o.inst
	switch o.kind {
	case "completion.enumerate":
		if i.enumerations != nil {
			i.enumerations.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
	default:
		if i.resolves != nil {
			i.resolves.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
		if i.duration != nil {
			i.duration.Record(ctx, time.Since(o.start).Milliseconds(), metric.WithAttributes(attrs...))
		}
	}

	if o.span != nil {
		o.span.SetAttributes(attrs...)
		if err != nil {
			o.span.RecordError(err)
		}
		if outcome == OutcomeError {
			o.span.SetStatus(codes.Error, errText(err))
		}
		o.span.End()
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

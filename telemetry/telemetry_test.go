package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDisabledProviderIsNilSafe(t *testing.T) {
	p, err := Setup(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, p.Instruments())

	ctx, op := p.Instruments().StartResolve(context.Background())
	op.Stage("simulate")
	op.Finish(ctx, OutcomeOK, nil)

	rm, err := p.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rm.ScopeMetrics)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestResolveSpanAndMetrics(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	p, err := Setup(context.Background(), Config{
		EnableMetrics: true,
		EnableTraces:  true,
		SpanProcessor: recorder,
		MetricReader:  sdkmetric.NewManualReader(),
	})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	inst := p.Instruments()
	ctx, op := inst.StartResolve(context.Background(), attribute.Int64("completion.version", 3))
	op.Stage("simulate")
	op.Stage("diff")
	op.Finish(ctx, OutcomeError, errors.New("simulation failed"))

	ctx, op = inst.StartEnumerate(context.Background())
	op.Finish(ctx, OutcomeOK, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "completion.resolve", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	var events []string
	for _, e := range spans[0].Events() {
		events = append(events, e.Name)
	}
	assert.Contains(t, events, "simulate")
	assert.Contains(t, events, "diff")
	assert.Equal(t, "completion.enumerate", spans[1].Name())

	rm, err := p.Collect(context.Background())
	require.NoError(t, err)
	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(1), totals["completion.resolves_total"])
	assert.Equal(t, int64(1), totals["completion.enumerations_total"])
}

func TestMetricsExportedOnShutdown(t *testing.T) {
	var out bytes.Buffer
	p, err := Setup(context.Background(), Config{EnableMetrics: true, MetricWriter: &out})
	require.NoError(t, err)

	ctx, op := p.Instruments().StartResolve(context.Background())
	op.Finish(ctx, OutcomeOK, nil)

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, out.String(), "completion.resolves_total")
	assert.Contains(t, out.String(), "completion.resolve.duration")
}

// brokenMeter fails to create histograms.
type brokenMeter struct {
	noop.Meter
}

func (brokenMeter) Int64Histogram(string, ...metric.Int64HistogramOption) (metric.Int64Histogram, error) {
	return nil, errors.New("histograms unsupported")
}

func TestInstrumentCreationErrors(t *testing.T) {
	inst, err := newInstruments(brokenMeter{}, nil)
	assert.Nil(t, inst)
	assert.ErrorContains(t, err, "histograms unsupported")

	inst, err = newInstruments(noop.Meter{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, inst)
}

func TestEnvBool(t *testing.T) {
	assert.True(t, EnvBool("yes", false))
	assert.False(t, EnvBool("off", true))
	assert.True(t, EnvBool("", true))
	assert.False(t, EnvBool("garbage", false))
}

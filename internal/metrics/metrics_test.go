package metrics

import (
	"context"
	"testing"
	"time"

	"codeaudit/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, agg metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := agg.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestRecorder_ObserveReport(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r, err := NewRecorder(provider.Meter("codeaudit-test"))
	require.NoError(t, err)

	report := &types.AnalysisReport{
		SecurityScore: 20,
		OverallRisk:   types.RiskCritical,
		Vulnerabilities: []types.Finding{
			{Severity: types.SeverityCritical, Origin: types.OriginStatic},
			{Severity: types.SeverityLow, Origin: types.OriginNarrative},
		},
		Degradations: []types.Degradation{types.DegradationNarrativeTimeout},
	}
	r.ObserveReport(context.Background(), report, 2, 150*time.Millisecond)
	r.ObserveReport(context.Background(), report, 0, 50*time.Millisecond)

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, data["codeaudit_analyses_total"]))
	assert.Equal(t, int64(4), sumOf(t, data["codeaudit_findings_total"]))
	assert.Equal(t, int64(2), sumOf(t, data["codeaudit_degradations_total"]))
	assert.Equal(t, int64(2), sumOf(t, data["codeaudit_narrative_rejected_total"]))

	hist, ok := data["codeaudit_analysis_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveReport(context.Background(), &types.AnalysisReport{}, 1, time.Second)
	})

	_, err := NewRecorder(nil)
	assert.ErrorIs(t, err, ErrNilMeter)
	assert.NotNil(t, Global())
}

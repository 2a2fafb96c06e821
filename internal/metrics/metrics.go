package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codeaudit/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var ErrNilMeter = errors.New("nil meter")

// Recorder publishes pipeline measurements through an OpenTelemetry meter.
type Recorder struct {
	analyses     metric.Int64Counter
	findings     metric.Int64Counter
	degradations metric.Int64Counter
	rejected     metric.Int64Counter
	duration     metric.Float64Histogram
	score        metric.Float64Histogram
}

// NewRecorder registers the instruments on meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}

	var (
		r   Recorder
		err error
	)
	if r.analyses, err = meter.Int64Counter("codeaudit_analyses_total",
		metric.WithDescription("Completed analyses by risk tier.")); err != nil {
		return nil, fmt.Errorf("create analyses counter: %w", err)
	}
	if r.findings, err = meter.Int64Counter("codeaudit_findings_total",
		metric.WithDescription("Reported findings by severity and origin.")); err != nil {
		return nil, fmt.Errorf("create findings counter: %w", err)
	}
	if r.degradations, err = meter.Int64Counter("codeaudit_degradations_total",
		metric.WithDescription("Pipeline degradations by kind.")); err != nil {
		return nil, fmt.Errorf("create degradations counter: %w", err)
	}
	if r.rejected, err = meter.Int64Counter("codeaudit_narrative_rejected_total",
		metric.WithDescription("Narrative findings dropped by the corroboration gate.")); err != nil {
		return nil, fmt.Errorf("create rejected counter: %w", err)
	}
	if r.duration, err = meter.Float64Histogram("codeaudit_analysis_duration_seconds",
		metric.WithDescription("End-to-end analysis latency."), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	if r.score, err = meter.Float64Histogram("codeaudit_security_score",
		metric.WithDescription("Distribution of security scores.")); err != nil {
		return nil, fmt.Errorf("create score histogram: %w", err)
	}
	return &r, nil
}

// Global registers on the process-wide meter provider, which is a no-op
// until an SDK provider is installed.
func Global() *Recorder {
	r, err := NewRecorder(otel.Meter("codeaudit"))
	if err != nil {
		return nil
	}
	return r
}

// ObserveReport records one finished analysis. A nil Recorder is a no-op.
func (r *Recorder) ObserveReport(ctx context.Context, report *types.AnalysisReport, rejected int, elapsed time.Duration) {
	if r == nil || report == nil {
		return
	}
	tier := attribute.String("tier", string(report.OverallRisk))
	r.analyses.Add(ctx, 1, metric.WithAttributes(tier, attribute.Bool("ai_enhanced", report.AIEnhanced)))
	r.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(tier))
	r.score.Record(ctx, report.SecurityScore)

	for _, f := range report.Vulnerabilities {
		r.findings.Add(ctx, 1, metric.WithAttributes(
			attribute.String("severity", string(f.Severity)),
			attribute.String("origin", string(f.Origin)),
		))
	}
	for _, d := range report.Degradations {
		r.degradations.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(d))))
	}
	if rejected > 0 {
		r.rejected.Add(ctx, int64(rejected))
	}
}

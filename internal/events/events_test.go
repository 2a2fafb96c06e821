package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"codeaudit/types"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func sampleReport() *types.AnalysisReport {
	return &types.AnalysisReport{
		ReportID:      "r-1",
		Language:      "python",
		SecurityScore: 20,
		OverallRisk:   types.RiskCritical,
		Vulnerabilities: []types.Finding{
			{Category: "sql_injection", Severity: types.SeverityCritical, LineNumbers: []int{2}},
		},
		TotalFindings: 1,
		Degradations:  []types.Degradation{types.DegradationNarrativeDisabled},
		AnalyzedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "audits", nil)

	require.NoError(t, p.Publish(context.Background(), NewAnalysisEvent(sampleReport(), "app.py")))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "analysis_completed", string(msg.Key))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, AnalysisCompleted, decoded.Type)
	assert.Equal(t, "app.py", decoded.Data["file_name"])
	assert.Equal(t, "critical", decoded.Data["overall_risk"])
	assert.NotContains(t, string(msg.Value), "SELECT", "source text never leaves the engine")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := newKafkaPublisher(&fakeWriter{err: errors.New("broker down")}, "audits", nil)

	err := p.Publish(context.Background(), Event{Type: BatchCompleted})
	assert.ErrorContains(t, err, "broker down")
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "audits"}, nil)
	assert.Error(t, err)
	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}}, nil)
	assert.Error(t, err)

	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "audits"}, nil)
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestNewBatchEvent(t *testing.T) {
	ev := NewBatchEvent([]types.BatchResult{{FileName: "a"}, {FileName: "b", Error: "boom"}})

	assert.Equal(t, BatchCompleted, ev.Type)
	assert.Equal(t, 2, ev.Data["units"])
	assert.Equal(t, 1, ev.Data["failed"])
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}

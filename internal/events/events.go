package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codeaudit/types"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventType represents different types of events that can be produced
type EventType string

const (
	AnalysisCompleted EventType = "analysis_completed"
	BatchCompleted    EventType = "batch_completed"
)

// Event is the envelope written to the topic.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
}

// Publisher receives analysis events. Publishing is best effort; the engine
// never fails a request because an event could not be delivered.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                        { return nil }

// NewAnalysisEvent summarizes a report without the source text.
func NewAnalysisEvent(report *types.AnalysisReport, fileName string) Event {
	severities := make(map[string]int, len(types.AllSeverities))
	categories := make([]string, 0, len(report.Vulnerabilities))
	for _, v := range report.Vulnerabilities {
		severities[string(v.Severity)]++
		categories = append(categories, v.Category)
	}
	degradations := make([]string, 0, len(report.Degradations))
	for _, d := range report.Degradations {
		degradations = append(degradations, string(d))
	}

	data := map[string]interface{}{
		"report_id":      report.ReportID,
		"language":       report.Language,
		"security_score": report.SecurityScore,
		"overall_risk":   string(report.OverallRisk),
		"total_findings": report.TotalFindings,
		"severities":     severities,
		"categories":     categories,
		"ai_enhanced":    report.AIEnhanced,
		"degradations":   degradations,
	}
	if fileName != "" {
		data["file_name"] = fileName
	}
	return Event{Type: AnalysisCompleted, Timestamp: report.AnalyzedAt, Source: "engine", Data: data}
}

// NewBatchEvent summarizes a finished batch.
func NewBatchEvent(results []types.BatchResult) Event {
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	return Event{
		Type:      BatchCompleted,
		Timestamp: time.Now(),
		Source:    "engine",
		Data: map[string]interface{}{
			"units":  len(results),
			"failed": failed,
		},
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig contains configuration for the Kafka publisher
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	Async        bool
}

// KafkaPublisher writes events to a Kafka topic keyed by event type.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher needs at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka publisher needs a topic")
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaPublisher(writer, cfg.Topic, logger), nil
}

func newKafkaPublisher(w messageWriter, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{writer: w, topic: topic, logger: logger}
}

// Publish sends an event to Kafka
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.Type),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "source", Value: []byte(event.Source)},
			{Key: "type", Value: []byte(event.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		p.logger.Warn("failed to publish event", zap.String("topic", p.topic), zap.String("type", string(event.Type)), zap.Error(err))
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

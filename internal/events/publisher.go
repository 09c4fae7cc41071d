// Package events publishes job lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"transcript-insights-go/internal/logger"
	"transcript-insights-go/internal/metrics"
)

const (
	JobCompleted = "job.completed"
	JobFailed    = "job.failed"
	JobSkipped   = "job.skipped"
)

// Event is the payload written for every lifecycle transition.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	JobID     string         `json:"job_id"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Config holds Kafka publisher configuration.
type Config struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Publisher writes events to Kafka, or only logs them when disabled.
type Publisher struct {
	writer  *kafka.Writer
	topic   string
	enabled bool
	metrics *metrics.Metrics
	log     *logger.Logger
}

func New(cfg *Config, m *metrics.Metrics) *Publisher {
	log := logger.Component("events")
	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info("Kafka disabled, using log-only mode")
		p := &Publisher{metrics: m, log: log}
		if cfg != nil {
			p.topic = cfg.Topic
		}
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}
	log.WithField("brokers", cfg.Brokers).WithField("topic", cfg.Topic).Info("Kafka publisher initialized")
	return &Publisher{writer: writer, topic: cfg.Topic, enabled: true, metrics: m, log: log}
}

// Publish keys the message by job id so one job's events stay ordered.
func (p *Publisher) Publish(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		p.log.WithError(err).Error("failed to marshal event")
		return err
	}
	log := p.log.WithField("type", e.Type).WithField("job_id", e.JobID)
	log.WithField("payload", string(payload)).Debug("publishing event")

	if !p.enabled || p.writer == nil {
		p.record(e.Type, nil)
		return nil
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.JobID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		log.WithField("error", err.Error()).Error("failed to write to Kafka")
	}
	p.record(e.Type, err)
	return err
}

func (p *Publisher) record(eventType string, err error) {
	if p.metrics != nil {
		p.metrics.RecordEvent(eventType, err)
	}
}

func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

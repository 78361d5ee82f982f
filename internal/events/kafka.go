// Package events publishes alert events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/airwatch/airwatch/internal/alert"
)

// EventAlertRaised is the type of the event emitted for each new alert.
const EventAlertRaised = "alert.raised"

// AlertEvent is the JSON payload of an alert message. Messages are keyed by
// pollutant so events of one pollutant stay ordered on one partition.
type AlertEvent struct {
	Type      string    `json:"type"`
	AlertID   string    `json:"alert_id"`
	Pollutant string    `json:"pollutant"`
	Level     string    `json:"level"`
	Value     float64   `json:"value"`
	Message   string    `json:"message"`
	Lat       *float64  `json:"latitude,omitempty"`
	Lon       *float64  `json:"longitude,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageWriter writes messages to a topic.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig holds configuration for the Kafka publisher.
type KafkaConfig struct {
	// Brokers are the bootstrap broker addresses (required).
	Brokers []string

	// Topic receives alert events (required).
	Topic string

	// WriteTimeout bounds one publish (default: 5s).
	WriteTimeout time.Duration

	// Writer overrides the kafka-go writer. Used in tests.
	Writer MessageWriter

	// Logger for publisher operations.
	Logger zerolog.Logger
}

// KafkaPublisher implements alert.Notifier on a Kafka topic.
type KafkaPublisher struct {
	writer       MessageWriter
	writeTimeout time.Duration
	logger       zerolog.Logger
}

var _ alert.Notifier = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher. It fails if no writer is given and
// brokers or topic are missing.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	writer := cfg.Writer
	if writer == nil {
		if len(cfg.Brokers) == 0 || cfg.Topic == "" {
			return nil, errors.New("kafka brokers and topic are required")
		}
		writer = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		}
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 5 * time.Second
	}

	return &KafkaPublisher{
		writer:       writer,
		writeTimeout: writeTimeout,
		logger:       cfg.Logger,
	}, nil
}

// AlertsRaised publishes one event per alert in a single write.
func (p *KafkaPublisher) AlertsRaised(ctx context.Context, alerts []*alert.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(alerts))
	for _, a := range alerts {
		value, err := json.Marshal(NewAlertEvent(a))
		if err != nil {
			return fmt.Errorf("encode alert %s: %w", a.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(a.Pollutant),
			Value: value,
			Time:  a.CreatedAt,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish alert events: %w", err)
	}

	p.logger.Debug().Int("events", len(msgs)).Msg("alert events published")
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NewAlertEvent builds the event for a.
func NewAlertEvent(a *alert.Alert) AlertEvent {
	return AlertEvent{
		Type:      EventAlertRaised,
		AlertID:   a.ID,
		Pollutant: string(a.Pollutant),
		Level:     string(a.Level),
		Value:     a.Value,
		Message:   a.Message,
		Lat:       a.Lat,
		Lon:       a.Lon,
		CreatedAt: a.CreatedAt,
	}
}

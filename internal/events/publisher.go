// Package events publishes session lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rbright/rehearse/internal/interview"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	EventSessionCompleted = "session.completed"
	EventPhaseChanged     = "session.phase"
)

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers     []string
	TopicPhase  string
	TopicResult string
	Enabled     bool
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes phase changes and completed sessions to separate topics.
// Phase writes are asynchronous; completed-session writes wait for the broker.
// When disabled it only logs.
type Publisher struct {
	phase   messageWriter
	result  messageWriter
	cfg     Config
	enabled bool
	logger  zerolog.Logger
}

// New creates a Kafka publisher, or a log-only one when disabled.
func New(cfg Config, logger zerolog.Logger) *Publisher {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Debug().Msg("kafka disabled, using log-only mode")
		return &Publisher{cfg: cfg, logger: logger}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{Dial: dialer.DialFunc}

	newWriter := func(topic string, async bool) *kafka.Writer {
		return &kafka.Writer{
			Async:        async,
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic_phase", cfg.TopicPhase).
		Str("topic_result", cfg.TopicResult).
		Msg("kafka publisher initialized")

	return &Publisher{
		phase:   newWriter(cfg.TopicPhase, true),
		result:  newWriter(cfg.TopicResult, false),
		cfg:     cfg,
		enabled: true,
		logger:  logger,
	}
}

// Name identifies the publisher as an archive destination.
func (p *Publisher) Name() string { return "kafka" }

// Archive publishes a completed session.
func (p *Publisher) Archive(ctx context.Context, entry interview.HistoryEntry) error {
	return p.publish(ctx, p.result, p.cfg.TopicResult, EventSessionCompleted, entry.SessionID, entry)
}

type phaseEvent struct {
	SessionID    string    `json:"sessionId"`
	Phase        string    `json:"phase"`
	CurrentIndex int       `json:"currentIndex"`
	Questions    int       `json:"questions"`
	At           time.Time `json:"at"`
}

// PhaseChanged publishes a phase change. Failures are logged, not returned.
func (p *Publisher) PhaseChanged(ctx context.Context, state interview.State) {
	event := phaseEvent{
		SessionID:    state.SessionID,
		Phase:        string(state.Phase),
		CurrentIndex: state.CurrentIndex,
		Questions:    len(state.Questions),
		At:           state.UpdatedAt,
	}
	_ = p.publish(ctx, p.phase, p.cfg.TopicPhase, EventPhaseChanged, state.SessionID, event)
}

func (p *Publisher) publish(ctx context.Context, writer messageWriter, topic string, eventType string, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Msg("failed to marshal event")
		return err
	}

	p.logger.Debug().
		Str("topic", topic).
		Str("key", key).
		Str("event_type", eventType).
		RawJSON("payload", payload).
		Msg("publishing event")

	if !p.enabled || writer == nil {
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
		},
	}
	if err := writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Str("key", key).Msg("failed to write to kafka")
		return err
	}
	return nil
}

// Close closes both writers.
func (p *Publisher) Close() error {
	var err error
	for _, w := range []messageWriter{p.phase, p.result} {
		if w == nil {
			continue
		}
		if e := w.Close(); e != nil {
			p.logger.Error().Err(e).Msg("error closing kafka writer")
			err = e
		}
	}
	return err
}

package kafka

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xport"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ xport.SenderAdapter = (*Sender)(nil)

// Sender writes each notification as one record keyed by a fresh message ID.
type Sender struct {
	cfg    Config
	writer messageWriter
	clock  xclock.Clock
}

func NewSender(cfg Config) (*Sender, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sender requires at least one broker")
	}
	if cfg.NotifyTopic == "" {
		return nil, fmt.Errorf("kafka sender requires a notify topic")
	}
	return &Sender{
		cfg: cfg,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.NotifyTopic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			WriteTimeout: cfg.WriteTimeout,
		},
		clock: xclock.Default(),
	}, nil
}

func (s *Sender) Send(ctx context.Context, payload string) error {
	id := uuid.NewString()
	err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(id),
		Value:   []byte(payload),
		Headers: []kafka.Header{{Key: "id", Value: []byte(id)}},
		Time:    s.clock.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("kafka send: %w", err)
	}
	return nil
}

func (s *Sender) Close(context.Context) error {
	return s.writer.Close()
}

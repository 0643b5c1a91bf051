package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xport"
)

// Notification entry fields.
const (
	fieldID         = "id"
	fieldPayload    = "payload"
	fieldProducedAt = "producedAt" // int64 ns
)

var _ xport.SenderAdapter = (*Sender)(nil)

// Sender appends each notification to the notify stream.
type Sender struct {
	cfg    Config
	client *goredis.Client
	clock  xclock.Clock
}

func NewSender(cfg Config) (*Sender, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("config: addr required")
	}
	if cfg.NotifyStream == "" {
		return nil, fmt.Errorf("config: notify_stream required")
	}
	return &Sender{cfg: cfg, client: newClient(cfg), clock: xclock.Default()}, nil
}

// WithClock replaces the clock used for producedAt.
func (s *Sender) WithClock(c xclock.Clock) *Sender {
	if c != nil {
		s.clock = c
	}
	return s
}

func (s *Sender) Send(ctx context.Context, payload string) error {
	args := &goredis.XAddArgs{
		Stream: s.cfg.NotifyStream,
		ID:     "*",
		Values: map[string]any{
			fieldID:         uuid.NewString(),
			fieldPayload:    payload,
			fieldProducedAt: s.clock.Now().UnixNano(),
		},
	}
	if s.cfg.MaxLenApprox > 0 {
		args.MaxLen = s.cfg.MaxLenApprox
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis send: %w", err)
	}
	return nil
}

func (s *Sender) Close(context.Context) error {
	err := s.client.Close()
	if errors.Is(err, goredis.ErrClosed) {
		return nil
	}
	return err
}

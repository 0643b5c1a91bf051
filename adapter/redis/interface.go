package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xport"
	"github.com/trickstertwo/xport/library"
)

// Stream entry fields understood by the interface.
const (
	entryName    = "name"
	entryPayload = "payload"
	entryReplyTo = "reply_to"
)

var _ library.Interface = (*Interface)(nil)

// Interface consumes commands from a stream through a consumer group and dispatches
// them on the bus. Every entry is acknowledged once handled; failed entries go to the
// dead letter stream when one is configured.
type Interface struct {
	cfg    Config
	client *goredis.Client
	codec  xport.Codec
	logger *xlog.Logger

	bus  xport.Dispatcher
	view library.BookView

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	consumed atomic.Uint64
	acked    atomic.Uint64
	failed   atomic.Uint64
}

// InterfaceStats is telemetry about handled stream entries.
type InterfaceStats struct {
	Consumed uint64
	Acked    uint64
	Failed   uint64
}

func NewInterface(cfg Config) (*Interface, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Stream == "" || cfg.Group == "" {
		return nil, fmt.Errorf("config: stream and group required")
	}
	if cfg.Consumer == "" {
		cfg.Consumer = defaultConsumer()
	}
	return &Interface{
		cfg:    cfg,
		client: newClient(cfg),
		codec:  xport.JSONCodec{},
		logger: xlog.Default(),
	}, nil
}

// WithLogger replaces the default logger.
func (i *Interface) WithLogger(l *xlog.Logger) *Interface {
	if l != nil {
		i.logger = l
	}
	return i
}

func (i *Interface) SetMessageBus(bus xport.Dispatcher) { i.bus = bus }

func (i *Interface) SetView(view library.BookView) { i.view = view }

// Start creates the consumer group if needed and launches the poller and workers.
func (i *Interface) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running {
		return nil
	}
	if i.bus == nil {
		return errors.New("redis interface: message bus not set")
	}
	if err := ping(ctx, i.client); err != nil {
		return err
	}
	err := i.client.XGroupCreateMkStream(ctx, i.cfg.Stream, i.cfg.Group, i.cfg.StartID).Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	innerCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.running = true

	workCh := make(chan goredis.XMessage, i.cfg.Concurrency*2)
	for w := 0; w < i.cfg.Concurrency; w++ {
		i.wg.Add(1)
		go func() {
			defer i.wg.Done()
			for entry := range workCh {
				i.handle(innerCtx, entry)
			}
		}()
	}

	i.wg.Add(1)
	go func() {
		defer func() {
			close(workCh)
			i.wg.Done()
		}()
		i.pollerLoop(innerCtx, workCh)
	}()

	i.logger.Info().Str("stream", i.cfg.Stream).Str("group", i.cfg.Group).Msg("redis interface started")
	return nil
}

// Stop ends polling, waits for in-flight entries and closes the client.
func (i *Interface) Stop(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running {
		i.cancel()
		i.wg.Wait()
		i.running = false
	}
	err := i.client.Close()
	if errors.Is(err, goredis.ErrClosed) {
		return nil
	}
	return err
}

func (i *Interface) Stats() InterfaceStats {
	return InterfaceStats{
		Consumed: i.consumed.Load(),
		Acked:    i.acked.Load(),
		Failed:   i.failed.Load(),
	}
}

func (i *Interface) pollerLoop(ctx context.Context, workCh chan<- goredis.XMessage) {
	args := &goredis.XReadGroupArgs{
		Group:    i.cfg.Group,
		Consumer: i.cfg.Consumer,
		Streams:  []string{i.cfg.Stream, ">"},
		Count:    int64(i.cfg.BatchSize),
		Block:    i.cfg.Block,
	}

	backoff := 100 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := i.client.XReadGroup(ctx, args).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, goredis.Nil) {
				backoff = 100 * time.Millisecond
				continue
			}
			i.logger.Warn().Err(err).Str("stream", i.cfg.Stream).Msg("redis interface read failed")
			select {
			case <-time.After(backoff):
				backoff = min(backoff*2, maxBackoff)
			case <-ctx.Done():
				return
			}
			continue
		}
		backoff = 100 * time.Millisecond

		for _, stream := range res {
			for _, entry := range stream.Messages {
				i.consumed.Add(1)
				select {
				case workCh <- entry:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (i *Interface) handle(ctx context.Context, entry goredis.XMessage) {
	name := asString(entry.Values[entryName])
	payload := []byte(asString(entry.Values[entryPayload]))

	result, err := i.dispatch(ctx, name, payload)
	if err != nil {
		i.failed.Add(1)
		i.logger.Warn().Err(err).Str("entry", entry.ID).Str("command", name).Msg("redis interface command failed")
		i.deadLetter(ctx, entry, err)
	}
	if v, ok := entry.Values[entryReplyTo]; ok && asString(v) != "" {
		i.reply(ctx, asString(v), entry.ID, result, err)
	}

	if err := i.client.XAck(ctx, i.cfg.Stream, i.cfg.Group, entry.ID).Err(); err != nil {
		i.logger.Warn().Err(err).Str("entry", entry.ID).Msg("redis interface ack failed")
		return
	}
	i.acked.Add(1)
}

func (i *Interface) dispatch(ctx context.Context, name string, payload []byte) (any, error) {
	msg, err := library.DecodeCommand(i.codec, name, payload)
	if err != nil {
		return nil, err
	}
	return i.bus.Handle(ctx, msg)
}

func (i *Interface) reply(ctx context.Context, stream, id string, result any, err error) {
	values := map[string]any{"id": id, "ok": err == nil}
	if err != nil {
		values["error"] = err.Error()
	} else if result != nil {
		body, merr := i.codec.Marshal(result)
		if merr != nil {
			values["ok"] = false
			values["error"] = merr.Error()
		} else {
			values["result"] = body
		}
	}
	args := &goredis.XAddArgs{Stream: stream, ID: "*", Values: values}
	if i.cfg.MaxLenApprox > 0 {
		args.MaxLen = i.cfg.MaxLenApprox
		args.Approx = true
	}
	if err := i.client.XAdd(ctx, args).Err(); err != nil {
		i.logger.Warn().Err(err).Str("reply_to", stream).Msg("redis interface reply failed")
	}
}

func (i *Interface) deadLetter(ctx context.Context, entry goredis.XMessage, reason error) {
	if i.cfg.DeadLetter == "" {
		return
	}
	values := make(map[string]any, len(entry.Values)+3)
	for k, v := range entry.Values {
		values[k] = v
	}
	values["orig_stream"] = i.cfg.Stream
	values["orig_id"] = entry.ID
	values["error"] = reason.Error()
	if err := i.client.XAdd(ctx, &goredis.XAddArgs{Stream: i.cfg.DeadLetter, ID: "*", Values: values}).Err(); err != nil {
		i.logger.Warn().Err(err).Str("dead_letter", i.cfg.DeadLetter).Msg("redis interface dead letter failed")
	}
}

package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xport"
	"github.com/trickstertwo/xport/library"
)

const (
	headerCommand = "command"
	fetchBackoff  = 500 * time.Millisecond
)

// messageReader is the part of *kafka.Reader the interface uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ library.Interface = (*Interface)(nil)

// Interface reads command records and dispatches them on the bus. Offsets are committed
// after each record is handled, whether or not its command succeeded.
type Interface struct {
	cfg    Config
	codec  xport.Codec
	logger *xlog.Logger
	open   func(Config) messageReader

	bus  xport.Dispatcher
	view library.BookView

	mu     sync.Mutex
	reader messageReader
	cancel context.CancelFunc
	done   chan struct{}
}

func NewInterface(cfg Config) (*Interface, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka interface requires at least one broker")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka interface requires group id")
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("kafka interface requires at least one topic")
	}
	return &Interface{
		cfg:    cfg,
		codec:  xport.JSONCodec{},
		logger: xlog.Default(),
		open:   newReader,
	}, nil
}

func newReader(cfg Config) messageReader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     cfg.MaxWait,
	})
}

func (i *Interface) WithLogger(l *xlog.Logger) *Interface {
	if l != nil {
		i.logger = l
	}
	return i
}

func (i *Interface) SetMessageBus(bus xport.Dispatcher) { i.bus = bus }

func (i *Interface) SetView(view library.BookView) { i.view = view }

// Start joins the consumer group and begins reading in the background.
func (i *Interface) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.reader != nil {
		return nil
	}
	if i.bus == nil {
		return errors.New("kafka interface: message bus not set")
	}
	i.reader = i.open(i.cfg)
	runCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.done = make(chan struct{})
	go i.loop(runCtx, i.reader, i.done)
	i.logger.Info().Str("group", i.cfg.GroupID).Msg("kafka interface started")
	return nil
}

func (i *Interface) Stop(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.reader == nil {
		return nil
	}
	i.cancel()
	<-i.done
	err := i.reader.Close()
	i.reader = nil
	return err
}

func (i *Interface) loop(ctx context.Context, r messageReader, done chan<- struct{}) {
	defer close(done)
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			i.logger.Warn().Err(err).Msg("kafka interface fetch failed")
			select {
			case <-time.After(fetchBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		name := commandName(msg)
		if _, err := i.dispatch(ctx, name, msg.Value); err != nil {
			i.logger.Warn().Err(err).Str("topic", msg.Topic).Str("command", name).Msg("kafka interface command failed")
		}
		if err := r.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			i.logger.Warn().Err(err).Str("topic", msg.Topic).Msg("kafka interface commit failed")
		}
	}
}

func (i *Interface) dispatch(ctx context.Context, name string, payload []byte) (any, error) {
	cmd, err := library.DecodeCommand(i.codec, name, payload)
	if err != nil {
		return nil, err
	}
	return i.bus.Handle(ctx, cmd)
}

func commandName(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == headerCommand && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return msg.Topic
}

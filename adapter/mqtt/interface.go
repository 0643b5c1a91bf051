package mqtt

import (
	"context"
	"errors"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xport"
	"github.com/trickstertwo/xport/library"
)

var _ library.Interface = (*Interface)(nil)

// Interface subscribes to the command topic filter. The last topic segment names the
// command and the payload is its JSON body.
type Interface struct {
	cfg     Config
	codec   xport.Codec
	logger  *xlog.Logger
	connect connector

	bus  xport.Dispatcher
	view library.BookView

	mu     sync.Mutex
	client paho.Client
	ctx    context.Context
	cancel context.CancelFunc
}

func NewInterface(cfg Config) (*Interface, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Topic == "" {
		return nil, errors.New("config: topic required")
	}
	return &Interface{
		cfg:     cfg,
		codec:   xport.JSONCodec{},
		logger:  xlog.Default(),
		connect: paho.NewClient,
	}, nil
}

func (i *Interface) WithLogger(l *xlog.Logger) *Interface {
	if l != nil {
		i.logger = l
	}
	return i
}

func (i *Interface) SetMessageBus(bus xport.Dispatcher) { i.bus = bus }

func (i *Interface) SetView(view library.BookView) { i.view = view }

// Start connects and subscribes. The subscription is renewed on every reconnect.
func (i *Interface) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.client != nil {
		return nil
	}
	if i.bus == nil {
		return errors.New("mqtt interface: message bus not set")
	}

	i.ctx, i.cancel = context.WithCancel(ctx)
	opts := newOptions(i.cfg, "interface").
		SetOnConnectHandler(func(c paho.Client) {
			if err := wait(c.Subscribe(i.cfg.Topic, byte(i.cfg.QoS), i.onMessage), i.cfg.ConnectTimeout, "subscribe"); err != nil {
				i.logger.Warn().Err(err).Str("topic", i.cfg.Topic).Msg("mqtt interface subscribe failed")
				return
			}
			i.logger.Info().Str("topic", i.cfg.Topic).Msg("mqtt interface subscribed")
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			i.logger.Warn().Err(err).Msg("mqtt interface connection lost")
		})

	client := i.connect(opts)
	if err := wait(client.Connect(), i.cfg.ConnectTimeout, "connect"); err != nil {
		i.cancel()
		return err
	}
	i.client = client
	return nil
}

func (i *Interface) Stop(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.client == nil {
		return nil
	}
	i.cancel()
	i.client.Disconnect(250)
	i.client = nil
	return nil
}

func (i *Interface) onMessage(_ paho.Client, m paho.Message) {
	topic := m.Topic()
	i.logger.Debug().Str("topic", topic).Msg("mqtt interface message arrived")

	cmd, err := library.DecodeCommand(i.codec, topic, m.Payload())
	if err == nil {
		_, err = i.bus.Handle(i.ctx, cmd)
	}
	if err != nil {
		i.logger.Warn().Err(err).Str("topic", topic).Msg("mqtt interface command failed")
	}
}

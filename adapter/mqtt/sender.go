package mqtt

import (
	"context"
	"errors"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/trickstertwo/xport"
)

var _ xport.SenderAdapter = (*Sender)(nil)

// Sender publishes notifications to the notify topic. It connects on first use.
type Sender struct {
	cfg     Config
	connect connector

	mu     sync.Mutex
	client paho.Client
}

func NewSender(cfg Config) (*Sender, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.NotifyTopic == "" {
		return nil, errors.New("config: notify_topic required")
	}
	return &Sender{cfg: cfg, connect: paho.NewClient}, nil
}

func (s *Sender) Send(_ context.Context, payload string) error {
	client, err := s.conn()
	if err != nil {
		return err
	}
	return wait(client.Publish(s.cfg.NotifyTopic, byte(s.cfg.QoS), false, payload), s.cfg.ConnectTimeout, "publish")
}

func (s *Sender) conn() (paho.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	client := s.connect(newOptions(s.cfg, "sender"))
	if err := wait(client.Connect(), s.cfg.ConnectTimeout, "connect"); err != nil {
		return nil, err
	}
	s.client = client
	return client, nil
}

func (s *Sender) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Disconnect(250)
		s.client = nil
	}
	return nil
}

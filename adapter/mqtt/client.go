package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// connector builds clients; tests swap it for a fake.
type connector func(opts *paho.ClientOptions) paho.Client

func newOptions(cfg Config, role string) *paho.ClientOptions {
	return paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.clientID(role)).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true)
}

func wait(t paho.Token, timeout time.Duration, op string) error {
	if !t.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt %s: timed out after %s", op, timeout)
	}
	if err := t.Error(); err != nil {
		return fmt.Errorf("mqtt %s: %w", op, err)
	}
	return nil
}

package memory

import (
	"context"
	"errors"
	"sync"
)

var errSenderClosed = errors.New("memory sender is closed")

// Sender keeps outbound notifications in process, newest last. Useful for local runs
// and tests that assert on what would have been sent.
type Sender struct {
	history int

	mu       sync.Mutex
	payloads []string
	closed   bool
}

func NewSender(cfg Config) *Sender {
	return &Sender{history: cfg.History}
}

func (s *Sender) Send(_ context.Context, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSenderClosed
	}
	s.payloads = append(s.payloads, payload)
	if s.history > 0 && len(s.payloads) > s.history {
		s.payloads = s.payloads[len(s.payloads)-s.history:]
	}
	return nil
}

func (s *Sender) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Payloads returns a copy of the retained payloads.
func (s *Sender) Payloads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.payloads...)
}

package alerts

import (
	"context"
	"sync"
)

// ---------------------------------------------------------------------------
// Stub sender (for testing and development)
// ---------------------------------------------------------------------------

// StubSender records every notification instead of delivering it.
type StubSender struct {
	name string

	mu   sync.Mutex
	sent []SentAlert
	err  error
}

// SentAlert is one captured delivery.
type SentAlert struct {
	Notification Notification
	Message      string
}

// NewStubSender creates a capturing sender with the given name.
func NewStubSender(name string) *StubSender {
	if name == "" {
		name = "stub"
	}
	return &StubSender{name: name}
}

// Name returns the sender name.
func (s *StubSender) Name() string {
	return s.name
}

// Send captures the notification, or fails if SetErr was called.
func (s *StubSender) Send(ctx context.Context, n Notification, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, SentAlert{Notification: n, Message: message})
	return nil
}

// SetErr makes every Send fail with err. Pass nil to recover.
func (s *StubSender) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Sent returns a copy of all captured alerts.
func (s *StubSender) Sent() []SentAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentAlert, len(s.sent))
	copy(out, s.sent)
	return out
}

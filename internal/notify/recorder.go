package notify

import (
	"context"
	"errors"
	"sync"
)

// RecordingMailer keeps every message in memory. Err, when set, is returned
// from Send after the message is recorded.
type RecordingMailer struct {
	mu   sync.Mutex
	msgs []Message
	Err  error
	// FailFor makes Send fail only for these recipients.
	FailFor map[string]bool
}

func (m *RecordingMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	if m.FailFor[msg.To] {
		return errSimulated
	}
	return m.Err
}

// Messages returns a copy of everything sent so far.
func (m *RecordingMailer) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.msgs...)
}

// To returns the messages addressed to addr.
func (m *RecordingMailer) To(addr string) []Message {
	var out []Message
	for _, msg := range m.Messages() {
		if msg.To == addr {
			out = append(out, msg)
		}
	}
	return out
}

// ChannelMessage is one recorded short message.
type ChannelMessage struct {
	Channel   string
	Recipient string
	Payload   string
}

// RecordingSender keeps every channel message in memory.
type RecordingSender struct {
	mu   sync.Mutex
	msgs []ChannelMessage
	Err  error
}

func (s *RecordingSender) SendChannelMessage(_ context.Context, channel, recipient, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, ChannelMessage{Channel: channel, Recipient: recipient, Payload: payload})
	return s.Err
}

func (s *RecordingSender) Messages() []ChannelMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChannelMessage(nil), s.msgs...)
}

var errSimulated = errors.New("simulated delivery failure")

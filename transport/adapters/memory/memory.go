// Package memory implements the in-process transport: published messages
// land in a bounded, oldest-evicted buffer and, when AutoProcess is on,
// are routed to the dispatcher synchronously.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/arielkovacs/msgbus/transport"
)

// Config configures the memory transport.
type Config struct {
	// MaxMessages bounds the stored-message buffer; the oldest message is
	// dropped once the bound is exceeded. Defaults to 1000.
	MaxMessages int
	// AutoProcess, when true, routes every published message to the
	// dispatcher synchronously as part of Publish.
	AutoProcess bool
}

// StoredMessage is one message retained by the memory transport's buffer.
type StoredMessage struct {
	MessageClass string
	Payload      []byte
	StoredAt     time.Time
}

// Memory is the in-process transport required by the core.
type Memory struct {
	*transport.Base

	mu          sync.Mutex
	messages    []StoredMessage
	maxMessages int
	autoProcess bool
}

// New constructs a Memory transport. opts.Name and opts.DoPublish are
// overridden; every other BaseOptions field (DLQ, Dispatcher, Serializer, circuit tuning)
// is honored as given.
func New(cfg Config, opts transport.BaseOptions) *Memory {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 1000
	}

	m := &Memory{maxMessages: cfg.MaxMessages, autoProcess: cfg.AutoProcess}
	opts.Name = "memory"
	opts.DoPublish = m.doPublish
	m.Base = transport.NewBase(opts)
	return m
}

func (m *Memory) doPublish(ctx context.Context, class string, payload []byte) error {
	m.mu.Lock()
	m.messages = append(m.messages, StoredMessage{
		MessageClass: class,
		Payload:      payload,
		StoredAt:     time.Now().UTC(),
	})
	if len(m.messages) > m.maxMessages {
		m.messages = m.messages[len(m.messages)-m.maxMessages:]
	}
	m.mu.Unlock()

	if m.autoProcess {
		m.Base.Receive(ctx, payload)
	}
	return nil
}

// AllMessages returns a snapshot of every currently stored message.
func (m *Memory) AllMessages() []StoredMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StoredMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

// MessageCount returns the number of currently stored messages.
func (m *Memory) MessageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// Clear empties the stored-message buffer.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

// ProcessAll routes every currently stored message to the dispatcher,
// regardless of AutoProcess. Useful when a test publishes with
// auto_process disabled and wants to process on its own schedule.
func (m *Memory) ProcessAll(ctx context.Context) {
	for _, msg := range m.AllMessages() {
		m.Base.Receive(ctx, msg.Payload)
	}
}

func init() {
	transport.Default.Register("memory", func(opts any) (transport.Transport, error) {
		factoryOpts, _ := opts.(FactoryOptions)
		return New(factoryOpts.Config, factoryOpts.Base), nil
	})
}

// FactoryOptions is the opts value the registry expects for "memory".
type FactoryOptions struct {
	Config Config
	Base   transport.BaseOptions
}

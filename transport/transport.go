// Package transport defines the publish/subscribe contract that backend
// implementations satisfy, a Base helper that wraps every concrete
// transport's publish and subscribe paths in circuit breakers with a
// dead-letter fallback, and a process-wide registry of named transport
// factories.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arielkovacs/msgbus/circuitbreaker"
	"github.com/arielkovacs/msgbus/ddq"
	"github.com/arielkovacs/msgbus/dispatcher"
	"github.com/arielkovacs/msgbus/dlq"
	"github.com/arielkovacs/msgbus/header"
	apperrors "github.com/arielkovacs/msgbus/internal/errors"
	"github.com/arielkovacs/msgbus/internal/logger"
	"github.com/arielkovacs/msgbus/serializer"
)

// Transport is the contract every publish/subscribe backend implements.
type Transport interface {
	// Publish sends an already-encoded envelope for messageClass through
	// the transport_publish circuit.
	Publish(ctx context.Context, messageClass string, payload []byte) error

	// Subscribe registers handler for messageClass, subject to filter and
	// an optional per-handler dedup queue, and returns a subscription id.
	Subscribe(ctx context.Context, messageClass, handlerID string, filter dispatcher.Filter, handler dispatcher.HandlerFunc, dedup ddq.Queue) (string, error)

	// Unsubscribe removes one handler's subscription to messageClass.
	Unsubscribe(ctx context.Context, messageClass, handlerID string) error

	// UnsubscribeAll removes every subscription to messageClass.
	UnsubscribeAll(ctx context.Context, messageClass string) error

	// Connected reports whether the transport's backend connection (if
	// any) is currently established.
	Connected() bool

	// Connect establishes the backend connection.
	Connect(ctx context.Context) error

	// Disconnect tears down the backend connection.
	Disconnect(ctx context.Context) error

	// CircuitStats reports the current state of this transport's named
	// circuits (transport_publish, transport_subscribe).
	CircuitStats() map[string]circuitbreaker.Metrics

	// ResetCircuits force-closes the named circuits, or every circuit
	// when names is empty.
	ResetCircuits(names ...string)

	// Name identifies this transport instance for logging and DLQ records.
	Name() string
}

// DoPublishFunc is the adapter-supplied hook that actually moves bytes to
// the backend. Base.Publish wraps it in the transport_publish circuit.
type DoPublishFunc func(ctx context.Context, messageClass string, payload []byte) error

// DoSubscribeFunc is an adapter-supplied hook for backends that must do
// work to establish a subscription (e.g. binding a broker queue). It is
// optional; when nil, subscribing always succeeds at the transport level.
type DoSubscribeFunc func(ctx context.Context, messageClass, handlerID string, filter dispatcher.Filter) error

// DoUnsubscribeFunc mirrors DoSubscribeFunc for teardown.
type DoUnsubscribeFunc func(ctx context.Context, messageClass, handlerID string) error

// ConnFunc is an adapter-supplied connect/disconnect hook.
type ConnFunc func(ctx context.Context) error

// BaseOptions configures a Base.
type BaseOptions struct {
	Name       string
	DLQ        *dlq.DLQ
	Dispatcher *dispatcher.Dispatcher
	Serializer serializer.Serializer

	DoPublish     DoPublishFunc
	DoSubscribe   DoSubscribeFunc
	DoUnsubscribe DoUnsubscribeFunc
	DoConnect     ConnFunc
	DoDisconnect  ConnFunc

	PublishCircuit   circuitbreaker.Options
	SubscribeCircuit circuitbreaker.Options
}

// Base implements the shared publish/subscribe/receive pipeline described
// in the transport contract. Concrete adapters embed Base and supply the
// backend-specific DoPublish (and optionally DoSubscribe/DoConnect) hooks.
type Base struct {
	name       string
	dlq        *dlq.DLQ
	dispatcher *dispatcher.Dispatcher
	serializer serializer.Serializer

	doPublish     DoPublishFunc
	doSubscribe   DoSubscribeFunc
	doUnsubscribe DoUnsubscribeFunc
	doConnect     ConnFunc
	doDisconnect  ConnFunc

	publishCB   *circuitbreaker.Breaker
	subscribeCB *circuitbreaker.Breaker

	mu        sync.RWMutex
	connected bool
}

// NewBase constructs a Base from opts. DoPublish is required; every other
// hook is optional.
func NewBase(opts BaseOptions) *Base {
	return &Base{
		name:          opts.Name,
		dlq:           opts.DLQ,
		dispatcher:    opts.Dispatcher,
		serializer:    opts.Serializer,
		doPublish:     opts.DoPublish,
		doSubscribe:   opts.DoSubscribe,
		doUnsubscribe: opts.DoUnsubscribe,
		doConnect:     opts.DoConnect,
		doDisconnect:  opts.DoDisconnect,
		publishCB:     circuitbreaker.New("transport_publish:"+opts.Name, opts.PublishCircuit),
		subscribeCB:   circuitbreaker.New("transport_subscribe:"+opts.Name, opts.SubscribeCircuit),
	}
}

// Name identifies this transport instance.
func (b *Base) Name() string { return b.name }

// Publish runs DoPublish under the transport_publish circuit. On any
// failure (including the circuit already being open) the envelope is
// forwarded to the DLQ and the publish error is returned; if the DLQ
// write itself fails, a DLQ_WRITE_ERROR is returned instead.
func (b *Base) Publish(ctx context.Context, messageClass string, payload []byte) error {
	pubErr := b.publishCB.Execute(ctx, func(ctx context.Context) error {
		return b.doPublish(ctx, messageClass, payload)
	})
	if pubErr == nil {
		return nil
	}

	if b.dlq != nil {
		if _, dlqErr := b.dlq.Enqueue(b.buildRecord(messageClass, payload, pubErr)); dlqErr != nil {
			return apperrors.New(apperrors.CodeDLQWrite, "failed to dead-letter publish failure", dlqErr)
		}
	}
	return pubErr
}

func (b *Base) buildRecord(messageClass string, payload []byte, cause error) dlq.Record {
	h := &header.Header{MessageClass: messageClass}
	if b.serializer != nil {
		if env, err := b.serializer.Decode(payload); err == nil && env.Header != nil {
			h = env.Header
		}
	}
	return dlq.Record{
		Header:    h,
		Payload:   string(payload),
		Error:     cause.Error(),
		Transport: b.name,
	}
}

// Subscribe runs the optional DoSubscribe hook under the
// transport_subscribe circuit, then registers handler with the shared
// dispatcher.
func (b *Base) Subscribe(ctx context.Context, messageClass, handlerID string, filter dispatcher.Filter, handler dispatcher.HandlerFunc, dedup ddq.Queue) (string, error) {
	err := b.subscribeCB.Execute(ctx, func(ctx context.Context) error {
		if b.doSubscribe == nil {
			return nil
		}
		return b.doSubscribe(ctx, messageClass, handlerID, filter)
	})
	if err != nil {
		return "", subscribeMarker(b.name, err)
	}

	id := b.dispatcher.Add(messageClass, handlerID, filter, handler, dedup)
	return id, nil
}

// Unsubscribe removes handlerID's subscription to messageClass.
func (b *Base) Unsubscribe(ctx context.Context, messageClass, handlerID string) error {
	if b.doUnsubscribe != nil {
		if err := b.doUnsubscribe(ctx, messageClass, handlerID); err != nil {
			return err
		}
	}
	b.dispatcher.Drop(messageClass, handlerID)
	return nil
}

// UnsubscribeAll removes every subscription to messageClass.
func (b *Base) UnsubscribeAll(ctx context.Context, messageClass string) error {
	b.dispatcher.DropAll(messageClass)
	return nil
}

// Receive is the receive-side entry point: backends call it with raw
// bytes pulled from their transport; Base decodes via the configured
// serializer and hands the result to the dispatcher. Decode failures are
// logged and the message discarded; a bad message never crashes the
// transport loop.
func (b *Base) Receive(ctx context.Context, raw []byte) {
	env, err := b.serializer.Decode(raw)
	if err != nil {
		logger.L().WarnContext(ctx, "dropping undecodable message", "transport", b.name, "error", err)
		return
	}
	if env.Header == nil {
		logger.L().WarnContext(ctx, "dropping message with no header", "transport", b.name)
		return
	}
	if !b.dispatcher.HasSubscribers(env.Header.MessageClass) {
		logger.L().WarnContext(ctx, "received message with no subscribers", "transport", b.name,
			"error", apperrors.New(apperrors.CodeReceivedNotSubscribed, "no subscription registered for class "+env.Header.MessageClass, nil))
	}
	b.dispatcher.Route(ctx, env)
}

// Connect runs the adapter's DoConnect hook, if any, and marks the
// transport connected.
func (b *Base) Connect(ctx context.Context) error {
	if b.doConnect != nil {
		if err := b.doConnect(ctx); err != nil {
			return err
		}
	}
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	return nil
}

// Disconnect runs the adapter's DoDisconnect hook, if any, and marks the
// transport disconnected.
func (b *Base) Disconnect(ctx context.Context) error {
	if b.doDisconnect != nil {
		if err := b.doDisconnect(ctx); err != nil {
			return err
		}
	}
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	return nil
}

// Connected reports the transport's last known connection state.
func (b *Base) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// CircuitStats reports metrics for both named circuits.
func (b *Base) CircuitStats() map[string]circuitbreaker.Metrics {
	return map[string]circuitbreaker.Metrics{
		"transport_publish":   b.publishCB.Metrics(),
		"transport_subscribe": b.subscribeCB.Metrics(),
	}
}

// ResetCircuits force-closes the named circuits, or both when names is
// empty.
func (b *Base) ResetCircuits(names ...string) {
	if len(names) == 0 {
		b.publishCB.Reset()
		b.subscribeCB.Reset()
		return
	}
	for _, name := range names {
		switch name {
		case "transport_publish":
			b.publishCB.Reset()
		case "transport_subscribe":
			b.subscribeCB.Reset()
		}
	}
}

func subscribeMarker(transport string, cause error) error {
	code := apperrors.CodeCircuitOpen
	if c, ok := apperrors.Code(cause); ok {
		code = c
	}
	return apperrors.New(code,
		fmt.Sprintf("transport %q subscribe rejected at %s: %v", transport, time.Now().UTC().Format(time.RFC3339), cause), cause)
}

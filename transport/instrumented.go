package transport

import (
	"context"

	"github.com/arielkovacs/msgbus/circuitbreaker"
	"github.com/arielkovacs/msgbus/ddq"
	"github.com/arielkovacs/msgbus/dispatcher"
	"github.com/arielkovacs/msgbus/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Instrumented wraps a Transport with structured logging and OpenTelemetry
// tracing on the publish and subscribe paths. It is an optional decorator;
// nothing in the core requires it.
type Instrumented struct {
	next   Transport
	tracer trace.Tracer
}

// NewInstrumented wraps next with tracing/logging.
func NewInstrumented(next Transport) *Instrumented {
	return &Instrumented{
		next:   next,
		tracer: otel.Tracer("msgbus/transport"),
	}
}

func (t *Instrumented) Name() string { return t.next.Name() }

func (t *Instrumented) Publish(ctx context.Context, messageClass string, payload []byte) error {
	ctx, span := t.tracer.Start(ctx, "transport.Publish", trace.WithAttributes(
		attribute.String("msgbus.transport", t.next.Name()),
		attribute.String("msgbus.message_class", messageClass),
	))
	defer span.End()

	logger.L().InfoContext(ctx, "publishing message", "transport", t.next.Name(), "message_class", messageClass)

	err := t.next.Publish(ctx, messageClass, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "publish failed", "transport", t.next.Name(), "message_class", messageClass, "error", err)
		return err
	}
	span.SetStatus(codes.Ok, "published")
	return nil
}

func (t *Instrumented) Subscribe(ctx context.Context, messageClass, handlerID string, filter dispatcher.Filter, handler dispatcher.HandlerFunc, dedup ddq.Queue) (string, error) {
	ctx, span := t.tracer.Start(ctx, "transport.Subscribe", trace.WithAttributes(
		attribute.String("msgbus.transport", t.next.Name()),
		attribute.String("msgbus.message_class", messageClass),
		attribute.String("msgbus.handler_id", handlerID),
	))
	defer span.End()

	id, err := t.next.Subscribe(ctx, messageClass, handlerID, filter, handler, dedup)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "subscribe failed", "transport", t.next.Name(), "message_class", messageClass, "error", err)
		return "", err
	}
	span.SetStatus(codes.Ok, "subscribed")
	return id, nil
}

func (t *Instrumented) Unsubscribe(ctx context.Context, messageClass, handlerID string) error {
	return t.next.Unsubscribe(ctx, messageClass, handlerID)
}

func (t *Instrumented) UnsubscribeAll(ctx context.Context, messageClass string) error {
	return t.next.UnsubscribeAll(ctx, messageClass)
}

func (t *Instrumented) Connected() bool { return t.next.Connected() }

func (t *Instrumented) Connect(ctx context.Context) error {
	logger.L().InfoContext(ctx, "connecting transport", "transport", t.next.Name())
	return t.next.Connect(ctx)
}

func (t *Instrumented) Disconnect(ctx context.Context) error {
	logger.L().InfoContext(ctx, "disconnecting transport", "transport", t.next.Name())
	return t.next.Disconnect(ctx)
}

func (t *Instrumented) CircuitStats() map[string]circuitbreaker.Metrics {
	return t.next.CircuitStats()
}

func (t *Instrumented) ResetCircuits(names ...string) {
	t.next.ResetCircuits(names...)
}

package dispatcher

import (
	"context"

	"github.com/arielkovacs/msgbus/internal/logger"
	"github.com/arielkovacs/msgbus/serializer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Instrumented wraps a Dispatcher with an OpenTelemetry span around each
// routing pass. It is an optional decorator: Dispatcher itself has no
// tracing dependency, matching transport.Instrumented's layering.
type Instrumented struct {
	*Dispatcher
	tracer trace.Tracer
}

// NewInstrumented wraps next with tracing on Route.
func NewInstrumented(next *Dispatcher) *Instrumented {
	return &Instrumented{Dispatcher: next, tracer: otel.Tracer("msgbus/dispatcher")}
}

// Route traces the routing pass, then delegates to the wrapped Dispatcher.
func (i *Instrumented) Route(ctx context.Context, env *serializer.Envelope) {
	ctx, span := i.tracer.Start(ctx, "dispatcher.Route", trace.WithAttributes(
		attribute.String("msgbus.message_class", env.Header.MessageClass),
		attribute.String("msgbus.uuid", env.Header.UUID),
	))
	defer span.End()

	logger.L().DebugContext(ctx, "routing message", "message_class", env.Header.MessageClass, "uuid", env.Header.UUID)
	i.Dispatcher.Route(ctx, env)
}

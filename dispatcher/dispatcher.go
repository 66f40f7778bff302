// Package dispatcher routes decoded envelopes to registered handlers: it
// evaluates per-subscription filters, checks per-handler deduplication,
// and runs each matching handler inside a circuit-breaker-protected
// worker, forwarding failures to the dead-letter queue.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/arielkovacs/msgbus/circuitbreaker"
	"github.com/arielkovacs/msgbus/ddq"
	"github.com/arielkovacs/msgbus/dlq"
	apperrors "github.com/arielkovacs/msgbus/internal/errors"
	"github.com/arielkovacs/msgbus/internal/logger"
	"github.com/arielkovacs/msgbus/serializer"
	"github.com/arielkovacs/msgbus/stats"
)

// HandlerFunc processes one routed envelope. A returned error is treated
// as a handler failure: the envelope is forwarded to the dead-letter
// queue and other subscriptions for the same message class still run.
type HandlerFunc func(ctx context.Context, env *serializer.Envelope) error

type subscription struct {
	id        string
	class     string
	handlerID string
	filter    Filter
	handler   HandlerFunc
	dedup     ddq.Queue
	breaker   *circuitbreaker.Breaker
}

// Options configures a Dispatcher.
type Options struct {
	Stats   *stats.Stats
	DLQ     *dlq.DLQ
	Workers int
	Queue   int
	// HandlerCircuit configures the per-subscription "message_processor"
	// circuit breaker. Threshold/Within/ResetAfter default per
	// circuitbreaker.New when left zero.
	HandlerCircuit circuitbreaker.Options
	// ShutdownTimeout bounds how long Shutdown waits for in-flight
	// handlers to drain when the caller's context has no deadline.
	// Handlers still running when it elapses are not cancelled.
	ShutdownTimeout time.Duration
}

// Dispatcher is the subscription catalog and routing engine.
type Dispatcher struct {
	mu    sync.RWMutex
	subs  map[string][]*subscription
	byID  map[string]*subscription
	stats *stats.Stats
	dlq   *dlq.DLQ
	pool  *workerPool
	opts  Options

	seq int
}

// New creates a Dispatcher. A nil Stats is replaced with a fresh instance;
// with a nil DLQ, handler failures are counted but not dead-lettered.
func New(opts Options) *Dispatcher {
	if opts.Stats == nil {
		opts.Stats = stats.New()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	return &Dispatcher{
		subs:  make(map[string][]*subscription),
		byID:  make(map[string]*subscription),
		stats: opts.Stats,
		dlq:   opts.DLQ,
		pool:  newWorkerPool(opts.Workers, opts.Queue),
		opts:  opts,
	}
}

// Add registers handler for class, subject to filter, and returns an
// opaque subscription id usable with Drop. If dedup is non-nil it is used
// as this subscription's DDQ; each (class, handlerID) pair gets
// its own DDQ handle — callers must not share a Queue across subscriptions
// that should dedup independently.
func (d *Dispatcher) Add(class, handlerID string, filter Filter, handler HandlerFunc, dedup ddq.Queue) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	id := fmt.Sprintf("sub-%d", d.seq)

	breakerName := fmt.Sprintf("message_processor:%s:%s", class, handlerID)
	sub := &subscription{
		id:        id,
		class:     class,
		handlerID: handlerID,
		filter:    filter,
		handler:   handler,
		dedup:     dedup,
		breaker:   circuitbreaker.New(breakerName, d.opts.HandlerCircuit),
	}

	d.subs[class] = append(d.subs[class], sub)
	d.byID[id] = sub
	return id
}

// Drop removes the subscription identified by handlerID for class.
func (d *Dispatcher) Drop(class, handlerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.subs[class][:0]
	for _, sub := range d.subs[class] {
		if sub.handlerID == handlerID {
			delete(d.byID, sub.id)
			continue
		}
		kept = append(kept, sub)
	}
	if len(kept) == 0 {
		delete(d.subs, class)
	} else {
		d.subs[class] = kept
	}
}

// DropAll removes every subscription registered for class.
func (d *Dispatcher) DropAll(class string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, sub := range d.subs[class] {
		delete(d.byID, sub.id)
	}
	delete(d.subs, class)
}

// HasSubscribers reports whether any subscription is registered for class.
func (d *Dispatcher) HasSubscribers(class string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[class]) > 0
}

// Route evaluates every subscription registered for env's message class
// and, for each one that passes its filter and dedup check, submits a
// worker-pool task running the handler under circuit-breaker protection.
func (d *Dispatcher) Route(ctx context.Context, env *serializer.Envelope) {
	class := env.Header.MessageClass

	d.mu.RLock()
	subs := append([]*subscription(nil), d.subs[class]...)
	d.mu.RUnlock()

	if len(subs) == 0 {
		d.stats.AddOne(class, "no_subscribers")
		return
	}

	for _, sub := range subs {
		if !sub.filter.Accepts(env.Header) {
			d.stats.AddOne(class, "filtered")
			continue
		}

		if sub.dedup != nil {
			seen, err := sub.dedup.Contains(ctx, env.Header.UUID)
			if err != nil {
				logger.L().WarnContext(ctx, "ddq contains failed open", "error", err, "class", class)
			}
			if seen {
				d.stats.AddOne(class, "deduplicated")
				continue
			}
		}

		d.dispatch(sub, env)
	}
}

func (d *Dispatcher) dispatch(sub *subscription, env *serializer.Envelope) {
	d.pool.submit(func(ctx context.Context) {
		err := sub.breaker.Execute(ctx, func(ctx context.Context) error {
			return sub.handler(ctx, env)
		})

		if err == nil {
			if sub.dedup != nil {
				if aerr := sub.dedup.Add(ctx, env.Header.UUID); aerr != nil {
					logger.L().WarnContext(ctx, "ddq add failed", "error", aerr, "class", sub.class)
				}
			}
			d.stats.AddOne(sub.class, "routed")
			return
		}

		d.stats.AddOne(sub.class, "failed")
		d.deadLetter(ctx, sub, env, err)
	})
}

func (d *Dispatcher) deadLetter(ctx context.Context, sub *subscription, env *serializer.Envelope, cause error) {
	if d.dlq == nil {
		return
	}
	payload, merr := json.Marshal(env.Payload)
	if merr != nil {
		payload = []byte(fmt.Sprintf("%v", env.Payload))
	}
	rec := dlq.Record{
		Header:    env.Header,
		Payload:   string(payload),
		Error:     cause.Error(),
		Transport: "dispatcher:" + sub.handlerID,
	}
	if _, err := d.dlq.Enqueue(rec); err != nil {
		logger.L().ErrorContext(ctx, "failed to dead-letter handler failure",
			"error", err, "handler_error", apperrors.Wrap(cause, "handler failed").Error())
	}
}

// Shutdown stops accepting new routes and waits for the worker pool to
// drain, returning ctx's error once ctx is done. Handlers still running
// at that point are not cancelled; they keep running in the background.
// When ctx carries no deadline of its own, the configured ShutdownTimeout
// applies.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.ShutdownTimeout)
		defer cancel()
	}
	return d.pool.shutdown(ctx)
}

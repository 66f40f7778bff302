// Package broker implements the queue-backed pub/sub transport: messages
// publish under a hierarchical routing key (exchange.message_class.from.to)
// onto Redis lists, and each subscribed pattern binds its own queue,
// consumed by a dedicated worker loop doing short-timeout blocking pops.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/arielkovacs/msgbus/circuitbreaker"
	"github.com/arielkovacs/msgbus/ddq"
	"github.com/arielkovacs/msgbus/dispatcher"
	"github.com/arielkovacs/msgbus/dlq"
	"github.com/arielkovacs/msgbus/internal/config"
	apperrors "github.com/arielkovacs/msgbus/internal/errors"
	"github.com/arielkovacs/msgbus/internal/logger"
	"github.com/arielkovacs/msgbus/serializer"
	"github.com/arielkovacs/msgbus/transport"
	"github.com/redis/go-redis/v9"
)

// Config configures the Redis-backed broker transport.
type Config struct {
	Addr     string
	Password string
	DB       int

	Exchange    string
	QueuePrefix string

	ConsumerTimeout time.Duration

	HandlerCircuit circuitbreaker.Options
}

// EnvConfig mirrors the connection-relevant fields of Config with struct
// tags for environment-based loading via config.Load.
type EnvConfig struct {
	Addr            string        `env:"MSGBUS_BROKER_ADDR" env-default:"localhost:6379" validate:"required"`
	Password        string        `env:"MSGBUS_BROKER_PASSWORD"`
	DB              int           `env:"MSGBUS_BROKER_DB" env-default:"0"`
	Exchange        string        `env:"MSGBUS_BROKER_EXCHANGE"`
	QueuePrefix     string        `env:"MSGBUS_BROKER_QUEUE_PREFIX"`
	ConsumerTimeout time.Duration `env:"MSGBUS_BROKER_CONSUMER_TIMEOUT" env-default:"1s"`
}

func (e EnvConfig) toConfig() Config {
	return Config{
		Addr:            e.Addr,
		Password:        e.Password,
		DB:              e.DB,
		Exchange:        e.Exchange,
		QueuePrefix:     e.QueuePrefix,
		ConsumerTimeout: e.ConsumerTimeout,
	}
}

// LoadConfigFromEnv reads broker connection settings from the process
// environment (falling back to a .env file if present) and validates them.
func LoadConfigFromEnv() (Config, error) {
	var e EnvConfig
	if err := config.Load(&e); err != nil {
		return Config{}, err
	}
	return e.toConfig(), nil
}

func (c Config) withDefaults() Config {
	if c.QueuePrefix == "" {
		c.QueuePrefix = "msgbus:broker"
	}
	if c.ConsumerTimeout <= 0 {
		c.ConsumerTimeout = time.Second
	}
	return c
}

// subscription is one pattern binding: a queue consumed by exactly one
// worker loop feeding exactly one handler.
type subscription struct {
	id        string
	pattern   string
	handlerID string
	filter    dispatcher.Filter
	handler   dispatcher.HandlerFunc
	dedup     ddq.Queue
	breaker   *circuitbreaker.Breaker

	queueName string
	stop      chan struct{}
	done      chan struct{}
}

// Broker is the queue-backed pub/sub transport.
type Broker struct {
	*transport.Base

	cfg        Config
	client     *redis.Client
	serializer serializer.Serializer
	dlq        *dlq.DLQ

	mu   sync.RWMutex
	subs map[string]*subscription
	seq  int
}

// New constructs a Broker transport.
func New(cfg Config, opts transport.BaseOptions) *Broker {
	cfg = cfg.withDefaults()

	b := &Broker{
		cfg:        cfg,
		client:     redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		serializer: opts.Serializer,
		dlq:        opts.DLQ,
		subs:       make(map[string]*subscription),
	}

	opts.Name = "broker"
	opts.DoPublish = b.doPublish
	opts.DoConnect = b.connect
	opts.DoDisconnect = b.disconnect
	b.Base = transport.NewBase(opts)

	return b
}

func (b *Broker) connect(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *Broker) disconnect(ctx context.Context) error {
	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[string]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.stop)
		<-sub.done
	}
	return b.client.Close()
}

// doPublish decodes the envelope to recover from/to, builds the routing
// key, and pushes a copy of payload onto every currently bound queue whose
// pattern matches the key.
func (b *Broker) doPublish(ctx context.Context, messageClass string, payload []byte) error {
	from, to := "", ""
	if b.serializer != nil {
		if env, err := b.serializer.Decode(payload); err == nil && env.Header != nil {
			from, to = env.Header.From, env.Header.To
		}
	}
	key := RoutingKey(b.cfg.Exchange, messageClass, from, to)

	b.mu.RLock()
	matched := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if Matches(sub.pattern, key) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		if err := b.client.LPush(ctx, sub.queueName, payload).Err(); err != nil {
			return apperrors.New(apperrors.CodeInternal, "failed to push to broker queue", err)
		}
	}
	return nil
}

// Subscribe binds pattern to a new queue and starts its consumer worker.
// pattern uses the routing-key wildcard grammar ("*" one segment, "#" zero
// or more), not a literal message class.
func (b *Broker) Subscribe(ctx context.Context, pattern, handlerID string, filter dispatcher.Filter, handler dispatcher.HandlerFunc, dedup ddq.Queue) (string, error) {
	b.mu.Lock()
	b.seq++
	id := fmt.Sprintf("broker-sub-%d", b.seq)
	sub := &subscription{
		id:        id,
		pattern:   pattern,
		handlerID: handlerID,
		filter:    filter,
		handler:   handler,
		dedup:     dedup,
		breaker:   circuitbreaker.New("message_processor:broker:"+handlerID, b.cfg.HandlerCircuit),
		queueName: fmt.Sprintf("%s:%s:%s", b.cfg.QueuePrefix, Sanitize(pattern), handlerID),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	b.subs[id] = sub
	b.mu.Unlock()

	go b.consume(sub)
	return id, nil
}

// Unsubscribe stops and removes the first subscription bound to
// (pattern, handlerID), waiting for its consumer loop to exit.
func (b *Broker) Unsubscribe(ctx context.Context, pattern, handlerID string) error {
	b.mu.Lock()
	var target *subscription
	for id, sub := range b.subs {
		if sub.pattern == pattern && sub.handlerID == handlerID {
			target = sub
			delete(b.subs, id)
			break
		}
	}
	b.mu.Unlock()

	if target == nil {
		return nil
	}
	close(target.stop)
	<-target.done
	return nil
}

// UnsubscribeAll removes every subscription bound to pattern.
func (b *Broker) UnsubscribeAll(ctx context.Context, pattern string) error {
	b.mu.Lock()
	var targets []*subscription
	for id, sub := range b.subs {
		if sub.pattern == pattern {
			targets = append(targets, sub)
			delete(b.subs, id)
		}
	}
	b.mu.Unlock()

	for _, sub := range targets {
		close(sub.stop)
		<-sub.done
	}
	return nil
}

// consume runs sub's worker loop: blocking pop with a short timeout, so
// sub.stop is checked promptly after any in-flight pop returns.
func (b *Broker) consume(sub *subscription) {
	defer close(sub.done)
	ctx := context.Background()

	for {
		select {
		case <-sub.stop:
			return
		default:
		}

		res, err := b.client.BRPop(ctx, b.cfg.ConsumerTimeout, sub.queueName).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			logger.L().Warn("broker consumer pop failed", "queue", sub.queueName, "error", err)
			time.Sleep(b.cfg.ConsumerTimeout)
			continue
		}

		// res[0] is the queue name, res[1] is the popped payload.
		b.deliver(sub, []byte(res[1]))
	}
}

func (b *Broker) deliver(sub *subscription, payload []byte) {
	ctx := context.Background()

	env, err := b.serializer.Decode(payload)
	if err != nil {
		logger.L().Warn("broker dropping undecodable message", "queue", sub.queueName, "error", err)
		return
	}
	if env.Header == nil {
		logger.L().Warn("broker dropping message with no header", "queue", sub.queueName)
		return
	}

	if !sub.filter.Accepts(env.Header) {
		return
	}

	if sub.dedup != nil {
		seen, err := sub.dedup.Contains(ctx, env.Header.UUID)
		if err != nil {
			logger.L().WarnContext(ctx, "broker ddq contains failed open", "error", err)
		}
		if seen {
			return
		}
	}

	err = sub.breaker.Execute(ctx, func(ctx context.Context) error {
		return sub.handler(ctx, env)
	})

	if err == nil {
		if sub.dedup != nil {
			if aerr := sub.dedup.Add(ctx, env.Header.UUID); aerr != nil {
				logger.L().WarnContext(ctx, "broker ddq add failed", "error", aerr)
			}
		}
		return
	}

	b.deadLetter(sub, env, err)
}

func (b *Broker) deadLetter(sub *subscription, env *serializer.Envelope, cause error) {
	if b.dlq == nil {
		return
	}
	payload, merr := json.Marshal(env.Payload)
	if merr != nil {
		payload = []byte(fmt.Sprintf("%v", env.Payload))
	}
	if _, err := b.dlq.Enqueue(dlq.Record{
		Header:    env.Header,
		Payload:   string(payload),
		Error:     cause.Error(),
		Transport: "broker:" + sub.handlerID,
	}); err != nil {
		logger.L().Error("broker failed to dead-letter handler failure", "error", err)
	}
}

func init() {
	transport.Default.Register("redis", func(opts any) (transport.Transport, error) {
		factoryOpts, _ := opts.(FactoryOptions)
		return New(factoryOpts.Config, factoryOpts.Base), nil
	})
	transport.Default.Register("redis_queue", func(opts any) (transport.Transport, error) {
		factoryOpts, _ := opts.(FactoryOptions)
		return New(factoryOpts.Config, factoryOpts.Base), nil
	})
}

// FactoryOptions is the opts value the registry expects for "redis"/"redis_queue".
type FactoryOptions struct {
	Config Config
	Base   transport.BaseOptions
}

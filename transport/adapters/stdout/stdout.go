// Package stdout implements the publish-only stdout/file transport: it
// writes encoded envelopes to stdout or a rotating file, optionally
// through a bounded asynchronous queue with a configurable overflow
// strategy, retrying failed writes with exponential backoff before
// forwarding to the dead-letter queue.
package stdout

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/arielkovacs/msgbus/dispatcher"
	"github.com/arielkovacs/msgbus/dlq"
	"github.com/arielkovacs/msgbus/header"
	apperrors "github.com/arielkovacs/msgbus/internal/errors"
	"github.com/arielkovacs/msgbus/internal/logger"
	"github.com/arielkovacs/msgbus/serializer"
	"github.com/arielkovacs/msgbus/stats"
	"github.com/arielkovacs/msgbus/transport"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Format controls how an encoded envelope is rendered to the output
// stream.
type Format string

const (
	FormatJSONL  Format = "jsonl"
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
)

// OverflowStrategy controls what Publish does when the async queue is full.
type OverflowStrategy string

const (
	OverflowBlock      OverflowStrategy = "block"
	OverflowDropNewest OverflowStrategy = "drop_newest"
	OverflowDropOldest OverflowStrategy = "drop_oldest"
)

// Config configures the stdout/file transport.
type Config struct {
	Format Format

	// FilePath, when set, routes output to a rotating file instead of
	// os.Stdout.
	FilePath    string
	RotateSize  int // megabytes; 0 disables size-based rotation
	RotateCount int // max retained backups
	RotateTime  time.Duration

	BufferSize int
	// FlushInterval, with a buffer configured, flushes the buffer on a
	// ticker; AutoFlush flushes after every write instead.
	FlushInterval time.Duration
	AutoFlush     bool

	Async                 bool
	MaxQueue              int
	QueueOverflowStrategy OverflowStrategy

	MaxRetries       int
	InitialRetryWait time.Duration
	MaxRetryWait     time.Duration

	// Stats, if set, records the blocked-wait duration for the "block"
	// overflow strategy under the key ("stdout", "block_wait_ms").
	Stats *stats.Stats
}

// Stdout is the publish-only stdout/file transport required by the core.
type Stdout struct {
	*transport.Base

	cfg        Config
	dlq        *dlq.DLQ
	serializer serializer.Serializer

	mu       sync.Mutex
	out      io.Writer
	rotator  *lumberjack.Logger
	buffered *bufio.Writer

	queue      *boundedQueue
	workerDone chan struct{}

	flushStop  chan struct{}
	rotateStop chan struct{}
}

// New constructs a Stdout/File transport.
func New(cfg Config, opts transport.BaseOptions) *Stdout {
	if cfg.Format == "" {
		cfg.Format = FormatJSONL
	}
	if cfg.QueueOverflowStrategy == "" {
		cfg.QueueOverflowStrategy = OverflowBlock
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = 1000
	}

	s := &Stdout{cfg: cfg, dlq: opts.DLQ, serializer: opts.Serializer}

	var out io.Writer = os.Stdout
	if cfg.FilePath != "" {
		s.rotator = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.RotateSize,
			MaxBackups: cfg.RotateCount,
		}
		out = s.rotator
	}

	if cfg.BufferSize > 0 {
		s.buffered = bufio.NewWriterSize(out, cfg.BufferSize)
		s.out = s.buffered
	} else {
		s.out = out
	}

	opts.Name = "stdout"
	opts.DoPublish = s.doPublish
	opts.DoSubscribe = s.rejectSubscribe
	opts.DoDisconnect = s.shutdown
	s.Base = transport.NewBase(opts)

	if s.buffered != nil && cfg.FlushInterval > 0 {
		s.flushStop = make(chan struct{})
		go s.flushLoop()
	}
	if s.rotator != nil && cfg.RotateTime > 0 {
		s.rotateStop = make(chan struct{})
		go s.rotateLoop()
	}
	if cfg.Async {
		s.queue = newBoundedQueue(cfg.MaxQueue)
		s.workerDone = make(chan struct{})
		go s.worker()
	}

	return s
}

// rejectSubscribe implements the "publish-only" requirement: any subscribe
// attempt is rejected with a logged warning instead of silently no-oping.
func (s *Stdout) rejectSubscribe(ctx context.Context, class, handlerID string, filter dispatcher.Filter) error {
	logger.L().Warn("stdout transport is publish-only; rejecting subscribe attempt",
		"message_class", class, "handler_id", handlerID)
	return apperrors.New(apperrors.CodeNotImplemented, "stdout transport does not support subscribe", nil)
}

func (s *Stdout) doPublish(ctx context.Context, class string, payload []byte) error {
	if !s.cfg.Async {
		return s.writeWithRetry(ctx, payload)
	}
	return s.enqueue(class, payload)
}

func (s *Stdout) enqueue(class string, payload []byte) error {
	msg := queuedMessage{MessageClass: class, Payload: payload}

	switch s.cfg.QueueOverflowStrategy {
	case OverflowDropNewest:
		if !s.queue.tryPush(msg) && s.cfg.Stats != nil {
			s.cfg.Stats.AddOne("stdout", "dropped_newest")
		}
		return nil

	case OverflowDropOldest:
		if s.queue.len() >= s.cfg.MaxQueue && s.cfg.Stats != nil {
			s.cfg.Stats.AddOne("stdout", "dropped_oldest")
		}
		s.queue.forcePush(msg)
		return nil

	default: // block
		start := time.Now()
		s.queue.push(msg)
		if s.cfg.Stats != nil {
			s.cfg.Stats.Add(time.Since(start).Milliseconds(), "stdout", "block_wait_ms")
		}
		return nil
	}
}

func (s *Stdout) worker() {
	defer close(s.workerDone)
	for {
		msg, ok := s.queue.pop()
		if !ok {
			return
		}
		if err := s.writeWithRetry(context.Background(), msg.Payload); err != nil {
			logger.L().Error("stdout async write exhausted retries", "message_class", msg.MessageClass, "error", err)
			s.deadLetter(msg, err)
		}
	}
}

// deadLetter forwards an async write that exhausted its retries to the
// dead-letter queue. Base.Publish's DLQ path only fires on a synchronous
// publish failure, so the async worker carries its own dlq/serializer
// references to cover failures that surface after Publish already
// returned nil.
func (s *Stdout) deadLetter(msg queuedMessage, cause error) {
	if s.dlq == nil {
		return
	}
	h := &header.Header{MessageClass: msg.MessageClass}
	if s.serializer != nil {
		if env, err := s.serializer.Decode(msg.Payload); err == nil && env.Header != nil {
			h = env.Header
		}
	}
	if _, err := s.dlq.Enqueue(dlq.Record{
		Header:    h,
		Payload:   string(msg.Payload),
		Error:     cause.Error(),
		Transport: s.Name(),
	}); err != nil {
		logger.L().Error("stdout failed to dead-letter exhausted async write", "message_class", msg.MessageClass, "error", err)
	}
}

func (s *Stdout) writeWithRetry(ctx context.Context, payload []byte) error {
	cfg := retryConfig{
		MaxAttempts:    s.cfg.MaxRetries,
		InitialBackoff: s.cfg.InitialRetryWait,
		MaxBackoff:     s.cfg.MaxRetryWait,
	}
	return retry(ctx, cfg, func(ctx context.Context) error {
		return s.writeLine(payload)
	})
}

func (s *Stdout) writeLine(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := payload
	if s.cfg.Format == FormatPretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, payload, "", "  "); err == nil {
			out = buf.Bytes()
		}
	}

	if _, err := s.out.Write(out); err != nil {
		return apperrors.New(apperrors.CodeInternal, "failed to write message", err)
	}
	if _, err := s.out.Write([]byte("\n")); err != nil {
		return apperrors.New(apperrors.CodeInternal, "failed to write newline", err)
	}
	if s.buffered != nil && s.cfg.AutoFlush {
		return s.buffered.Flush()
	}
	return nil
}

func (s *Stdout) flushLoop() {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			s.buffered.Flush()
			s.mu.Unlock()
		case <-s.flushStop:
			return
		}
	}
}

func (s *Stdout) rotateLoop() {
	ticker := time.NewTicker(s.cfg.RotateTime)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			s.rotator.Rotate()
			s.mu.Unlock()
		case <-s.rotateStop:
			return
		}
	}
}

// shutdown is wired as the Base DoDisconnect hook: it stops the flush and
// rotate loops, drains the async queue, and flushes any buffered output.
func (s *Stdout) shutdown(ctx context.Context) error {
	if s.flushStop != nil {
		close(s.flushStop)
	}
	if s.rotateStop != nil {
		close(s.rotateStop)
	}
	if s.queue != nil {
		s.queue.close()
		<-s.workerDone
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buffered != nil {
		return s.buffered.Flush()
	}
	return nil
}

func init() {
	transport.Default.Register("stdout", func(opts any) (transport.Transport, error) {
		factoryOpts, _ := opts.(FactoryOptions)
		return New(factoryOpts.Config, factoryOpts.Base), nil
	})
	transport.Default.Register("file", func(opts any) (transport.Transport, error) {
		factoryOpts, _ := opts.(FactoryOptions)
		return New(factoryOpts.Config, factoryOpts.Base), nil
	})
}

// FactoryOptions is the opts value the registry expects for "stdout"/"file".
type FactoryOptions struct {
	Config Config
	Base   transport.BaseOptions
}

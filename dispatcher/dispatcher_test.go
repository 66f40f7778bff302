package dispatcher_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/arielkovacs/msgbus/ddq/memory"
	"github.com/arielkovacs/msgbus/dispatcher"
	"github.com/arielkovacs/msgbus/dlq"
	"github.com/arielkovacs/msgbus/header"
	"github.com/arielkovacs/msgbus/serializer"
	"github.com/arielkovacs/msgbus/stats"
	"github.com/stretchr/testify/suite"
)

type DispatcherSuite struct {
	suite.Suite
	ctx   context.Context
	stats *stats.Stats
	dlq   *dlq.DLQ
	d     *dispatcher.Dispatcher
}

func (s *DispatcherSuite) SetupTest() {
	s.ctx = context.Background()
	s.stats = stats.New()

	q, err := dlq.New(filepath.Join(s.T().TempDir(), "dlq.jsonl"))
	s.Require().NoError(err)
	s.dlq = q

	s.d = dispatcher.New(dispatcher.Options{Stats: s.stats, DLQ: s.dlq, Workers: 4})
}

func (s *DispatcherSuite) envelope(from, to string) *serializer.Envelope {
	h := header.New("Ping", from)
	h.To = to
	return &serializer.Envelope{Header: h, Payload: map[string]any{"text": "hello"}}
}

func (s *DispatcherSuite) waitFor(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

func (s *DispatcherSuite) TestRoutesToMatchingHandler() {
	var mu sync.Mutex
	var received []string

	s.d.Add("Ping", "recorder", dispatcher.Filter{}, func(ctx context.Context, env *serializer.Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, env.Payload["text"].(string))
		return nil
	}, nil)

	for i := 0; i < 3; i++ {
		s.d.Route(s.ctx, s.envelope("web", ""))
	}

	s.Require().True(s.waitFor(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 3
	}))
	s.EqualValues(3, s.stats.Get("Ping", "routed"))
}

func (s *DispatcherSuite) TestDedupPreventsReprocessing() {
	var count int32
	var mu sync.Mutex
	q, err := memory.New(16)
	s.Require().NoError(err)

	s.d.Add("Ping", "recorder", dispatcher.Filter{}, func(ctx context.Context, env *serializer.Envelope) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}, q)

	msgA := s.envelope("web", "")
	s.d.Route(s.ctx, msgA)
	s.Require().True(s.waitFor(func() bool { return s.stats.Get("Ping", "routed") == 1 }))

	retransmit := &serializer.Envelope{Header: msgA.Header, Payload: msgA.Payload}
	s.d.Route(s.ctx, retransmit)

	s.Require().True(s.waitFor(func() bool { return s.stats.Get("Ping", "deduplicated") == 1 }))
	s.EqualValues(1, count)
}

func (s *DispatcherSuite) TestFilterRouting() {
	var h1Count, h2Count int32
	var mu sync.Mutex

	s.d.Add("Ping", "H1", dispatcher.Filter{From: []dispatcher.Acceptor{dispatcher.Literal("payment-service")}},
		func(ctx context.Context, env *serializer.Envelope) error {
			mu.Lock()
			h1Count++
			mu.Unlock()
			return nil
		}, nil)

	s.d.Add("Ping", "H2", dispatcher.Filter{To: []dispatcher.Acceptor{dispatcher.MustRegex("^prod-.*")}},
		func(ctx context.Context, env *serializer.Envelope) error {
			mu.Lock()
			h2Count++
			mu.Unlock()
			return nil
		}, nil)

	x := s.envelope("payment-service", "prod-fulfillment")
	y := s.envelope("web", "dev-fulfillment")
	s.d.Route(s.ctx, x)
	s.d.Route(s.ctx, y)

	s.Require().True(s.waitFor(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return h1Count == 1 && h2Count == 1
	}))
}

func (s *DispatcherSuite) TestHandlerFailureIsolatesOtherHandlers() {
	var okCount int32
	var mu sync.Mutex

	s.d.Add("Ping", "failing", dispatcher.Filter{}, func(ctx context.Context, env *serializer.Envelope) error {
		return errors.New("boom")
	}, nil)

	s.d.Add("Ping", "ok", dispatcher.Filter{}, func(ctx context.Context, env *serializer.Envelope) error {
		mu.Lock()
		okCount++
		mu.Unlock()
		return nil
	}, nil)

	s.d.Route(s.ctx, s.envelope("web", ""))

	s.Require().True(s.waitFor(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return okCount == 1
	}))

	size, err := s.dlq.Size()
	s.Require().NoError(err)
	s.Equal(1, size)
}

func (s *DispatcherSuite) TestNoSubscribersIncrementsCounter() {
	s.d.Route(s.ctx, s.envelope("web", ""))
	s.Require().True(s.waitFor(func() bool { return s.stats.Get("Ping", "no_subscribers") == 1 }))
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

package external_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/arielkovacs/msgbus/ddq/external"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type RedisDDQSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	ctx    context.Context
}

func (s *RedisDDQSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr
	s.client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s.ctx = context.Background()
}

func (s *RedisDDQSuite) TearDownTest() {
	s.client.Close()
	s.mr.Close()
}

func (s *RedisDDQSuite) TestIdempotentAdd() {
	q, err := external.New(s.client, external.Config{KeyPrefix: "Ping:h1", Capacity: 4})
	s.Require().NoError(err)

	s.Require().NoError(q.Add(s.ctx, "u1"))
	s.Require().NoError(q.Add(s.ctx, "u1"))

	stats, err := q.StatsSnapshot(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, stats.Count)
}

func (s *RedisDDQSuite) TestBoundEvictsOldest() {
	q, err := external.New(s.client, external.Config{KeyPrefix: "Ping:h2", Capacity: 3})
	s.Require().NoError(err)

	for i := 0; i < 5; i++ {
		s.Require().NoError(q.Add(s.ctx, fmt.Sprintf("u%d", i)))
	}

	ok, err := q.Contains(s.ctx, "u0")
	s.Require().NoError(err)
	s.False(ok)

	ok, err = q.Contains(s.ctx, "u4")
	s.Require().NoError(err)
	s.True(ok)
}

func (s *RedisDDQSuite) TestContainsFailsOpenOnStoreError() {
	q, err := external.New(s.client, external.Config{KeyPrefix: "Ping:h3", Capacity: 2})
	s.Require().NoError(err)

	s.mr.Close() // simulate the store being unreachable

	ok, err := q.Contains(s.ctx, "whatever")
	s.NoError(err)
	s.False(ok)
}

func (s *RedisDDQSuite) TestClear() {
	q, err := external.New(s.client, external.Config{KeyPrefix: "Ping:h4", Capacity: 2})
	s.Require().NoError(err)
	s.Require().NoError(q.Add(s.ctx, "u1"))

	s.Require().NoError(q.Clear(s.ctx))

	stats, _ := q.StatsSnapshot(s.ctx)
	s.Equal(0, stats.Count)
}

func TestRedisDDQSuite(t *testing.T) {
	suite.Run(t, new(RedisDDQSuite))
}

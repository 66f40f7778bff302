package msgbus_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/arielkovacs/msgbus"
	"github.com/arielkovacs/msgbus/dispatcher"
	"github.com/arielkovacs/msgbus/dlq"
	"github.com/arielkovacs/msgbus/header"
	apperrors "github.com/arielkovacs/msgbus/internal/errors"
	"github.com/arielkovacs/msgbus/message"
	"github.com/arielkovacs/msgbus/serializer"
	"github.com/arielkovacs/msgbus/transport"
	"github.com/arielkovacs/msgbus/transport/adapters/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTransportNotConfiguredByDefault(t *testing.T) {
	defer msgbus.Reset()

	_, err := msgbus.DefaultTransport()
	require.Error(t, err)
	code, ok := apperrors.Code(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeTransportNotConfigured, code)
}

func TestConfigureSetsTransportAndPreservesUnsetFields(t *testing.T) {
	defer msgbus.Reset()

	tr := memory.New(memory.Config{}, transport.BaseOptions{})
	prevSerializer := msgbus.DefaultSerializer()

	msgbus.Configure(msgbus.Defaults{Transport: tr})

	got, err := msgbus.DefaultTransport()
	require.NoError(t, err)
	assert.Same(t, tr, got)
	assert.Same(t, prevSerializer, msgbus.DefaultSerializer())
}

func TestConfigureOverridesSerializer(t *testing.T) {
	defer msgbus.Reset()

	custom := serializer.NewJSON()
	msgbus.Configure(msgbus.Defaults{Serializer: custom})

	assert.Same(t, custom, msgbus.DefaultSerializer())
}

func TestDefaultDLQIsNilUntilConfigured(t *testing.T) {
	defer msgbus.Reset()
	assert.Nil(t, msgbus.DefaultDLQ())
}

func TestDefaultLoggerIsNeverNil(t *testing.T) {
	defer msgbus.Reset()
	assert.NotNil(t, msgbus.DefaultLogger())
}

func TestResetRestoresBaseline(t *testing.T) {
	tr := memory.New(memory.Config{}, transport.BaseOptions{})
	msgbus.Configure(msgbus.Defaults{Transport: tr})

	msgbus.Reset()

	_, err := msgbus.DefaultTransport()
	assert.Error(t, err)
}

func TestCurrentReturnsConfiguredRegistry(t *testing.T) {
	defer msgbus.Reset()

	reg := transport.NewRegistry()
	msgbus.Configure(msgbus.Defaults{Registry: reg})

	assert.Same(t, reg, msgbus.Current().Registry)
}

// TestReplayAllThroughSubstituteTransport dead-letters three records and
// replays them through a memory transport standing in for the original
// (failed) one: all three must arrive in the substitute's buffer and the
// queue must be empty afterwards, since successful replays are consumed.
func TestReplayAllThroughSubstituteTransport(t *testing.T) {
	ctx := context.Background()
	ser := serializer.NewJSON()

	q, err := dlq.New(filepath.Join(t.TempDir(), "dlq.jsonl"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		env := &serializer.Envelope{Header: header.New("Ping", "web"), Payload: map[string]any{"n": i}}
		data, err := ser.Encode(env)
		require.NoError(t, err)
		_, err = q.Enqueue(dlq.Record{Header: env.Header, Payload: string(data), Error: "backend unreachable", Transport: "broker"})
		require.NoError(t, err)
	}

	substitute := memory.New(memory.Config{}, transport.BaseOptions{Serializer: ser})
	result, err := q.ReplayAll(ctx, substitute.Publish)
	require.NoError(t, err)

	assert.Equal(t, 3, result.SuccessCount)
	assert.Equal(t, 0, result.FailCount)
	assert.Equal(t, 3, substitute.MessageCount())

	size, err := q.Size()
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

// TestMessagePublishesThroughProcessWideDefaultTransport ties the message
// base to the root facade end to end: a message constructed against a
// descriptor with no instance-level transport override still reaches a
// subscribed handler, because Publish resolves the process-wide default
// transport configured via msgbus.Configure.
func TestMessagePublishesThroughProcessWideDefaultTransport(t *testing.T) {
	defer msgbus.Reset()

	ctx := context.Background()
	ser := serializer.NewJSON()

	q, err := dlq.New(filepath.Join(t.TempDir(), "dlq.jsonl"))
	require.NoError(t, err)
	d := dispatcher.New(dispatcher.Options{DLQ: q, Workers: 2})

	tr := memory.New(memory.Config{AutoProcess: true}, transport.BaseOptions{Dispatcher: d, Serializer: ser})
	msgbus.Configure(msgbus.Defaults{Transport: tr, Serializer: ser})

	reg := message.NewRegistry()
	reg.Register(&message.Descriptor{
		Class: "OrderCreated",
		From:  "orders-service",
		Properties: []message.PropertySpec{
			{Name: "order_id", Required: true},
		},
	})

	var mu sync.Mutex
	var receivedOrderID string
	_, err = tr.Subscribe(ctx, "OrderCreated", "billing", dispatcher.Filter{}, func(ctx context.Context, env *serializer.Envelope) error {
		mu.Lock()
		receivedOrderID, _ = env.Payload["order_id"].(string)
		mu.Unlock()
		return nil
	}, nil)
	require.NoError(t, err)

	m, err := message.New(reg, "OrderCreated", map[string]any{"order_id": "o-42"})
	require.NoError(t, err)
	require.NoError(t, m.Publish(ctx))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := receivedOrderID
		mu.Unlock()
		if got == "o-42" {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("handler never received the published message")
}

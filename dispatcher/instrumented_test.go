package dispatcher_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/arielkovacs/msgbus/dispatcher"
	"github.com/arielkovacs/msgbus/dlq"
	"github.com/arielkovacs/msgbus/header"
	"github.com/arielkovacs/msgbus/serializer"
	"github.com/arielkovacs/msgbus/stats"
	"github.com/stretchr/testify/require"
)

func TestInstrumentedRoutesToMatchingHandler(t *testing.T) {
	ctx := context.Background()
	q, err := dlq.New(filepath.Join(t.TempDir(), "dlq.jsonl"))
	require.NoError(t, err)

	d := dispatcher.New(dispatcher.Options{Stats: stats.New(), DLQ: q, Workers: 2})
	i := dispatcher.NewInstrumented(d)

	var mu sync.Mutex
	var received string
	i.Add("Ping", "recorder", dispatcher.Filter{}, func(ctx context.Context, env *serializer.Envelope) error {
		mu.Lock()
		received = env.Header.From
		mu.Unlock()
		return nil
	}, nil)

	h := header.New("Ping", "web")
	i.Route(ctx, &serializer.Envelope{Header: h, Payload: map[string]any{}})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := received
		mu.Unlock()
		if got == "web" {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("handler was never invoked through the instrumented dispatcher")
}

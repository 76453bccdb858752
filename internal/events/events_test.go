package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neoalexandria/backend/internal/platform/logger"
)

func testBus(t *testing.T) Bus {
	t.Helper()
	l, err := logger.New("test")
	require.NoError(t, err)
	b := NewBus(l, 2)
	t.Cleanup(b.Close)
	return b
}

func TestEmitPriorityOrder(t *testing.T) {
	b := testBus(t)
	var order []string
	b.Subscribe(ResourceCreated, 0, func(ctx context.Context, p Payload) {
		order = append(order, "low")
	})
	b.Subscribe(ResourceCreated, 10, func(ctx context.Context, p Payload) {
		order = append(order, "high")
	})
	b.Subscribe(ResourceCreated, 0, func(ctx context.Context, p Payload) {
		order = append(order, "low2")
	})

	b.Emit(context.Background(), ResourceCreated, Payload{"id": "x"})
	assert.Equal(t, []string{"high", "low", "low2"}, order)
}

func TestHandlerPanicIsolated(t *testing.T) {
	b := testBus(t)
	ran := false
	b.Subscribe(ResourceDeleted, 10, func(ctx context.Context, p Payload) {
		panic("boom")
	})
	b.Subscribe(ResourceDeleted, 0, func(ctx context.Context, p Payload) {
		ran = true
	})

	b.Emit(context.Background(), ResourceDeleted, nil)
	assert.True(t, ran, "panic in one handler must not stop the next")
}

func TestEmitOnlyReachesMatchingName(t *testing.T) {
	b := testBus(t)
	var hits int
	b.Subscribe(ResourceReady, 0, func(ctx context.Context, p Payload) { hits++ })

	b.Emit(context.Background(), ResourceUpdated, nil)
	b.Emit(context.Background(), ResourceReady, nil)
	assert.Equal(t, 1, hits)
}

func TestSubscribeAsyncRunsOffEmitterGoroutine(t *testing.T) {
	b := testBus(t)
	var wg sync.WaitGroup
	wg.Add(1)
	var got Payload
	b.SubscribeAsync(GraphInvalidated, func(ctx context.Context, p Payload) {
		got = p
		wg.Done()
	})

	b.Emit(context.Background(), GraphInvalidated, Payload{"reason": "edge_update"})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handler never ran")
	}
	assert.Equal(t, "edge_update", got["reason"])
}

func TestFIFOPerEventName(t *testing.T) {
	b := testBus(t)
	var mu sync.Mutex
	var seen []int
	b.Subscribe(CitationResolved, 0, func(ctx context.Context, p Payload) {
		mu.Lock()
		seen = append(seen, p["n"].(int))
		mu.Unlock()
	})

	for i := 0; i < 20; i++ {
		b.Emit(context.Background(), CitationResolved, Payload{"n": i})
	}
	for i := 0; i < 20; i++ {
		assert.Equal(t, i, seen[i])
	}
}

package workerpool_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cake-lab/arflow-go/internal/logging"
	"github.com/cake-lab/arflow-go/internal/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolLifecycle(t *testing.T) {
	logger := logging.GetLogger("test")
	pool := workerpool.New(3, time.Second, logger)

	assert.False(t, pool.IsRunning())

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	assert.True(t, pool.IsRunning())

	require.NoError(t, pool.Stop(ctx))
	assert.False(t, pool.IsRunning())
}

func TestPoolConcurrencyCap(t *testing.T) {
	logger := logging.GetLogger("test")
	maxWorkers := 2
	pool := workerpool.New(maxWorkers, 5*time.Second, logger)

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop(ctx)

	var concurrent, maxSeen int64
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		err := pool.Submit(ctx, func(ctx context.Context) {
			defer wg.Done()
			n := atomic.AddInt64(&concurrent, 1)
			for {
				cur := atomic.LoadInt64(&maxSeen)
				if n <= cur || atomic.CompareAndSwapInt64(&maxSeen, cur, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt64(&concurrent, -1)
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.LessOrEqual(t, int(atomic.LoadInt64(&maxSeen)), maxWorkers)
}

func TestPoolRecoversPanic(t *testing.T) {
	logger := logging.GetLogger("test")
	pool := workerpool.New(1, time.Second, logger)
	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))

	done := make(chan struct{})
	err := pool.Submit(ctx, func(ctx context.Context) {
		defer close(done)
		panic("boom")
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}

	require.NoError(t, pool.Stop(ctx))
	stats := pool.Stats()
	assert.Equal(t, int64(1), stats.FailedTasks)
}

func TestPoolTaskTimeout(t *testing.T) {
	logger := logging.GetLogger("test")
	pool := workerpool.New(1, 20*time.Millisecond, logger)
	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))

	err := pool.Submit(ctx, func(ctx context.Context) {
		<-ctx.Done()
	})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, pool.Stop(ctx))

	stats := pool.Stats()
	assert.Equal(t, int64(1), stats.TimeoutTasks)
}

func TestSubmitRejectedWhenNotRunning(t *testing.T) {
	logger := logging.GetLogger("test")
	pool := workerpool.New(1, time.Second, logger)
	err := pool.Submit(context.Background(), func(context.Context) {})
	assert.Error(t, err)
}

package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerManager_ProcessesJobs(t *testing.T) {
	w := NewWorkerManager(10, 3)

	var handled atomic.Int64
	w.SetWorker(func(_ int, job interface{}) {
		handled.Add(int64(job.(int)))
	})
	w.Start()

	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		require.NoError(t, w.Enqueue(ctx, i))
	}
	w.Exit()

	assert.Equal(t, int64(55), handled.Load())
	assert.Equal(t, int64(0), w.GetUnreadCount())
}

func TestWorkerManager_EnqueueAfterExit(t *testing.T) {
	w := NewWorkerManager(1, 1)
	w.SetWorker(func(int, interface{}) {})
	w.Start()
	w.Exit()

	err := w.Enqueue(context.Background(), "late")
	assert.ErrorIs(t, err, ErrStopped)
}

func TestWorkerManager_EnqueueHonoursContext(t *testing.T) {
	w := NewWorkerManager(0, 1)
	block := make(chan struct{})
	w.SetWorker(func(int, interface{}) { <-block })
	w.Start()
	defer func() {
		close(block)
		w.Exit()
	}()

	require.NoError(t, w.Enqueue(context.Background(), "first"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := w.Enqueue(ctx, "second")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

package worker_test

import (
	"sync"
	"testing"
	"time"

	"github.com/GabrielSantos23/downly/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// workQueue is a minimal claimable queue for driving a worker pool. The
// optional emptyGate lets a test hold a worker at the point where it has
// decided the queue is empty but has not yet gone to sleep.
type workQueue struct {
	mu        sync.Mutex
	items     []int
	processed []int
	emptyGate chan struct{}
}

func (queue *workQueue) claim(_ worker.Worker) (bool, error) {
	queue.mu.Lock()
	if len(queue.items) == 0 {
		gate := queue.emptyGate
		queue.mu.Unlock()

		if gate != nil {
			<-gate
		}
		return false, nil
	}

	item := queue.items[0]
	queue.items = queue.items[1:]
	queue.processed = append(queue.processed, item)
	queue.mu.Unlock()
	return true, nil
}

func (queue *workQueue) push(item int) {
	queue.mu.Lock()
	defer queue.mu.Unlock()
	queue.items = append(queue.items, item)
}

func (queue *workQueue) processedCount() int {
	queue.mu.Lock()
	defer queue.mu.Unlock()
	return len(queue.processed)
}

func (queue *workQueue) processedItems() []int {
	queue.mu.Lock()
	defer queue.mu.Unlock()
	return append([]int(nil), queue.processed...)
}

func startPool(t *testing.T, queue *workQueue, workers int) *worker.WorkerPool {
	pool := worker.NewWorkerPool()
	for i := 0; i < workers; i++ {
		require.NoError(t, pool.PushWorker(worker.NewWorker("test-worker", queue.claim)))
	}
	require.NoError(t, pool.Start())
	t.Cleanup(pool.Close)
	return pool
}

func Test_WorkerPool_ProcessesQueuedWork(t *testing.T) {
	queue := &workQueue{}
	pool := startPool(t, queue, 2)

	for i := 0; i < 5; i++ {
		queue.push(i)
	}
	require.NoError(t, pool.WakeupWorkers())

	require.Eventually(t, func() bool {
		return queue.processedCount() == 5
	}, 2*time.Second, 10*time.Millisecond)
}

// A wakeup raised while the worker is between its final empty-queue check
// and sleeping must not be lost; the work it announces would otherwise sit
// queued until an unrelated submission arrives.
func Test_WorkerPool_WakeupDuringFinalQueueCheckIsNotLost(t *testing.T) {
	gate := make(chan struct{})
	queue := &workQueue{emptyGate: gate}
	pool := startPool(t, queue, 1)

	// The worker is now parked inside its task, having seen an empty
	// queue. Work submitted here races the worker back to sleep.
	queue.push(42)
	require.NoError(t, pool.WakeupWorkers())

	close(gate)

	require.Eventually(t, func() bool {
		return queue.processedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int{42}, queue.processedItems())
}

func Test_WorkerPool_LifecycleGuards(t *testing.T) {
	pool := worker.NewWorkerPool()
	assert.Error(t, pool.WakeupWorkers(), "wakeup before start must be rejected")

	require.NoError(t, pool.PushWorker(worker.NewWorker("test-worker", func(worker.Worker) (bool, error) {
		return false, nil
	})))
	require.NoError(t, pool.Start())
	assert.Error(t, pool.Start(), "double start must be rejected")
	assert.Error(t, pool.PushWorker(worker.NewWorker("late", nil)), "push after start must be rejected")

	pool.Close()
}
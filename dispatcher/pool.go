package dispatcher

import (
	"context"
	"sync"
	"time"
)

// task is a unit of routing work submitted to the worker pool: invoking
// one subscription's handler for one routed envelope.
type task func(ctx context.Context)

// workerPool is a fixed-size pool of goroutines draining a shared task
// queue. Shutdown stops accepting new work, waits for in-flight tasks to
// drain, and force-returns once the deadline in ctx elapses.
type workerPool struct {
	mu     sync.RWMutex
	queue  chan task
	wg     sync.WaitGroup
	closed bool

	stopOnce sync.Once
}

func newWorkerPool(workers, queueSize int) *workerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	p := &workerPool{
		queue: make(chan task, queueSize),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *workerPool) run() {
	defer p.wg.Done()
	for t := range p.queue {
		t(context.Background())
	}
}

// submit enqueues t, blocking if every worker is busy and the queue is
// full. submit is a no-op once the pool has begun shutting down. The read
// lock is held across the send so shutdown cannot close the queue while a
// send is in flight.
func (p *workerPool) submit(t task) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	p.queue <- t
}

// shutdown stops accepting new tasks, waits for queued tasks to drain,
// and returns once either drain completes or ctx is done.
func (p *workerPool) shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.queue)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// defaultShutdownTimeout is used by Dispatcher.Shutdown when the caller's
// context carries no deadline of its own.
const defaultShutdownTimeout = 30 * time.Second

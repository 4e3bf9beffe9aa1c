package ingest

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// Pool is a bounded worker pool. The fixed worker count is the sole
// backpressure mechanism for download concurrency; admission control is
// the separate, earlier gate for memory.
type Pool struct {
	tasks  chan func()
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewPool starts workers goroutines draining a queue of depth pending
// submissions.
func NewPool(log *slog.Logger, workers, depth int) *Pool {
	if log == nil {
		log = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = 1
	}

	p := &Pool{
		tasks:  make(chan func(), depth),
		logger: log.With(slog.String("service", "scheduler")),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

// run isolates one task so a panic never takes down the worker or its
// siblings.
func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker recovered panic",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	task()
}

// Submit enqueues a task without blocking. Returns ErrQueueFull when the
// queue is saturated so the event-consuming loop is never stalled.
func (p *Pool) Submit(task func()) error {
	if task == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrQueueFull
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting submissions and waits for queued tasks to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

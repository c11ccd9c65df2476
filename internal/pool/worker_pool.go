// Package pool provides a bounded worker pool for background fills.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task represents a unit of background work.
type Task func(ctx context.Context) error

// WorkerPool runs tasks on a fixed set of workers over a bounded queue.
// When the queue is full, Submit drops the task instead of queueing
// unboundedly: background fills are best-effort by contract.
type WorkerPool struct {
	workers   int
	taskQueue chan Task

	// mu 保证 closed 判断与入队对 close(taskQueue) 原子，
	// 否则并发关闭时 Submit 可能向已关闭通道发送
	mu     sync.RWMutex
	closed bool

	wg sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc

	// Metrics
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64

	panicHandler func(any)
}

// Config configures the pool.
type Config struct {
	Workers      int       `json:"workers" yaml:"workers"`
	QueueSize    int       `json:"queue_size" yaml:"queue_size"`
	PanicHandler func(any) `json:"-" yaml:"-"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:   4,
		QueueSize: 64,
	}
}

// NewWorkerPool creates the pool and starts its workers immediately.
func NewWorkerPool(config Config) *WorkerPool {
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		workers:      config.Workers,
		taskQueue:    make(chan Task, config.QueueSize),
		baseCtx:      ctx,
		cancel:       cancel,
		panicHandler: config.PanicHandler,
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

// Submit enqueues a task without blocking. A saturated queue returns
// ErrPoolFull and the task is dropped.
func (p *WorkerPool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.taskQueue <- task:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for task := range p.taskQueue {
		if err := p.execute(task); err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	}
}

func (p *WorkerPool) execute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if p.panicHandler != nil {
				p.panicHandler(r)
			}
			err = errors.New("task panicked")
		}
	}()

	return task(p.baseCtx)
}

// Close stops accepting tasks and waits for queued work to drain.
func (p *WorkerPool) Close() {
	if !p.markClosed() {
		return
	}
	p.wg.Wait()
	p.cancel()
}

// Shutdown cancels the base context so in-flight tasks can abort,
// then drains like Close.
func (p *WorkerPool) Shutdown() {
	p.cancel()
	if !p.markClosed() {
		return
	}
	p.wg.Wait()
}

// markClosed flips the closed flag and closes the queue under the
// write lock, excluding any in-flight Submit. Returns false if the
// pool was already closed.
func (p *WorkerPool) markClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	p.closed = true
	close(p.taskQueue)
	return true
}

// Stats returns pool statistics.
func (p *WorkerPool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Queued:    len(p.taskQueue),
		QueueCap:  cap(p.taskQueue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// Stats contains pool statistics.
type Stats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	QueueCap  int   `json:"queue_cap"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}

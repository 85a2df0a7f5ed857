// Package workers provides a bounded worker pool used to run
// independent backtests in parallel.
package workers

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work.
type Task interface {
	Execute() error
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc func() error

func (f TaskFunc) Execute() error { return f() }

// PoolError represents a pool error.
type PoolError struct {
	Message string
}

func (e *PoolError) Error() string { return e.Message }

var (
	ErrPoolStopped     = &PoolError{Message: "pool is stopped"}
	ErrQueueFull       = &PoolError{Message: "task queue is full"}
	ErrShutdownTimeout = &PoolError{Message: "shutdown timed out"}
)

// PoolConfig configures the worker pool.
type PoolConfig struct {
	Name            string
	NumWorkers      int
	QueueSize       int
	ShutdownTimeout time.Duration
}

// DefaultPoolConfig returns sensible defaults: backtests are CPU bound,
// so one worker per CPU.
func DefaultPoolConfig(name string) *PoolConfig {
	return &PoolConfig{
		Name:            name,
		NumWorkers:      runtime.NumCPU(),
		QueueSize:       1024,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Pool manages a fixed set of worker goroutines draining a task queue.
type Pool struct {
	logger *zap.Logger
	config *PoolConfig

	taskQueue chan Task
	wg        sync.WaitGroup

	// mu guards the running/closed transition so a Submit in flight can
	// never send on a closed queue.
	mu      sync.RWMutex
	running atomic.Bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a new worker pool.
func NewPool(logger *zap.Logger, config *PoolConfig) *Pool {
	if config == nil {
		config = DefaultPoolConfig("default")
	}
	return &Pool{
		logger:    logger,
		config:    config,
		taskQueue: make(chan Task, config.QueueSize),
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return
	}

	p.logger.Info("starting worker pool",
		zap.String("name", p.config.Name),
		zap.Int("workers", p.config.NumWorkers),
	)

	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	logger := p.logger.With(zap.Int("worker_id", id))

	// Drain until the queue is closed: every accepted task runs, even
	// ones still queued when Stop is called.
	for task := range p.taskQueue {
		if err := p.execute(task); err != nil {
			p.failed.Add(1)
			logger.Debug("task failed", zap.Error(err))
		} else {
			p.completed.Add(1)
		}
	}
}

// execute runs one task, converting a panic into an error so a single
// bad task cannot take down the pool.
func (p *Pool) execute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker recovered from panic", zap.Any("panic", r))
			err = &PoolError{Message: "task panicked"}
		}
	}()
	return task.Execute()
}

// Submit enqueues a task without blocking.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running.Load() {
		return ErrPoolStopped
	}
	select {
	case p.taskQueue <- task:
		p.submitted.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitFunc enqueues a function as a task.
func (p *Pool) SubmitFunc(fn func() error) error {
	return p.Submit(TaskFunc(fn))
}

// SubmitWait enqueues a task and blocks until it completes.
func (p *Pool) SubmitWait(task Task) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}
	done := make(chan error, 1)
	if err := p.Submit(TaskFunc(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &PoolError{Message: "task panicked"}
			}
			done <- err
		}()
		return task.Execute()
	})); err != nil {
		return err
	}
	return <-done
}

// Stop closes the queue and waits for the workers to finish every
// accepted task, up to the shutdown timeout. On timeout the workers
// keep draining in the background so no waiter is left hanging.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if !p.running.Swap(false) {
		p.mu.Unlock()
		return nil
	}
	close(p.taskQueue)
	p.mu.Unlock()

	p.logger.Info("stopping worker pool", zap.String("name", p.config.Name))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		return ErrShutdownTimeout
	}
}

// IsRunning reports whether the pool accepts tasks.
func (p *Pool) IsRunning() bool { return p.running.Load() }

// Stats returns submitted/completed/failed task counts.
func (p *Pool) Stats() (submitted, completed, failed int64) {
	return p.submitted.Load(), p.completed.Load(), p.failed.Load()
}

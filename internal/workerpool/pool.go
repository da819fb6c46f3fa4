// Package workerpool provides a bounded goroutine pool that dispatches
// submitted tasks across a fixed number of workers, used by the RPC server
// to cap concurrent request handling at a configured size.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cake-lab/arflow-go/internal/logging"
)

// Stats reports the current load and lifetime counters of a Pool.
type Stats struct {
	ActiveWorkers  int
	QueuedTasks    int
	CompletedTasks int64
	FailedTasks    int64
	TimeoutTasks   int64
	MaxWorkers     int
}

// Pool runs submitted tasks on a bounded number of goroutines. A task that
// panics is recovered and counted as failed rather than crashing the pool;
// a task that outruns the pool's task timeout is abandoned and counted as
// timed out, but its goroutine is allowed to finish in the background.
type Pool struct {
	maxWorkers  int
	taskTimeout time.Duration
	semaphore   chan struct{}
	wg          sync.WaitGroup
	logger      *logging.Logger

	activeWorkers  int64
	queuedTasks    int64
	completedTasks int64
	failedTasks    int64
	timeoutTasks   int64

	running  int32
	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a worker pool with the given worker count and per-task
// timeout. maxWorkers <= 0 defaults to 10; taskTimeout <= 0 defaults to 5s.
func New(maxWorkers int, taskTimeout time.Duration, logger *logging.Logger) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	if taskTimeout <= 0 {
		taskTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.GetLogger("worker-pool")
	}

	return &Pool{
		maxWorkers:  maxWorkers,
		taskTimeout: taskTimeout,
		semaphore:   make(chan struct{}, maxWorkers),
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
}

// Start marks the pool as accepting tasks.
func (p *Pool) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return fmt.Errorf("worker pool is already running")
	}
	p.logger.WithFields(logging.Fields{
		"max_workers":  p.maxWorkers,
		"task_timeout": p.taskTimeout,
	}).Info("worker pool started")
	return nil
}

// Submit queues task for execution on a worker goroutine. It blocks until a
// worker slot is free, ctx is done, or the pool is stopped.
func (p *Pool) Submit(ctx context.Context, task func(context.Context)) error {
	if atomic.LoadInt32(&p.running) == 0 {
		return fmt.Errorf("worker pool is not running")
	}

	atomic.AddInt64(&p.queuedTasks, 1)
	defer atomic.AddInt64(&p.queuedTasks, -1)

	select {
	case p.semaphore <- struct{}{}:
		atomic.AddInt64(&p.activeWorkers, 1)
		p.wg.Add(1)
		go p.executeTask(ctx, task)
		return nil
	case <-ctx.Done():
		atomic.AddInt64(&p.failedTasks, 1)
		return fmt.Errorf("failed to submit task: %w", ctx.Err())
	case <-p.stopChan:
		atomic.AddInt64(&p.failedTasks, 1)
		return fmt.Errorf("worker pool is shutting down")
	}
}

func (p *Pool) executeTask(ctx context.Context, task func(context.Context)) {
	defer func() {
		atomic.AddInt64(&p.activeWorkers, -1)
		<-p.semaphore
		p.wg.Done()

		if r := recover(); r != nil {
			atomic.AddInt64(&p.failedTasks, 1)
			p.logger.WithFields(logging.Fields{
				"panic":  r,
				"action": "task_panic_recovered",
			}).Error("task panicked in worker pool")
		}
	}()

	taskCtx, cancel := context.WithTimeout(ctx, p.taskTimeout)
	defer cancel()

	type result struct {
		completed bool
		panicked  bool
		panicVal  interface{}
		timedOut  bool
	}

	resultChan := make(chan result, 1)

	go func() {
		var r result
		defer func() {
			if v := recover(); v != nil {
				r.panicked = true
				r.panicVal = v
			}
			resultChan <- r
		}()

		taskDone := make(chan struct{})
		go func() {
			defer func() {
				if v := recover(); v != nil {
					r.panicked = true
					r.panicVal = v
				}
				close(taskDone)
			}()
			task(taskCtx)
		}()

		select {
		case <-taskDone:
			r.completed = true
		case <-taskCtx.Done():
			r.timedOut = true
		}
	}()

	select {
	case r := <-resultChan:
		switch {
		case r.panicked:
			atomic.AddInt64(&p.failedTasks, 1)
			p.logger.WithFields(logging.Fields{"panic": r.panicVal}).Error("task panicked during execution")
		case r.timedOut:
			atomic.AddInt64(&p.timeoutTasks, 1)
			p.logger.WithFields(logging.Fields{"timeout": p.taskTimeout}).Warn("task timed out in worker pool")
		case r.completed:
			atomic.AddInt64(&p.completedTasks, 1)
		default:
			atomic.AddInt64(&p.failedTasks, 1)
		}
	case <-p.stopChan:
		select {
		case r := <-resultChan:
			if r.completed && !r.panicked {
				atomic.AddInt64(&p.completedTasks, 1)
			} else {
				atomic.AddInt64(&p.failedTasks, 1)
			}
		case <-ctx.Done():
			atomic.AddInt64(&p.failedTasks, 1)
			p.logger.Debug("task cancelled due to context timeout during shutdown")
		}
	}
}

// Stop signals the pool to stop accepting new tasks and waits for
// in-flight tasks to finish, or for ctx to expire.
func (p *Pool) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return nil
	}

	p.stopOnce.Do(func() { close(p.stopChan) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		stats := p.Stats()
		p.logger.WithFields(logging.Fields{
			"completed_tasks": stats.CompletedTasks,
			"failed_tasks":    stats.FailedTasks,
			"timeout_tasks":   stats.TimeoutTasks,
		}).Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timeout, some tasks may have been interrupted")
		return ctx.Err()
	}
}

// IsRunning reports whether the pool currently accepts tasks.
func (p *Pool) IsRunning() bool {
	return atomic.LoadInt32(&p.running) == 1
}

// Stats returns a snapshot of the pool's current load and counters.
func (p *Pool) Stats() Stats {
	return Stats{
		ActiveWorkers:  int(atomic.LoadInt64(&p.activeWorkers)),
		QueuedTasks:    int(atomic.LoadInt64(&p.queuedTasks)),
		CompletedTasks: atomic.LoadInt64(&p.completedTasks),
		FailedTasks:    atomic.LoadInt64(&p.failedTasks),
		TimeoutTasks:   atomic.LoadInt64(&p.timeoutTasks),
		MaxWorkers:     p.maxWorkers,
	}
}

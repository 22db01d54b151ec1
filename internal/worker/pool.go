package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Handler runs one extraction job. It owns all error handling; the
// executor only schedules it.
type Handler func(ctx context.Context, jobID uuid.UUID)

// Dispatcher hands a job to a detached executor without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID uuid.UUID) error
}

var (
	ErrQueueFull  = errors.New("worker queue is full")
	ErrPoolClosed = errors.New("worker pool is shutting down")
)

// Pool is a bounded in-process executor: a buffered channel drained by a
// fixed number of goroutines.
type Pool struct {
	logger  *slog.Logger
	workers int

	ch   chan uuid.UUID
	wg   sync.WaitGroup
	once sync.Once

	mu      sync.Mutex
	closed  bool
	started bool
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.ch = make(chan uuid.UUID, n)
		}
	}
}

func NewPool(logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		logger:  logger,
		workers: 4,
		ch:      make(chan uuid.UUID, 256),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start launches the workers. Jobs dispatched before Start wait in the
// buffer.
func (p *Pool) Start(handler Handler) {
	p.once.Do(func() {
		p.mu.Lock()
		p.started = true
		p.mu.Unlock()

		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				p.logger.Debug("worker started", "worker_id", workerID)

				for jobID := range p.ch {
					handler(context.Background(), jobID)
				}

				p.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Dispatch enqueues without blocking so submission stays short; a full
// buffer is reported to the caller.
func (p *Pool) Dispatch(_ context.Context, jobID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.ch <- jobID:
		p.logger.Debug("queued extraction job", "job_id", jobID)
		return nil
	default:
		p.logger.Warn("queue full, rejecting job", "job_id", jobID, "capacity", cap(p.ch))
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or for
// ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.ch)
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("shutdown interrupted by context")
		return ctx.Err()
	case <-done:
		p.logger.Info("queue drained, shutdown complete")
		return nil
	}
}

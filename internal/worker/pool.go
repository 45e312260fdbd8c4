package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool runs jobs on a fixed number of workers and streams results in
// completion order. Cancelling the start context stops workers from picking
// up new jobs; results of jobs already running are still delivered.
type Pool struct {
	workers    int
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	jobsOnce   sync.Once
}

// NewPool creates a new worker pool with the specified number of workers
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:  workers,
		jobQueue: make(chan Job, workers),
		results:  make(chan Result, workers),
	}
}

// Start starts the workers. Jobs execute under a context derived from ctx.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancelFunc = context.WithCancel(ctx)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	go func() {
		p.wg.Wait()
		p.cancelFunc()
		close(p.results)
	}()
}

// worker is the worker goroutine that processes jobs
func (p *Pool) worker() {
	defer p.wg.Done()

	for job := range p.jobQueue {
		// Queued jobs are skipped once the pool is cancelled
		if p.ctx.Err() != nil {
			continue
		}
		p.results <- job.Execute(p.ctx)
	}
}

// Submit queues a job. It returns false without queueing once the pool is
// cancelled.
func (p *Pool) Submit(job Job) bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- job:
		return true
	}
}

// Close signals that no more jobs will be submitted
func (p *Pool) Close() {
	p.jobsOnce.Do(func() {
		close(p.jobQueue)
	})
}

// Results streams results as jobs complete. The channel closes once every
// worker has exited, which requires Close. Callers must drain it.
func (p *Pool) Results() <-chan Result {
	return p.results
}

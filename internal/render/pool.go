package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/observability"
)

var (
	// ErrQueueFull is returned when every worker is busy and the queue is at capacity.
	ErrQueueFull = errors.New("render queue full")
	// ErrPoolClosed is returned for jobs submitted after Close.
	ErrPoolClosed = errors.New("render pool closed")
)

// Job is one map render request.
type Job struct {
	Quakes  []domain.Earthquake
	Options Options
}

// Result is the terminal outcome of a Job.
type Result struct {
	Artifact Artifact
	Err      error
}

type task struct {
	job Job
	out chan Result
}

// Pool renders jobs on a fixed set of workers. Submit never blocks; it
// returns a channel that receives exactly one Result.
type Pool struct {
	renderer Renderer
	tasks    chan task
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool starts workers goroutines reading from a queue of queueSize.
func NewPool(r Renderer, workers, queueSize int, logger *slog.Logger, metrics *observability.Metrics) *Pool {
	workers = max(1, workers)
	p := &Pool{
		renderer: r,
		tasks:    make(chan task, max(0, queueSize)),
		logger:   logger,
		metrics:  metrics,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

// Submit enqueues a job. The returned channel is buffered and always
// receives one Result, either from a worker or immediately on rejection.
func (p *Pool) Submit(job Job) <-chan Result {
	out := make(chan Result, 1)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.metrics.RenderJobs.WithLabelValues("rejected").Inc()
		out <- Result{Err: ErrPoolClosed}
		return out
	}

	select {
	case p.tasks <- task{job: job, out: out}:
	default:
		p.metrics.RenderJobs.WithLabelValues("rejected").Inc()
		out <- Result{Err: ErrQueueFull}
	}
	return out
}

// Close stops accepting jobs and waits for queued ones to finish.
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

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for t := range p.tasks {
		t.out <- p.render(id, t.job)
	}
}

func (p *Pool) render(id int, job Job) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("render panic: %v", r)}
		}
		p.metrics.RenderDuration.Observe(time.Since(start).Seconds())
		if res.Err != nil {
			p.metrics.RenderJobs.WithLabelValues("error").Inc()
			p.logger.Error("map render failed", "worker", id, "error", res.Err)
			return
		}
		p.metrics.RenderJobs.WithLabelValues("success").Inc()
	}()

	art, err := p.renderer.Render(context.Background(), job.Quakes, job.Options)
	return Result{Artifact: art, Err: err}
}

package worker

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"region-ocr/src/sink"
)

var errPanicked = errors.New("worker: job panicked")

// Job is one unit of work, normally a pipeline run.
type Job func(ctx context.Context) (*sink.Output, error)

// ResultCallback is invoked on job completion from a worker goroutine.
// The event loop should pass a closure that posts back into the loop.
type ResultCallback func(out *sink.Output, err error)

// Pool is a fixed-size worker pool with a 1-slot input queue (strict
// back-pressure).
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup
	log  *slog.Logger

	closeOnce sync.Once
}

type job struct {
	ctx context.Context
	run Job
	cb  ResultCallback
}

// New creates a worker pool. Size defaults to NumCPU when size<=0. Queue
// is 1 slot.
func New(size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{jobs: make(chan job, 1), log: logger}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for j := range p.jobs {
				p.runJob(id, j)
			}
		}(i)
	}
}

func (p *Pool) runJob(id int, j job) {
	start := time.Now()
	var (
		out *sink.Output
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("worker: job panicked", "worker", id, "panic", r)
				err = errPanicked
			}
		}()
		if cerr := j.ctx.Err(); cerr != nil {
			err = cerr
			return
		}
		out, err = j.run(j.ctx)
	}()
	p.log.Debug("worker: job finished", "worker", id, "elapsed", time.Since(start), "error", err)
	if j.cb != nil {
		j.cb(out, err)
	}
}

// Submit enqueues a job if the single-slot queue is free. Returns false if
// dropped.
func (p *Pool) Submit(ctx context.Context, run Job, cb ResultCallback) bool {
	select {
	case p.jobs <- job{ctx: ctx, run: run, cb: cb}:
		return true
	default:
		return false
	}
}

// Close stops the pool after draining current work. It is safe to call
// more than once.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.jobs) })
	p.wg.Wait()
}

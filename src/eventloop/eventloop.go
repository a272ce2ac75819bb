// Package eventloop is the resident app's single-threaded coordinator:
// hotkey and tray triggers are posted to it and runs execute on a worker.
package eventloop

import (
	"context"
	"log/slog"

	"region-ocr/src/apperr"
	"region-ocr/src/pipeline"
	"region-ocr/src/sink"
	"region-ocr/src/worker"
)

// Runner performs one run. *pipeline.Controller satisfies it.
type Runner interface {
	Run(ctx context.Context) (*sink.Output, error)
	Busy() bool
}

type Notifier interface {
	Error(err error) bool
}

type Options struct {
	Runner   Runner
	Pool     *worker.Pool
	Notifier Notifier
	Logger   *slog.Logger
	// OnResult, if set, is called on the loop goroutine after each run.
	OnResult func(out *sink.Output, err error)
}

type result struct {
	out *sink.Output
	err error
}

// Reply receives the outcome of a triggered run.
type Reply func(out *sink.Output, err error)

// Loop serialises triggers. Only one run is in flight at a time.
type Loop struct {
	opts     Options
	log      *slog.Logger
	triggers chan Reply
	results  chan result
	inFlight bool
	pending  Reply
}

func New(opts Options) *Loop {
	if opts.Pool == nil {
		opts.Pool = worker.New(1, opts.Logger)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		opts:     opts,
		log:      log,
		triggers: make(chan Reply, 4),
		results:  make(chan result, 1),
	}
}

// Trigger requests a run. It never blocks; triggers beyond the small
// buffer are dropped.
func (l *Loop) Trigger() { l.TriggerWith(nil) }

// TriggerWith requests a run and reports its outcome to reply, which may
// be nil. A rejected trigger is answered with apperr.ErrBusy.
func (l *Loop) TriggerWith(reply Reply) {
	select {
	case l.triggers <- reply:
	default:
		l.log.Debug("trigger dropped")
		if reply != nil {
			reply(nil, apperr.ErrBusy)
		}
	}
}

// Run processes triggers until ctx is cancelled, then waits for the
// in-flight run to finish.
func (l *Loop) Run(ctx context.Context) error {
	defer l.opts.Pool.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reply := <-l.triggers:
			l.handleTrigger(ctx, reply)
		case res := <-l.results:
			l.handleResult(res)
		}
	}
}

func (l *Loop) handleTrigger(ctx context.Context, reply Reply) {
	if l.inFlight || l.opts.Runner.Busy() {
		l.log.Info("trigger ignored: busy")
		l.notify(apperr.ErrBusy)
		if reply != nil {
			reply(nil, apperr.ErrBusy)
		}
		return
	}
	submitted := l.opts.Pool.Submit(ctx, l.opts.Runner.Run, func(out *sink.Output, err error) {
		l.results <- result{out: out, err: err}
	})
	if !submitted {
		l.log.Info("trigger ignored: worker queue full")
		l.notify(apperr.ErrBusy)
		if reply != nil {
			reply(nil, apperr.ErrBusy)
		}
		return
	}
	l.inFlight = true
	l.pending = reply
}

func (l *Loop) handleResult(res result) {
	l.inFlight = false
	switch {
	case res.err == nil:
		l.log.Debug("run finished", "rows", len(res.out.Rows))
	case apperr.Informational(res.err):
		l.log.Debug("run ended", "reason", apperr.CodeOf(res.err))
	default:
		// The controller has already logged and notified.
		l.log.Debug("run failed", "error", res.err)
	}
	if l.pending != nil {
		l.pending(res.out, res.err)
		l.pending = nil
	}
	if l.opts.OnResult != nil {
		l.opts.OnResult(res.out, res.err)
	}
}

func (l *Loop) notify(err error) {
	if l.opts.Notifier != nil {
		l.opts.Notifier.Error(err)
	}
}

var _ Runner = (*pipeline.Controller)(nil)

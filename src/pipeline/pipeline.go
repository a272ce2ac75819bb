// Package pipeline runs one selection through capture, coordinate mapping,
// enhancement and transcription, and reports the outcome.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"region-ocr/src/apperr"
	"region-ocr/src/capture"
	"region-ocr/src/coords"
	"region-ocr/src/enhance"
	"region-ocr/src/history"
	"region-ocr/src/overlay"
	"region-ocr/src/region"
	"region-ocr/src/sink"
	"region-ocr/src/transcribe"
)

// ErrBusy is returned when a run is requested while another is active.
var ErrBusy = apperr.ErrBusy

type Capturer interface {
	Capture(ctx context.Context, sel region.Rect, kind capture.Kind) (capture.Source, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, png []byte, mode transcribe.Mode, language string) (*transcribe.Result, error)
	Upload(ctx context.Context, filename string, data []byte, mode transcribe.Mode) (*transcribe.Result, error)
}

type Recorder interface {
	Append(ctx context.Context, out *sink.Output) (history.Entry, error)
}

type Notifier interface {
	Error(err error) bool
}

type Options struct {
	Selector    overlay.Selector
	Capturer    Capturer
	Enhancer    *enhance.Enhancer
	Transcriber Transcriber

	// Optional collaborators.
	Target   sink.Target
	History  Recorder
	Notifier Notifier
	Logger   *slog.Logger

	Kind     capture.Kind
	Mode     enhance.Mode
	Language string
	// Deadline bounds the transcription call. Selection is not timed.
	Deadline time.Duration
	MinSize  float64
}

const defaultDeadline = 20 * time.Second

// Controller owns the run state machine. At most one run is active.
type Controller struct {
	opts Options
	log  *slog.Logger

	mu        sync.Mutex
	state     State
	observers []Observer
}

func New(opts Options) (*Controller, error) {
	if opts.Selector == nil {
		return nil, fmt.Errorf("pipeline: Selector is required")
	}
	if opts.Capturer == nil {
		return nil, fmt.Errorf("pipeline: Capturer is required")
	}
	if opts.Transcriber == nil {
		return nil, fmt.Errorf("pipeline: Transcriber is required")
	}
	if opts.Enhancer == nil {
		opts.Enhancer = enhance.New()
	}
	if opts.Mode == "" {
		opts.Mode = enhance.ModeGrayscaleThreshold
	}
	if opts.Deadline <= 0 {
		opts.Deadline = defaultDeadline
	}
	if opts.MinSize <= 0 {
		opts.MinSize = region.DefaultMinSize
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{opts: opts, log: log}, nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Observe registers fn for state transitions.
func (c *Controller) Observe(fn Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Busy reports whether a run is in progress.
func (c *Controller) Busy() bool { return c.State() != Idle }

func (c *Controller) transition(to State) error {
	c.mu.Lock()
	from := c.state
	if to != Idle && next[from] != to {
		c.mu.Unlock()
		if from != Idle && to == Selecting {
			return ErrBusy
		}
		return fmt.Errorf("pipeline: illegal transition %s -> %s", from, to)
	}
	if from == Idle && to == Idle {
		c.mu.Unlock()
		return nil
	}
	c.state = to
	obs := append([]Observer(nil), c.observers...)
	c.mu.Unlock()

	for _, fn := range obs {
		fn(from, to)
	}
	return nil
}

// Run performs one full select-capture-enhance-transcribe cycle. A call
// while another run is active returns ErrBusy and starts nothing.
func (c *Controller) Run(ctx context.Context) (*sink.Output, error) {
	if err := c.transition(Selecting); err != nil {
		c.log.Info("run rejected", "state", c.State().String(), "error", err)
		return nil, err
	}
	defer c.transition(Idle)

	out, err := c.run(ctx)
	return c.finish(ctx, out, err)
}

func (c *Controller) run(ctx context.Context) (*sink.Output, error) {
	sel, cancelled, err := c.opts.Selector.Select(ctx)
	if err != nil {
		return nil, fmt.Errorf("select region: %w", err)
	}
	if cancelled || !sel.AtLeast(c.opts.MinSize) {
		return nil, apperr.ErrSelectionCancelled
	}
	c.log.Debug("region selected", "rect", sel.String())

	if err := c.transition(Capturing); err != nil {
		return nil, err
	}
	src, err := c.opts.Capturer.Capture(ctx, sel, c.opts.Kind)
	if err != nil {
		return nil, err
	}

	if err := c.transition(Enhancing); err != nil {
		return nil, err
	}
	mapped, err := coords.ToSource(sel, src)
	if err != nil {
		return nil, err
	}
	px := coords.Pixels(mapped)
	c.log.Debug("region mapped", "source", src.Kind().String(), "pixels", px.String())

	png, err := c.opts.Enhancer.Process(src.Raster(), px, c.opts.Mode)
	if err != nil {
		return nil, err
	}

	if err := c.transition(Transcribing); err != nil {
		return nil, err
	}
	jobCtx, cancel := context.WithTimeout(ctx, c.opts.Deadline)
	defer cancel()
	wire := WireMode(src.Kind(), c.opts.Mode)
	res, err := c.opts.Transcriber.Transcribe(jobCtx, png, wire, c.opts.Language)
	if err != nil {
		return nil, err
	}
	return c.output(res, string(wire)), nil
}

// TranscribeFile enhances and transcribes a whole image file, or uploads
// it untouched when upload is true. It shares the busy guard with Run.
func (c *Controller) TranscribeFile(ctx context.Context, name string, data []byte, upload bool) (*sink.Output, error) {
	if err := c.transition(Selecting); err != nil {
		return nil, err
	}
	defer c.transition(Idle)

	out, err := c.transcribeFile(ctx, name, data, upload)
	return c.finish(ctx, out, err)
}

func (c *Controller) transcribeFile(ctx context.Context, name string, data []byte, upload bool) (*sink.Output, error) {
	if err := c.transition(Capturing); err != nil {
		return nil, err
	}
	if upload {
		if err := c.advance(Enhancing, Transcribing); err != nil {
			return nil, err
		}
		jobCtx, cancel := context.WithTimeout(ctx, c.opts.Deadline)
		defer cancel()
		res, err := c.opts.Transcriber.Upload(jobCtx, name, data, transcribe.ModeImage)
		if err != nil {
			return nil, err
		}
		return c.output(res, string(transcribe.ModeImage)), nil
	}

	img, err := enhance.Decode(data)
	if err != nil {
		return nil, err
	}
	src := capture.FromImage(img)

	if err := c.transition(Enhancing); err != nil {
		return nil, err
	}
	b := img.Bounds()
	png, err := c.opts.Enhancer.Process(src.Raster(), image.Rect(0, 0, b.Dx(), b.Dy()), c.opts.Mode)
	if err != nil {
		return nil, err
	}

	if err := c.transition(Transcribing); err != nil {
		return nil, err
	}
	jobCtx, cancel := context.WithTimeout(ctx, c.opts.Deadline)
	defer cancel()
	wire := transcribe.ModeImage
	if c.opts.Mode == enhance.ModeRaw {
		wire = transcribe.ModeRaw
	}
	res, err := c.opts.Transcriber.Transcribe(jobCtx, png, wire, c.opts.Language)
	if err != nil {
		return nil, err
	}
	return c.output(res, string(wire)), nil
}

func (c *Controller) advance(states ...State) error {
	for _, s := range states {
		if err := c.transition(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) output(res *transcribe.Result, source string) *sink.Output {
	return &sink.Output{
		Time:           time.Now(),
		Source:         source,
		Mode:           string(c.opts.Mode),
		Rows:           res.Rows,
		ProcessingTime: res.ProcessingTime,
	}
}

// finish delivers a run's outcome. Every failure is logged and notified
// here; stages only return errors.
func (c *Controller) finish(ctx context.Context, out *sink.Output, err error) (*sink.Output, error) {
	if err != nil {
		switch {
		case apperr.IsCode(err, apperr.SelectionCancelled):
			c.log.Info("selection cancelled")
		default:
			c.log.Error("run failed", "code", apperr.CodeOf(err), "status", apperr.StatusCode(err), "error", err)
			c.notify(err)
		}
		if c.opts.Target != nil {
			if terr := c.opts.Target.OnFailure(err); terr != nil {
				c.log.Warn("failure delivery failed", "error", terr)
			}
		}
		return nil, err
	}

	if c.opts.History != nil {
		entry, herr := c.opts.History.Append(ctx, out)
		if herr != nil {
			c.log.Warn("history append failed", "error", herr)
		} else {
			out.ID = entry.ID
		}
	}

	if (&transcribe.Result{Rows: out.Rows}).Empty() {
		c.log.Info("no text detected", "source", out.Source)
		c.notify(apperr.ErrEmptyResult)
	} else {
		c.log.Info("transcription complete", "rows", len(out.Rows), "source", out.Source, "elapsed", out.ProcessingTime)
	}

	if c.opts.Target != nil {
		if terr := c.opts.Target.OnSuccess(out); terr != nil {
			c.log.Warn("result delivery failed", "error", terr)
			c.notify(fmt.Errorf("result not copied: %w", terr))
		}
	}
	return out, nil
}

func (c *Controller) notify(err error) {
	if c.opts.Notifier != nil {
		c.opts.Notifier.Error(err)
	}
}

// WireMode is the mode reported to the backend for a capture.
func WireMode(kind capture.Kind, m enhance.Mode) transcribe.Mode {
	switch {
	case m == enhance.ModeRaw:
		return transcribe.ModeRaw
	case kind == capture.KindVideo:
		return transcribe.ModeVideo
	default:
		return transcribe.ModeWeb
	}
}

package region

import (
	"errors"
	"sync"
)

// DefaultMinSize rejects accidental clicks: a release with either side
// shorter than this cancels the selection.
const DefaultMinSize = 10

var ErrSelectionActive = errors.New("region: selection already in progress")

// Selection is the handle for one drag gesture. It is owned by the
// Tracker that created it.
type Selection struct {
	start    Point
	current  Point
	space    Space
	closed   bool
	teardown []func()
}

// Start returns the point where the gesture began.
func (s *Selection) Start() Point { return s.start }

// OnTeardown registers fn to run exactly once when the selection ends or
// is cancelled. Overlays use it to remove listeners.
func (s *Selection) OnTeardown(fn func()) {
	s.teardown = append(s.teardown, fn)
}

// Tracker turns pointer down/move/up events into a normalised Rect.
// At most one selection is active at a time.
type Tracker struct {
	mu      sync.Mutex
	minSize float64
	space   Space
	active  *Selection
}

// NewTracker creates a tracker reporting rectangles in space. minSize <= 0
// selects DefaultMinSize.
func NewTracker(minSize float64, space Space) *Tracker {
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	return &Tracker{minSize: minSize, space: space}
}

// MinSize returns the release threshold in the tracker's space.
func (t *Tracker) MinSize() float64 { return t.minSize }

// Active reports whether a gesture is in progress.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active != nil
}

// Begin starts a gesture at p.
func (t *Tracker) Begin(p Point) (*Selection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active != nil {
		return nil, ErrSelectionActive
	}
	sel := &Selection{start: p, current: p, space: t.space}
	t.active = sel
	return sel, nil
}

// Update moves the free corner of sel to p and returns the current
// rectangle. Updates to a finished selection return its last rectangle.
func (t *Tracker) Update(p Point, sel *Selection) Rect {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sel == nil {
		return Rect{Space: t.space}
	}
	if !sel.closed {
		sel.current = p
	}
	return FromPoints(sel.start, sel.current, sel.space)
}

// End finishes the gesture at p. ok is false when the selection was
// already closed or is smaller than the minimum size in either dimension.
func (t *Tracker) End(p Point, sel *Selection) (Rect, bool) {
	t.mu.Lock()
	if sel == nil || sel.closed {
		t.mu.Unlock()
		return Rect{Space: t.space}, false
	}
	sel.current = p
	rect := FromPoints(sel.start, sel.current, sel.space)
	fns := t.closeLocked(sel)
	t.mu.Unlock()

	runAll(fns)
	if !rect.AtLeast(t.minSize) {
		return rect, false
	}
	return rect, true
}

// Cancel aborts sel. Cancelling a closed or nil selection does nothing.
func (t *Tracker) Cancel(sel *Selection) {
	t.mu.Lock()
	if sel == nil || sel.closed {
		t.mu.Unlock()
		return
	}
	fns := t.closeLocked(sel)
	t.mu.Unlock()
	runAll(fns)
}

// CancelActive aborts whatever gesture is in progress, if any.
func (t *Tracker) CancelActive() {
	t.mu.Lock()
	sel := t.active
	t.mu.Unlock()
	t.Cancel(sel)
}

func (t *Tracker) closeLocked(sel *Selection) []func() {
	sel.closed = true
	if t.active == sel {
		t.active = nil
	}
	fns := sel.teardown
	sel.teardown = nil
	return fns
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

// Package overlay turns user gestures into selection rectangles.
package overlay

import (
	"context"
	"errors"
	"log/slog"

	gohook "github.com/robotn/gohook"

	"region-ocr/src/hotkey"
	"region-ocr/src/region"
)

// Selector is a blocking region-selection API owned by the event loop.
// It returns (rect, cancelled, error). When cancelled is true the rect is
// undefined and err is nil.
type Selector interface {
	Select(ctx context.Context) (region.Rect, bool, error)
}

// FixedSelector returns a predetermined rectangle, still subject to the
// minimum-size rule.
type FixedSelector struct {
	Rect    region.Rect
	MinSize float64
}

func (f FixedSelector) Select(ctx context.Context) (region.Rect, bool, error) {
	if err := ctx.Err(); err != nil {
		return region.Rect{}, false, err
	}
	minSize := f.MinSize
	if minSize <= 0 {
		minSize = region.DefaultMinSize
	}
	if !f.Rect.AtLeast(minSize) {
		return region.Rect{}, true, nil
	}
	return f.Rect, false, nil
}

// EventSource supplies global input events.
type EventSource interface {
	Subscribe() (<-chan gohook.Event, func())
}

// HookSelector records a press-drag-release gesture from the global input
// hook in screen coordinates. Escape cancels.
type HookSelector struct {
	Events  EventSource
	Tracker *region.Tracker
	Logger  *slog.Logger
}

func NewHookSelector(events EventSource, minSize float64, logger *slog.Logger) *HookSelector {
	if logger == nil {
		logger = slog.Default()
	}
	return &HookSelector{
		Events:  events,
		Tracker: region.NewTracker(minSize, region.SpaceViewport),
		Logger:  logger,
	}
}

// leftButton is libuiohook's MOUSE_BUTTON1.
const leftButton = 1

var errStreamClosed = errors.New("overlay: input event stream closed")

func (h *HookSelector) Select(ctx context.Context) (region.Rect, bool, error) {
	events, unsubscribe := h.Events.Subscribe()
	defer unsubscribe()

	var sel *region.Selection
	defer func() {
		if sel != nil {
			h.Tracker.Cancel(sel)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return region.Rect{}, false, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return region.Rect{}, false, errStreamClosed
			}
			if hotkey.IsEscape(ev) {
				h.Logger.Debug("selection cancelled by Escape")
				return region.Rect{}, true, nil
			}
			p := region.Point{X: float64(ev.X), Y: float64(ev.Y)}
			switch ev.Kind {
			case gohook.MouseDown:
				if sel != nil || ev.Button != leftButton {
					continue
				}
				s, err := h.Tracker.Begin(p)
				if err != nil {
					return region.Rect{}, false, err
				}
				sel = s
			case gohook.MouseDrag, gohook.MouseMove:
				if sel != nil {
					h.Tracker.Update(p, sel)
				}
			case gohook.MouseHold, gohook.MouseUp:
				// MouseHold is the release. MouseUp is a click without a
				// drag and only ends a gesture when no release was seen.
				if sel == nil || ev.Button != leftButton {
					continue
				}
				r, ok := h.Tracker.End(p, sel)
				sel = nil
				if !ok {
					h.Logger.Debug("selection below minimum size", "min", h.Tracker.MinSize())
					return region.Rect{}, true, nil
				}
				return r, false, nil
			}
		}
	}
}

package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod/lib/proto"

	"region-ocr/src/region"
)

const selectBinding = "__regionocr_select"

// The overlay covers the viewport, forwards pointer events through the
// DevTools binding and removes itself on release or Escape.
const installOverlayJS = `() => {
	const send = (type, e) => window.__regionocr_select(JSON.stringify({type, x: e ? e.clientX : 0, y: e ? e.clientY : 0}));
	const old = document.getElementById('__regionocr_overlay');
	if (old) old.remove();
	const o = document.createElement('div');
	o.id = '__regionocr_overlay';
	o.style.cssText = 'position:fixed;inset:0;z-index:2147483647;cursor:crosshair;background:rgba(0,0,0,0.05)';
	const box = document.createElement('div');
	box.style.cssText = 'position:fixed;border:2px dashed #0078d4;pointer-events:none;display:none';
	o.appendChild(box);
	let sx = 0, sy = 0, down = false;
	o.addEventListener('mousedown', e => { down = true; sx = e.clientX; sy = e.clientY; box.style.display = 'block'; send('down', e); e.preventDefault(); });
	o.addEventListener('mousemove', e => {
		if (!down) return;
		box.style.left = Math.min(sx, e.clientX) + 'px';
		box.style.top = Math.min(sy, e.clientY) + 'px';
		box.style.width = Math.abs(e.clientX - sx) + 'px';
		box.style.height = Math.abs(e.clientY - sy) + 'px';
		send('move', e);
	});
	o.addEventListener('mouseup', e => { down = false; send('up', e); });
	const onKey = e => { if (e.key === 'Escape') { send('cancel'); } };
	document.addEventListener('keydown', onKey, true);
	o.__cleanup = () => document.removeEventListener('keydown', onKey, true);
	document.body.appendChild(o);
}`

const removeOverlayJS = `() => {
	const o = document.getElementById('__regionocr_overlay');
	if (o) { if (o.__cleanup) o.__cleanup(); o.remove(); }
}`

type pointerEvent struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Select installs a transparent overlay in the page and returns the
// rectangle the user drags, in viewport CSS pixels.
func (p *Page) Select(ctx context.Context) (region.Rect, bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := (proto.RuntimeAddBinding{Name: selectBinding}).Call(p.page); err != nil {
		p.log.Warn("browser: addBinding failed (may already exist)", "error", err)
	}

	events := make(chan pointerEvent, 64)
	wait := p.page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != selectBinding {
			return
		}
		var ev pointerEvent
		if err := json.Unmarshal([]byte(e.Payload), &ev); err != nil {
			p.log.Warn("browser: bad selection payload", "error", err)
			return
		}
		deliver(ctx, events, ev)
	})
	go wait()

	if _, err := p.page.Context(ctx).Eval(installOverlayJS); err != nil {
		return region.Rect{}, false, fmt.Errorf("browser: install overlay: %w", err)
	}
	defer func() {
		if _, err := p.page.Eval(removeOverlayJS); err != nil {
			p.log.Debug("browser: remove overlay", "error", err)
		}
	}()

	return feed(ctx, p.tracker, events)
}

// deliver queues ev for feed. Moves are dropped when the queue is full;
// down, up and cancel wait for room until ctx is done.
func deliver(ctx context.Context, events chan<- pointerEvent, ev pointerEvent) bool {
	if ev.Type == "move" {
		select {
		case events <- ev:
			return true
		default:
			return false
		}
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// feed drives the tracker from pointer events until release or cancel.
func feed(ctx context.Context, t *region.Tracker, events <-chan pointerEvent) (region.Rect, bool, error) {
	var sel *region.Selection
	defer func() { t.Cancel(sel) }()

	for {
		select {
		case <-ctx.Done():
			return region.Rect{}, false, ctx.Err()
		case ev := <-events:
			p := region.Point{X: ev.X, Y: ev.Y}
			switch ev.Type {
			case "down":
				if sel != nil {
					continue
				}
				s, err := t.Begin(p)
				if err != nil {
					return region.Rect{}, false, err
				}
				sel = s
			case "move":
				t.Update(p, sel)
			case "up":
				if sel == nil {
					continue
				}
				r, ok := t.End(p, sel)
				if !ok {
					return region.Rect{}, true, nil
				}
				return r, false, nil
			case "cancel":
				return region.Rect{}, true, nil
			}
		}
	}
}

package hotkey

import (
	"sync"

	gohook "github.com/robotn/gohook"
)

// Hub starts the process-wide gohook stream once and fans its events out
// to subscribers. Slow subscribers miss events rather than stall the hook.
type Hub struct {
	mu     sync.Mutex
	start  func() chan gohook.Event
	stop   func()
	src    chan gohook.Event
	subs   map[int]chan gohook.Event
	nextID int
}

// NewHub returns a Hub backed by gohook.
func NewHub() *Hub {
	return newHub(gohook.Start, gohook.End)
}

func newHub(start func() chan gohook.Event, stop func()) *Hub {
	return &Hub{start: start, stop: stop, subs: make(map[int]chan gohook.Event)}
}

// Subscribe returns a buffered event channel and a function that ends the
// subscription. The hook starts on the first subscription.
func (h *Hub) Subscribe() (<-chan gohook.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.src == nil {
		h.src = h.start()
		go h.pump(h.src)
	}
	id := h.nextID
	h.nextID++
	ch := make(chan gohook.Event, 64)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

func (h *Hub) pump(src chan gohook.Event) {
	for ev := range src {
		h.mu.Lock()
		for _, ch := range h.subs {
			select {
			case ch <- ev:
			default:
			}
		}
		h.mu.Unlock()
	}
	h.mu.Lock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
	h.src = nil
	h.mu.Unlock()
}

// Close stops the hook. Subscribers see their channels closed.
func (h *Hub) Close() {
	h.mu.Lock()
	running := h.src != nil
	h.mu.Unlock()
	if running {
		h.stop()
	}
}

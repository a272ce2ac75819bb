// Package hotkey owns the global input hook and detects the configured
// key combination.
package hotkey

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

// Rawcodes are Windows virtual-key codes as reported by gohook.
var namedKeys = map[string][]uint16{
	"ctrl":      {162, 163}, // VK_LCONTROL, VK_RCONTROL
	"alt":       {164, 165}, // VK_LMENU, VK_RMENU
	"shift":     {160, 161}, // VK_LSHIFT, VK_RSHIFT
	"cmd":       {91, 92},   // VK_LWIN, VK_RWIN
	"space":     {32},
	"enter":     {13},
	"esc":       {27},
	"tab":       {9},
	"backspace": {8},
	"delete":    {46},
	"insert":    {45},
	"home":      {36},
	"end":       {35},
	"pageup":    {33},
	"pagedown":  {34},
	"left":      {37},
	"up":        {38},
	"right":     {39},
	"down":      {40},
}

var aliases = map[string]string{
	"control": "ctrl",
	"win":     "cmd",
	"super":   "cmd",
	"meta":    "cmd",
	"escape":  "esc",
	"return":  "enter",
	"del":     "delete",
	"ins":     "insert",
	"pgup":    "pageup",
	"pgdn":    "pagedown",
}

// EscapeRawcode is VK_ESCAPE.
const EscapeRawcode = 27

// escapeKeycode is libuiohook's VC_ESCAPE, used where rawcodes differ.
const escapeKeycode = 1

// IsEscape reports whether ev is an Escape key press.
func IsEscape(ev gohook.Event) bool {
	if ev.Kind != gohook.KeyDown && ev.Kind != gohook.KeyHold {
		return false
	}
	return ev.Rawcode == EscapeRawcode || ev.Keycode == escapeKeycode
}

func normalizeKey(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if a, ok := aliases[name]; ok {
		return a
	}
	return name
}

// rawcodes maps a normalised key name to its rawcodes, or nil.
func rawcodes(name string) []uint16 {
	if codes, ok := namedKeys[name]; ok {
		return codes
	}
	if len(name) == 1 {
		c := name[0]
		switch {
		case c >= 'a' && c <= 'z':
			return []uint16{uint16(c-'a') + 'A'}
		case c >= '0' && c <= '9':
			return []uint16{uint16(c)}
		}
	}
	var n int
	if _, err := fmt.Sscanf(name, "f%d", &n); err == nil && n >= 1 && n <= 24 && name == fmt.Sprintf("f%d", n) {
		return []uint16{uint16(111 + n)} // VK_F1 = 112
	}
	return nil
}

type key struct {
	name  string
	codes []uint16
}

// Combo is a parsed key combination such as "Ctrl+Alt+Q".
type Combo struct {
	spec string
	keys []key
}

// ParseCombo parses a '+'-separated key combination. Every key must be
// known.
func ParseCombo(spec string) (Combo, error) {
	c := Combo{spec: spec}
	for _, part := range strings.Split(spec, "+") {
		name := normalizeKey(part)
		if name == "" {
			return Combo{}, fmt.Errorf("hotkey: empty key in %q", spec)
		}
		codes := rawcodes(name)
		if codes == nil {
			return Combo{}, fmt.Errorf("hotkey: unknown key %q in %q", part, spec)
		}
		c.keys = append(c.keys, key{name: name, codes: codes})
	}
	return c, nil
}

func (c Combo) String() string { return c.spec }

// Keys returns the normalised key names.
func (c Combo) Keys() []string {
	out := make([]string, len(c.keys))
	for i, k := range c.keys {
		out[i] = k.name
	}
	return out
}

// Matcher tracks which keys of a combination are held.
type Matcher struct {
	mu      sync.Mutex
	combo   Combo
	pressed []bool
}

func NewMatcher(c Combo) *Matcher {
	return &Matcher{combo: c, pressed: make([]bool, len(c.keys))}
}

// Feed consumes one event and reports whether it completed the
// combination. The held state resets after a match.
func (m *Matcher) Feed(ev gohook.Event) bool {
	down := ev.Kind == gohook.KeyDown || ev.Kind == gohook.KeyHold
	if !down && ev.Kind != gohook.KeyUp {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, k := range m.combo.keys {
		for _, code := range k.codes {
			if ev.Rawcode == code {
				m.pressed[i] = down
			}
		}
	}
	if !down || len(m.pressed) == 0 {
		return false
	}
	for _, p := range m.pressed {
		if !p {
			return false
		}
	}
	clear(m.pressed)
	return true
}

// Listen calls fn each time the combination is pressed until ctx is done.
// fn runs on the hook goroutine and must not block.
func Listen(ctx context.Context, hub *Hub, c Combo, logger *slog.Logger, fn func()) {
	events, unsubscribe := hub.Subscribe()
	m := NewMatcher(c)
	logger.Info("hotkey listener started", "hotkey", c.String(), "keys", c.Keys())
	go func() {
		defer unsubscribe()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in hotkey listener", "panic", r)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					logger.Warn("hook event stream closed")
					return
				}
				if m.Feed(ev) {
					logger.Info("hotkey pressed", "hotkey", c.String())
					fn()
				}
			}
		}
	}()
}

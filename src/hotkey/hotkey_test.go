package hotkey

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	gohook "github.com/robotn/gohook"
)

func TestRawcodes(t *testing.T) {
	tests := []struct {
		keyName  string
		expected []uint16
	}{
		{"ctrl", []uint16{162, 163}},
		{"alt", []uint16{164, 165}},
		{"shift", []uint16{160, 161}},
		{"cmd", []uint16{91, 92}},
		{"q", []uint16{81}},
		{"a", []uint16{65}},
		{"z", []uint16{90}},
		{"0", []uint16{48}},
		{"9", []uint16{57}},
		{"f1", []uint16{112}},
		{"f12", []uint16{123}},
		{"f24", []uint16{135}},
		{"space", []uint16{32}},
		{"esc", []uint16{27}},
		{"f25", nil},
		{"f01", nil},
		{"unknown", nil},
	}
	for _, tt := range tests {
		t.Run(tt.keyName, func(t *testing.T) {
			got := rawcodes(tt.keyName)
			if len(got) != len(tt.expected) {
				t.Fatalf("rawcodes(%q) = %v, expected %v", tt.keyName, got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("rawcodes(%q)[%d] = %d, expected %d", tt.keyName, i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestParseCombo(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"Ctrl+Alt+Q", []string{"ctrl", "alt", "q"}},
		{"Ctrl+Win+E", []string{"ctrl", "cmd", "e"}},
		{"Super+Alt+T", []string{"cmd", "alt", "t"}},
		{"Alt+F4", []string{"alt", "f4"}},
		{" ctrl + shift + escape ", []string{"ctrl", "shift", "esc"}},
	}
	for _, tt := range tests {
		c, err := ParseCombo(tt.input)
		if err != nil {
			t.Errorf("ParseCombo(%q) failed: %v", tt.input, err)
			continue
		}
		keys := c.Keys()
		if len(keys) != len(tt.expected) {
			t.Errorf("ParseCombo(%q) = %v, expected %v", tt.input, keys, tt.expected)
			continue
		}
		for i := range keys {
			if keys[i] != tt.expected[i] {
				t.Errorf("ParseCombo(%q)[%d] = %q, expected %q", tt.input, i, keys[i], tt.expected[i])
			}
		}
	}
	for _, bad := range []string{"", "Ctrl+", "Ctrl+Hyper"} {
		if _, err := ParseCombo(bad); err == nil {
			t.Errorf("ParseCombo(%q) should fail", bad)
		}
	}
}

func press(code uint16) gohook.Event   { return gohook.Event{Kind: gohook.KeyDown, Rawcode: code} }
func release(code uint16) gohook.Event { return gohook.Event{Kind: gohook.KeyUp, Rawcode: code} }

func TestMatcher(t *testing.T) {
	c, _ := ParseCombo("Ctrl+Alt+Q")
	m := NewMatcher(c)

	if m.Feed(press(162)) || m.Feed(press(164)) {
		t.Fatal("partial combination must not fire")
	}
	if !m.Feed(press(81)) {
		t.Fatal("full combination should fire")
	}
	if m.Feed(press(81)) {
		t.Error("state should reset after a match")
	}

	m = NewMatcher(c)
	m.Feed(press(163))
	m.Feed(press(165))
	m.Feed(release(165))
	if m.Feed(press(81)) {
		t.Error("released modifier must not count")
	}
	if m.Feed(gohook.Event{Kind: gohook.MouseDown}) {
		t.Error("mouse events must be ignored")
	}
}

func TestIsEscape(t *testing.T) {
	if !IsEscape(press(EscapeRawcode)) {
		t.Error("VK_ESCAPE press should be Escape")
	}
	if !IsEscape(gohook.Event{Kind: gohook.KeyHold, Keycode: escapeKeycode}) {
		t.Error("VC_ESCAPE keycode should be Escape")
	}
	if IsEscape(release(EscapeRawcode)) {
		t.Error("release is not a press")
	}
}

func TestHubFanOutAndListen(t *testing.T) {
	src := make(chan gohook.Event)
	stopped := make(chan struct{})
	h := newHub(func() chan gohook.Event { return src }, func() { close(src); close(stopped) })

	c, _ := ParseCombo("Alt+Q")
	var fired atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	Listen(ctx, h, c, slog.New(slog.DiscardHandler), func() { fired.Add(1) })

	other, unsubscribe := h.Subscribe()
	defer unsubscribe()

	src <- press(164)
	src <- press(81)

	select {
	case ev := <-other:
		if ev.Rawcode != 164 {
			t.Errorf("second subscriber got rawcode %d", ev.Rawcode)
		}
	case <-time.After(time.Second):
		t.Fatal("second subscriber received nothing")
	}

	deadline := time.Now().Add(time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fired.Load() != 1 {
		t.Errorf("hotkey fired %d times, want 1", fired.Load())
	}

	h.Close()
	<-stopped
	if _, ok := <-other; ok {
		// drain the buffered press(81) before observing the close
		if _, ok := <-other; ok {
			t.Error("subscriber channel should close when the hook stops")
		}
	}
}

package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/png"
	"log/slog"
	"os"
	"testing"
	"time"

	"region-ocr/src/capture"
	"region-ocr/src/capture/capturetest"
	"region-ocr/src/coords"
	"region-ocr/src/region"
)

func TestDecodeDataURL(t *testing.T) {
	payload := []byte("hello")
	enc := base64.StdEncoding.EncodeToString(payload)
	for _, in := range []string{"data:image/png;base64," + enc, enc, "  " + enc + "\n"} {
		got, err := DecodeDataURL(in)
		if err != nil || string(got) != "hello" {
			t.Errorf("DecodeDataURL(%q) = %q, %v", in, got, err)
		}
	}
	for _, bad := range []string{"data:text/plain,hello", "data:image/png;base64", "!!!"} {
		if _, err := DecodeDataURL(bad); err == nil {
			t.Errorf("DecodeDataURL(%q) should fail", bad)
		}
	}
}

func TestFeedSelection(t *testing.T) {
	tr := region.NewTracker(10, region.SpaceViewport)
	events := make(chan pointerEvent, 4)
	events <- pointerEvent{Type: "down", X: 300, Y: 200}
	events <- pointerEvent{Type: "move", X: 150, Y: 150}
	events <- pointerEvent{Type: "up", X: 100, Y: 100}

	r, cancelled, err := feed(context.Background(), tr, events)
	if err != nil || cancelled {
		t.Fatalf("feed = %v %v %v", r, cancelled, err)
	}
	if r.X != 100 || r.Y != 100 || r.Width != 200 || r.Height != 100 {
		t.Errorf("rect = %v", r)
	}
}

func TestFeedCancel(t *testing.T) {
	tr := region.NewTracker(10, region.SpaceViewport)
	events := make(chan pointerEvent, 4)
	events <- pointerEvent{Type: "down", X: 1, Y: 1}
	events <- pointerEvent{Type: "cancel"}
	_, cancelled, err := feed(context.Background(), tr, events)
	if err != nil || !cancelled {
		t.Errorf("cancelled=%v err=%v", cancelled, err)
	}
	if tr.Active() {
		t.Error("cancel must tear down the selection")
	}
}

func TestFeedContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, _, err := feed(ctx, region.NewTracker(10, region.SpaceViewport), make(chan pointerEvent)); err == nil {
		t.Error("expected context error")
	}
}

func TestDeliverKeepsReleaseWhenQueueIsFull(t *testing.T) {
	events := make(chan pointerEvent, 2)
	if !deliver(context.Background(), events, pointerEvent{Type: "down", X: 300, Y: 200}) {
		t.Fatal("down should be queued")
	}
	if !deliver(context.Background(), events, pointerEvent{Type: "move", X: 200, Y: 150}) {
		t.Fatal("move should be queued while there is room")
	}
	if deliver(context.Background(), events, pointerEvent{Type: "move", X: 150, Y: 120}) {
		t.Error("move should be dropped when the queue is full")
	}

	released := make(chan bool, 1)
	go func() {
		released <- deliver(context.Background(), events, pointerEvent{Type: "up", X: 100, Y: 100})
	}()

	r, cancelled, err := feed(context.Background(), region.NewTracker(10, region.SpaceViewport), events)
	if err != nil || cancelled {
		t.Fatalf("feed = %v %v %v", r, cancelled, err)
	}
	if r.X != 100 || r.Y != 100 || r.Width != 200 || r.Height != 100 {
		t.Errorf("rect = %v", r)
	}
	if !<-released {
		t.Error("up must be delivered, not dropped")
	}
}

func TestDeliverGivesUpOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if deliver(ctx, make(chan pointerEvent), pointerEvent{Type: "cancel"}) {
		t.Error("deliver should give up once the context is done")
	}
}

// TestPageCapture drives a real Chrome when one is available.
func TestPageCapture(t *testing.T) {
	if os.Getenv("REGION_OCR_BROWSER_TESTS") == "" {
		t.Skip("set REGION_OCR_BROWSER_TESTS=1 to run against a local Chrome")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var buf bytes.Buffer
	if err := png.Encode(&buf, capturetest.Gradient(320, 180)); err != nil {
		t.Fatal(err)
	}
	html := `<html><body style="margin:0"><img src="data:image/png;base64,` +
		base64.StdEncoding.EncodeToString(buf.Bytes()) + `"></body></html>`

	p, err := Open(ctx, Config{URL: "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(html)),
		Headless: true, Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		t.Logf("Chrome not available: %v", err)
		return
	}
	defer p.Close()

	src, err := capture.NewAdapter(p, nil).Capture(ctx, region.Rect{X: 0, Y: 0, Width: 100, Height: 50}, capture.KindScreenshot)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	mapped, err := coords.ToSource(region.Rect{X: 0, Y: 0, Width: 100, Height: 50}, src)
	if err != nil {
		t.Fatal(err)
	}
	if mapped.Width < 100 {
		t.Errorf("mapped width %v is smaller than the CSS width", mapped.Width)
	}
	if videos, err := p.Videos(ctx); err != nil || len(videos) != 0 {
		t.Errorf("Videos = %d, %v", len(videos), err)
	}
}

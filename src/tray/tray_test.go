package tray

import (
	"bytes"
	"image/png"
	"testing"

	"region-ocr/src/notify"
	"region-ocr/src/pipeline"
)

func TestIconIsValidPNG(t *testing.T) {
	data := Icon()
	if len(data) == 0 {
		t.Fatal("icon is empty")
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("icon is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 16 {
		t.Errorf("icon is %v, want 16x16", b.Size())
	}
}

func TestTooltip(t *testing.T) {
	if got := Tooltip(pipeline.Idle); got != "Region OCR" {
		t.Errorf("idle tooltip = %q", got)
	}
	if got := Tooltip(pipeline.Transcribing); got != "Region OCR: transcribing..." {
		t.Errorf("busy tooltip = %q", got)
	}
}

func TestShowStateBeforeReady(t *testing.T) {
	// Must not touch systray before Run.
	ShowState(pipeline.Idle, pipeline.Selecting)
}

func TestNoticeText(t *testing.T) {
	if got := NoticeText(notify.LevelInfo, "No text detected", ""); got != "Region OCR: No text detected" {
		t.Errorf("info = %q", got)
	}
	if got := NoticeText(notify.LevelError, "Capture failed", "denied"); got != "[!] Region OCR: Capture failed - denied" {
		t.Errorf("error = %q", got)
	}
}

func TestPostBeforeReady(t *testing.T) {
	if err := Post(notify.LevelInfo, "x", "y"); err == nil {
		t.Error("Post before Run should report the tray is not running")
	}
}

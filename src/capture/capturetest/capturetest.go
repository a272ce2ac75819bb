// Package capturetest provides in-memory capture hosts for tests.
package capturetest

import (
	"context"
	"image"
	"image/color"
	"sync"

	"region-ocr/src/capture"
	"region-ocr/src/region"
)

// Host is a scripted capture.Host.
type Host struct {
	mu sync.Mutex

	Viewport    image.Image
	ViewportCSS region.Rect
	ViewportErr error
	VideoList   []capture.Video
	VideosErr   error

	ViewportCalls int
	VideosCalls   int
}

func (h *Host) CaptureViewport(ctx context.Context) (image.Image, region.Rect, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ViewportCalls++
	return h.Viewport, h.ViewportCSS, h.ViewportErr
}

func (h *Host) Videos(ctx context.Context) ([]capture.Video, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.VideosCalls++
	return h.VideoList, h.VideosErr
}

// Calls returns the total number of capture calls made.
func (h *Host) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ViewportCalls + h.VideosCalls
}

// Video is a scripted capture.Video.
type Video struct {
	Rect      region.Rect
	Image     image.Image
	Width     int
	Height    int
	IsPlaying bool
	PauseErr  error
	FrameErr  error
	Paused    int
}

func (v *Video) Bounds() region.Rect { return v.Rect }

func (v *Video) NativeSize() (int, int) { return v.Width, v.Height }

func (v *Video) Playing() bool { return v.IsPlaying }

func (v *Video) Pause(ctx context.Context) error {
	v.Paused++
	if v.PauseErr == nil {
		v.IsPlaying = false
	}
	return v.PauseErr
}

func (v *Video) Frame(ctx context.Context) (image.Image, error) {
	return v.Image, v.FrameErr
}

// Gradient returns a w×h opaque image whose gray level rises left to right,
// so thresholding yields both black and white pixels.
func Gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g := uint8(x * 255 / max(w-1, 1))
			img.SetRGBA(x, y, color.RGBA{R: g, G: g / 2, B: 255 - g, A: 255})
		}
	}
	return img
}

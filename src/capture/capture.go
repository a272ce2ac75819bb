// Package capture obtains the raster a selection is cut from: a full
// viewport screenshot or the current frame of a video element.
package capture

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"region-ocr/src/apperr"
	"region-ocr/src/region"
)

// Kind selects which capture path a run takes.
type Kind int

const (
	KindScreenshot Kind = iota
	KindVideo
)

func (k Kind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "screenshot"
}

// ParseKind accepts "screenshot" (or "web", "page") and "video".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "screenshot", "web", "page":
		return KindScreenshot, nil
	case "video":
		return KindVideo, nil
	default:
		return 0, fmt.Errorf("capture: unknown source kind %q", s)
	}
}

// Source is one of *Screenshot or *VideoFrame.
type Source interface {
	Kind() Kind
	Raster() image.Image
}

// Screenshot is a full-viewport raster. Viewport is the CSS-pixel area the
// raster covers; the raster itself is usually larger by the device pixel
// ratio.
type Screenshot struct {
	Image    image.Image
	Viewport region.Rect
}

func (s *Screenshot) Kind() Kind          { return KindScreenshot }
func (s *Screenshot) Raster() image.Image { return s.Image }

// VideoFrame is a frame sampled at the video's native resolution.
// Display is where the element is rendered, in selection coordinates.
type VideoFrame struct {
	Image        image.Image
	NativeWidth  int
	NativeHeight int
	Display      region.Rect
}

func (v *VideoFrame) Kind() Kind          { return KindVideo }
func (v *VideoFrame) Raster() image.Image { return v.Image }

// Video is a video element visible to the host.
type Video interface {
	Bounds() region.Rect
	NativeSize() (width, height int)
	Playing() bool
	Pause(ctx context.Context) error
	Frame(ctx context.Context) (image.Image, error)
}

// Host is the privileged capture surface: a browser tab or the desktop.
type Host interface {
	CaptureViewport(ctx context.Context) (image.Image, region.Rect, error)
	Videos(ctx context.Context) ([]Video, error)
}

// Adapter picks the capture path for a selection and normalises host
// failures into apperr kinds.
type Adapter struct {
	host   Host
	logger *slog.Logger
}

func NewAdapter(host Host, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{host: host, logger: logger}
}

// Capture returns the raster for sel. Failures are terminal for the run;
// the adapter never retries because hosts rate-limit capture calls.
func (a *Adapter) Capture(ctx context.Context, sel region.Rect, kind Kind) (Source, error) {
	if a.host == nil {
		return nil, apperr.New(apperr.CaptureDenied, "no capture host configured")
	}
	if kind == KindVideo {
		return a.captureVideo(ctx, sel)
	}
	return a.captureScreenshot(ctx)
}

func (a *Adapter) captureScreenshot(ctx context.Context) (Source, error) {
	img, viewport, err := a.host.CaptureViewport(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CaptureDenied, "viewport capture failed")
	}
	if img == nil || img.Bounds().Empty() {
		return nil, apperr.New(apperr.CaptureDenied, "capture returned no data")
	}
	if viewport.Empty() {
		b := img.Bounds()
		viewport = region.Rect{Width: float64(b.Dx()), Height: float64(b.Dy()), Space: region.SpaceViewport}
	}
	a.logger.Debug("capture: screenshot", "raster", img.Bounds().Size(), "viewport", viewport)
	return &Screenshot{Image: img, Viewport: viewport}, nil
}

func (a *Adapter) captureVideo(ctx context.Context, sel region.Rect) (Source, error) {
	videos, err := a.host.Videos(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CaptureDenied, "listing video elements failed")
	}

	// First intersecting element wins; overlapping videos are not ranked.
	var video Video
	for _, v := range videos {
		if v.Bounds().Intersects(sel) {
			video = v
			break
		}
	}
	if video == nil {
		return nil, apperr.Newf(apperr.NoVideoFound, "no video element intersects %v", sel)
	}

	// Paused and left paused so the sampled frame stays on screen.
	if video.Playing() {
		if err := video.Pause(ctx); err != nil {
			a.logger.Warn("capture: pausing video failed", "error", err)
		}
	}

	frame, err := video.Frame(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CaptureDenied, "sampling video frame failed")
	}
	if frame == nil || frame.Bounds().Empty() {
		return nil, apperr.New(apperr.CaptureDenied, "video frame is empty")
	}

	w, h := video.NativeSize()
	if w <= 0 || h <= 0 {
		b := frame.Bounds()
		w, h = b.Dx(), b.Dy()
	}
	a.logger.Debug("capture: video frame", "native", fmt.Sprintf("%dx%d", w, h), "display", video.Bounds())
	return &VideoFrame{Image: frame, NativeWidth: w, NativeHeight: h, Display: video.Bounds()}, nil
}

// FromImage wraps an uploaded image as a screenshot whose viewport is the
// image itself, so selections map 1:1 onto its pixels.
func FromImage(img image.Image) *Screenshot {
	b := img.Bounds()
	return &Screenshot{
		Image:    img,
		Viewport: region.Rect{Width: float64(b.Dx()), Height: float64(b.Dy()), Space: region.SpaceViewport},
	}
}

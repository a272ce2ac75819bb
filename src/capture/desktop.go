package capture

import (
	"context"
	"fmt"
	"image"

	"github.com/kbinani/screenshot"

	"region-ocr/src/region"
)

// Desktop captures the union of all active displays. Desktop coordinates
// are physical pixels, so the viewport and the raster share one scale.
type Desktop struct{}

func (Desktop) CaptureViewport(ctx context.Context) (image.Image, region.Rect, error) {
	if err := ctx.Err(); err != nil {
		return nil, region.Rect{}, err
	}
	union, err := VirtualBounds()
	if err != nil {
		return nil, region.Rect{}, err
	}
	img, err := screenshot.CaptureRect(union)
	if err != nil {
		return nil, region.Rect{}, fmt.Errorf("capture rect %v: %w", union, err)
	}
	viewport := region.Rect{
		X:      float64(union.Min.X),
		Y:      float64(union.Min.Y),
		Width:  float64(union.Dx()),
		Height: float64(union.Dy()),
		Space:  region.SpaceViewport,
	}
	return img, viewport, nil
}

// Videos reports none: the desktop has no addressable video elements.
func (Desktop) Videos(ctx context.Context) ([]Video, error) {
	return nil, nil
}

// VirtualBounds returns the union of all active display bounds.
func VirtualBounds() (image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return image.Rectangle{}, fmt.Errorf("no active displays found")
	}
	union := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}
	return union, nil
}

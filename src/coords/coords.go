// Package coords converts selection rectangles into source-pixel
// rectangles. Source space has its origin at the raster's top-left pixel.
package coords

import (
	"fmt"
	"image"
	"math"

	"region-ocr/src/capture"
	"region-ocr/src/region"
)

// ToSource maps sel onto the raster of src.
func ToSource(sel region.Rect, src capture.Source) (region.Rect, error) {
	switch s := src.(type) {
	case *capture.Screenshot:
		return MapScreenshot(sel, s.Viewport, s.Image.Bounds()), nil
	case *capture.VideoFrame:
		return MapVideo(sel, s.Display, s.NativeWidth, s.NativeHeight), nil
	default:
		return region.Rect{}, fmt.Errorf("coords: unsupported source %T", src)
	}
}

// MapScreenshot scales a viewport-space selection by the ratio between the
// raster's pixel size and the viewport's CSS size. The ratio is measured
// per axis from the capture itself rather than taken from a reported
// device pixel ratio.
func MapScreenshot(sel, viewport region.Rect, raster image.Rectangle) region.Rect {
	if viewport.Empty() {
		viewport = region.Rect{Width: float64(raster.Dx()), Height: float64(raster.Dy())}
	}
	sx := float64(raster.Dx()) / viewport.Width
	sy := float64(raster.Dy()) / viewport.Height
	r := region.Rect{
		X:      (sel.X - viewport.X) * sx,
		Y:      (sel.Y - viewport.Y) * sy,
		Width:  sel.Width * sx,
		Height: sel.Height * sy,
		Space:  region.SpaceSource,
	}
	return Clamp(r, float64(raster.Dx()), float64(raster.Dy()))
}

// MapVideo maps a selection over a rendered video element onto the video's
// native resolution.
func MapVideo(sel, display region.Rect, nativeWidth, nativeHeight int) region.Rect {
	if display.Empty() {
		return region.Rect{Space: region.SpaceSource}
	}
	sx := float64(nativeWidth) / display.Width
	sy := float64(nativeHeight) / display.Height
	r := region.Rect{
		X:      (sel.X - display.X) * sx,
		Y:      (sel.Y - display.Y) * sy,
		Width:  sel.Width * sx,
		Height: sel.Height * sy,
		Space:  region.SpaceSource,
	}
	return Clamp(r, float64(nativeWidth), float64(nativeHeight))
}

// Clamp intersects r with the source bounds [0,w)×[0,h). Selections that
// spill past an edge are trimmed, never rejected.
func Clamp(r region.Rect, w, h float64) region.Rect {
	left := math.Min(math.Max(r.X, 0), w)
	top := math.Min(math.Max(r.Y, 0), h)
	right := math.Max(math.Min(r.Right(), w), left)
	bottom := math.Max(math.Min(r.Bottom(), h), top)
	return region.Rect{X: left, Y: top, Width: right - left, Height: bottom - top, Space: r.Space}
}

// Pixels rounds each edge of r to the nearest pixel.
func Pixels(r region.Rect) image.Rectangle {
	return image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.Right())),
		int(math.Round(r.Bottom())),
	)
}

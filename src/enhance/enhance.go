// Package enhance crops, upscales and filters captured pixels before they
// are sent for transcription.
package enhance

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"

	// Decoders for uploads.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"region-ocr/src/apperr"
)

// Enhancer applies mode profiles. The zero value is not usable; call New.
type Enhancer struct {
	profiles map[Mode]Profile
	maxWidth int
}

type Option func(*Enhancer)

// WithProfiles overlays per-mode overrides on the defaults.
func WithProfiles(overrides map[Mode]Profile) Option {
	return func(e *Enhancer) {
		for m, p := range overrides {
			e.profiles[m] = e.profiles[m].merge(p)
		}
	}
}

// WithMaxWidth caps the width of the upscaled image. 0 disables the cap.
func WithMaxWidth(px int) Option {
	return func(e *Enhancer) { e.maxWidth = px }
}

func New(opts ...Option) *Enhancer {
	e := &Enhancer{profiles: defaultProfiles()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Profile returns the effective profile of m.
func (e *Enhancer) Profile(m Mode) (Profile, error) {
	p, ok := e.profiles[m]
	if !ok {
		return Profile{}, apperr.Newf(apperr.InvalidInput, "unknown enhancement mode %q", m)
	}
	return p, nil
}

// Enhance returns an upscaled, filtered copy of img. img is not modified.
// The filters run on straight (non-premultiplied) RGBA.
func (e *Enhancer) Enhance(img image.Image, m Mode) (*image.NRGBA, error) {
	p, err := e.Profile(m)
	if err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, apperr.New(apperr.ImageDecodeFailed, "empty image")
	}

	out := Upscale(img, p.Upscale, e.maxWidth)
	switch m {
	case ModeRaw:
	case ModeContrastStretch:
		ContrastStretch(out.Pix, p.Contrast)
	case ModeGrayscaleThreshold, ModeAdaptiveBinarize:
		Threshold(out.Pix, uint8(p.Threshold))
	case ModeLocalThreshold:
		LocalThreshold(out, p.Window, p.Bias)
	}
	return out, nil
}

// Process crops img to r (relative to img's top-left), enhances and
// encodes the result as PNG.
func (e *Enhancer) Process(img image.Image, r image.Rectangle, m Mode) ([]byte, error) {
	cropped, err := Crop(img, r)
	if err != nil {
		return nil, err
	}
	out, err := e.Enhance(cropped, m)
	if err != nil {
		return nil, err
	}
	return Encode(out)
}

// Crop copies the pixels of r, given relative to img's top-left corner,
// into a new tightly packed NRGBA image.
func Crop(img image.Image, r image.Rectangle) (*image.NRGBA, error) {
	if img == nil {
		return nil, apperr.New(apperr.ImageDecodeFailed, "no image to crop")
	}
	b := img.Bounds()
	r = r.Add(b.Min).Intersect(b)
	if r.Empty() {
		return nil, apperr.Newf(apperr.InvalidInput, "crop %v is outside the %dx%d source", r, b.Dx(), b.Dy())
	}
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst, nil
}

// Upscale resamples img by factor using bilinear interpolation. When
// maxWidth > 0 the output width never exceeds it. The result is always a
// new tightly packed image.
func Upscale(img image.Image, factor, maxWidth int) *image.NRGBA {
	b := img.Bounds()
	if factor < 1 {
		factor = 1
	}
	w, h := b.Dx()*factor, b.Dy()*factor
	if maxWidth > 0 && w > maxWidth {
		h = max(h*maxWidth/w, 1)
		w = maxWidth
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Decode reads any registered image format.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, apperr.New(apperr.ImageDecodeFailed, "empty image data")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ImageDecodeFailed, "decode image")
	}
	if img.Bounds().Empty() {
		return nil, apperr.Newf(apperr.ImageDecodeFailed, "%s image has no pixels", format)
	}
	return img, nil
}

// Encode writes img as PNG.
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("enhance: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

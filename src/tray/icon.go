package tray

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

var (
	iconOnce sync.Once
	iconPNG  []byte
)

// Icon returns the 16×16 tray icon: a dashed selection rectangle over a
// text line, drawn at first use.
func Icon() []byte {
	iconOnce.Do(func() {
		iconPNG = drawIcon(16)
	})
	return iconPNG
}

func drawIcon(size int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	blue := color.NRGBA{R: 0x00, G: 0x78, B: 0xd4, A: 0xff}
	dark := color.NRGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}

	lo, hi := 2, size-3
	for i := lo; i <= hi; i++ {
		if i%3 == 2 {
			continue
		}
		img.SetNRGBA(i, lo, blue)
		img.SetNRGBA(i, hi, blue)
		img.SetNRGBA(lo, i, blue)
		img.SetNRGBA(hi, i, blue)
	}
	for _, y := range []int{size/2 - 2, size/2 + 1} {
		for x := lo + 3; x <= hi-3; x++ {
			img.SetNRGBA(x, y, dark)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

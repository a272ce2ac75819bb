package enhance

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"region-ocr/src/apperr"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g := uint8(x * 255 / max(w-1, 1))
			img.SetRGBA(x, y, color.RGBA{R: g, G: 255 - g, B: g / 3, A: 255})
		}
	}
	return img
}

func TestContrastValueFixedPointAndClamps(t *testing.T) {
	if got := ContrastValue(128, 1.5); got != 128 {
		t.Errorf("ContrastValue(128) = %d, want 128", got)
	}
	if got := ContrastValue(255, 1.5); got != 255 {
		t.Errorf("ContrastValue(255) = %d, want 255", got)
	}
	if got := ContrastValue(0, 1.5); got != 0 {
		t.Errorf("ContrastValue(0) = %d, want 0", got)
	}
	if got := ContrastValue(148, 1.5); got != 158 {
		t.Errorf("ContrastValue(148) = %d, want 158", got)
	}
}

func TestLuma(t *testing.T) {
	if Luma(255, 255, 255) != 255 || Luma(0, 0, 0) != 0 {
		t.Error("luma must map white and black exactly")
	}
	if got := Luma(255, 0, 0); got != 76 {
		t.Errorf("Luma(red) = %d, want 76", got)
	}
}

func TestGrayscaleThresholdOnlyBlackOrWhite(t *testing.T) {
	e := New()
	src := gradient(64, 16)
	out, err := e.Enhance(src, ModeGrayscaleThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if out.Rect.Dx() != 64*3 || out.Rect.Dy() != 16*3 {
		t.Errorf("upscaled size = %v, want 3x", out.Rect.Size())
	}
	var black, white int
	for i := 0; i < len(out.Pix); i += 4 {
		r, g, b := out.Pix[i], out.Pix[i+1], out.Pix[i+2]
		if r != g || g != b || (r != 0 && r != 255) {
			t.Fatalf("pixel %d = (%d,%d,%d), want pure black or white", i/4, r, g, b)
		}
		if r == 0 {
			black++
		} else {
			white++
		}
	}
	if black == 0 || white == 0 {
		t.Errorf("expected both black (%d) and white (%d) pixels", black, white)
	}
}

func TestFiltersKeepAlpha(t *testing.T) {
	for _, m := range Modes() {
		t.Run(string(m), func(t *testing.T) {
			src := gradient(8, 8)
			for i := 0; i < len(src.Pix); i += 4 {
				a := uint8(100 + i%100)
				for c := 0; c < 3; c++ {
					src.Pix[i+c] = uint8(uint32(src.Pix[i+c]) * uint32(a) / 255)
				}
				src.Pix[i+3] = a
			}
			out, err := New(WithProfiles(map[Mode]Profile{m: {Upscale: 1}})).Enhance(src, m)
			if err != nil {
				t.Fatal(err)
			}
			for i := 3; i < len(out.Pix); i += 4 {
				if out.Pix[i] != src.Pix[i] {
					t.Fatalf("alpha changed at pixel %d: %d -> %d", i/4, src.Pix[i], out.Pix[i])
				}
			}
		})
	}
}

func TestSemiTransparentPixelsUseStraightColour(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(src.Pix); i += 4 {
		copy(src.Pix[i:i+4], []uint8{200, 200, 200, 128})
	}
	tests := []struct {
		mode Mode
		want uint8
	}{
		{ModeGrayscaleThreshold, 255},
		{ModeContrastStretch, 236}, // (200-128)*1.5+128
		{ModeRaw, 200},
	}
	for _, tt := range tests {
		out, err := New(WithProfiles(map[Mode]Profile{tt.mode: {Upscale: 1}})).Enhance(src, tt.mode)
		if err != nil {
			t.Fatal(err)
		}
		if c := out.NRGBAAt(1, 1); c.R != tt.want || c.G != tt.want || c.B != tt.want || c.A != 128 {
			t.Errorf("%s: pixel = %v, want gray %d alpha 128", tt.mode, c, tt.want)
		}

		data, err := Encode(out)
		if err != nil {
			t.Fatal(err)
		}
		img, err := Decode(data)
		if err != nil {
			t.Fatal(err)
		}
		if c := color.NRGBAModel.Convert(img.At(1, 1)).(color.NRGBA); c.R != tt.want || c.A != 128 {
			t.Errorf("%s: decoded pixel = %v, want gray %d alpha 128", tt.mode, c, tt.want)
		}
	}
}

func TestEnhanceDoesNotModifyInput(t *testing.T) {
	src := gradient(10, 10)
	before := append([]uint8(nil), src.Pix...)
	if _, err := New().Enhance(src, ModeContrastStretch); err != nil {
		t.Fatal(err)
	}
	for i := range before {
		if before[i] != src.Pix[i] {
			t.Fatal("input image was modified")
		}
	}
}

func TestAdaptiveBinarizeUsesItsThreshold(t *testing.T) {
	pix := []uint8{135, 135, 135, 255, 145, 145, 145, 255}
	Threshold(pix, 140)
	if pix[0] != 0 || pix[4] != 255 {
		t.Errorf("threshold 140: got %d and %d", pix[0], pix[4])
	}
	p, _ := New().Profile(ModeAdaptiveBinarize)
	if p.Threshold != 140 {
		t.Errorf("adaptiveBinarize threshold = %d, want 140", p.Threshold)
	}
}

func TestLocalThresholdFollowsIllumination(t *testing.T) {
	// Dark text stroke on a background that brightens left to right; a
	// single global threshold cannot separate both halves.
	img := image.NewNRGBA(image.Rect(0, 0, 60, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 60; x++ {
			bg := uint8(60 + x*3)
			c := color.NRGBA{R: bg, G: bg, B: bg, A: 255}
			if x%10 == 5 {
				c = color.NRGBA{R: bg - 50, G: bg - 50, B: bg - 50, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	LocalThreshold(img, 9, 10)
	for _, x := range []int{5, 55} {
		if img.NRGBAAt(x, 10).R != 0 {
			t.Errorf("stroke at x=%d should be black", x)
		}
	}
	for _, x := range []int{2, 52} {
		if img.NRGBAAt(x, 10).R != 255 {
			t.Errorf("background at x=%d should be white", x)
		}
	}
}

func TestCrop(t *testing.T) {
	src := gradient(100, 50)
	sub := src.SubImage(image.Rect(10, 10, 90, 40))
	out, err := Crop(sub, image.Rect(5, 5, 25, 15))
	if err != nil {
		t.Fatal(err)
	}
	if out.Rect != image.Rect(0, 0, 20, 10) {
		t.Errorf("crop bounds = %v", out.Rect)
	}
	if out.NRGBAAt(0, 0) != color.NRGBA(src.RGBAAt(15, 15)) {
		t.Error("crop origin should be relative to the source's top-left")
	}
	if _, err := Crop(src, image.Rect(200, 200, 210, 210)); !apperr.IsCode(err, apperr.InvalidInput) {
		t.Errorf("out-of-bounds crop err = %v", err)
	}
}

func TestUpscaleMaxWidth(t *testing.T) {
	out := Upscale(gradient(1000, 500), 3, 1600)
	if out.Rect.Dx() != 1600 || out.Rect.Dy() != 800 {
		t.Errorf("capped size = %v, want 1600x800", out.Rect.Size())
	}
	same := Upscale(gradient(10, 10), 1, 0)
	if same.Rect.Dx() != 10 {
		t.Errorf("factor 1 size = %v", same.Rect.Size())
	}
}

func TestProcessRoundTrip(t *testing.T) {
	data, err := New().Process(gradient(40, 40), image.Rect(0, 0, 20, 10), ModeRaw)
	if err != nil {
		t.Fatal(err)
	}
	img, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 20 || img.Bounds().Dy() != 10 {
		t.Errorf("decoded size = %v", img.Bounds().Size())
	}
}

func TestDecodeFailure(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("not an image")} {
		if _, err := Decode(data); !apperr.IsCode(err, apperr.ImageDecodeFailed) {
			t.Errorf("Decode(%q) err = %v, want ImageDecodeFailed", data, err)
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"raw":                 ModeRaw,
		"contrast-stretch":    ModeContrastStretch,
		"GRAYSCALE_THRESHOLD": ModeGrayscaleThreshold,
		"adaptiveBinarize":    ModeAdaptiveBinarize,
		"local threshold":     ModeLocalThreshold,
	}
	for in, want := range tests {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("sepia"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestLoadProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	yaml := "modes:\n  grayscale-threshold:\n    upscale: 4\n    threshold: 120\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	overrides, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("LoadProfiles failed: %v", err)
	}
	p, _ := New(WithProfiles(overrides)).Profile(ModeGrayscaleThreshold)
	if p.Upscale != 4 || p.Threshold != 120 {
		t.Errorf("profile = %+v", p)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(bad, []byte("modes:\n  raw:\n    threshold: 999\n"), 0o600)
	if _, err := LoadProfiles(bad); err == nil {
		t.Error("expected range error")
	}
}

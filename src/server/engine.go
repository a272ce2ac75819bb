package server

import (
	"context"
	"fmt"
	"image"

	"github.com/otiai10/gosseract/v2"

	"region-ocr/src/enhance"
)

// Engine recognises the text in an encoded image.
type Engine interface {
	Recognize(ctx context.Context, img []byte, language string) (string, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, img []byte, language string) (string, error)

func (f EngineFunc) Recognize(ctx context.Context, img []byte, language string) (string, error) {
	return f(ctx, img, language)
}

// Tesseract runs libtesseract through gosseract. A fresh client is used
// per call since gosseract clients are not safe for concurrent use.
type Tesseract struct {
	TessdataPrefix string
	DPI            int
}

func (t Tesseract) Recognize(ctx context.Context, img []byte, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	client := gosseract.NewClient()
	defer client.Close()

	if t.TessdataPrefix != "" {
		client.SetTessdataPrefix(t.TessdataPrefix)
	}
	if language != "" {
		if err := client.SetLanguage(language); err != nil {
			return "", fmt.Errorf("tesseract: set language %q: %w", language, err)
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return "", fmt.Errorf("tesseract: set page segmentation: %w", err)
	}
	dpi := t.DPI
	if dpi <= 0 {
		dpi = 300
	}
	if err := client.SetVariable("user_defined_dpi", fmt.Sprint(dpi)); err != nil {
		return "", fmt.Errorf("tesseract: set dpi: %w", err)
	}
	if err := client.SetVariable("preserve_interword_spaces", "1"); err != nil {
		return "", fmt.Errorf("tesseract: set spacing: %w", err)
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("tesseract: set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: recognise: %w", err)
	}
	return text, nil
}

// Preprocess doubles the image with bilinear sampling, converts it to
// grayscale and applies a light linear contrast lift.
func Preprocess(img image.Image) *image.NRGBA {
	out := enhance.Upscale(img, 2, 0)
	enhance.LinearGray(out.Pix, 1.5, 10)
	return out
}

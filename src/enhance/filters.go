package enhance

import (
	"image"
)

// Luma returns the ITU-R BT.601 gray level 0.299R+0.587G+0.114B,
// truncated. Integer weights keep pure white at exactly 255.
func Luma(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b)) / 1000)
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

// ContrastValue stretches gray around the midpoint 128.
func ContrastValue(gray uint8, factor float64) uint8 {
	return clampByte((float64(gray)-128)*factor + 128)
}

// ThresholdValue binarises gray against t.
func ThresholdValue(gray, t uint8) uint8 {
	if gray > t {
		return 255
	}
	return 0
}

// The filters below walk a packed non-premultiplied RGBA buffer at
// stride 4 and leave the alpha byte untouched.

// ContrastStretch replaces each pixel with its contrast-stretched luma.
func ContrastStretch(pix []uint8, factor float64) {
	for i := 0; i+3 < len(pix); i += 4 {
		v := ContrastValue(Luma(pix[i], pix[i+1], pix[i+2]), factor)
		pix[i], pix[i+1], pix[i+2] = v, v, v
	}
}

// Threshold replaces each pixel with pure black or white.
func Threshold(pix []uint8, t uint8) {
	for i := 0; i+3 < len(pix); i += 4 {
		v := ThresholdValue(Luma(pix[i], pix[i+1], pix[i+2]), t)
		pix[i], pix[i+1], pix[i+2] = v, v, v
	}
}

// LinearGray maps luma through gray*scale+offset, clamped.
func LinearGray(pix []uint8, scale, offset float64) {
	for i := 0; i+3 < len(pix); i += 4 {
		v := clampByte(float64(Luma(pix[i], pix[i+1], pix[i+2]))*scale + offset)
		pix[i], pix[i+1], pix[i+2] = v, v, v
	}
}

// LocalThreshold binarises each pixel against the mean luma of the
// window×window square around it, less bias. img must be tightly packed.
func LocalThreshold(img *image.NRGBA, window, bias int) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w == 0 || h == 0 {
		return
	}
	if window < 3 {
		window = 3
	}
	half := window / 2

	gray := make([]uint8, w*h)
	for i := range gray {
		p := img.Pix[i*4 : i*4+3]
		gray[i] = Luma(p[0], p[1], p[2])
	}

	// integral[(y+1)*(w+1)+(x+1)] = sum of gray over [0,x]×[0,y]
	stride := w + 1
	integral := make([]int64, stride*(h+1))
	for y := 0; y < h; y++ {
		var row int64
		for x := 0; x < w; x++ {
			row += int64(gray[y*w+x])
			integral[(y+1)*stride+x+1] = integral[y*stride+x+1] + row
		}
	}

	for y := 0; y < h; y++ {
		y0, y1 := max(y-half, 0), min(y+half+1, h)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-half, 0), min(x+half+1, w)
			sum := integral[y1*stride+x1] - integral[y0*stride+x1] - integral[y1*stride+x0] + integral[y0*stride+x0]
			mean := sum / int64((x1-x0)*(y1-y0))

			v := uint8(0)
			if int64(gray[y*w+x]) > mean-int64(bias) {
				v = 255
			}
			i := (y*w + x) * 4
			img.Pix[i], img.Pix[i+1], img.Pix[i+2] = v, v, v
		}
	}
}

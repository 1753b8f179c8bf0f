package preprocess

import (
	"bytes"
	"image"
	"sort"

	"github.com/disintegration/imaging"

	scanerrors "github.com/healthscan/scan-worker/internal/errors"
)

// Normalize applies the profile's transform sequence to raw image bytes and
// returns the result re-encoded as PNG. Normalization is deterministic for a
// given profile. A transform step that cannot apply is skipped and the image
// as of the prior step carries forward; only a decode failure aborts, with an
// IMAGE_DECODE error that excludes this profile from the candidate pool.
func Normalize(data []byte, p Profile) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, scanerrors.NewImageDecodeError(p.ID, err)
	}

	img := imaging.Clone(src)

	if p.ResizeHeight > 0 && img.Bounds().Dy() > 0 && img.Bounds().Dy() < p.ResizeHeight {
		img = imaging.Resize(img, 0, p.ResizeHeight, imaging.Lanczos)
	}

	if p.Greyscale {
		img = imaging.Grayscale(img)
	}

	if p.Normalize {
		img = stretchContrast(img)
	}

	if p.Contrast != 0 && p.Contrast >= -100 && p.Contrast <= 100 {
		img = imaging.AdjustContrast(img, p.Contrast)
	}

	if p.Gamma > 0 && p.Gamma != 1 {
		img = imaging.AdjustGamma(img, p.Gamma)
	}

	if p.SharpenSigma > 0 {
		img = imaging.Sharpen(img, p.SharpenSigma)
	}

	if p.BinarizeThreshold >= 1 && p.BinarizeThreshold <= 255 {
		img = binarize(img, uint8(p.BinarizeThreshold))
	}

	if p.MedianRadius > 0 && p.MedianRadius <= 4 {
		img = medianFilter(img, p.MedianRadius)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		// Encoding a decoded in-memory image should not fail; treat as a
		// skipped profile rather than a fatal condition.
		return nil, scanerrors.NewImageDecodeError(p.ID, err)
	}
	return buf.Bytes(), nil
}

func luminance(r, g, b uint8) int {
	// ITU-R BT.601 integer approximation
	return (299*int(r) + 587*int(g) + 114*int(b)) / 1000
}

// stretchContrast linearly rescales luminance so the darkest pixel maps to 0
// and the brightest to 255.
func stretchContrast(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	minL, maxL := 255, 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			l := luminance(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
			if l < minL {
				minL = l
			}
			if l > maxL {
				maxL = l
			}
		}
	}
	if maxL <= minL {
		return img
	}
	out := imaging.Clone(img)
	scale := 255.0 / float64(maxL-minL)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := out.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := float64(int(out.Pix[i+c])-minL) * scale
				if v < 0 {
					v = 0
				}
				if v > 255 {
					v = 255
				}
				out.Pix[i+c] = uint8(v)
			}
		}
	}
	return out
}

// binarize maps every pixel to pure white or black around the threshold.
func binarize(img *image.NRGBA, threshold uint8) *image.NRGBA {
	b := img.Bounds()
	out := imaging.Clone(img)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := out.PixOffset(x, y)
			var v uint8
			if luminance(out.Pix[i], out.Pix[i+1], out.Pix[i+2]) >= int(threshold) {
				v = 255
			}
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = v, v, v
		}
	}
	return out
}

// medianFilter replaces each pixel's luminance with the median of its
// (2r+1)x(2r+1) neighborhood. Intended for greyscale images; speckle noise
// from thermal printouts defeats Tesseract otherwise.
func medianFilter(img *image.NRGBA, radius int) *image.NRGBA {
	b := img.Bounds()
	out := imaging.Clone(img)
	window := make([]int, 0, (2*radius+1)*(2*radius+1))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			window = window[:0]
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					nx, ny := x+dx, y+dy
					if nx < b.Min.X || nx >= b.Max.X || ny < b.Min.Y || ny >= b.Max.Y {
						continue
					}
					i := img.PixOffset(nx, ny)
					window = append(window, luminance(img.Pix[i], img.Pix[i+1], img.Pix[i+2]))
				}
			}
			sort.Ints(window)
			m := uint8(window[len(window)/2])
			i := out.PixOffset(x, y)
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = m, m, m
		}
	}
	return out
}

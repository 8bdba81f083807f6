// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

const (
	// defaultMaxDimension bounds the longest side before recognition;
	// larger inputs are downscaled to bound preprocessing cost.
	defaultMaxDimension = 2000

	// upscaleFactor is applied after binarization. Recognition accuracy
	// on small glyphs improves markedly at 2x.
	upscaleFactor = 2

	// upscaleLimit skips the final upscale when it would exceed this
	// many pixels on the longest side.
	upscaleLimit = 3000
)

// Prepare converts an image into recognition-ready form: composite onto
// a white background, downscale oversized inputs, grayscale, normalize
// contrast, binarize, then upscale. It returns the PNG-encoded result
// and the cumulative scale factor from source to prepared coordinates.
func Prepare(img image.Image, maxDim int) ([]byte, float64, error) {
	if maxDim <= 0 {
		maxDim = defaultMaxDimension
	}
	scale := 1.0

	// Transparent and paletted images recognize poorly as-is; flatten
	// onto white first.
	flat := image.NewRGBA(img.Bounds())
	draw.Draw(flat, flat.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, img.Bounds().Min, draw.Over)

	w, h := flat.Bounds().Dx(), flat.Bounds().Dy()
	if w == 0 || h == 0 {
		return nil, 0, fmt.Errorf("empty image")
	}
	if longest := max(w, h); longest > maxDim {
		factor := float64(maxDim) / float64(longest)
		nw, nh := int(float64(w)*factor), int(float64(h)*factor)
		down := image.NewRGBA(image.Rect(0, 0, nw, nh))
		xdraw.CatmullRom.Scale(down, down.Bounds(), flat, flat.Bounds(), xdraw.Src, nil)
		flat = down
		scale *= factor
		w, h = nw, nh
	}

	gray := image.NewGray(flat.Bounds())
	draw.Draw(gray, gray.Bounds(), flat, flat.Bounds().Min, draw.Src)
	stretchContrast(gray)
	binarize(gray, otsuThreshold(gray))

	out := image.Image(gray)
	if longest := max(w, h); longest*upscaleFactor <= upscaleLimit {
		up := image.NewGray(image.Rect(0, 0, w*upscaleFactor, h*upscaleFactor))
		// Nearest neighbor keeps the image strictly bilevel after
		// binarization.
		xdraw.NearestNeighbor.Scale(up, up.Bounds(), gray, gray.Bounds(), xdraw.Src, nil)
		out = up
		scale *= upscaleFactor
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, 0, fmt.Errorf("encoding prepared image: %w", err)
	}
	return buf.Bytes(), scale, nil
}

// stretchContrast linearly maps the observed intensity range onto the
// full 0..255 range.
func stretchContrast(img *image.Gray) {
	lo, hi := uint8(255), uint8(0)
	for _, v := range img.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi <= lo {
		return
	}
	span := int(hi) - int(lo)
	for i, v := range img.Pix {
		img.Pix[i] = uint8((int(v) - int(lo)) * 255 / span)
	}
}

// otsuThreshold picks the binarization threshold maximizing between-class
// variance of the intensity histogram.
func otsuThreshold(img *image.Gray) uint8 {
	var hist [256]int
	for _, v := range img.Pix {
		hist[v]++
	}
	total := len(img.Pix)
	if total == 0 {
		return 128
	}

	var sum float64
	for i, n := range hist {
		sum += float64(i) * float64(n)
	}

	var (
		sumB, wB  float64
		bestVar   float64
		threshold uint8 = 128
	)
	for i, n := range hist {
		wB += float64(n)
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(i) * float64(n)
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > bestVar {
			bestVar = between
			threshold = uint8(i)
		}
	}
	return threshold
}

func binarize(img *image.Gray, threshold uint8) {
	for i, v := range img.Pix {
		if v > threshold {
			img.Pix[i] = 255
		} else {
			img.Pix[i] = 0
		}
	}
}

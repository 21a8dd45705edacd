package results

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Fallback canvas size for vector images without intrinsic dimensions.
const (
	FallbackWidth  = 1200
	FallbackHeight = 900
)

// MaxRasterSide bounds either canvas side. Larger images are scaled down to fit.
const MaxRasterSide = 8192

// Rasterize renders an SVG document onto an opaque white canvas at its
// intrinsic size, or at the fallback size when it declares none.
func Rasterize(data []byte, fallbackW, fallbackH int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.WarnErrorMode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse svg: %w", err)
	}
	vw, vh := icon.ViewBox.W, icon.ViewBox.H
	if !finitePositive(vw) || !finitePositive(vh) {
		if fallbackW <= 0 || fallbackH <= 0 {
			fallbackW, fallbackH = FallbackWidth, FallbackHeight
		}
		vw, vh = float64(fallbackW), float64(fallbackH)
		icon.ViewBox.W, icon.ViewBox.H = vw, vh
	}
	w, h := canvasSize(vw, vh)

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	icon.SetTarget(0, 0, float64(w), float64(h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)
	return img, nil
}

// canvasSize rounds the intrinsic size to pixels, keeping the aspect ratio
// when a side exceeds MaxRasterSide.
func canvasSize(vw, vh float64) (int, int) {
	if vw > MaxRasterSide || vh > MaxRasterSide {
		scale := math.Min(MaxRasterSide/vw, MaxRasterSide/vh)
		vw, vh = vw*scale, vh*scale
	}
	w, h := int(vw+0.5), int(vh+0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// SVGToPNG converts an SVG document to PNG bytes.
func SVGToPNG(data []byte, fallbackW, fallbackH int) ([]byte, error) {
	img, err := Rasterize(data, fallbackW, fallbackH)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

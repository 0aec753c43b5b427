package liveness

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"

	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder

	_ "golang.org/x/image/bmp" // register decoder
	"golang.org/x/image/draw"
)

const (
	textureMaxSide   = 256
	textureThreshold = 0.3
)

// TextureDetector is a cheap on-device heuristic. Printed photos and screen
// replays lose high frequency skin texture and flatten contrast, so the
// verdict combines Laplacian variance with pixel spread. It is a weak
// signal compared to the vision model detectors and meant as a first line,
// not a replacement.
type TextureDetector struct{}

func (d *TextureDetector) Check(_ context.Context, imageData []byte) (*Result, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	gray := downscaleGray(img)
	lapVar := laplacianVariance(gray)
	std := stddev(gray)

	confidence := math.Min(1, lapVar/300)*0.6 + math.Min(std/60, 1)*0.4
	result := &Result{
		Live:       confidence >= textureThreshold,
		Confidence: confidence,
		Method:     d.Method(),
		Details:    fmt.Sprintf("laplacian_var=%.1f std=%.1f", lapVar, std),
	}
	return result, nil
}

func (d *TextureDetector) Method() string { return string(KindTexture) }

func downscaleGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > textureMaxSide || h > textureMaxSide {
		scale := float64(textureMaxSide) / math.Max(float64(w), float64(h))
		scaled := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, draw.Over, nil)
		img = scaled
		bounds = img.Bounds()
	}

	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

func laplacianVariance(gray *image.Gray) float64 {
	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()
	if w < 3 || h < 3 {
		return 0
	}

	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			c := float64(gray.GrayAt(x, y).Y)
			lap := 4*c -
				float64(gray.GrayAt(x, y-1).Y) -
				float64(gray.GrayAt(x, y+1).Y) -
				float64(gray.GrayAt(x-1, y).Y) -
				float64(gray.GrayAt(x+1, y).Y)
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

func stddev(gray *image.Gray) float64 {
	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()
	n := w * h
	if n == 0 {
		return 0
	}

	var sum, sumSq float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float64(gray.GrayAt(x, y).Y)
			sum += v
			sumSq += v * v
		}
	}
	mean := sum / float64(n)
	return math.Sqrt(math.Max(0, sumSq/float64(n)-mean*mean))
}

package quality

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/kozaktomas/faceid/internal/capture"
)

func newAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(0)
	if err != nil {
		t.Fatalf("failed to construct analyzer: %v", err)
	}
	return a
}

// checkerboard is a high frequency, mid-bright test image.
func checkerboard(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 60})
			} else {
				img.SetGray(x, y, color.Gray{Y: 190})
			}
		}
	}
	return img
}

func uniform(w, h int, v uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestSizeScore(t *testing.T) {
	a := newAnalyzer(t)
	img := uniform(100, 100, 127)

	tests := []struct {
		name string
		bbox []float64
		want float64
	}{
		{name: "tiny face", bbox: []float64{0, 0, 10, 10}, want: 0},                 // ratio 0.01
		{name: "oversized face", bbox: []float64{0, 0, 80, 80}, want: 0.8},          // ratio 0.64
		{name: "moderate face", bbox: []float64{0, 0, 40, 40}, want: 0.64},          // ratio 0.16
		{name: "large but not oversized", bbox: []float64{0, 0, 60, 60}, want: 1.0}, // ratio 0.36, capped
		{name: "missing bbox", bbox: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.sizeScore(img, tt.bbox)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestPoseScore(t *testing.T) {
	a := newAnalyzer(t)

	t.Run("no landmarks is neutral", func(t *testing.T) {
		if got := a.poseScore(nil); got != 0.5 {
			t.Errorf("expected 0.5, got %f", got)
		}
	})

	t.Run("frontal face scores high", func(t *testing.T) {
		frontal := [][]float64{{30, 50}, {70, 50}, {50, 70}, {35, 90}, {65, 90}}
		if got := a.poseScore(frontal); got < 0.95 {
			t.Errorf("expected near 1 for frontal face, got %f", got)
		}
	})

	t.Run("tilted head scores lower", func(t *testing.T) {
		frontal := [][]float64{{30, 50}, {70, 50}, {50, 70}, {35, 90}, {65, 90}}
		tilted := [][]float64{{30, 40}, {70, 60}, {50, 70}, {35, 90}, {65, 90}}
		if a.poseScore(tilted) >= a.poseScore(frontal) {
			t.Error("tilted head must score below frontal")
		}
	})

	t.Run("turned head scores lower", func(t *testing.T) {
		frontal := [][]float64{{30, 50}, {70, 50}, {50, 70}, {35, 90}, {65, 90}}
		turned := [][]float64{{30, 50}, {70, 50}, {38, 70}, {35, 90}, {65, 90}}
		if a.poseScore(turned) >= a.poseScore(frontal) {
			t.Error("off-center nose must score below frontal")
		}
	})
}

func TestSharpnessScore(t *testing.T) {
	a := newAnalyzer(t)

	sharp := a.sharpnessScore(grayscale(checkerboard(64, 64)))
	flat := a.sharpnessScore(grayscale(uniform(64, 64, 127)))

	if sharp != 1 {
		t.Errorf("checkerboard should saturate sharpness, got %f", sharp)
	}
	if flat != 0 {
		t.Errorf("uniform image has zero sharpness, got %f", flat)
	}
}

func TestBrightnessScore(t *testing.T) {
	a := newAnalyzer(t)

	balanced := a.brightnessScore(grayscale(checkerboard(64, 64)))
	dark := a.brightnessScore(grayscale(uniform(64, 64, 5)))
	blown := a.brightnessScore(grayscale(uniform(64, 64, 250)))

	if balanced < 0.9 {
		t.Errorf("balanced contrasty image should score high, got %f", balanced)
	}
	if dark > 0.1 {
		t.Errorf("near-black image should score low, got %f", dark)
	}
	if blown > 0.1 {
		t.Errorf("blown-out image should score low, got %f", blown)
	}
}

func TestAnalyzeBands(t *testing.T) {
	a := newAnalyzer(t)

	tests := []struct {
		score float64
		want  Band
	}{
		{score: 0.95, want: BandExcellent},
		{score: 0.8, want: BandExcellent},
		{score: 0.7, want: BandGood},
		{score: 0.5, want: BandFair},
		{score: 0.2, want: BandPoor},
	}
	for _, tt := range tests {
		if got := a.band(tt.score); got != tt.want {
			t.Errorf("score %f: expected %s, got %s", tt.score, tt.want, got)
		}
	}
}

func TestAnalyzeGoodCapture(t *testing.T) {
	a := newAnalyzer(t)

	img := checkerboard(200, 200)
	face := &capture.FaceDescriptor{
		BBox:      []float64{40, 40, 160, 160},
		Landmarks: [][]float64{{70, 90}, {130, 90}, {100, 120}, {80, 140}, {120, 140}},
		DetScore:  0.99,
	}

	r := a.Analyze(img, face)
	if r.Score < 0.8 {
		t.Errorf("expected a high overall score, got %f (%+v)", r.Score, r)
	}
	if !a.Accept(r, 0) {
		t.Error("good capture must pass the default threshold")
	}
}

func TestAcceptThresholdOverride(t *testing.T) {
	a := newAnalyzer(t)
	r := Report{Score: 0.5}

	if !a.Accept(r, 0) {
		t.Error("score 0.5 passes the default threshold")
	}
	if a.Accept(r, 0.6) {
		t.Error("score 0.5 must fail an explicit 0.6 threshold")
	}
	if !a.Accept(r, 0.5) {
		t.Error("score equal to the threshold passes")
	}
	if a.Accept(Report{Score: 0.49}, 0) {
		t.Error("score below the default threshold must fail")
	}
}

func TestDefaultThreshold(t *testing.T) {
	a := newAnalyzer(t)
	if a.Threshold() != 0.5 {
		t.Errorf("expected default threshold 0.5, got %f", a.Threshold())
	}
}

func TestWeightsSumToOne(t *testing.T) {
	weights, _, err := loadWeights()
	if err != nil {
		t.Fatal(err)
	}
	sum := weights.Size + weights.Pose + weights.Sharpness + weights.Brightness
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("expected weights to sum to 1, got %f", sum)
	}
}

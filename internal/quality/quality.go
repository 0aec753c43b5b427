// Package quality scores face captures for enrollment suitability. The
// overall score is a weighted combination of face size, head pose, image
// sharpness and brightness, each normalized to [0, 1].
package quality

import (
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/kozaktomas/faceid/internal/capture"
)

const (
	// DefaultThreshold is the process-wide acceptance threshold used when a
	// call does not override it.
	DefaultThreshold = 0.5

	// roiMaxSide bounds the analyzed face crop; larger crops are downscaled
	// before the pixel statistics run.
	roiMaxSide = 128
)

// Band labels a score range for human-readable reporting.
type Band string

const (
	BandExcellent Band = "excellent"
	BandGood      Band = "good"
	BandFair      Band = "fair"
	BandPoor      Band = "poor"
)

// Report is the result of analyzing one face capture.
type Report struct {
	Score      float64 `json:"score"`
	Band       Band    `json:"band"`
	Size       float64 `json:"size"`
	Pose       float64 `json:"pose"`
	Sharpness  float64 `json:"sharpness"`
	Brightness float64 `json:"brightness"`
}

// Analyzer computes quality reports. Weights and band bounds come from the
// embedded configuration; the acceptance threshold is set at construction.
type Analyzer struct {
	weights   Weights
	bands     Bands
	threshold float64
}

// NewAnalyzer creates an analyzer with the given default acceptance
// threshold. A non-positive threshold falls back to DefaultThreshold.
func NewAnalyzer(threshold float64) (*Analyzer, error) {
	weights, bands, err := loadWeights()
	if err != nil {
		return nil, err
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Analyzer{weights: weights, bands: bands, threshold: threshold}, nil
}

// Threshold returns the default acceptance threshold.
func (a *Analyzer) Threshold() float64 {
	return a.threshold
}

// Analyze scores a detected face within its source image.
func (a *Analyzer) Analyze(img image.Image, face *capture.FaceDescriptor) Report {
	roi := cropROI(img, face.BBox)
	gray := grayscale(roi)

	r := Report{
		Size:       a.sizeScore(img, face.BBox),
		Pose:       a.poseScore(face.Landmarks),
		Sharpness:  a.sharpnessScore(gray),
		Brightness: a.brightnessScore(gray),
	}
	r.Score = r.Size*a.weights.Size +
		r.Pose*a.weights.Pose +
		r.Sharpness*a.weights.Sharpness +
		r.Brightness*a.weights.Brightness
	r.Band = a.band(r.Score)
	return r
}

// Accept reports whether a score passes the threshold. A non-positive
// threshold argument falls back to the analyzer default.
func (a *Analyzer) Accept(r Report, threshold float64) bool {
	if threshold <= 0 {
		threshold = a.threshold
	}
	return r.Score >= threshold
}

func (a *Analyzer) band(score float64) Band {
	switch {
	case score >= a.bands.Excellent:
		return BandExcellent
	case score >= a.bands.Good:
		return BandGood
	case score >= a.bands.Fair:
		return BandFair
	default:
		return BandPoor
	}
}

// sizeScore rates the face area relative to the whole image. Tiny faces
// score zero; faces dominating the frame are usually too close to the
// camera and are capped below the maximum.
func (a *Analyzer) sizeScore(img image.Image, bbox []float64) float64 {
	bounds := img.Bounds()
	imageArea := float64(bounds.Dx() * bounds.Dy())
	if imageArea == 0 || len(bbox) < 4 {
		return 0
	}
	faceArea := math.Max(0, bbox[2]-bbox[0]) * math.Max(0, bbox[3]-bbox[1])
	ratio := faceArea / imageArea

	switch {
	case ratio < 0.05:
		return 0
	case ratio > 0.5:
		return 0.8
	default:
		return math.Min(1, ratio*4)
	}
}

// poseScore rates frontality from the eye line angle and the horizontal
// nose position between the eyes. Without landmarks the pose is unknown
// and scores neutral.
func (a *Analyzer) poseScore(landmarks [][]float64) float64 {
	if len(landmarks) <= capture.LandmarkNose {
		return 0.5
	}
	left := landmarks[capture.LandmarkLeftEye]
	right := landmarks[capture.LandmarkRightEye]
	nose := landmarks[capture.LandmarkNose]
	if len(left) < 2 || len(right) < 2 || len(nose) < 2 {
		return 0.5
	}

	dx := right[0] - left[0]
	dy := right[1] - left[1]
	angle := math.Abs(math.Atan2(dy, dx))
	eyeScore := math.Max(0, 1-angle/(math.Pi/6))

	eyeDist := math.Abs(dx)
	symScore := 0.5
	if eyeDist > 0 {
		midX := (left[0] + right[0]) / 2
		offset := math.Abs(nose[0]-midX) / (eyeDist / 2)
		symScore = math.Max(0, 1-offset)
	}

	return (eyeScore + symScore) / 2
}

// sharpnessScore rates focus via the variance of a 4-neighbor Laplacian
// over the grayscale face crop.
func (a *Analyzer) sharpnessScore(gray *image.Gray) float64 {
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
	variance := sumSq/float64(n) - mean*mean

	return math.Min(1, variance/500)
}

// brightnessScore combines distance from mid-gray exposure with pixel
// contrast.
func (a *Analyzer) brightnessScore(gray *image.Gray) float64 {
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
	variance := sumSq/float64(n) - mean*mean
	std := math.Sqrt(math.Max(0, variance))

	exposure := 1 - math.Abs(mean-127)/127
	contrast := math.Min(std/50, 1)
	return exposure*0.5 + contrast*0.5
}

// cropROI clamps the bounding box to the image and returns the face crop,
// downscaled when it exceeds roiMaxSide. An unusable box falls back to the
// whole image.
func cropROI(img image.Image, bbox []float64) image.Image {
	bounds := img.Bounds()
	rect := bounds
	if len(bbox) >= 4 {
		r := image.Rect(int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3])).Intersect(bounds)
		if !r.Empty() {
			rect = r
		}
	}

	w, h := rect.Dx(), rect.Dy()
	if w <= roiMaxSide && h <= roiMaxSide {
		out := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
		return out
	}

	scale := float64(roiMaxSide) / math.Max(float64(w), float64(h))
	out := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	draw.CatmullRom.Scale(out, out.Bounds(), img, rect, draw.Over, nil)
	return out
}

func grayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

// Package capture talks to the external face detection and embedding
// service and validates incoming image data.
package capture

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoFaceDetected is returned when the detector finds no face in an image.
var ErrNoFaceDetected = errors.New("no face detected in image")

// MultipleFacesError is returned when the detector finds more than one face.
// Multi-face images are a hard failure: the caller must decide which face to
// enroll, so the service never picks one automatically.
type MultipleFacesError struct {
	Count int
}

func (e *MultipleFacesError) Error() string {
	return fmt.Sprintf("expected exactly one face, detected %d", e.Count)
}

// FaceDescriptor is one detected face with its embedding.
type FaceDescriptor struct {
	Embedding []float32   `json:"embedding"`
	Dim       int         `json:"dim"`
	BBox      []float64   `json:"bbox"` // [x1, y1, x2, y2]
	Landmarks [][]float64 `json:"landmarks,omitempty"`
	DetScore  float64     `json:"det_score"`
}

// Landmark indexes in FaceDescriptor.Landmarks when the detector provides
// the standard 5-point layout.
const (
	LandmarkLeftEye = iota
	LandmarkRightEye
	LandmarkNose
	LandmarkMouthLeft
	LandmarkMouthRight
)

// Extractor detects a single face in an image and computes its embedding.
// Implementations return ErrNoFaceDetected or MultipleFacesError for
// images the pipeline must reject.
type Extractor interface {
	ExtractFace(ctx context.Context, imageData []byte) (*FaceDescriptor, error)
}

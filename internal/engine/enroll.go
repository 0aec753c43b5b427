package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/faceid/internal/capture"
	"github.com/kozaktomas/faceid/internal/identity"
	"github.com/kozaktomas/faceid/internal/quality"
)

// enrollConcurrency bounds per-image work inside one enrollment batch.
const enrollConcurrency = 4

// LowQualityError rejects a face whose quality score fell below the
// enrollment threshold.
type LowQualityError struct {
	Score float64
	Band  quality.Band
}

func (e *LowQualityError) Error() string {
	return fmt.Sprintf("face quality too low: score %.2f (%s)", e.Score, e.Band)
}

// EnrollOptions tunes one enrollment call. Zero values use the
// process-wide defaults.
type EnrollOptions struct {
	QualityThreshold float64
}

// EnrollResult summarizes one enrollment batch.
type EnrollResult struct {
	EnrollmentID string                `json:"enrollment_id"`
	PersonID     string                `json:"person_id"`
	Status       identity.Status       `json:"status"`
	FaceCount    int                   `json:"face_count"`
	Failures     []string              `json:"failures,omitempty"`
	Faces        []identity.FaceRecord `json:"faces,omitempty"`
}

// Enroll processes a batch of images for one person. Each image is handled
// independently: a rejected image is recorded and does not abort its
// siblings. Only infrastructure failures (index or store unreachable)
// abort the batch; in that case the enrollment record is marked failed and
// the error propagates alongside the partial result.
func (e *Engine) Enroll(ctx context.Context, personID string, images [][]byte, opts EnrollOptions) (*EnrollResult, error) {
	if len(images) == 0 {
		return nil, errors.New("no images provided")
	}
	if _, err := e.store.GetPerson(ctx, personID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := &identity.EnrollmentRecord{
		ID:        uuid.NewString(),
		PersonID:  personID,
		Status:    identity.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateEnrollment(ctx, record); err != nil {
		return nil, fmt.Errorf("create enrollment: %w", err)
	}

	record.Status = identity.StatusProcessing
	record.UpdatedAt = time.Now().UTC()
	if err := e.store.UpdateEnrollment(ctx, record); err != nil {
		return nil, fmt.Errorf("update enrollment: %w", err)
	}

	var (
		mu       sync.Mutex
		failures []string
		faces    []identity.FaceRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrollConcurrency)
	for i, data := range images {
		g.Go(func() error {
			face, reason, err := e.enrollImage(gctx, personID, data, opts)
			if err != nil {
				return fmt.Errorf("image %d: %w", i+1, err)
			}

			mu.Lock()
			defer mu.Unlock()
			if reason != "" {
				failures = append(failures, fmt.Sprintf("image %d: %s", i+1, reason))
				return nil
			}
			faces = append(faces, *face)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		record.Status = identity.StatusFailed
		record.FaceCount = len(faces)
		record.Failures = failures
		record.Error = err.Error()
		record.UpdatedAt = time.Now().UTC()
		if updateErr := e.store.UpdateEnrollment(ctx, record); updateErr != nil {
			return nil, errors.Join(err, fmt.Errorf("record enrollment failure: %w", updateErr))
		}
		return nil, err
	}

	record.FaceCount = len(faces)
	record.Failures = failures
	record.UpdatedAt = time.Now().UTC()
	if len(faces) > 0 {
		record.Status = identity.StatusCompleted
	} else {
		record.Status = identity.StatusFailed
		record.Error = fmt.Sprintf("all %d images rejected: %s", len(images), strings.Join(failures, "; "))
	}
	if err := e.store.UpdateEnrollment(ctx, record); err != nil {
		return nil, fmt.Errorf("finalize enrollment: %w", err)
	}

	return &EnrollResult{
		EnrollmentID: record.ID,
		PersonID:     personID,
		Status:       record.Status,
		FaceCount:    record.FaceCount,
		Failures:     failures,
		Faces:        faces,
	}, nil
}

// enrollImage runs one image through the full pipeline. A non-empty reason
// means the image was rejected on its own merits; a non-nil error means
// infrastructure failed and the batch must stop.
func (e *Engine) enrollImage(ctx context.Context, personID string, data []byte, opts EnrollOptions) (*identity.FaceRecord, string, error) {
	img, err := capture.DecodeImage(data)
	if err != nil {
		return nil, fmt.Sprintf("invalid image: %v", err), nil
	}

	face, err := e.extractor.ExtractFace(ctx, data)
	if err != nil {
		var multi *capture.MultipleFacesError
		switch {
		case errors.Is(err, capture.ErrNoFaceDetected):
			return nil, "no face detected", nil
		case errors.As(err, &multi):
			return nil, multi.Error(), nil
		default:
			return nil, "", fmt.Errorf("extract face: %w", err)
		}
	}

	report := e.quality.Analyze(img, face)
	if !e.quality.Accept(report, opts.QualityThreshold) {
		reject := &LowQualityError{Score: report.Score, Band: report.Band}
		return nil, reject.Error(), nil
	}

	if _, err := e.gate.Check(ctx, data); err != nil {
		return nil, fmt.Sprintf("liveness check failed: %v", err), nil
	}

	faceID := uuid.NewString()
	if err := e.addToIndex(ctx, [][]float32{face.Embedding}, []string{faceID}); err != nil {
		return nil, "", fmt.Errorf("index add: %w", err)
	}

	record := &identity.FaceRecord{
		ID:        faceID,
		PersonID:  personID,
		Embedding: face.Embedding,
		BBox:      face.BBox,
		Quality:   report.Score,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.AddFace(ctx, record); err != nil {
		return nil, "", fmt.Errorf("persist face: %w", err)
	}
	return record, "", nil
}

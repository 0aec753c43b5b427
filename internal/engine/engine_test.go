package engine

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/kozaktomas/faceid/internal/capture"
	"github.com/kozaktomas/faceid/internal/identity"
	"github.com/kozaktomas/faceid/internal/identity/mock"
	"github.com/kozaktomas/faceid/internal/liveness"
	"github.com/kozaktomas/faceid/internal/quality"
	"github.com/kozaktomas/faceid/internal/vecindex"
)

// fakeExtractor maps image payloads to scripted descriptors or errors.
type fakeExtractor struct {
	faces map[string]*capture.FaceDescriptor
	errs  map[string]error
}

func (f *fakeExtractor) ExtractFace(_ context.Context, data []byte) (*capture.FaceDescriptor, error) {
	if err, ok := f.errs[string(data)]; ok {
		return nil, err
	}
	if face, ok := f.faces[string(data)]; ok {
		return face, nil
	}
	return nil, capture.ErrNoFaceDetected
}

type stubDetector struct {
	result *liveness.Result
	err    error
}

func (d *stubDetector) Check(context.Context, []byte) (*liveness.Result, error) {
	return d.result, d.err
}

func (d *stubDetector) Method() string { return "stub" }

// testImage renders a uniform mid-gray PNG. With the bounding box and
// frontal landmarks used by testFace, the quality score lands near 0.64:
// above the default threshold, below strict ones.
func testImage(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{shade, shade, shade, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func testFace(embedding []float32) *capture.FaceDescriptor {
	return &capture.FaceDescriptor{
		Embedding: embedding,
		Dim:       len(embedding),
		BBox:      []float64{8, 8, 56, 56},
		Landmarks: [][]float64{{24, 28}, {40, 28}, {32, 36}, {26, 44}, {38, 44}},
		DetScore:  0.99,
	}
}

type testEnv struct {
	engine    *Engine
	store     *mock.Store
	extractor *fakeExtractor
}

func newTestEnv(t *testing.T, gate *liveness.Gate) *testEnv {
	t.Helper()

	backend, err := vecindex.New(vecindex.TypeFlat, vecindex.Options{Dimension: 4})
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	analyzer, err := quality.NewAnalyzer(0)
	if err != nil {
		t.Fatalf("new analyzer: %v", err)
	}
	if gate == nil {
		gate = liveness.NewGate(nil, false, false)
	}

	store := mock.NewStore()
	extractor := &fakeExtractor{
		faces: make(map[string]*capture.FaceDescriptor),
		errs:  make(map[string]error),
	}
	eng := New(backend, store, extractor, analyzer, gate, Config{Workers: 2})
	t.Cleanup(eng.Close)

	return &testEnv{engine: eng, store: store, extractor: extractor}
}

func (env *testEnv) addPerson(t *testing.T, name string) string {
	t.Helper()
	person := &identity.Person{ID: "person-" + name, Name: name, CreatedAt: time.Now()}
	if err := env.store.CreatePerson(context.Background(), person); err != nil {
		t.Fatalf("create person: %v", err)
	}
	return person.ID
}

// enrollOne pushes a single image with the given embedding through the
// full pipeline and returns the assigned face ID.
func (env *testEnv) enrollOne(t *testing.T, personID string, shade uint8, embedding []float32) string {
	t.Helper()
	img := testImage(t, shade)
	env.extractor.faces[string(img)] = testFace(embedding)

	result, err := env.engine.Enroll(context.Background(), personID, [][]byte{img}, EnrollOptions{})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if result.FaceCount != 1 {
		t.Fatalf("expected 1 enrolled face, got %d (failures: %v)", result.FaceCount, result.Failures)
	}
	return result.Faces[0].ID
}

func TestEnrollPartialFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	personID := env.addPerson(t, "Alice")

	good := testImage(t, 127)
	noFace := testImage(t, 100)
	crowd := testImage(t, 80)
	env.extractor.faces[string(good)] = testFace([]float32{1, 0, 0, 0})
	env.extractor.errs[string(crowd)] = &capture.MultipleFacesError{Count: 3}

	result, err := env.engine.Enroll(context.Background(), personID, [][]byte{good, noFace, crowd}, EnrollOptions{})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}

	if result.Status != identity.StatusCompleted {
		t.Errorf("expected completed, got %s", result.Status)
	}
	if result.FaceCount != 1 {
		t.Errorf("expected face_count 1, got %d", result.FaceCount)
	}
	if len(result.Failures) != 2 {
		t.Errorf("expected 2 recorded failures, got %v", result.Failures)
	}

	record, err := env.store.GetEnrollment(context.Background(), result.EnrollmentID)
	if err != nil {
		t.Fatalf("get enrollment: %v", err)
	}
	if record.Status != identity.StatusCompleted || record.FaceCount != 1 {
		t.Errorf("persisted record mismatch: %+v", record)
	}
}

func TestEnrollAllRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	personID := env.addPerson(t, "Bob")

	img := testImage(t, 127)
	// No descriptor registered, so extraction reports no face.
	result, err := env.engine.Enroll(context.Background(), personID, [][]byte{img}, EnrollOptions{})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}

	if result.Status != identity.StatusFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
	if result.FaceCount != 0 {
		t.Errorf("expected face_count 0, got %d", result.FaceCount)
	}

	record, err := env.store.GetEnrollment(context.Background(), result.EnrollmentID)
	if err != nil {
		t.Fatalf("get enrollment: %v", err)
	}
	if record.Error == "" {
		t.Error("expected aggregated error message on failed record")
	}
}

func TestEnrollQualityRejection(t *testing.T) {
	env := newTestEnv(t, nil)
	personID := env.addPerson(t, "Carol")

	img := testImage(t, 127)
	env.extractor.faces[string(img)] = testFace([]float32{1, 0, 0, 0})

	result, err := env.engine.Enroll(context.Background(), personID, [][]byte{img}, EnrollOptions{QualityThreshold: 0.95})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if result.Status != identity.StatusFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %v", result.Failures)
	}
}

func TestEnrollInfrastructureAbort(t *testing.T) {
	env := newTestEnv(t, nil)
	personID := env.addPerson(t, "Dave")

	img := testImage(t, 127)
	env.extractor.errs[string(img)] = errors.New("detector unreachable")

	_, err := env.engine.Enroll(context.Background(), personID, [][]byte{img}, EnrollOptions{})
	if err == nil {
		t.Fatal("expected infrastructure error to propagate")
	}
}

func TestEnrollUnknownPerson(t *testing.T) {
	env := newTestEnv(t, nil)

	img := testImage(t, 127)
	_, err := env.engine.Enroll(context.Background(), "person-missing", [][]byte{img}, EnrollOptions{})
	if !errors.Is(err, identity.ErrPersonNotFound) {
		t.Errorf("expected ErrPersonNotFound, got %v", err)
	}
}

func TestEnrollLivenessRejection(t *testing.T) {
	detector := &stubDetector{result: &liveness.Result{Live: false, Confidence: 0.1, Method: "stub"}}
	env := newTestEnv(t, liveness.NewGate(detector, true, false))
	personID := env.addPerson(t, "Eve")

	img := testImage(t, 127)
	env.extractor.faces[string(img)] = testFace([]float32{1, 0, 0, 0})

	result, err := env.engine.Enroll(context.Background(), personID, [][]byte{img}, EnrollOptions{})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if result.Status != identity.StatusFailed || len(result.Failures) != 1 {
		t.Errorf("expected liveness rejection recorded, got %+v", result)
	}
}

func TestIdentify(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.addPerson(t, "Alice")
	bob := env.addPerson(t, "Bob")
	env.enrollOne(t, alice, 127, []float32{1, 0, 0, 0})
	env.enrollOne(t, bob, 126, []float32{0, 1, 0, 0})

	query := testImage(t, 125)
	env.extractor.faces[string(query)] = testFace([]float32{1, 0, 0, 0})

	result, err := env.engine.Identify(context.Background(), query, IdentifyOptions{})
	if err != nil {
		t.Fatalf("identify: %v", err)
	}

	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 match above threshold, got %d", len(result.Matches))
	}
	match := result.Matches[0]
	if match.PersonID != alice || match.PersonName != "Alice" {
		t.Errorf("unexpected match %+v", match)
	}
	if match.Score < 0.999 {
		t.Errorf("expected self-similarity near 1, got %f", match.Score)
	}
	if result.Quality.Score <= 0 {
		t.Error("expected informational quality report")
	}
}

func TestIdentifyEmptyIndex(t *testing.T) {
	env := newTestEnv(t, nil)

	query := testImage(t, 127)
	env.extractor.faces[string(query)] = testFace([]float32{1, 0, 0, 0})

	result, err := env.engine.Identify(context.Background(), query, IdentifyOptions{})
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if len(result.Matches) != 0 {
		t.Errorf("expected no matches, got %v", result.Matches)
	}
}

func TestIdentifyDropsDanglingMapping(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.addPerson(t, "Alice")
	faceID := env.enrollOne(t, alice, 127, []float32{1, 0, 0, 0})

	// Delete from the store only. The index still maps the external ID.
	if err := env.store.DeleteFace(context.Background(), faceID); err != nil {
		t.Fatalf("delete face: %v", err)
	}

	query := testImage(t, 125)
	env.extractor.faces[string(query)] = testFace([]float32{1, 0, 0, 0})

	result, err := env.engine.Identify(context.Background(), query, IdentifyOptions{})
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if len(result.Matches) != 0 {
		t.Errorf("expected dangling match dropped, got %v", result.Matches)
	}
}

func TestIdentifyLivenessFailure(t *testing.T) {
	detector := &stubDetector{result: &liveness.Result{Live: false, Confidence: 0.2, Method: "stub"}}
	env := newTestEnv(t, liveness.NewGate(detector, true, false))

	query := testImage(t, 127)
	env.extractor.faces[string(query)] = testFace([]float32{1, 0, 0, 0})

	_, err := env.engine.Identify(context.Background(), query, IdentifyOptions{})
	var failed *liveness.CheckFailedError
	if !errors.As(err, &failed) {
		t.Errorf("expected CheckFailedError, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.addPerson(t, "Alice")
	bob := env.addPerson(t, "Bob")
	env.enrollOne(t, alice, 127, []float32{1, 0, 0, 0})
	env.enrollOne(t, bob, 126, []float32{0, 1, 0, 0})

	query := testImage(t, 125)
	env.extractor.faces[string(query)] = testFace([]float32{1, 0, 0, 0})

	t.Run("matching identity", func(t *testing.T) {
		result, err := env.engine.Verify(context.Background(), alice, query, 0)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if !result.Verified || result.Score < 0.999 {
			t.Errorf("expected verified with score near 1, got %+v", result)
		}
	})

	t.Run("wrong identity", func(t *testing.T) {
		result, err := env.engine.Verify(context.Background(), bob, query, 0)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if result.Verified {
			t.Errorf("expected not verified, got %+v", result)
		}
	})

	t.Run("zero enrolled faces", func(t *testing.T) {
		carol := env.addPerson(t, "Carol")
		result, err := env.engine.Verify(context.Background(), carol, query, 0)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if result.Verified || result.Score != 0 {
			t.Errorf("expected deterministic not-verified, got %+v", result)
		}
	})

	t.Run("unknown identity", func(t *testing.T) {
		_, err := env.engine.Verify(context.Background(), "person-missing", query, 0)
		if !errors.Is(err, identity.ErrPersonNotFound) {
			t.Errorf("expected ErrPersonNotFound, got %v", err)
		}
	})
}

func TestDeleteFace(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.addPerson(t, "Alice")
	faceID := env.enrollOne(t, alice, 127, []float32{1, 0, 0, 0})

	if err := env.engine.DeleteFace(context.Background(), faceID); err != nil {
		t.Fatalf("delete face: %v", err)
	}

	query := testImage(t, 125)
	env.extractor.faces[string(query)] = testFace([]float32{1, 0, 0, 0})
	result, err := env.engine.Identify(context.Background(), query, IdentifyOptions{})
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if len(result.Matches) != 0 {
		t.Errorf("expected deleted face unreachable, got %v", result.Matches)
	}

	if err := env.engine.DeleteFace(context.Background(), faceID); !errors.Is(err, identity.ErrFaceNotFound) {
		t.Errorf("expected ErrFaceNotFound on second delete, got %v", err)
	}
}

func TestReindex(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.addPerson(t, "Alice")
	bob := env.addPerson(t, "Bob")
	env.enrollOne(t, alice, 127, []float32{1, 0, 0, 0})
	env.enrollOne(t, bob, 126, []float32{0, 1, 0, 0})

	faceID := env.enrollOne(t, alice, 124, []float32{0, 0, 1, 0})
	if err := env.engine.DeleteFace(context.Background(), faceID); err != nil {
		t.Fatalf("delete face: %v", err)
	}

	count, err := env.engine.Reindex(context.Background())
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 reindexed faces, got %d", count)
	}

	stats := env.engine.IndexStats()
	if stats.Size != 2 || stats.Removed != 0 {
		t.Errorf("expected compacted index, got %+v", stats)
	}
}

func TestSaveLoadIndex(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.addPerson(t, "Alice")
	env.enrollOne(t, alice, 127, []float32{1, 0, 0, 0})

	path := t.TempDir() + "/index"
	if err := env.engine.SaveIndex(context.Background(), path); err != nil {
		t.Fatalf("save index: %v", err)
	}
	if err := env.engine.ClearIndex(context.Background()); err != nil {
		t.Fatalf("clear index: %v", err)
	}
	if stats := env.engine.IndexStats(); stats.Size != 0 {
		t.Fatalf("expected empty index after clear, got %+v", stats)
	}
	if err := env.engine.LoadIndex(context.Background(), path); err != nil {
		t.Fatalf("load index: %v", err)
	}

	query := testImage(t, 125)
	env.extractor.faces[string(query)] = testFace([]float32{1, 0, 0, 0})
	result, err := env.engine.Identify(context.Background(), query, IdentifyOptions{})
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if len(result.Matches) != 1 {
		t.Errorf("expected reloaded index to match, got %v", result.Matches)
	}
}

package handlers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/faceid/internal/capture"
	"github.com/kozaktomas/faceid/internal/engine"
	"github.com/kozaktomas/faceid/internal/identity"
	"github.com/kozaktomas/faceid/internal/identity/mock"
	"github.com/kozaktomas/faceid/internal/liveness"
	"github.com/kozaktomas/faceid/internal/quality"
	"github.com/kozaktomas/faceid/internal/vecindex"
)

// scriptedExtractor maps image payloads to canned face descriptors.
type scriptedExtractor struct {
	faces map[string]*capture.FaceDescriptor
}

func (s *scriptedExtractor) ExtractFace(_ context.Context, data []byte) (*capture.FaceDescriptor, error) {
	if face, ok := s.faces[string(data)]; ok {
		return face, nil
	}
	return nil, capture.ErrNoFaceDetected
}

type testEnv struct {
	engine    *engine.Engine
	store     *mock.Store
	extractor *scriptedExtractor
}

// newTestEnv wires an engine on a flat 4-dimensional index with an
// in-memory store and a disabled liveness gate.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	backend, err := vecindex.New(vecindex.TypeFlat, vecindex.Options{Dimension: 4})
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	analyzer, err := quality.NewAnalyzer(0)
	if err != nil {
		t.Fatalf("new analyzer: %v", err)
	}

	store := mock.NewStore()
	extractor := &scriptedExtractor{faces: make(map[string]*capture.FaceDescriptor)}
	eng := engine.New(backend, store, extractor, analyzer,
		liveness.NewGate(nil, false, false), engine.Config{Workers: 2})
	t.Cleanup(eng.Close)

	return &testEnv{engine: eng, store: store, extractor: extractor}
}

// testImage renders a uniform gray PNG. Distinct shades give distinct
// payloads for the scripted extractor.
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

func (env *testEnv) addPerson(t *testing.T, name string) string {
	t.Helper()
	person := &identity.Person{ID: "person-" + name, Name: name, CreatedAt: time.Now()}
	if err := env.store.CreatePerson(context.Background(), person); err != nil {
		t.Fatalf("create person: %v", err)
	}
	return person.ID
}

func (env *testEnv) enrollOne(t *testing.T, personID string, shade uint8, embedding []float32) string {
	t.Helper()
	img := testImage(t, shade)
	env.extractor.faces[string(img)] = testFace(embedding)

	result, err := env.engine.Enroll(context.Background(), personID, [][]byte{img}, engine.EnrollOptions{})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if result.FaceCount != 1 {
		t.Fatalf("expected 1 enrolled face, got %d (failures: %v)", result.FaceCount, result.Failures)
	}
	return result.Faces[0].ID
}

// requestWithChiParams attaches chi URL parameters to a request.
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// multipartRequest builds a multipart request with image files under the
// given field plus optional form values.
func multipartRequest(t *testing.T, path, field string, images [][]byte, values map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for i, img := range images {
		part, err := writer.CreateFormFile(field, "face.png")
		if err != nil {
			t.Fatalf("create form file %d: %v", i, err)
		}
		if _, err := part.Write(img); err != nil {
			t.Fatalf("write form file %d: %v", i, err)
		}
	}
	for key, value := range values {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

package vecindex

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"
)

func newTestIVF(t *testing.T, trainMin int) *IVFPQ {
	t.Helper()
	ix, err := NewIVFPQ(Options{
		Dimension:       4,
		Clusters:        2,
		Subvectors:      2,
		TrainMinSamples: trainMin,
		ProbeRatio:      1,
		ProbeLimit:      4,
	})
	if err != nil {
		t.Fatalf("failed to construct IVF-PQ: %v", err)
	}
	return ix
}

func addClusteredVectors(t *testing.T, ix *IVFPQ, start, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	vectors := make([][]float32, 0, n)
	for i := start; i < start+n; i++ {
		id := fmt.Sprintf("face-%03d", i)
		jitter := float32(i) * 0.01
		var v []float32
		if i%2 == 0 {
			v = []float32{1, jitter, 0, 0}
		} else {
			v = []float32{0, 0, 1, jitter}
		}
		ids = append(ids, id)
		vectors = append(vectors, v)
	}
	if err := ix.Add(vectors, ids); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	return ids
}

func TestIVFUntrainedSearchReturnsEmpty(t *testing.T) {
	ix := newTestIVF(t, 100)
	addClusteredVectors(t, ix, 0, 10)

	if ix.Size() != 0 {
		t.Errorf("untrained index must report size 0, got %d", ix.Size())
	}
	matches, err := ix.Search([]float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("untrained search must not error: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("untrained search must return empty, got %d matches", len(matches))
	}

	stats := ix.Stats()
	if stats.Trained {
		t.Error("stats must report untrained")
	}
	if stats.Buffered != 10 {
		t.Errorf("expected 10 buffered vectors, got %d", stats.Buffered)
	}
}

func TestIVFTrainingTransition(t *testing.T) {
	ix := newTestIVF(t, 8)
	addClusteredVectors(t, ix, 0, 6)
	if ix.Stats().Trained {
		t.Fatal("index trained before reaching the minimum")
	}

	// Crossing the threshold trains and inserts the buffer.
	addClusteredVectors(t, ix, 6, 4)
	stats := ix.Stats()
	if !stats.Trained {
		t.Fatal("index must train once the buffer reaches the minimum")
	}
	if stats.Buffered != 0 {
		t.Errorf("buffer must drain into the index, %d left", stats.Buffered)
	}
	if ix.Size() != 10 {
		t.Errorf("expected size 10 after training insertion, got %d", ix.Size())
	}
}

func TestIVFSearchAfterTraining(t *testing.T) {
	ix := newTestIVF(t, 8)
	addClusteredVectors(t, ix, 0, 10)

	matches, err := ix.Search([]float32{1, 0, 0, 0}, 3)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	if matches[0].ExternalID != "face-000" {
		t.Errorf("expected face-000 as best match, got %s", matches[0].ExternalID)
	}
	if math.Abs(float64(matches[0].Score)-1) > 0.05 {
		t.Errorf("expected near-1 score for near-identical vector, got %f", matches[0].Score)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Error("matches must be ordered by descending score")
		}
	}
}

func TestIVFAddAfterTraining(t *testing.T) {
	ix := newTestIVF(t, 8)
	addClusteredVectors(t, ix, 0, 8)

	if err := ix.Add([][]float32{{0.99, 0.01, 0, 0}}, []string{"face-late"}); err != nil {
		t.Fatalf("add after training failed: %v", err)
	}
	if ix.Size() != 9 {
		t.Errorf("expected size 9, got %d", ix.Size())
	}

	matches, err := ix.Search([]float32{0.99, 0.01, 0, 0}, 9)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, m := range matches {
		if m.ExternalID == "face-late" {
			found = true
		}
	}
	if !found {
		t.Error("entry added after training must be searchable")
	}
}

func TestIVFRemove(t *testing.T) {
	ix := newTestIVF(t, 8)
	ids := addClusteredVectors(t, ix, 0, 10)

	if err := ix.Remove(ids[0]); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if ix.Size() != 9 {
		t.Errorf("expected size 9 after remove, got %d", ix.Size())
	}

	matches, err := ix.Search([]float32{1, 0, 0, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range matches {
		if m.ExternalID == ids[0] {
			t.Error("removed entry must not appear in search results")
		}
	}
}

func TestIVFRemoveBuffered(t *testing.T) {
	ix := newTestIVF(t, 100)
	ids := addClusteredVectors(t, ix, 0, 4)

	if err := ix.Remove(ids[1]); err != nil {
		t.Fatal(err)
	}
	if got := ix.Stats().Buffered; got != 3 {
		t.Errorf("expected 3 buffered after remove, got %d", got)
	}
}

func TestIVFSaveLoadUntrained(t *testing.T) {
	ix := newTestIVF(t, 100)
	addClusteredVectors(t, ix, 0, 5)

	path := filepath.Join(t.TempDir(), "index.ivf")
	if err := ix.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded := newTestIVF(t, 100)
	if err := loaded.Load(path); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	stats := loaded.Stats()
	if stats.Trained {
		t.Error("loaded index must still be untrained")
	}
	if stats.Buffered != 5 {
		t.Errorf("expected 5 buffered vectors after load, got %d", stats.Buffered)
	}
}

func TestIVFSaveLoadTrained(t *testing.T) {
	ix := newTestIVF(t, 8)
	addClusteredVectors(t, ix, 0, 10)

	path := filepath.Join(t.TempDir(), "index.ivf")
	if err := ix.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded := newTestIVF(t, 8)
	if err := loaded.Load(path); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Size() != ix.Size() {
		t.Fatalf("size mismatch after load: %d vs %d", loaded.Size(), ix.Size())
	}

	query := []float32{1, 0, 0, 0}
	want, err := ix.Search(query, 5)
	if err != nil {
		t.Fatal(err)
	}
	got, err := loaded.Search(query, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(want) != len(got) {
		t.Fatalf("result count mismatch: %d vs %d", len(want), len(got))
	}
	for i := range want {
		if want[i].ExternalID != got[i].ExternalID {
			t.Errorf("result %d mismatch: %s vs %s", i, want[i].ExternalID, got[i].ExternalID)
		}
	}
}

func TestIVFLoadRejectsDifferentQuantizerShape(t *testing.T) {
	ix := newTestIVF(t, 8)
	addClusteredVectors(t, ix, 0, 10)

	path := filepath.Join(t.TempDir(), "index.ivf")
	if err := ix.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	other, err := NewIVFPQ(Options{
		Dimension:       4,
		Clusters:        2,
		Subvectors:      4,
		TrainMinSamples: 8,
		ProbeRatio:      1,
		ProbeLimit:      4,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := other.Load(path); err == nil {
		t.Fatal("load must reject an index saved with a different quantizer shape")
	}
}

func TestIVFRebuildIsNoOp(t *testing.T) {
	ix := newTestIVF(t, 8)
	addClusteredVectors(t, ix, 0, 10)

	before := ix.Size()
	if err := ix.Rebuild(); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if ix.Size() != before {
		t.Errorf("rebuild must not change size: %d vs %d", ix.Size(), before)
	}
	if got := ix.Stats().Rebuilds; got != 1 {
		t.Errorf("expected rebuild counter 1, got %d", got)
	}
}

func TestIVFDefaultTrainingMinimum(t *testing.T) {
	ix, err := NewIVFPQ(Options{Dimension: 4, Clusters: 100, Subvectors: 2})
	if err != nil {
		t.Fatal(err)
	}
	if ix.trainMin != 10000 {
		t.Errorf("expected training minimum 10000, got %d", ix.trainMin)
	}

	// A large cluster count raises the minimum above the floor.
	ix, err = NewIVFPQ(Options{Dimension: 4, Clusters: 500, Subvectors: 2})
	if err != nil {
		t.Fatal(err)
	}
	if ix.trainMin != 20000 {
		t.Errorf("expected training minimum 20000, got %d", ix.trainMin)
	}
}

func TestIVFSubvectorsMustDivideDimension(t *testing.T) {
	_, err := NewIVFPQ(Options{Dimension: 10, Subvectors: 3})
	if err == nil {
		t.Fatal("expected construction to fail when subvectors do not divide dimension")
	}
}

package vecindex

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"sync"
)

const flatFileVersion = 1

// Flat is an exact-search backend. Vectors are stored in one contiguous
// float32 slice and every search scans all of them, so results are exact
// cosine similarity with O(n*d) latency. Remove only invalidates the ID
// mapping; dead rows stay in memory until the caller re-adds live vectors
// into a fresh instance.
type Flat struct {
	mu      sync.RWMutex
	dim     int
	rows    []float32 // contiguous, len == count*dim
	ids     []uint32  // internal ID per row
	idmap   *identifierMap
	removed int
}

// NewFlat creates an empty exact index for vectors of the given dimension.
func NewFlat(dimension int) *Flat {
	return &Flat{
		dim:   dimension,
		idmap: newIdentifierMap(),
	}
}

// Add normalizes and inserts a batch of vectors under the given external
// IDs. Internal IDs for the whole batch are reserved up front, so a
// mid-batch failure leaves already-inserted entries in place and never
// reuses a reserved ID.
func (f *Flat) Add(vectors [][]float32, externalIDs []string) error {
	if len(vectors) != len(externalIDs) {
		return ErrLengthMismatch
	}
	for _, v := range vectors {
		if len(v) != f.dim {
			return &DimensionMismatchError{Expected: f.dim, Actual: len(v)}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	first := f.idmap.Reserve(len(vectors))
	for i, v := range vectors {
		normalized, err := Normalize(v)
		if err != nil {
			return fmt.Errorf("vector %d: %w", i, err)
		}
		internal := first + uint32(i)
		f.rows = append(f.rows, normalized...)
		f.ids = append(f.ids, internal)
		f.idmap.Bind(internal, externalIDs[i])
	}
	return nil
}

// Search returns up to k nearest entries by cosine similarity. Rows whose
// internal ID is no longer mapped are skipped.
func (f *Flat) Search(query []float32, k int) ([]Match, error) {
	if len(query) != f.dim {
		return nil, &DimensionMismatchError{Expected: f.dim, Actual: len(query)}
	}
	if k <= 0 {
		return nil, nil
	}
	normalized, err := Normalize(query)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	best := make(matchHeap, 0, k)
	for i, internal := range f.ids {
		external, ok := f.idmap.External(internal)
		if !ok {
			continue
		}
		row := f.rows[i*f.dim : (i+1)*f.dim]
		best.offer(Match{ExternalID: external, Score: Dot(normalized, row)}, k)
	}

	matches := []Match(best)
	sortMatches(matches)
	return matches, nil
}

// Remove invalidates the mapping for the given external IDs. The vectors
// remain physically present but unreachable. Unknown IDs are ignored.
func (f *Flat) Remove(externalIDs ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range externalIDs {
		if _, ok := f.idmap.Remove(id); ok {
			f.removed++
		}
	}
	return nil
}

type flatFile struct {
	Version int
	Dim     int
	Rows    []float32
	IDs     []uint32
	Removed int
}

// Save persists the vector storage as gob at path and the ID mapping as
// versioned JSON at path+".map".
func (f *Flat) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var buf bytes.Buffer
	file := flatFile{Version: flatFileVersion, Dim: f.dim, Rows: f.rows, IDs: f.ids, Removed: f.removed}
	if err := gob.NewEncoder(&buf).Encode(file); err != nil {
		return &IndexError{Op: "save", Err: fmt.Errorf("failed to encode flat index: %w", err)}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return &IndexError{Op: "save", Err: fmt.Errorf("failed to write flat index file: %w", err)}
	}
	if err := f.idmap.Save(path + ".map"); err != nil {
		return &IndexError{Op: "save", Err: err}
	}
	return nil
}

// Load replaces the index contents from files written by Save.
func (f *Flat) Load(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return &IndexError{Op: "load", Err: fmt.Errorf("failed to read flat index file: %w", err)}
	}
	var file flatFile
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&file); err != nil {
		return &IndexError{Op: "load", Err: fmt.Errorf("failed to decode flat index: %w", err)}
	}
	if file.Version != flatFileVersion {
		return &IndexError{Op: "load", Err: fmt.Errorf("unsupported flat index version %d", file.Version)}
	}
	if file.Dim != f.dim {
		return &IndexError{Op: "load", Err: &DimensionMismatchError{Expected: f.dim, Actual: file.Dim}}
	}

	idmap := newIdentifierMap()
	if err := idmap.Load(path + ".map"); err != nil {
		return &IndexError{Op: "load", Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = file.Rows
	f.ids = file.IDs
	f.removed = file.Removed
	f.idmap = idmap
	return nil
}

// Clear drops all vectors and mappings. The internal ID counter is kept so
// IDs are never reused within the process lifetime.
func (f *Flat) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rows = nil
	f.ids = nil
	f.removed = 0
	f.idmap.Clear()
	return nil
}

// Rebuild is a no-op: the flat index does not reclaim removed rows itself.
func (f *Flat) Rebuild() error {
	return nil
}

// Size returns the number of reachable entries.
func (f *Flat) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.idmap.Len()
}

// Dimension returns the configured vector dimension.
func (f *Flat) Dimension() int {
	return f.dim
}

// Stats returns a diagnostics snapshot.
func (f *Flat) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Stats{
		Type:      string(TypeFlat),
		Dimension: f.dim,
		Size:      f.idmap.Len(),
		Removed:   f.removed,
	}
}

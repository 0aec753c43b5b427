package vecindex

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"
)

const defaultMaxNeighbors = 16

// HNSW is an approximate backend built on a hierarchical navigable small
// world graph. The graph itself does not support deletion, so Remove only
// invalidates the ID mapping and search results are filtered through it.
type HNSW struct {
	mu           sync.RWMutex
	dim          int
	maxNeighbors int
	graph        *hnsw.Graph[uint32]
	idmap        *identifierMap
	removed      int
}

// NewHNSW creates an empty HNSW backend.
func NewHNSW(opts Options) *HNSW {
	maxNeighbors := opts.MaxNeighbors
	if maxNeighbors <= 0 {
		maxNeighbors = defaultMaxNeighbors
	}
	h := &HNSW{
		dim:          opts.Dimension,
		maxNeighbors: maxNeighbors,
		idmap:        newIdentifierMap(),
	}
	h.graph = h.newGraph()
	return h
}

func (h *HNSW) newGraph() *hnsw.Graph[uint32] {
	g := hnsw.NewGraph[uint32]()
	g.M = h.maxNeighbors
	g.Ml = 1.0 / float64(h.maxNeighbors)
	g.Distance = hnsw.CosineDistance
	return g
}

// Add normalizes and inserts a batch of vectors into the graph.
func (h *HNSW) Add(vectors [][]float32, externalIDs []string) error {
	if len(vectors) != len(externalIDs) {
		return ErrLengthMismatch
	}
	for _, v := range vectors {
		if len(v) != h.dim {
			return &DimensionMismatchError{Expected: h.dim, Actual: len(v)}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	first := h.idmap.Reserve(len(vectors))
	for i, v := range vectors {
		normalized, err := Normalize(v)
		if err != nil {
			return fmt.Errorf("vector %d: %w", i, err)
		}
		internal := first + uint32(i)
		h.graph.Add(hnsw.MakeNode(internal, normalized))
		h.idmap.Bind(internal, externalIDs[i])
	}
	return nil
}

// Search returns up to k approximate nearest entries. Because removed
// entries still occupy graph nodes, the graph is over-queried and results
// are filtered through the ID mapping.
func (h *HNSW) Search(query []float32, k int) ([]Match, error) {
	if len(query) != h.dim {
		return nil, &DimensionMismatchError{Expected: h.dim, Actual: len(query)}
	}
	if k <= 0 {
		return nil, nil
	}
	normalized, err := Normalize(query)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	fetch := k + h.removed
	neighbors := h.graph.Search(normalized, fetch)

	matches := make([]Match, 0, k)
	for _, n := range neighbors {
		external, ok := h.idmap.External(n.Key)
		if !ok {
			continue
		}
		matches = append(matches, Match{ExternalID: external, Score: Dot(normalized, n.Value)})
		if len(matches) == k {
			break
		}
	}
	sortMatches(matches)
	return matches, nil
}

// Remove invalidates the mapping for the given external IDs. The graph
// nodes stay in place and are skipped at search time.
func (h *HNSW) Remove(externalIDs ...string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range externalIDs {
		if _, ok := h.idmap.Remove(id); ok {
			h.removed++
		}
	}
	return nil
}

// Save exports the graph to path and the ID mapping to path+".map".
func (h *HNSW) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return &IndexError{Op: "save", Err: fmt.Errorf("failed to create HNSW index file: %w", err)}
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return &IndexError{Op: "save", Err: fmt.Errorf("failed to export HNSW graph: %w", err)}
	}
	if err := h.idmap.Save(path + ".map"); err != nil {
		return &IndexError{Op: "save", Err: err}
	}
	return nil
}

// Load replaces the graph and mapping from files written by Save.
func (h *HNSW) Load(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return &IndexError{Op: "load", Err: fmt.Errorf("failed to open HNSW index file: %w", err)}
	}
	defer f.Close()

	// Import decodes varints and needs an io.ByteReader.
	graph := h.newGraph()
	if err := graph.Import(bufio.NewReader(f)); err != nil {
		return &IndexError{Op: "load", Err: fmt.Errorf("failed to import HNSW graph: %w", err)}
	}

	idmap := newIdentifierMap()
	if err := idmap.Load(path + ".map"); err != nil {
		return &IndexError{Op: "load", Err: err}
	}

	// Removed entries survive as graph nodes without a mapping; the count
	// drives search over-querying so it must be restored.
	removed := graph.Len() - idmap.Len()
	if removed < 0 {
		removed = 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = graph
	h.idmap = idmap
	h.removed = removed
	return nil
}

// Clear replaces the graph with a fresh one. The internal ID counter is
// kept.
func (h *HNSW) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = h.newGraph()
	h.removed = 0
	h.idmap.Clear()
	return nil
}

// Rebuild is a no-op; the graph does not compact removed nodes.
func (h *HNSW) Rebuild() error {
	return nil
}

// Size returns the number of reachable entries.
func (h *HNSW) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.idmap.Len()
}

// Dimension returns the configured vector dimension.
func (h *HNSW) Dimension() int {
	return h.dim
}

// Stats returns a diagnostics snapshot.
func (h *HNSW) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Type:      string(TypeHNSW),
		Dimension: h.dim,
		Size:      h.idmap.Len(),
		Removed:   h.removed,
	}
}

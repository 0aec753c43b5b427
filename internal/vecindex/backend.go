// Package vecindex implements in-process vector similarity indexes for face
// embeddings. All backends score by cosine similarity over L2-normalized
// vectors and map compact internal IDs to caller-owned external string IDs.
package vecindex

import (
	"fmt"
	"sort"
)

// Type selects an index backend implementation. The set is closed: unknown
// strings fail ParseType instead of silently falling back to flat.
type Type string

const (
	TypeFlat     Type = "flat"
	TypeIVFPQ    Type = "ivfpq"
	TypeHNSW     Type = "hnsw"
	TypeExternal Type = "external"
)

// ParseType validates a backend selector string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeFlat, TypeIVFPQ, TypeHNSW, TypeExternal:
		return Type(s), nil
	default:
		return "", fmt.Errorf("unknown index backend type %q", s)
	}
}

// Match is a single search result. Score is cosine similarity in [-1, 1],
// higher is more similar.
type Match struct {
	ExternalID string  `json:"external_id"`
	Score      float32 `json:"score"`
}

// Stats is a snapshot of backend internals for diagnostics.
type Stats struct {
	Type      string `json:"type"`
	Dimension int    `json:"dimension"`
	Size      int    `json:"size"`
	Removed   int    `json:"removed"`
	Trained   bool   `json:"trained,omitempty"`
	Clusters  int    `json:"clusters,omitempty"`
	Probe     int    `json:"probe,omitempty"`
	Buffered  int    `json:"buffered,omitempty"`
	Rebuilds  int    `json:"rebuilds,omitempty"`
}

// Backend is the index contract shared by all implementations.
//
// Add assigns internal IDs sequentially from a running counter; the counter
// advances by the full batch size even if a later entry fails mid-batch
// (at-least-reserved, so retries never reuse an ID). Remove may be
// implemented as mapping invalidation only, leaving the vector physically
// present but unreachable; such backends accumulate dead rows until Rebuild.
// A no-op Rebuild is a valid implementation.
type Backend interface {
	Add(vectors [][]float32, externalIDs []string) error
	Search(query []float32, k int) ([]Match, error)
	Remove(externalIDs ...string) error
	Save(path string) error
	Load(path string) error
	Clear() error
	Rebuild() error
	Size() int
	Dimension() int
	Stats() Stats
}

// Options configures backend construction. Zero values fall back to
// defaults where a default exists; Dimension is always required.
type Options struct {
	Dimension int

	// IVF-PQ tuning.
	Clusters        int     // coarse clusters, default 100
	Subvectors      int     // PQ subquantizers, default 8; must divide Dimension
	Bits            int     // bits per PQ code, default 8, max 8
	TrainMinSamples int     // default max(Clusters*40, 10000)
	ProbeRatio      float64 // fraction of clusters probed per search, default 0.25
	ProbeLimit      int     // upper bound on probed clusters, default 16

	// HNSW tuning.
	MaxNeighbors int // graph M parameter, default 16

	// External backend.
	Endpoint string
}

// New constructs a backend of the given type. Configuration errors surface
// here, not on first use.
func New(t Type, opts Options) (Backend, error) {
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", opts.Dimension)
	}

	switch t {
	case TypeFlat:
		return NewFlat(opts.Dimension), nil
	case TypeIVFPQ:
		return NewIVFPQ(opts)
	case TypeHNSW:
		return NewHNSW(opts), nil
	case TypeExternal:
		return NewExternal(opts)
	default:
		return nil, fmt.Errorf("unknown index backend type %q", t)
	}
}

// sortMatches orders results by descending score, ties broken by ascending
// external ID so equal-score results are deterministic.
func sortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ExternalID < matches[j].ExternalID
	})
}

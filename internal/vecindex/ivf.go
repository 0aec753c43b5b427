package vecindex

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math/rand"
	"os"
	"sync"
)

const (
	ivfFileVersion = 2

	defaultClusters        = 100
	defaultSubvectors      = 8
	defaultBits            = 8
	defaultProbeRatio      = 0.25
	defaultProbeLimit      = 16
	defaultTrainFloor      = 10000
	samplesPerClusterTrain = 40
)

type ivfEntry struct {
	Internal uint32
	Code     []byte
}

// IVFPQ is an approximate backend with two phases. While untrained, Add
// buffers vectors with their external IDs and Search returns empty. Once
// the buffer reaches the training minimum, a one-time training step learns
// coarse centroids and PQ codebooks from the buffer and inserts the buffer
// itself as the first batch, assigning externally visible IDs at that
// point. Search probes a configurable fraction of coarse clusters, trading
// recall for latency.
type IVFPQ struct {
	mu         sync.RWMutex
	dim        int
	clusters   int
	probeRatio float64
	probeLimit int
	trainMin   int
	rng        *rand.Rand

	pq        *productQuantizer
	centroids [][]float32
	lists     [][]ivfEntry

	buffer    [][]float32
	bufferIDs []string

	idmap     *identifierMap
	isTrained bool
	removed   int
	rebuilds  int
}

// NewIVFPQ constructs an untrained IVF-PQ backend.
func NewIVFPQ(opts Options) (*IVFPQ, error) {
	clusters := opts.Clusters
	if clusters <= 0 {
		clusters = defaultClusters
	}
	subvectors := opts.Subvectors
	if subvectors <= 0 {
		subvectors = defaultSubvectors
	}
	bits := opts.Bits
	if bits <= 0 {
		bits = defaultBits
	}
	probeRatio := opts.ProbeRatio
	if probeRatio <= 0 || probeRatio > 1 {
		probeRatio = defaultProbeRatio
	}
	probeLimit := opts.ProbeLimit
	if probeLimit <= 0 {
		probeLimit = defaultProbeLimit
	}
	trainMin := opts.TrainMinSamples
	if trainMin <= 0 {
		trainMin = clusters * samplesPerClusterTrain
		if trainMin < defaultTrainFloor {
			trainMin = defaultTrainFloor
		}
	}

	pq, err := newProductQuantizer(opts.Dimension, subvectors, bits)
	if err != nil {
		return nil, err
	}

	return &IVFPQ{
		dim:        opts.Dimension,
		clusters:   clusters,
		probeRatio: probeRatio,
		probeLimit: probeLimit,
		trainMin:   trainMin,
		rng:        rand.New(rand.NewSource(1)), //nolint:gosec // deterministic training, not crypto
		pq:         pq,
		idmap:      newIdentifierMap(),
	}, nil
}

// Add buffers vectors until the training minimum is reached, then trains
// and inserts the buffer. After training, vectors are inserted directly.
func (ix *IVFPQ) Add(vectors [][]float32, externalIDs []string) error {
	if len(vectors) != len(externalIDs) {
		return ErrLengthMismatch
	}
	for _, v := range vectors {
		if len(v) != ix.dim {
			return &DimensionMismatchError{Expected: ix.dim, Actual: len(v)}
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if !ix.isTrained {
		for i, v := range vectors {
			normalized, err := Normalize(v)
			if err != nil {
				return fmt.Errorf("vector %d: %w", i, err)
			}
			ix.buffer = append(ix.buffer, normalized)
			ix.bufferIDs = append(ix.bufferIDs, externalIDs[i])
		}
		if len(ix.buffer) >= ix.trainMin {
			ix.train()
		}
		return nil
	}

	first := ix.idmap.Reserve(len(vectors))
	for i, v := range vectors {
		normalized, err := Normalize(v)
		if err != nil {
			return fmt.Errorf("vector %d: %w", i, err)
		}
		ix.insert(first+uint32(i), externalIDs[i], normalized)
	}
	return nil
}

// train runs the one-time training step and flips the backend to trained.
// Caller holds the write lock.
func (ix *IVFPQ) train() {
	ix.centroids = trainKMeans(ix.buffer, ix.clusters, ix.rng)
	ix.pq.train(ix.buffer, ix.rng)
	ix.lists = make([][]ivfEntry, len(ix.centroids))
	ix.isTrained = true

	first := ix.idmap.Reserve(len(ix.buffer))
	for i, v := range ix.buffer {
		ix.insert(first+uint32(i), ix.bufferIDs[i], v)
	}
	ix.buffer = nil
	ix.bufferIDs = nil
}

func (ix *IVFPQ) insert(internal uint32, external string, normalized []float32) {
	cluster := nearestCentroid(normalized, ix.centroids)
	ix.lists[cluster] = append(ix.lists[cluster], ivfEntry{
		Internal: internal,
		Code:     ix.pq.encode(normalized),
	})
	ix.idmap.Bind(internal, external)
}

// nprobe derives the number of probed clusters from the configured ratio,
// clamped to [1, probeLimit].
func (ix *IVFPQ) nprobe() int {
	n := int(float64(len(ix.centroids)) * ix.probeRatio)
	if n < 1 {
		n = 1
	}
	if n > ix.probeLimit {
		n = ix.probeLimit
	}
	return n
}

// Search probes the nearest coarse clusters and scores their entries via
// the PQ lookup table. Before training it returns empty, not an error:
// readiness is observable through Size and Stats. For unit vectors the
// squared distance d2 relates to cosine similarity as cos = 1 - d2/2.
func (ix *IVFPQ) Search(query []float32, k int) ([]Match, error) {
	if len(query) != ix.dim {
		return nil, &DimensionMismatchError{Expected: ix.dim, Actual: len(query)}
	}
	if k <= 0 {
		return nil, nil
	}
	normalized, err := Normalize(query)
	if err != nil {
		return nil, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if !ix.isTrained {
		return nil, nil
	}

	table := ix.pq.lookupTable(normalized)
	best := make(matchHeap, 0, k)
	for _, cluster := range nearestCentroids(normalized, ix.centroids, ix.nprobe()) {
		for _, entry := range ix.lists[cluster] {
			external, ok := ix.idmap.External(entry.Internal)
			if !ok {
				continue
			}
			d2 := ix.pq.distance(table, entry.Code)
			best.offer(Match{ExternalID: external, Score: 1 - d2/2}, k)
		}
	}

	matches := []Match(best)
	sortMatches(matches)
	return matches, nil
}

// Remove invalidates the mapping for the given external IDs, identically to
// the flat backend. Buffered (untrained) entries are dropped outright.
func (ix *IVFPQ) Remove(externalIDs ...string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, id := range externalIDs {
		if _, ok := ix.idmap.Remove(id); ok {
			ix.removed++
			continue
		}
		for i, buffered := range ix.bufferIDs {
			if buffered == id {
				ix.buffer = append(ix.buffer[:i], ix.buffer[i+1:]...)
				ix.bufferIDs = append(ix.bufferIDs[:i], ix.bufferIDs[i+1:]...)
				break
			}
		}
	}
	return nil
}

type ivfFile struct {
	Version    int
	Dim        int
	Clusters   int
	Subvectors int
	Codewords  int
	Trained    bool
	Centroids  [][]float32
	Codebooks  [][][]float32
	Lists      [][]ivfEntry
	Buffer     [][]float32
	BufferIDs  []string
	Removed    int
	Rebuilds   int
}

// Save persists the full backend state, including an untrained buffer, so
// a load observes the same phase the save did.
func (ix *IVFPQ) Save(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	file := ivfFile{
		Version:    ivfFileVersion,
		Dim:        ix.dim,
		Clusters:   ix.clusters,
		Subvectors: ix.pq.m,
		Codewords:  ix.pq.k,
		Trained:    ix.isTrained,
		Centroids:  ix.centroids,
		Codebooks:  ix.pq.codebooks,
		Lists:      ix.lists,
		Buffer:     ix.buffer,
		BufferIDs:  ix.bufferIDs,
		Removed:    ix.removed,
		Rebuilds:   ix.rebuilds,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(file); err != nil {
		return &IndexError{Op: "save", Err: fmt.Errorf("failed to encode IVF-PQ index: %w", err)}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return &IndexError{Op: "save", Err: fmt.Errorf("failed to write IVF-PQ index file: %w", err)}
	}
	if err := ix.idmap.Save(path + ".map"); err != nil {
		return &IndexError{Op: "save", Err: err}
	}
	return nil
}

// Load replaces the backend state from files written by Save.
func (ix *IVFPQ) Load(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return &IndexError{Op: "load", Err: fmt.Errorf("failed to read IVF-PQ index file: %w", err)}
	}
	var file ivfFile
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&file); err != nil {
		return &IndexError{Op: "load", Err: fmt.Errorf("failed to decode IVF-PQ index: %w", err)}
	}
	if file.Version != ivfFileVersion {
		return &IndexError{Op: "load", Err: fmt.Errorf("unsupported IVF-PQ index version %d", file.Version)}
	}
	if file.Dim != ix.dim {
		return &IndexError{Op: "load", Err: &DimensionMismatchError{Expected: ix.dim, Actual: file.Dim}}
	}
	// The stored PQ codes are only decodable with the shape they were
	// encoded under, so a differently configured backend must refuse them.
	if file.Subvectors != ix.pq.m || file.Codewords != ix.pq.k {
		return &IndexError{Op: "load", Err: fmt.Errorf(
			"incompatible PQ shape: file has %d subvectors x %d codewords, backend configured for %d x %d",
			file.Subvectors, file.Codewords, ix.pq.m, ix.pq.k)}
	}

	idmap := newIdentifierMap()
	if err := idmap.Load(path + ".map"); err != nil {
		return &IndexError{Op: "load", Err: err}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.clusters = file.Clusters
	ix.isTrained = file.Trained
	ix.centroids = file.Centroids
	ix.pq.codebooks = file.Codebooks
	ix.lists = file.Lists
	ix.buffer = file.Buffer
	ix.bufferIDs = file.BufferIDs
	ix.removed = file.Removed
	ix.rebuilds = file.Rebuilds
	ix.idmap = idmap
	return nil
}

// Clear drops all entries and returns the backend to the untrained phase.
// The internal ID counter is kept.
func (ix *IVFPQ) Clear() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.centroids = nil
	ix.pq.codebooks = nil
	ix.lists = nil
	ix.buffer = nil
	ix.bufferIDs = nil
	ix.isTrained = false
	ix.removed = 0
	ix.idmap.Clear()
	return nil
}

// Rebuild is a counted no-op. Full retraining would need the original
// vectors, which the backend only keeps in quantized form.
func (ix *IVFPQ) Rebuild() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.rebuilds++
	return nil
}

// Size returns the number of reachable entries. Buffered vectors do not
// count until training inserts them.
func (ix *IVFPQ) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.idmap.Len()
}

// Dimension returns the configured vector dimension.
func (ix *IVFPQ) Dimension() int {
	return ix.dim
}

// Stats returns a diagnostics snapshot.
func (ix *IVFPQ) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	s := Stats{
		Type:      string(TypeIVFPQ),
		Dimension: ix.dim,
		Size:      ix.idmap.Len(),
		Removed:   ix.removed,
		Trained:   ix.isTrained,
		Clusters:  ix.clusters,
		Buffered:  len(ix.buffer),
		Rebuilds:  ix.rebuilds,
	}
	if ix.isTrained {
		s.Probe = ix.nprobe()
	}
	return s
}

package vecindex

import (
	"fmt"
	"math/rand"
)

// productQuantizer compresses vectors into m byte codes by splitting each
// vector into m subspaces and k-means-clustering every subspace separately.
// Search uses asymmetric distance computation: squared distances from the
// query to every codebook centroid are precomputed once per query, then each
// stored code costs m table lookups.
type productQuantizer struct {
	dim       int
	m         int // subquantizers
	k         int // centroids per subspace, 1<<bits
	subdim    int
	codebooks [][][]float32 // [m][k][subdim]
}

func newProductQuantizer(dim, m, bits int) (*productQuantizer, error) {
	if m <= 0 || dim%m != 0 {
		return nil, fmt.Errorf("subvector count %d must divide dimension %d", m, dim)
	}
	if bits <= 0 || bits > 8 {
		return nil, fmt.Errorf("bits per code must be in 1..8, got %d", bits)
	}
	return &productQuantizer{
		dim:    dim,
		m:      m,
		k:      1 << bits,
		subdim: dim / m,
	}, nil
}

// train learns the per-subspace codebooks from the sample set.
func (pq *productQuantizer) train(samples [][]float32, rng *rand.Rand) {
	pq.codebooks = make([][][]float32, pq.m)
	sub := make([][]float32, len(samples))
	for s := 0; s < pq.m; s++ {
		lo, hi := s*pq.subdim, (s+1)*pq.subdim
		for i, v := range samples {
			sub[i] = v[lo:hi]
		}
		pq.codebooks[s] = trainKMeans(sub, pq.k, rng)
	}
}

func (pq *productQuantizer) trained() bool {
	return pq.codebooks != nil
}

// encode quantizes a vector into one code byte per subspace.
func (pq *productQuantizer) encode(v []float32) []byte {
	code := make([]byte, pq.m)
	for s := 0; s < pq.m; s++ {
		lo, hi := s*pq.subdim, (s+1)*pq.subdim
		code[s] = byte(nearestCentroid(v[lo:hi], pq.codebooks[s]))
	}
	return code
}

// lookupTable precomputes squared distances from the query to every codebook
// centroid, flattened as [m*k].
func (pq *productQuantizer) lookupTable(query []float32) []float32 {
	table := make([]float32, pq.m*len(pq.codebooks[0]))
	for s := 0; s < pq.m; s++ {
		lo, hi := s*pq.subdim, (s+1)*pq.subdim
		q := query[lo:hi]
		base := s * len(pq.codebooks[s])
		for c, centroid := range pq.codebooks[s] {
			table[base+c] = squaredDistance(q, centroid)
		}
	}
	return table
}

// distance sums the table entries selected by a code, approximating the
// squared euclidean distance between the query and the original vector.
func (pq *productQuantizer) distance(table []float32, code []byte) float32 {
	var sum float32
	stride := len(pq.codebooks[0])
	for s, c := range code {
		sum += table[s*stride+int(c)]
	}
	return sum
}

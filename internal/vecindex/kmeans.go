package vecindex

import (
	"math/rand"
	"sort"
)

const kmeansIterations = 25

// trainKMeans runs Lloyd's algorithm and returns k centroids. When fewer
// than k samples are available every sample becomes its own centroid.
func trainKMeans(samples [][]float32, k int, rng *rand.Rand) [][]float32 {
	if len(samples) == 0 || k <= 0 {
		return nil
	}
	if len(samples) <= k {
		centroids := make([][]float32, len(samples))
		for i, s := range samples {
			centroids[i] = append([]float32(nil), s...)
		}
		return centroids
	}

	dim := len(samples[0])

	// Seed with k distinct random samples.
	centroids := make([][]float32, k)
	for i, idx := range rng.Perm(len(samples))[:k] {
		centroids[i] = append([]float32(nil), samples[idx]...)
	}

	assignments := make([]int, len(samples))
	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for i, s := range samples {
			c := nearestCentroid(s, centroids)
			if assignments[i] != c {
				assignments[i] = c
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}

		sums := make([][]float32, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float32, dim)
		}
		for i, s := range samples {
			c := assignments[i]
			counts[c]++
			for d, x := range s {
				sums[c][d] += x
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				// Reseed empty clusters with a random sample.
				centroids[c] = append([]float32(nil), samples[rng.Intn(len(samples))]...)
				continue
			}
			inv := 1 / float32(counts[c])
			for d := 0; d < dim; d++ {
				centroids[c][d] = sums[c][d] * inv
			}
		}
	}
	return centroids
}

// nearestCentroid returns the index of the closest centroid by squared
// euclidean distance.
func nearestCentroid(v []float32, centroids [][]float32) int {
	best := 0
	bestDist := squaredDistance(v, centroids[0])
	for i := 1; i < len(centroids); i++ {
		if d := squaredDistance(v, centroids[i]); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// nearestCentroids returns the indexes of the n closest centroids, closest
// first.
func nearestCentroids(v []float32, centroids [][]float32, n int) []int {
	if n > len(centroids) {
		n = len(centroids)
	}
	type candidate struct {
		idx  int
		dist float32
	}
	candidates := make([]candidate, len(centroids))
	for i, c := range centroids {
		candidates[i] = candidate{idx: i, dist: squaredDistance(v, c)}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })

	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[i].idx
	}
	return out
}

package vecindex

import "math"

// Normalize returns a unit-length copy of v. Similarity over normalized
// vectors reduces cosine similarity to a plain inner product.
func Normalize(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, ErrZeroVector
	}

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, ErrZeroVector
	}

	inv := float32(1 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out, nil
}

// Dot computes the inner product of two equal-length vectors.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// squaredDistance computes the squared euclidean distance between two
// equal-length vectors.
func squaredDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

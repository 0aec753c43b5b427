package vecindex

import "container/heap"

// matchHeap keeps the best k candidates while scanning without sorting the
// full candidate set. The root is the worst held match under the same
// ordering sortMatches produces, so tied truncation at the k-boundary does
// not depend on insertion order.
type matchHeap []Match

// worseThan ranks a behind b: lower score first, then higher external ID.
func worseThan(a, b Match) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.ExternalID > b.ExternalID
}

func (h matchHeap) Len() int           { return len(h) }
func (h matchHeap) Less(i, j int) bool { return worseThan(h[i], h[j]) }
func (h matchHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *matchHeap) Push(x any) {
	*h = append(*h, x.(Match))
}

func (h *matchHeap) Pop() any {
	old := *h
	n := len(old)
	m := old[n-1]
	*h = old[:n-1]
	return m
}

// offer adds a candidate, evicting the current minimum once k are held.
func (h *matchHeap) offer(m Match, k int) {
	if h.Len() < k {
		heap.Push(h, m)
		return
	}
	if worseThan((*h)[0], m) {
		(*h)[0] = m
		heap.Fix(h, 0)
	}
}

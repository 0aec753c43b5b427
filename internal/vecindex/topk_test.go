package vecindex

import (
	"testing"
)

func TestOfferKeepsBestK(t *testing.T) {
	var h matchHeap
	for _, m := range []Match{
		{ExternalID: "a", Score: 0.1},
		{ExternalID: "b", Score: 0.9},
		{ExternalID: "c", Score: 0.5},
		{ExternalID: "d", Score: 0.7},
	} {
		h.offer(m, 2)
	}

	matches := []Match(h)
	sortMatches(matches)
	if len(matches) != 2 || matches[0].ExternalID != "b" || matches[1].ExternalID != "d" {
		t.Errorf("expected [b d], got %+v", matches)
	}
}

func TestOfferTiedScoresAreOrderIndependent(t *testing.T) {
	tied := []Match{
		{ExternalID: "a", Score: 1},
		{ExternalID: "b", Score: 1},
		{ExternalID: "c", Score: 1},
	}
	orders := [][]int{
		{0, 1, 2},
		{2, 1, 0},
		{1, 2, 0},
		{2, 0, 1},
	}

	for _, order := range orders {
		var h matchHeap
		for _, i := range order {
			h.offer(tied[i], 2)
		}
		matches := []Match(h)
		sortMatches(matches)
		if len(matches) != 2 || matches[0].ExternalID != "a" || matches[1].ExternalID != "b" {
			t.Errorf("order %v: expected [a b] to survive truncation, got %+v", order, matches)
		}
	}
}

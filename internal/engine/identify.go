package engine

import (
	"context"
	"fmt"

	"github.com/kozaktomas/faceid/internal/capture"
	"github.com/kozaktomas/faceid/internal/liveness"
	"github.com/kozaktomas/faceid/internal/quality"
)

// IdentifyOptions tunes one identification call. Zero values use the
// process-wide defaults.
type IdentifyOptions struct {
	Threshold float64
	TopK      int
}

// IdentifyMatch is one candidate identity above the threshold.
type IdentifyMatch struct {
	PersonID   string  `json:"person_id"`
	PersonName string  `json:"person_name"`
	FaceID     string  `json:"face_id"`
	Score      float32 `json:"score"`
}

// IdentifyResult carries the ranked matches plus the informational quality
// and liveness readings for the query image.
type IdentifyResult struct {
	Matches  []IdentifyMatch  `json:"matches"`
	Quality  quality.Report   `json:"quality"`
	Liveness *liveness.Result `json:"liveness,omitempty"`
}

// VerifyResult is the outcome of a 1:1 check against a claimed identity.
type VerifyResult struct {
	Verified bool           `json:"verified"`
	Score    float32        `json:"score"`
	PersonID string         `json:"person_id"`
	Quality  quality.Report `json:"quality"`
}

// Identify matches a query image against every enrolled face. Quality is
// reported but never gates identification; liveness does gate. An empty
// match list is a valid outcome, not an error.
func (e *Engine) Identify(ctx context.Context, imageData []byte, opts IdentifyOptions) (*IdentifyResult, error) {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = e.threshold
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = e.topK
	}

	face, report, live, err := e.analyzeQuery(ctx, imageData)
	if err != nil {
		return nil, err
	}

	candidates, err := e.searchIndex(ctx, face.Embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	matches := make([]IdentifyMatch, 0, len(candidates))
	for _, c := range candidates {
		if c.Score < float32(threshold) {
			continue
		}
		match, ok := e.resolveMatch(ctx, c.ExternalID, c.Score)
		if !ok {
			continue
		}
		matches = append(matches, match)
	}

	return &IdentifyResult{Matches: matches, Quality: report, Liveness: live}, nil
}

// Verify checks a query image against one claimed identity. A person with
// zero enrolled faces is deterministically not verified.
func (e *Engine) Verify(ctx context.Context, personID string, imageData []byte, threshold float64) (*VerifyResult, error) {
	if threshold <= 0 {
		threshold = e.threshold
	}

	if _, err := e.store.GetPerson(ctx, personID); err != nil {
		return nil, err
	}
	faces, err := e.store.FacesByPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("load enrolled faces: %w", err)
	}

	face, report, _, err := e.analyzeQuery(ctx, imageData)
	if err != nil {
		return nil, err
	}

	if len(faces) == 0 {
		return &VerifyResult{Verified: false, PersonID: personID, Quality: report}, nil
	}

	own := make(map[string]struct{}, len(faces))
	for _, f := range faces {
		own[f.ID] = struct{}{}
	}

	// Over-query so the claimed identity's faces are reachable even when
	// other identities dominate the top ranks.
	candidates, err := e.searchIndex(ctx, face.Embedding, len(own)+e.topK)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	var best float32
	for _, c := range candidates {
		if _, ok := own[c.ExternalID]; !ok {
			continue
		}
		if c.Score > best {
			best = c.Score
		}
	}

	return &VerifyResult{
		Verified: best >= float32(threshold),
		Score:    best,
		PersonID: personID,
		Quality:  report,
	}, nil
}

// analyzeQuery runs the shared front half of identification and
// verification: decode, extract, quality scoring and the liveness gate.
func (e *Engine) analyzeQuery(ctx context.Context, imageData []byte) (*capture.FaceDescriptor, quality.Report, *liveness.Result, error) {
	img, err := capture.DecodeImage(imageData)
	if err != nil {
		return nil, quality.Report{}, nil, fmt.Errorf("invalid image: %w", err)
	}

	face, err := e.extractor.ExtractFace(ctx, imageData)
	if err != nil {
		return nil, quality.Report{}, nil, err
	}

	report := e.quality.Analyze(img, face)

	live, err := e.gate.Check(ctx, imageData)
	if err != nil {
		return nil, quality.Report{}, nil, err
	}
	return face, report, live, nil
}

// resolveMatch translates an index hit into a person. Dangling external
// IDs, left behind by deleted faces or persons, are dropped silently.
func (e *Engine) resolveMatch(ctx context.Context, faceID string, score float32) (IdentifyMatch, bool) {
	face, err := e.store.GetFace(ctx, faceID)
	if err != nil {
		return IdentifyMatch{}, false
	}
	person, err := e.store.GetPerson(ctx, face.PersonID)
	if err != nil {
		return IdentifyMatch{}, false
	}
	return IdentifyMatch{
		PersonID:   person.ID,
		PersonName: person.Name,
		FaceID:     faceID,
		Score:      score,
	}, true
}

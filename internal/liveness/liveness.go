// Package liveness decides whether a face capture shows a live person or a
// presentation attack (printed photo, screen replay). Detector variants are
// fixed at construction; there is no runtime switching.
package liveness

import (
	"context"
	"fmt"
)

// Kind selects a detector implementation. The set is closed: unknown
// strings fail NewDetector.
type Kind string

const (
	KindNoop    Kind = "noop"
	KindTexture Kind = "texture"
	KindOpenAI  Kind = "openai"
	KindGemini  Kind = "gemini"
)

// ParseKind validates a detector selector string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindNoop, KindTexture, KindOpenAI, KindGemini:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown liveness detector %q", s)
	}
}

// Result is a liveness verdict.
type Result struct {
	Live       bool    `json:"live"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	Details    string  `json:"details,omitempty"`
}

// Detector analyzes raw image bytes for liveness.
type Detector interface {
	Check(ctx context.Context, imageData []byte) (*Result, error)
	Method() string
}

// CheckFailedError is the domain rejection for a capture judged not live.
type CheckFailedError struct {
	Confidence float64
	Details    string
}

func (e *CheckFailedError) Error() string {
	return fmt.Sprintf("liveness check failed (confidence %.2f)", e.Confidence)
}

// Config configures detector construction.
type Config struct {
	Kind         Kind
	OpenAIAPIKey string
	GeminiAPIKey string
}

// NewDetector constructs the configured detector variant.
func NewDetector(ctx context.Context, cfg Config) (Detector, error) {
	switch cfg.Kind {
	case KindNoop:
		return &NoopDetector{}, nil
	case KindTexture:
		return &TextureDetector{}, nil
	case KindOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai liveness detector requires an API key")
		}
		return NewOpenAIDetector(cfg.OpenAIAPIKey), nil
	case KindGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini liveness detector requires an API key")
		}
		return NewGeminiDetector(ctx, cfg.GeminiAPIKey)
	default:
		return nil, fmt.Errorf("unknown liveness detector %q", cfg.Kind)
	}
}

// Gate runs the configured detector and applies the enabled and
// fail-open/fail-closed policy.
type Gate struct {
	detector Detector
	enabled  bool
	failOpen bool
}

// NewGate wires a detector behind the policy flags.
func NewGate(detector Detector, enabled, failOpen bool) *Gate {
	return &Gate{detector: detector, enabled: enabled, failOpen: failOpen}
}

// Check returns the detector verdict. With the gate disabled, every capture
// passes with full confidence. Detector infrastructure errors follow the
// policy: fail-closed propagates, fail-open substitutes a permissive result
// with zero confidence and the failure reason recorded in Details. A
// negative verdict (not live) is a domain rejection regardless of policy.
func (g *Gate) Check(ctx context.Context, imageData []byte) (*Result, error) {
	if !g.enabled {
		return &Result{Live: true, Confidence: 1, Method: "disabled"}, nil
	}

	result, err := g.detector.Check(ctx, imageData)
	if err != nil {
		if !g.failOpen {
			return nil, fmt.Errorf("liveness detector error: %w", err)
		}
		return &Result{
			Live:       true,
			Confidence: 0,
			Method:     "error",
			Details:    err.Error(),
		}, nil
	}

	if !result.Live {
		return result, &CheckFailedError{Confidence: result.Confidence, Details: result.Details}
	}
	return result, nil
}

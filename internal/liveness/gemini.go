package liveness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

// GeminiDetector asks Gemini for a spoofing verdict.
type GeminiDetector struct {
	client *genai.Client
}

func NewGeminiDetector(ctx context.Context, apiKey string) (*GeminiDetector, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiDetector{client: client}, nil
}

func (d *GeminiDetector) Check(ctx context.Context, imageData []byte) (*Result, error) {
	resized, err := resizeJPEG(imageData, 800)
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: livenessPrompt + "\n\nIs this a live capture?"},
				{InlineData: &genai.Blob{Data: resized, MIMEType: "image/jpeg"}},
			},
		},
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	result, err := d.client.Models.GenerateContent(ctx, geminiModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini API error: %w", err)
	}

	content := result.Text()
	if content == "" {
		return nil, errors.New("no response from Gemini")
	}

	var v verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return nil, fmt.Errorf("failed to parse liveness verdict: %w", err)
	}

	return &Result{
		Live:       v.Live,
		Confidence: v.Confidence,
		Method:     d.Method(),
		Details:    v.Reason,
	}, nil
}

func (d *GeminiDetector) Method() string { return string(KindGemini) }

package liveness

import (
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

//go:embed prompts/liveness.txt
var livenessPrompt string

const openaiModel = openai.ChatModelGPT4_1Mini

// verdict is the JSON object both vision model detectors ask for.
type verdict struct {
	Live       bool    `json:"live"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// OpenAIDetector asks a vision chat model for a spoofing verdict.
type OpenAIDetector struct {
	client *openai.Client
}

func NewOpenAIDetector(apiKey string) *OpenAIDetector {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIDetector{client: &client}
}

func (d *OpenAIDetector) Check(ctx context.Context, imageData []byte) (*Result, error) {
	// Resize to cut token costs; detail stays low for the same reason.
	resized, err := resizeJPEG(imageData, 800)
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}
	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(resized)

	resp, err := d.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openaiModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(livenessPrompt),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
							openai.TextContentPart("Is this a live capture?"),
							openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
								URL:    imageURL,
								Detail: "low",
							}),
						},
					},
				},
			},
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		MaxTokens: openai.Int(200),
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from OpenAI")
	}

	var v verdict
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &v); err != nil {
		return nil, fmt.Errorf("failed to parse liveness verdict: %w", err)
	}

	return &Result{
		Live:       v.Live,
		Confidence: v.Confidence,
		Method:     d.Method(),
		Details:    v.Reason,
	}, nil
}

func (d *OpenAIDetector) Method() string { return string(KindOpenAI) }

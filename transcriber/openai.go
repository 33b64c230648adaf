package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"vox/nettrace"
)

type OpenAI struct {
	baseTranscriber
}

func NewOpenAI(apiKey string) *OpenAI {
	return &OpenAI{
		baseTranscriber: baseTranscriber{
			client: nettrace.NewClient(),
			apiURL: "https://api.openai.com/v1/audio/transcriptions",
			apiKey: apiKey,
		},
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, mediaType string) (*Result, error) {
	resp, err := o.upload(ctx, audio, mediaType,
		"model", "gpt-4o-transcribe",
		"response_format", "json",
	)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("openai API error %d: %s", resp.StatusCode, string(resp.Body))
	}

	var oResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body, &oResp); err != nil {
		return nil, fmt.Errorf("openai response parse error: %w", err)
	}
	text := strings.TrimSpace(oResp.Text)
	if text == "" {
		return nil, ErrNoSpeech
	}

	remaining := firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	return &Result{
		Text:      text,
		Metrics:   resp.Metrics,
		RateLimit: remaining + "/" + limit,
	}, nil
}

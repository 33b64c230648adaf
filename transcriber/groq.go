package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"vox/nettrace"
)

type Groq struct {
	baseTranscriber
}

func NewGroq(apiKey string) *Groq {
	return &Groq{
		baseTranscriber: baseTranscriber{
			client: nettrace.NewClient(),
			apiURL: "https://api.groq.com/openai/v1/audio/transcriptions",
			apiKey: apiKey,
		},
	}
}

func (g *Groq) Name() string { return "groq" }

type groqResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Text             string  `json:"text"`
		Start            float64 `json:"start"`
		End              float64 `json:"end"`
		NoSpeechProb     float64 `json:"no_speech_prob"`
		AvgLogProb       float64 `json:"avg_logprob"`
		CompressionRatio float64 `json:"compression_ratio"`
		Temperature      float64 `json:"temperature"`
	} `json:"segments"`
}

func (g *Groq) Transcribe(ctx context.Context, audio []byte, mediaType string) (*Result, error) {
	resp, err := g.upload(ctx, audio, mediaType,
		"model", "whisper-large-v3-turbo",
		"response_format", "verbose_json",
	)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("groq API error %d: %s", resp.StatusCode, string(resp.Body))
	}

	var gResp groqResponse
	if err := json.Unmarshal(resp.Body, &gResp); err != nil {
		return nil, fmt.Errorf("groq response parse error: %w", err)
	}

	var noSpeechProb, avgLogProb float64
	var segments []Segment
	if len(gResp.Segments) > 0 {
		var logProbSum float64
		for _, seg := range gResp.Segments {
			noSpeechProb = max(noSpeechProb, seg.NoSpeechProb)
			logProbSum += seg.AvgLogProb
			segments = append(segments, Segment{
				Text:             seg.Text,
				NoSpeechProb:     seg.NoSpeechProb,
				AvgLogProb:       seg.AvgLogProb,
				CompressionRatio: seg.CompressionRatio,
				Temperature:      seg.Temperature,
				Start:            seg.Start,
				End:              seg.End,
			})
		}
		avgLogProb = logProbSum / float64(len(gResp.Segments))
	}

	text := strings.TrimSpace(gResp.Text)
	if text == "" {
		return nil, ErrNoSpeech
	}

	remaining := firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	return &Result{
		Text:         text,
		Metrics:      resp.Metrics,
		RateLimit:    remaining + "/" + limit,
		NoSpeechProb: noSpeechProb,
		AvgLogProb:   avgLogProb,
		Duration:     gResp.Duration,
		Segments:     segments,
	}, nil
}

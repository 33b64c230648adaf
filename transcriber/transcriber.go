package transcriber

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"

	"vox/nettrace"
)

// ErrNoSpeech is returned when the provider answered but heard nothing.
var ErrNoSpeech = errors.New("no speech recognized")

type Segment struct {
	Text             string
	NoSpeechProb     float64
	AvgLogProb       float64
	CompressionRatio float64
	Temperature      float64
	Start            float64
	End              float64
}

type Result struct {
	Text         string
	Metrics      *nettrace.Metrics
	RateLimit    string
	NoSpeechProb float64
	AvgLogProb   float64
	Duration     float64
	Segments     []Segment
}

type Transcriber interface {
	Name() string
	SetLanguage(lang string)
	GetLanguage() string
	Warm(ctx context.Context)
	Transcribe(ctx context.Context, audio []byte, mediaType string) (*Result, error)
}

type baseTranscriber struct {
	client *nettrace.Client
	apiURL string
	apiKey string
	lang   string
}

func (b *baseTranscriber) SetLanguage(lang string) { b.lang = lang }

func (b *baseTranscriber) GetLanguage() string { return b.lang }

// Warm pre-opens the connection to the provider.
func (b *baseTranscriber) Warm(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, b.apiURL, nil)
	if err != nil {
		return
	}
	b.client.Warm(req)
}

// upload posts audio as a multipart form with the given extra fields.
func (b *baseTranscriber) upload(ctx context.Context, audio []byte, mediaType string, fields ...string) (*nettrace.Response, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio."+Extension(mediaType))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, err
	}
	for i := 0; i+1 < len(fields); i += 2 {
		writer.WriteField(fields[i], fields[i+1])
	}
	if b.lang != "" {
		writer.WriteField("language", b.lang)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return b.client.Do(req)
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

// New picks a provider by name, or by whichever API key is set when name is
// empty.
func New(name string) (Transcriber, error) {
	groqKey := os.Getenv("GROQ_API_KEY")
	openaiKey := os.Getenv("OPENAI_API_KEY")

	switch name {
	case "groq":
		if groqKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY is not set")
		}
		return NewGroq(groqKey), nil
	case "openai":
		if openaiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		return NewOpenAI(openaiKey), nil
	case "":
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", name)
	}

	if groqKey != "" {
		return NewGroq(groqKey), nil
	}
	if openaiKey != "" {
		return NewOpenAI(openaiKey), nil
	}
	return nil, fmt.Errorf("set GROQ_API_KEY or OPENAI_API_KEY environment variable")
}

package transcriber

import (
	"context"
	"fmt"
	"sync"

	"vox/nettrace"
)

type FakeTranscriber struct {
	text string
	err  error
	lang string

	mu    sync.Mutex
	calls []FakeCall
}

type FakeCall struct {
	Audio     []byte
	MediaType string
}

func NewFake(text string, err error) *FakeTranscriber {
	return &FakeTranscriber{text: text, err: err}
}

func (f *FakeTranscriber) Name() string           { return "fake" }
func (f *FakeTranscriber) SetLanguage(lang string) { f.lang = lang }
func (f *FakeTranscriber) GetLanguage() string     { return f.lang }
func (f *FakeTranscriber) Warm(context.Context)    {}

func (f *FakeTranscriber) Transcribe(_ context.Context, audio []byte, mediaType string) (*Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Audio: audio, MediaType: mediaType})
	f.mu.Unlock()

	if f.err != nil {
		return nil, fmt.Errorf("fake transcriber error: %w", f.err)
	}
	if f.text == "" {
		return nil, ErrNoSpeech
	}
	return &Result{Text: f.text, Metrics: &nettrace.Metrics{}}, nil
}

func (f *FakeTranscriber) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}

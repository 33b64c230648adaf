package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"vox/transcriber"
)

type fakeModel struct {
	err    error
	prompt []string
}

func (m *fakeModel) Reply(_ context.Context, message string) (string, error) {
	m.prompt = append(m.prompt, message)
	if m.err != nil {
		return "", m.err
	}
	return "reply to " + message, nil
}

type result struct {
	status int
	body   map[string]string
	header http.Header
}

func do(t *testing.T, s *Server, method, path, body string) result {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := result{status: resp.StatusCode, header: resp.Header}
	if err := json.Unmarshal(raw, &out.body); err != nil {
		t.Fatalf("response %q is not a JSON object: %v", raw, err)
	}
	return out
}

func flacB64() string {
	return base64.StdEncoding.EncodeToString([]byte("fLaC\x00\x00\x00\x22rest"))
}

func TestChat(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		stt        transcriber.Transcriber
		model      *fakeModel
		noModel    bool
		wantStatus int
		wantMsg    string
		wantMethod string
	}{
		{"text", `{"message":"Hello"}`, nil, &fakeModel{}, false, 200, "reply to Hello", "text"},
		{"audio", `{"audio":"` + flacB64() + `"}`, transcriber.NewFake("spoken words", nil), &fakeModel{}, false, 200, "reply to spoken words", "audio"},
		{"audio wins over message", `{"message":"typed","audio":"` + flacB64() + `"}`, transcriber.NewFake("spoken", nil), &fakeModel{}, false, 200, "reply to spoken", "audio"},
		{"empty audio falls back to message", `{"message":"typed","audio":""}`, nil, &fakeModel{}, false, 200, "reply to typed", "text"},
		{"bad base64", `{"audio":"%%%"}`, transcriber.NewFake("x", nil), &fakeModel{}, false, 400, msgNoSpeech, ""},
		{"no speech", `{"audio":"` + flacB64() + `"}`, transcriber.NewFake("", nil), &fakeModel{}, false, 400, msgNoSpeech, ""},
		{"transcriber error", `{"audio":"` + flacB64() + `"}`, transcriber.NewFake("", errors.New("quota")), &fakeModel{}, false, 400, msgNoSpeech, ""},
		{"no transcriber", `{"audio":"` + flacB64() + `"}`, nil, &fakeModel{}, false, 400, msgNoSpeech, ""},
		{"empty message", `{"message":""}`, nil, &fakeModel{}, false, 400, msgNoInput, ""},
		{"empty object", `{}`, nil, &fakeModel{}, false, 400, msgNoInput, ""},
		{"no model", `{"message":"Hello"}`, nil, nil, true, 500, msgNoModel, ""},
		{"generation error", `{"message":"Hello"}`, nil, &fakeModel{err: errors.New("rate limited")}, false, 500, msgGenerateErr, ""},
		{"not json", `hello`, nil, &fakeModel{}, false, 500, msgUnexpected, ""},
		{"null body", `null`, nil, &fakeModel{}, false, 500, msgUnexpected, ""},
		{"array body", `[]`, nil, &fakeModel{}, false, 500, msgUnexpected, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Transcriber: tt.stt, Logger: zerolog.Nop()}
			if !tt.noModel {
				cfg.Model = tt.model
			}
			got := do(t, New(cfg), http.MethodPost, ChatPath, tt.body)
			if got.status != tt.wantStatus {
				t.Errorf("status = %d, want %d", got.status, tt.wantStatus)
			}
			if got.body["message"] != tt.wantMsg {
				t.Errorf("message = %q, want %q", got.body["message"], tt.wantMsg)
			}
			if got.body["input_method"] != tt.wantMethod {
				t.Errorf("input_method = %q, want %q", got.body["input_method"], tt.wantMethod)
			}
		})
	}
}

func TestAudioMediaTypeSniffed(t *testing.T) {
	stt := transcriber.NewFake("ok", nil)
	s := New(Config{Transcriber: stt, Model: &fakeModel{}, Logger: zerolog.Nop()})
	do(t, s, http.MethodPost, ChatPath, `{"audio":"`+flacB64()+`"}`)

	calls := stt.Calls()
	if len(calls) != 1 || calls[0].MediaType != "audio/flac" {
		t.Fatalf("calls = %+v", calls)
	}
	if !strings.HasPrefix(string(calls[0].Audio), "fLaC") {
		t.Errorf("audio = %q", calls[0].Audio)
	}
}

func TestNotFound(t *testing.T) {
	s := New(Config{Logger: zerolog.Nop()})
	got := do(t, s, http.MethodGet, "/nope", "")
	if got.status != 404 {
		t.Errorf("status = %d", got.status)
	}
	if got.body["error"] != "Endpoint not found" || got.body["message"] != "The requested endpoint does not exist." {
		t.Errorf("body = %v", got.body)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	s := New(Config{Model: &fakeModel{}, Logger: zerolog.Nop()})
	req := httptest.NewRequest(http.MethodPost, ChatPath, strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestCORS(t *testing.T) {
	s := New(Config{Model: &fakeModel{}, Logger: zerolog.Nop()})
	req := httptest.NewRequest(http.MethodOptions, ChatPath, nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	s := New(Config{Model: &fakeModel{}, Logger: zerolog.New(&buf)})
	s.App().Get("/boom", func(*fiber.Ctx) error { return errors.New("boom") })

	req := httptest.NewRequest(http.MethodPost, ChatPath, strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("X-Request-ID", "req-1")
	if _, err := s.App().Test(req); err != nil {
		t.Fatal(err)
	}
	got := do(t, s, http.MethodGet, "/boom", "")
	if got.status != 500 || got.body["error"] != "Internal server error" {
		t.Errorf("boom: status=%d body=%v", got.status, got.body)
	}

	logs := buf.String()
	for _, want := range []string{
		`"request_id":"req-1"`,
		`"message":"request"`,
		`"status":200`,
		`"message":"internal error"`,
		`"error":"boom"`,
		`"status":500`,
	} {
		if !strings.Contains(logs, want) {
			t.Errorf("log missing %s:\n%s", want, logs)
		}
	}
}

//go:build integration

package test_test

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

var (
	testBinary string
	toneWAV    string
)

func TestMain(m *testing.M) {
	testBinary = os.Getenv("VOX_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "VOX_TEST_BIN not set; build vox and point VOX_TEST_BIN at it")
		os.Exit(1)
	}

	dir, err := os.MkdirTemp("", "vox-integration")
	if err != nil {
		fmt.Fprintf(os.Stderr, "temp dir: %v\n", err)
		os.Exit(1)
	}
	toneWAV = filepath.Join(dir, "tone.wav")
	if err := generateToneWAV(toneWAV, 16000, 1.0); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate tone.wav: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func generateToneWAV(path string, sampleRate int, durationS float64) error {
	const headerSize = 44
	numSamples := int(float64(sampleRate) * durationS)
	dataSize := numSamples * 2

	buf := make([]byte, headerSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(headerSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i := 0; i < numSamples; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(buf[headerSize+i*2:], uint16(v))
	}

	return os.WriteFile(path, buf, 0644)
}

type stubBackend struct {
	mu       sync.Mutex
	requests []map[string]string
	ids      []string
}

func (s *stubBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"message": "An unexpected error occurred."})
		return
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.ids = append(s.ids, r.Header.Get("X-Request-ID"))
	s.mu.Unlock()

	if audio, ok := req["audio"]; ok {
		data, _ := base64.StdEncoding.DecodeString(audio)
		json.NewEncoder(w).Encode(map[string]string{
			"message":      fmt.Sprintf("heard %d bytes", len(data)),
			"input_method": "audio",
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{
		"message":      "echo: " + req["message"],
		"input_method": "text",
	})
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

func runVox(t *testing.T, endpoint, stdin string, args ...string) (stdout, logDir string) {
	t.Helper()
	logDir = t.TempDir()
	cmdArgs := append([]string{"--logpath", logDir, "--endpoint", endpoint, "--script"}, args...)

	cmd := exec.Command(testBinary, cmdArgs...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = os.Environ()
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		t.Fatalf("vox exited with error: %v\nstdout: %s\nstderr: %s", err, out.String(), errOut.String())
	}
	return out.String(), logDir
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

func TestTextRoundTrip(t *testing.T) {
	stub := &stubBackend{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	out, logDir := runVox(t, srv.URL, cmds("SAY Hello", "QUIT"))
	if want := "user: Hello\nbot: echo: Hello\n"; out != want {
		t.Errorf("stdout = %q, want %q", out, want)
	}
	if len(stub.ids) != 1 || stub.ids[0] == "" {
		t.Errorf("request ids = %v, want one non-empty", stub.ids)
	}

	diag := readLog(t, logDir, "diagnostics_log.txt")
	for _, want := range []string{"session_start", "exchange", "kind=text", "session_end"} {
		if !strings.Contains(diag, want) {
			t.Errorf("diagnostics log missing %q:\n%s", want, diag)
		}
	}
}

func TestRecordingSendsFLAC(t *testing.T) {
	stub := &stubBackend{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	out, logDir := runVox(t, srv.URL, cmds("REC", "WAIT_AUDIO_DONE", "STOP", "QUIT"), "--wav", toneWAV)
	if !strings.HasPrefix(out, "user: Recording audio...\nbot: heard ") {
		t.Errorf("stdout = %q", out)
	}

	if len(stub.requests) != 1 {
		t.Fatalf("got %d requests, want 1", len(stub.requests))
	}
	req := stub.requests[0]
	if _, ok := req["message"]; ok {
		t.Error("audio request should not carry a message field")
	}
	data, err := base64.StdEncoding.DecodeString(req["audio"])
	if err != nil {
		t.Fatalf("audio is not base64: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("fLaC")) {
		t.Errorf("audio does not start with FLAC magic")
	}

	diag := readLog(t, logDir, "diagnostics_log.txt")
	for _, want := range []string{"recording", "kind=audio"} {
		if !strings.Contains(diag, want) {
			t.Errorf("diagnostics log missing %q", want)
		}
	}
}

func TestUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out, _ := runVox(t, url, cmds("SAY hi", "QUIT"))
	want := "user: hi\nbot: Sorry, something went wrong. Please try again.\n"
	if out != want {
		t.Errorf("stdout = %q, want %q", out, want)
	}
}

func TestVersion(t *testing.T) {
	out, err := exec.Command(testBinary, "version").Output()
	if err != nil {
		t.Fatalf("vox version: %v", err)
	}
	if !strings.HasPrefix(string(out), "vox ") {
		t.Errorf("version output = %q", out)
	}
}

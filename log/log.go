package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

var (
	diagLog  zerolog.Logger
	diagFile *os.File
	logMu    sync.Mutex
	logReady bool
	pid      int
	dir      string
)

// ExchangeMetrics describes one request to the chat endpoint.
type ExchangeMetrics struct {
	Kind         string // "text" or "audio"
	RequestID    string
	Status       int
	RequestBytes int
	DNSTimeMs    float64
	TCPTimeMs    float64
	TLSTimeMs    float64
	TTFBMs       float64
	TotalTimeMs  float64
	ConnReused   bool
	Err          error
}

type RecordingMetrics struct {
	Device           string
	AudioLengthS     float64
	Fragments        int
	RawSizeKB        float64
	CompressedSizeKB float64
	CompressionPct   float64
	EncodeTimeMs     float64
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: --logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: VOX_LOG_PATH environment variable
	if envPath := os.Getenv("VOX_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	logReady = false
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func Exchange(m ExchangeMetrics) {
	if !logReady {
		return
	}

	connStatus := "new"
	if m.ConnReused {
		connStatus = "reused"
	}

	ev := diagLog.Info()
	if m.Err != nil {
		ev = diagLog.Error().Err(m.Err)
	}
	ev.Str("kind", m.Kind).
		Str("request_id", m.RequestID).
		Int("status", m.Status).
		Int("request_bytes", m.RequestBytes).
		Str("conn", connStatus).
		Float64("dns_ms", m.DNSTimeMs).
		Float64("tcp_ms", m.TCPTimeMs).
		Float64("tls_ms", m.TLSTimeMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalTimeMs).
		Msg("exchange")
}

func Recording(m RecordingMetrics) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("device", m.Device).
		Float64("audio_s", m.AudioLengthS).
		Int("fragments", m.Fragments).
		Float64("raw_kb", m.RawSizeKB).
		Float64("compressed_kb", m.CompressedSizeKB).
		Float64("compression_pct", m.CompressionPct).
		Float64("encode_ms", m.EncodeTimeMs).
		Msg("recording")
}

func SessionStart(endpoint, device string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("endpoint", endpoint).
		Str("device", device).
		Msg("session_start")
}

func SessionEnd(sent int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("sent", sent).
		Msg("session_end")
}

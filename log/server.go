package log

import (
	"io"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	serverLogName    = "server_log.txt"
	serverLogMaxMB   = 1
	serverLogBackups = 5
)

// NewServer returns the dev backend logger. Records go to console and to a
// size-rotated file in the log directory. The returned closer releases the
// file.
func NewServer(console io.Writer) (zerolog.Logger, io.Closer) {
	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, serverLogName),
		MaxSize:    serverLogMaxMB,
		MaxBackups: serverLogBackups,
	}
	out := zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05"},
		file,
	)
	logger := zerolog.New(out).With().Timestamp().Str("component", "server").Logger()
	return logger, file
}

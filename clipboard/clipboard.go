// Package clipboard copies chat replies to the system clipboard.
package clipboard

import (
	"errors"
	"strings"

	cb "github.com/atotto/clipboard"
)

var (
	ErrEmpty       = errors.New("nothing to copy")
	ErrUnsupported = errors.New("no clipboard utility available")
)

// swapped in tests
var (
	writeAll    = cb.WriteAll
	readAll     = cb.ReadAll
	unsupported = func() bool { return cb.Unsupported }
)

// Copy places text on the clipboard, trimmed of surrounding whitespace.
func Copy(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmpty
	}
	if unsupported() {
		return ErrUnsupported
	}
	return writeAll(text)
}

func Read() (string, error) {
	if unsupported() {
		return "", ErrUnsupported
	}
	return readAll()
}

package encoder

import (
	"fmt"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// Encoder turns 16-bit mono PCM blocks into a compressed stream. Flush hands
// out whatever has been produced since the previous call, so concatenating
// every Flush result (including the one after Close) yields the full stream.
type Encoder interface {
	EncodeBlock(block []int16) error
	Flush() []byte
	Close() error
	MediaType() string
	TotalFrames() uint64
	EncodedBytes() uint64
	AddEncodeTime(d time.Duration)
	EncodeTime() time.Duration
}

func New(format string) (Encoder, error) {
	switch format {
	case "", "flac":
		return NewFlac()
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

package transcriber

import "bytes"

// DetectMediaType identifies the audio container from its leading bytes.
// Unknown data is reported as application/octet-stream.
func DetectMediaType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("fLaC")):
		return "audio/flac"
	case bytes.HasPrefix(data, []byte("OggS")):
		return "audio/ogg"
	case bytes.HasPrefix(data, []byte{0x1a, 0x45, 0xdf, 0xa3}):
		return "audio/webm"
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return "audio/wav"
	case bytes.HasPrefix(data, []byte("ID3")),
		len(data) >= 2 && data[0] == 0xff && data[1]&0xe0 == 0xe0:
		return "audio/mpeg"
	case len(data) >= 8 && bytes.Equal(data[4:8], []byte("ftyp")):
		return "audio/mp4"
	}
	return "application/octet-stream"
}

// Extension is the file extension providers expect for a media type.
func Extension(mediaType string) string {
	switch mediaType {
	case "audio/flac":
		return "flac"
	case "audio/ogg":
		return "ogg"
	case "audio/webm":
		return "webm"
	case "audio/wav":
		return "wav"
	case "audio/mpeg":
		return "mp3"
	case "audio/mp4":
		return "m4a"
	}
	return "bin"
}

package transcription

import (
	"fmt"
	"mime"
	"strings"

	"github.com/obiente/anamnesis/internal/apperr"
)

// Format is one of the audio container types accepted for transcription.
type Format string

const (
	FormatWAV  Format = "audio/wav"
	FormatMPEG Format = "audio/mpeg"
	FormatOGG  Format = "audio/ogg"
	FormatWebM Format = "audio/webm"
)

// ParseFormat maps a declared content type onto a Format. Matching ignores
// case and MIME parameters, so "audio/webm;codecs=opus" is FormatWebM.
func ParseFormat(contentType string) (Format, error) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	if f := Format(mt); f.Valid() {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", apperr.ErrUnsupportedFormat, contentType)
}

// Valid reports whether f is one of the four accepted formats.
func (f Format) Valid() bool {
	switch f {
	case FormatWAV, FormatMPEG, FormatOGG, FormatWebM:
		return true
	}
	return false
}

// Ext returns the file extension recognizers expect for f.
func (f Format) Ext() string {
	switch f {
	case FormatWAV:
		return ".wav"
	case FormatMPEG:
		return ".mp3"
	case FormatOGG:
		return ".ogg"
	case FormatWebM:
		return ".webm"
	}
	return ""
}

func (f Format) String() string { return string(f) }

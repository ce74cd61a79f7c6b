package apperr

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the pipeline. Failures wrap one of these with %w so
// callers can classify them with errors.Is.
var (
	ErrUnsupportedFormat   = errors.New("unsupported audio format")
	ErrEmptyInput          = errors.New("empty input")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrSummarizationFailed = errors.New("summarization failed")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Wrap tags err with kind, keeping the underlying message readable.
func Wrap(kind error, err error) error {
	if err == nil {
		return kind
	}
	return fmt.Errorf("%w: %v", kind, err)
}

// IsValidation reports whether err was rejected locally, before any external call.
func IsValidation(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrEmptyInput)
}

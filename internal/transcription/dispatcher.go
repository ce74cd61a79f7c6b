package transcription

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/anamnesis/internal/apperr"
	"github.com/obiente/anamnesis/internal/metrics"
)

// Upload is an audio file handed in for transcription.
type Upload struct {
	Name string
	MIME string
	Data []byte
}

// Clip is a validated upload as seen by a Recognizer.
type Clip struct {
	Name   string
	Format Format
	Data   []byte
}

// Recognizer turns a whole audio clip into text.
type Recognizer interface {
	Recognize(ctx context.Context, clip Clip) (string, error)
}

// Dispatcher validates uploads and forwards them to a Recognizer.
type Dispatcher struct {
	rec     Recognizer
	metrics *metrics.Metrics
}

// NewDispatcher returns a Dispatcher. rec may be nil, in which case every
// valid upload fails with ErrUpstreamUnavailable. m may be nil.
func NewDispatcher(rec Recognizer, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{rec: rec, metrics: m}
}

// Transcribe checks the declared format, then makes exactly one recognizer
// call with the full payload. It never returns partial text.
func (d *Dispatcher) Transcribe(ctx context.Context, up Upload) (string, error) {
	format, err := ParseFormat(up.MIME)
	if err != nil {
		log.Info().Str("mime", up.MIME).Msg("transcribe: rejected upload")
		d.count("unsupported", "rejected")
		return "", err
	}
	if len(up.Data) == 0 {
		d.count(format.String(), "rejected")
		return "", apperr.ErrEmptyInput
	}
	if d.rec == nil {
		d.count(format.String(), "error")
		return "", fmt.Errorf("%w: no speech recognizer configured", apperr.ErrUpstreamUnavailable)
	}

	name := up.Name
	if name == "" {
		name = "recording" + format.Ext()
	}

	start := time.Now()
	text, err := d.rec.Recognize(ctx, Clip{Name: name, Format: format, Data: up.Data})
	elapsed := time.Since(start)
	if d.metrics != nil {
		d.metrics.TranscriptionDuration.Observe(elapsed.Seconds())
	}
	if err != nil {
		log.Error().Err(err).Str("file", name).Str("format", format.String()).Msg("transcribe: recognizer failed")
		d.count(format.String(), "error")
		return "", apperr.Wrap(apperr.ErrTranscriptionFailed, err)
	}

	log.Info().
		Str("file", name).
		Str("format", format.String()).
		Int("bytes", len(up.Data)).
		Int("chars", len(text)).
		Dur("took", elapsed).
		Msg("transcribe: done")
	d.count(format.String(), "ok")
	return text, nil
}

func (d *Dispatcher) count(format, result string) {
	if d.metrics == nil {
		return
	}
	d.metrics.TranscriptionRequests.WithLabelValues(format, result).Inc()
}

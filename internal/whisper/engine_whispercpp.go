//go:build whisper_cpp

package whisper

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog/log"
)

// EngineCPP is the whisper.cpp-backed implementation of Engine.
type EngineCPP struct {
	model      whisperpkg.Model
	threads    uint
	maxSamples int
	language   string
	mu         sync.Mutex // whisper.cpp contexts must not run concurrently on one model
}

func NewEngine(opts Options) (Engine, error) {
	threads := uint(runtime.NumCPU())
	if opts.Threads > 0 {
		threads = uint(opts.Threads)
	}
	lang := opts.Language
	if lang == "" {
		lang = "auto"
	}

	m, err := whisperpkg.New(opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	log.Info().
		Str("model", opts.ModelPath).
		Uint("threads", threads).
		Str("language", lang).
		Msg("whisper: model loaded")

	return &EngineCPP{
		model:      m,
		threads:    threads,
		maxSamples: opts.MaxSeconds * SampleRate,
		language:   lang,
	}, nil
}

func (e *EngineCPP) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// SetLanguage configures the language for transcription. Use "auto" for auto-detection.
func (e *EngineCPP) SetLanguage(lang string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if lang == "" {
		lang = "auto"
	}
	e.language = lang
}

// Process runs a single full-clip transcription. Calls are serialized.
func (e *EngineCPP) Process(samples []float32) (string, string, error) {
	if len(samples) == 0 {
		return "", "", nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.maxSamples > 0 && len(samples) > e.maxSamples {
		log.Warn().Int("samples", len(samples)).Int("max", e.maxSamples).Msg("whisper: truncating long audio")
		samples = samples[len(samples)-e.maxSamples:]
	}

	ctx, err := e.model.NewContext()
	if err != nil {
		return "", "", fmt.Errorf("create context: %w", err)
	}
	ctx.SetThreads(e.threads)
	if err := ctx.SetLanguage(e.language); err != nil {
		return "", "", fmt.Errorf("set language %q: %w", e.language, err)
	}
	ctx.SetSplitOnWord(true)
	ctx.SetMaxSegmentLength(0)
	ctx.SetMaxTokensPerSegment(0)

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return "", "", fmt.Errorf("process audio: %w", err)
	}

	var segments []string
	for {
		seg, err := ctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", "", fmt.Errorf("read segment: %w", err)
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			segments = append(segments, text)
		}
	}

	lang := ctx.Language()
	if lang == "" || lang == "auto" {
		lang = ctx.DetectedLanguage()
	}
	full := strings.Join(segments, " ")

	log.Debug().
		Int("segments", len(segments)).
		Int("samples", len(samples)).
		Str("lang", lang).
		Msg("whisper: transcription complete")
	return full, lang, nil
}

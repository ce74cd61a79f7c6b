package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/anamnesis/internal/audio"
	"github.com/obiente/anamnesis/internal/config"
	serverhttp "github.com/obiente/anamnesis/internal/http"
	"github.com/obiente/anamnesis/internal/llm"
	"github.com/obiente/anamnesis/internal/metrics"
	"github.com/obiente/anamnesis/internal/summarizer"
	"github.com/obiente/anamnesis/internal/transcription"
	"github.com/obiente/anamnesis/internal/whisper"
	"github.com/obiente/anamnesis/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	lvl := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		lvl = l
	}
	log.Logger = log.Level(lvl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
	}

	store, err := audio.NewStore(cfg.Recordings.Dir, audio.Container(cfg.Recordings.Container), cfg.Capture.SampleRate)
	if err != nil {
		log.Fatal().Err(err).Msg("open recording store")
	}

	recognizer, closeRecognizer, err := newRecognizer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init speech recognizer")
	}
	defer closeRecognizer()

	completer, err := newCompleter(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init language model")
	}

	capture := ws.NewServer(store, ws.Options{
		SampleRate:   cfg.Capture.SampleRate,
		PollWait:     cfg.Capture.PollWait(),
		IdlePause:    cfg.Capture.IdlePause(),
		BufferFrames: cfg.Capture.BufferFrames,
	}, m)

	router := serverhttp.NewRouter(serverhttp.Deps{
		Transcriber:    transcription.NewDispatcher(recognizer, m),
		Summarizer:     summarizer.New(completer, m),
		Recordings:     store,
		Capture:        capture,
		Metrics:        m,
		MaxUploadBytes: cfg.Transcription.MaxUploadBytes(),
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.Transcription.Timeout() + 30*time.Second,
	}

	go func() {
		log.Info().
			Str("addr", cfg.Addr).
			Str("recordings", cfg.Recordings.Dir).
			Str("transcription", cfg.Transcription.Provider).
			Str("summarization", cfg.Summarization.Provider).
			Msg("anamnesis server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	// Hijacked capture connections are not covered by srv.Shutdown.
	if err := capture.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("capture shutdown failed")
	}
}

func newRecognizer(cfg config.Config) (transcription.Recognizer, func(), error) {
	noop := func() {}
	switch cfg.Transcription.Provider {
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			log.Warn().Msg("OPENAI_API_KEY is not set; transcription requests will fail upstream")
		}
		return transcription.NewOpenAIRecognizer(transcription.OpenAIConfig{
			APIKey:   cfg.OpenAI.APIKey,
			BaseURL:  cfg.OpenAI.BaseURL,
			Model:    cfg.Transcription.Model,
			Language: cfg.Transcription.Language,
			Timeout:  cfg.Transcription.Timeout(),
		}), noop, nil
	case "local":
		engine, err := whisper.NewEngine(whisper.Options{
			ModelPath:  cfg.Whisper.ModelPath,
			Threads:    cfg.Whisper.Threads,
			Language:   cfg.Transcription.Language,
			MaxSeconds: cfg.Whisper.MaxSeconds,
		})
		if err != nil {
			return nil, noop, err
		}
		local := transcription.NewLocalRecognizer(engine)
		return local, func() { _ = local.Close() }, nil
	}
	return nil, noop, nil
}

func newCompleter(ctx context.Context, cfg config.Config) (llm.Completer, error) {
	switch cfg.Summarization.Provider {
	case "openai":
		return llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.Summarization.Model,
			Temperature: cfg.Summarization.Temperature,
			Timeout:     cfg.Summarization.Timeout(),
		}), nil
	case "gemini":
		g, err := llm.NewGemini(ctx, llm.GeminiConfig{
			APIKey:  cfg.Gemini.APIKey,
			BaseURL: cfg.Gemini.BaseURL,
			Model:   cfg.Summarization.Model,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	return nil, nil
}

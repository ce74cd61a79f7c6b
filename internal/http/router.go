package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/anamnesis/internal/apperr"
	"github.com/obiente/anamnesis/internal/audio"
	"github.com/obiente/anamnesis/internal/metrics"
	"github.com/obiente/anamnesis/internal/summarizer"
	"github.com/obiente/anamnesis/internal/transcription"
	"github.com/obiente/anamnesis/internal/ws"
)

const (
	defaultMaxUpload = 25 << 20
	maxJSONBody      = 1 << 20
)

type Transcriber interface {
	Transcribe(ctx context.Context, up transcription.Upload) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) (summarizer.Summary, error)
}

type Recordings interface {
	Open(id string) (audio.Asset, error)
}

// Deps are the components served by the router. Nil optional parts leave
// their routes unregistered.
type Deps struct {
	Transcriber    Transcriber
	Summarizer     Summarizer
	Recordings     Recordings
	Capture        *ws.Server
	Metrics        *metrics.Metrics
	MaxUploadBytes int64
}

func NewRouter(d Deps) http.Handler {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = defaultMaxUpload
	}
	h := &handlers{Deps: d}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"ok": true}
		if d.Capture != nil {
			body["sessions"] = d.Capture.Active()
		}
		writeJSON(w, http.StatusOK, body)
	})
	mux.Handle("POST /transcribe", h.instrument("transcribe", h.transcribe))
	mux.Handle("POST /summarize", h.instrument("summarize", h.summarize))
	if d.Recordings != nil {
		mux.Handle("POST /recordings/{id}/transcribe", h.instrument("recordings_transcribe", h.transcribeRecording))
	}
	// Capture websocket; not instrumented because the connection is hijacked.
	if d.Capture != nil {
		mux.HandleFunc("GET /ws/capture", d.Capture.Handle)
	}
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}
	return mux
}

type handlers struct {
	Deps
}

func (h *handlers) transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read file failed")
		return
	}

	h.dispatch(w, r, transcription.Upload{
		Name: hdr.Filename,
		MIME: hdr.Header.Get("Content-Type"),
		Data: data,
	})
}

func (h *handlers) transcribeRecording(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	asset, err := h.Recordings.Open(id)
	if err != nil {
		if errors.Is(err, audio.ErrAssetNotFound) || errors.Is(err, audio.ErrInvalidID) {
			writeError(w, http.StatusNotFound, "recording not found")
			return
		}
		log.Error().Err(err).Str("id", id).Msg("open recording failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.dispatch(w, r, transcription.Upload{MIME: asset.MIME, Data: asset.Data})
}

func (h *handlers) dispatch(w http.ResponseWriter, r *http.Request, up transcription.Upload) {
	if h.Transcriber == nil {
		writeError(w, http.StatusInternalServerError, apperr.ErrUpstreamUnavailable.Error())
		return
	}
	text, err := h.Transcriber.Transcribe(r.Context(), up)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"text": text})
}

func (h *handlers) summarize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if h.Summarizer == nil {
		writeError(w, http.StatusInternalServerError, apperr.ErrUpstreamUnavailable.Error())
		return
	}
	sum, err := h.Summarizer.Summarize(r.Context(), req.Text)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	if apperr.IsValidation(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *handlers) instrument(route string, fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		fn(rec, r)
		elapsed := time.Since(start)

		if h.Metrics != nil {
			h.Metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
			h.Metrics.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		}
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.code).
			Dur("took", elapsed).
			Msg("http request")
	})
}

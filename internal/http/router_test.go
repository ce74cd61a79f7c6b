package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/obiente/anamnesis/internal/audio"
	"github.com/obiente/anamnesis/internal/llm"
	"github.com/obiente/anamnesis/internal/metrics"
	"github.com/obiente/anamnesis/internal/summarizer"
	"github.com/obiente/anamnesis/internal/transcription"
)

type stubRecognizer struct {
	calls int
	text  string
	err   error
}

func (s *stubRecognizer) Recognize(ctx context.Context, clip transcription.Clip) (string, error) {
	s.calls++
	return s.text, s.err
}

type stubModel struct {
	err error
}

func (m stubModel) Complete(ctx context.Context, p llm.Prompt) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	switch {
	case strings.Contains(p.System, "Summarize"):
		return "<stub1>", nil
	case strings.Contains(p.System, "topics"):
		return "<stub2>", nil
	default:
		return "<stub3>", nil
	}
}

func newRouter(t *testing.T, rec *stubRecognizer, model llm.Completer) (http.Handler, *audio.Store) {
	t.Helper()
	store, err := audio.NewStore(t.TempDir(), audio.ContainerWAV, 16000)
	if err != nil {
		t.Fatal(err)
	}
	m := metrics.New(prometheus.NewRegistry())
	return NewRouter(Deps{
		Transcriber: transcription.NewDispatcher(rec, m),
		Summarizer:  summarizer.New(model, m),
		Recordings:  store,
		Metrics:     m,
	}), store
}

func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(data)
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	h, _ := newRouter(t, &stubRecognizer{}, stubModel{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if decode(t, rr)["ok"] != true {
		t.Error("healthz did not report ok")
	}
}

func TestTranscribe(t *testing.T) {
	tests := []struct {
		name        string
		field       string
		contentType string
		data        []byte
		recErr      error
		wantCode    int
		wantText    string
		wantCalls   int
	}{
		{"wav upload", "file", "audio/wav", []byte("RIFF"), nil, http.StatusOK, "hello doctor", 1},
		{"webm with codec param", "file", "audio/webm;codecs=opus", []byte{1}, nil, http.StatusOK, "hello doctor", 1},
		{"unsupported type", "file", "audio/flac", []byte{1}, nil, http.StatusBadRequest, "", 0},
		{"empty file", "file", "audio/wav", nil, nil, http.StatusBadRequest, "", 0},
		{"missing file part", "upload", "audio/wav", []byte{1}, nil, http.StatusBadRequest, "", 0},
		{"recognizer failure", "file", "audio/mpeg", []byte{1}, errors.New("upstream 503"), http.StatusInternalServerError, "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &stubRecognizer{text: "hello doctor", err: tt.recErr}
			h, _ := newRouter(t, rec, stubModel{})

			body, ct := multipartBody(t, tt.field, "visit.bin", tt.contentType, tt.data)
			req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
			req.Header.Set("Content-Type", ct)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.wantCode, rr.Body.String())
			}
			out := decode(t, rr)
			if tt.wantCode == http.StatusOK {
				if out["text"] != tt.wantText {
					t.Errorf("text = %v, want %q", out["text"], tt.wantText)
				}
			} else if out["error"] == "" || out["error"] == nil {
				t.Errorf("missing error message: %v", out)
			}
			if rec.calls != tt.wantCalls {
				t.Errorf("recognizer calls = %d, want %d", rec.calls, tt.wantCalls)
			}
		})
	}
}

func TestTranscribeNotMultipart(t *testing.T) {
	h, _ := newRouter(t, &stubRecognizer{}, stubModel{})
	req := httptest.NewRequest(http.MethodPost, "/transcribe", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestTranscribeRecording(t *testing.T) {
	rec := &stubRecognizer{text: "stored clip"}
	h, store := newRouter(t, rec, stubModel{})
	if _, err := store.Save("session-1", []byte{1, 0, 2, 0}); err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/recordings/session-1/transcribe", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rr.Code, rr.Body.String())
	}
	if out := decode(t, rr); out["text"] != "stored clip" {
		t.Errorf("text = %v", out["text"])
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/recordings/nope/transcribe", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown recording status = %d, want 404", rr.Code)
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		modelErr error
		wantCode int
	}{
		{"ok", `{"text":"Patient presents with fever and cough."}`, nil, http.StatusOK},
		{"empty text", `{"text":"   "}`, nil, http.StatusBadRequest},
		{"invalid json", `{"text":`, nil, http.StatusBadRequest},
		{"model failure", `{"text":"fever"}`, errors.New("timeout"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newRouter(t, &stubRecognizer{}, stubModel{err: tt.modelErr})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/summarize", strings.NewReader(tt.body)))
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.wantCode, rr.Body.String())
			}
			out := decode(t, rr)
			if tt.wantCode != http.StatusOK {
				if _, ok := out["error"]; !ok {
					t.Errorf("missing error field: %v", out)
				}
				if _, ok := out["summary"]; ok {
					t.Errorf("error response carries partial summary: %v", out)
				}
				return
			}
			want := map[string]any{"summary": "<stub1>", "topics": "<stub2>", "treatments": "<stub3>"}
			for k, v := range want {
				if out[k] != v {
					t.Errorf("%s = %v, want %v", k, out[k], v)
				}
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newRouter(t, &stubRecognizer{}, stubModel{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/summarize", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	h, _ := newRouter(t, &stubRecognizer{}, stubModel{})
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/summarize", strings.NewReader(`{"text":""}`)))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	want := `anamnesis_http_requests_total{code="400",route="summarize"} 1`
	if !strings.Contains(rr.Body.String(), want) {
		t.Errorf("metrics missing %q", want)
	}
}

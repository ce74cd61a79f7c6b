package transcription

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/obiente/anamnesis/internal/apperr"
	"github.com/obiente/anamnesis/internal/audio"
)

type stubRecognizer struct {
	calls int
	last  Clip
	text  string
	err   error
}

func (s *stubRecognizer) Recognize(ctx context.Context, clip Clip) (string, error) {
	s.calls++
	s.last = clip
	return s.text, s.err
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"audio/wav", FormatWAV, false},
		{"audio/mpeg", FormatMPEG, false},
		{"audio/ogg", FormatOGG, false},
		{"audio/webm", FormatWebM, false},
		{"AUDIO/WAV", FormatWAV, false},
		{"audio/webm;codecs=opus", FormatWebM, false},
		{"audio/flac", "", true},
		{"audio/x-wav", "", true},
		{"text/plain", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, apperr.ErrUnsupportedFormat) {
				t.Errorf("error = %v, want ErrUnsupportedFormat", err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatValid(t *testing.T) {
	for _, f := range []Format{FormatWAV, FormatMPEG, FormatOGG, FormatWebM} {
		if !f.Valid() {
			t.Errorf("%q.Valid() = false", f)
		}
		if f.Ext() == "" {
			t.Errorf("%q has no extension", f)
		}
	}
	for _, f := range []Format{"", "audio/flac", "audio/x-wav", "AUDIO/WAV"} {
		if f.Valid() {
			t.Errorf("%q.Valid() = true", f)
		}
	}
}

func TestUnsupportedFormatNeverReachesRecognizer(t *testing.T) {
	rec := &stubRecognizer{text: "should not be used"}
	d := NewDispatcher(rec, nil)

	for _, mt := range []string{"audio/flac", "video/mp4", "application/octet-stream"} {
		text, err := d.Transcribe(context.Background(), Upload{Name: "x", MIME: mt, Data: []byte{1, 2, 3}})
		if !errors.Is(err, apperr.ErrUnsupportedFormat) {
			t.Errorf("Transcribe(%s) error = %v, want ErrUnsupportedFormat", mt, err)
		}
		if text != "" {
			t.Errorf("Transcribe(%s) text = %q, want empty", mt, text)
		}
	}
	if rec.calls != 0 {
		t.Errorf("recognizer called %d times, want 0", rec.calls)
	}
}

func TestTranscribeSuccess(t *testing.T) {
	rec := &stubRecognizer{text: "patient reports headache"}
	d := NewDispatcher(rec, nil)

	text, err := d.Transcribe(context.Background(), Upload{MIME: "audio/webm;codecs=opus", Data: []byte("opus")})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "patient reports headache" {
		t.Errorf("text = %q", text)
	}
	if rec.calls != 1 {
		t.Errorf("recognizer called %d times, want 1", rec.calls)
	}
	if rec.last.Name != "recording.webm" {
		t.Errorf("default name = %q, want recording.webm", rec.last.Name)
	}
	if rec.last.Format != FormatWebM {
		t.Errorf("format = %q, want %q", rec.last.Format, FormatWebM)
	}
}

func TestTranscribeRecognizerFailure(t *testing.T) {
	rec := &stubRecognizer{text: "partial", err: errors.New("quota exceeded")}
	d := NewDispatcher(rec, nil)

	text, err := d.Transcribe(context.Background(), Upload{Name: "a.mp3", MIME: "audio/mpeg", Data: []byte{1}})
	if !errors.Is(err, apperr.ErrTranscriptionFailed) {
		t.Fatalf("error = %v, want ErrTranscriptionFailed", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error %q does not carry the recognizer message", err)
	}
	if text != "" {
		t.Errorf("text = %q, want no partial text", text)
	}
}

func TestTranscribeEmptyAndUnavailable(t *testing.T) {
	rec := &stubRecognizer{}
	if _, err := NewDispatcher(rec, nil).Transcribe(context.Background(), Upload{MIME: "audio/wav"}); !errors.Is(err, apperr.ErrEmptyInput) {
		t.Errorf("empty upload error = %v, want ErrEmptyInput", err)
	}
	if rec.calls != 0 {
		t.Errorf("recognizer called for empty upload")
	}

	_, err := NewDispatcher(nil, nil).Transcribe(context.Background(), Upload{MIME: "audio/wav", Data: []byte{1}})
	if !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Errorf("nil recognizer error = %v, want ErrUpstreamUnavailable", err)
	}
}

type fakeEngine struct {
	samples int
	text    string
}

func (e *fakeEngine) Process(samples []float32) (string, string, error) {
	e.samples = len(samples)
	return e.text, "en", nil
}
func (e *fakeEngine) SetLanguage(string) {}
func (e *fakeEngine) Close() error       { return nil }

func TestLocalRecognizer(t *testing.T) {
	store, err := audio.NewStore(t.TempDir(), audio.ContainerWAV, 8000)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save("clip", make([]byte, 8000*2)); err != nil {
		t.Fatal(err)
	}
	asset, err := store.Open("clip")
	if err != nil {
		t.Fatal(err)
	}

	eng := &fakeEngine{text: "hello"}
	r := NewLocalRecognizer(eng)
	text, err := r.Recognize(context.Background(), Clip{Name: "clip.wav", Format: FormatWAV, Data: asset.Data})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if text != "hello" {
		t.Errorf("text = %q, want hello", text)
	}
	if eng.samples != 16000 {
		t.Errorf("engine saw %d samples, want 16000 after resampling 1s of 8kHz", eng.samples)
	}

	if _, err := r.Recognize(context.Background(), Clip{Format: FormatOGG, Data: []byte{1}}); err == nil {
		t.Error("Recognize() should refuse non-wav input")
	}
}

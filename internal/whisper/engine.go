package whisper

import "errors"

// SampleRate is the only rate the engine accepts.
const SampleRate = 16000

// ErrUnavailable is returned by the stub engine when the binary was built
// without the whisper_cpp tag.
var ErrUnavailable = errors.New("whisper.cpp support not compiled in (build with -tags whisper_cpp)")

// Options configures a local whisper engine.
type Options struct {
	ModelPath string
	Threads   int
	// Language is a whisper language code or "auto".
	Language string
	// MaxSeconds truncates longer clips to their tail. Zero disables the limit.
	MaxSeconds int
}

// Engine transcribes whole clips of 16 kHz mono float32 samples.
// Implementations may be a stub or backed by whisper.cpp (build tag: whisper_cpp).
type Engine interface {
	// Process returns the recognized text and the detected language.
	Process(samples []float32) (text string, lang string, err error)
	SetLanguage(lang string)
	Close() error
}

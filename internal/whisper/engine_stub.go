//go:build !whisper_cpp

package whisper

// Default stub (no cgo) so the project builds without whisper_cpp tag.
type stubEngine struct{}

func NewEngine(opts Options) (Engine, error) { return &stubEngine{}, nil }
func (e *stubEngine) Close() error          { return nil }
func (e *stubEngine) Process(samples []float32) (string, string, error) {
	return "", "", ErrUnavailable
}
func (e *stubEngine) SetLanguage(lang string) {}

package transcription

import (
	"context"
	"fmt"

	"github.com/obiente/anamnesis/internal/audio"
	"github.com/obiente/anamnesis/internal/whisper"
)

// LocalRecognizer runs clips through an in-process whisper engine. Only WAV
// input can be decoded locally.
type LocalRecognizer struct {
	engine whisper.Engine
}

func NewLocalRecognizer(engine whisper.Engine) *LocalRecognizer {
	return &LocalRecognizer{engine: engine}
}

func (r *LocalRecognizer) Recognize(ctx context.Context, clip Clip) (string, error) {
	if clip.Format != FormatWAV {
		return "", fmt.Errorf("local recognizer cannot decode %s", clip.Format)
	}
	pcm, sr, err := audio.DecodeWAVToFloat32(clip.Data)
	if err != nil {
		return "", fmt.Errorf("decode wav: %w", err)
	}
	if sr != whisper.SampleRate {
		pcm = audio.ResampleLinear(pcm, sr, whisper.SampleRate)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, _, err := r.engine.Process(pcm)
	if err != nil {
		return "", err
	}
	return text, nil
}

// Close releases the underlying engine.
func (r *LocalRecognizer) Close() error {
	return r.engine.Close()
}

package transcription

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the hosted Whisper recognizer.
type OpenAIConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Timeout  time.Duration
}

// OpenAIRecognizer sends clips to the OpenAI audio transcription API.
type OpenAIRecognizer struct {
	client   *openai.Client
	model    string
	language string
}

func NewOpenAIRecognizer(cfg OpenAIConfig) *OpenAIRecognizer {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIRecognizer{
		client:   openai.NewClientWithConfig(oc),
		model:    model,
		language: cfg.Language,
	}
}

func (r *OpenAIRecognizer) Recognize(ctx context.Context, clip Clip) (string, error) {
	resp, err := r.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    r.model,
		FilePath: clip.Name,
		Reader:   bytes.NewReader(clip.Data),
		Language: r.language,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

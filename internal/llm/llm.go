package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("empty response from model")

// Prompt is one system+user exchange with a soft output budget.
type Prompt struct {
	System    string
	User      string
	MaxTokens int
}

// Completer produces a single completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

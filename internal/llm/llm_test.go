package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			Messages  []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" || req.MaxTokens != 150 {
			t.Errorf("model=%q max_tokens=%d", req.Model, req.MaxTokens)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "fever and cough" {
			t.Errorf("messages = %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Febrile patient.  "},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	c := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "test-model"})
	out, err := c.Complete(context.Background(), Prompt{System: "Summarize.", User: "fever and cough", MaxTokens: 150})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != "Febrile patient." {
		t.Errorf("Complete() = %q", out)
	}
}

func TestOpenAICompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","choices":[]}`)
	}))
	defer srv.Close()

	_, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL}).Complete(context.Background(), Prompt{User: "x"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("Complete() error = %v, want ErrEmptyResponse", err)
	}
}

func TestOpenAICompleteBlankContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":" \n "},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	out, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL}).Complete(context.Background(), Prompt{User: "x"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("Complete() = %q, %v; want ErrEmptyResponse", out, err)
	}
}

func TestOpenAICompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"rate limited","type":"requests"}}`)
	}))
	defer srv.Close()

	_, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL}).Complete(context.Background(), Prompt{User: "x"})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("Complete() error = %v, want rate limited", err)
	}
}

func TestGeminiComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "models/test-gemini:generateContent") {
			t.Errorf("path = %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		for _, want := range []string{"systemInstruction", "List the main topics.", `"maxOutputTokens":100`} {
			if !strings.Contains(string(body), want) {
				t.Errorf("request body missing %q: %s", want, body)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"fever, "},{"text":"cough"}]}}]}`)
	}))
	defer srv.Close()

	g, err := NewGemini(context.Background(), GeminiConfig{APIKey: "k", Model: "test-gemini", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("NewGemini() error = %v", err)
	}
	out, err := g.Complete(context.Background(), Prompt{System: "List the main topics.", User: "fever and cough", MaxTokens: 100})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != "fever, cough" {
		t.Errorf("Complete() = %q", out)
	}
}

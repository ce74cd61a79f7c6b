package summarizer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/anamnesis/internal/apperr"
	"github.com/obiente/anamnesis/internal/llm"
	"github.com/obiente/anamnesis/internal/metrics"
)

// Summary is the three-part clinical derivative of an anamnesis text.
type Summary struct {
	Summary    string `json:"summary"`
	Topics     string `json:"topics"`
	Treatments string `json:"treatments"`
}

// Task is one model request issued per summarization.
type Task struct {
	Name      string
	System    string
	MaxTokens int
}

// DefaultTasks are issued in this order; the order only matters for picking
// which error to report when several fail.
var DefaultTasks = [3]Task{
	{
		Name:      "summary",
		System:    "You are a clinical assistant. Summarize the following patient anamnesis concisely.",
		MaxTokens: 150,
	},
	{
		Name:      "topics",
		System:    "You are a clinical assistant. List the main topics discussed in the following patient anamnesis.",
		MaxTokens: 100,
	},
	{
		Name:      "treatments",
		System:    "You are a clinical assistant. List only the names of treatments and medications mentioned in the following patient anamnesis.",
		MaxTokens: 100,
	},
}

type Summarizer struct {
	model   llm.Completer
	tasks   [3]Task
	metrics *metrics.Metrics
}

// New returns a Summarizer backed by model. m may be nil.
func New(model llm.Completer, m *metrics.Metrics) *Summarizer {
	return &Summarizer{model: model, tasks: DefaultTasks, metrics: m}
}

// Summarize runs the three tasks concurrently. The result is returned only
// when all three succeed; otherwise it is the zero Summary.
func (s *Summarizer) Summarize(ctx context.Context, text string) (Summary, error) {
	if strings.TrimSpace(text) == "" {
		return Summary{}, apperr.ErrEmptyInput
	}
	if s.model == nil {
		s.count(apperr.ErrUpstreamUnavailable)
		return Summary{}, fmt.Errorf("%w: no language model configured", apperr.ErrUpstreamUnavailable)
	}

	var (
		out  [3]string
		errs [3]error
		wg   sync.WaitGroup
	)
	for i, task := range s.tasks {
		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()
			start := time.Now()
			out[i], errs[i] = s.model.Complete(ctx, llm.Prompt{
				System:    task.System,
				User:      text,
				MaxTokens: task.MaxTokens,
			})
			if s.metrics != nil {
				s.metrics.CompletionDuration.WithLabelValues(task.Name).Observe(time.Since(start).Seconds())
			}
		}(i, task)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			log.Error().Err(err).Str("task", s.tasks[i].Name).Msg("summarize: model call failed")
			wrapped := apperr.Wrap(apperr.ErrSummarizationFailed, fmt.Errorf("%s: %w", s.tasks[i].Name, err))
			s.count(wrapped)
			return Summary{}, wrapped
		}
	}

	log.Info().Int("chars", len(text)).Msg("summarize: done")
	s.count(nil)
	return Summary{Summary: out[0], Topics: out[1], Treatments: out[2]}, nil
}

func (s *Summarizer) count(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.SummarizationRequests.WithLabelValues(metrics.Result(err)).Inc()
}

package summarize

import "context"

// Summarizer produces raw model output for a prompt. Implementations wrap an
// LLM API; decorators in this package add retries and logging around any
// implementation.
type Summarizer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// FallbackReply is shown in place of a model answer whenever the completion
// call fails for any reason.
const FallbackReply = "Sorry, I could not understand your question."

// Completion is the outcome of one exchange with the model.
type Completion struct {
	Reply    string
	Fallback bool
	Response Response
	Err      error
	Duration time.Duration
}

// Completer sends a single user prompt and never fails: errors are logged and
// turned into FallbackReply so every question gets exactly one answer.
type Completer struct {
	client Client
	log    zerolog.Logger
}

func NewCompleter(client Client, log zerolog.Logger) *Completer {
	return &Completer{client: client, log: log}
}

func (c *Completer) Complete(ctx context.Context, prompt string) Completion {
	start := time.Now()
	resp, err := c.client.Generate(ctx, []Message{{Role: RoleUser, Content: prompt}})
	out := Completion{Response: resp, Duration: time.Since(start)}
	switch {
	case err != nil:
		c.log.Error().Err(err).Dur("took", out.Duration).Msg("completion failed, using fallback reply")
		out.Reply, out.Fallback, out.Err = FallbackReply, true, err
	case resp.Content == "":
		c.log.Warn().Str("model", resp.Model).Msg("completion returned empty content, using fallback reply")
		out.Reply, out.Fallback = FallbackReply, true
	default:
		c.log.Info().
			Str("model", resp.Model).
			Int("prompt_tokens", resp.PromptTokens).
			Int("completion_tokens", resp.CompletionTokens).
			Int("total_tokens", resp.TotalTokens).
			Dur("took", out.Duration).
			Msg("completion received")
		out.Reply = resp.Content
	}
	return out
}

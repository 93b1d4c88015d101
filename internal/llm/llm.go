// Package llm provides the classification backend: a single-turn prompt in,
// raw model text out.
package llm

import "context"

// Completer submits one prompt and returns the model's raw reply text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

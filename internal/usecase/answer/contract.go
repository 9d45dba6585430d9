package answer

import "context"

// Generator is the generative model capability.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string, onToken func(string) error) error
}

// TokenCounter estimates prompt size.
type TokenCounter interface {
	Count(text string) int
}

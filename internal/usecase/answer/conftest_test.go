package answer

import (
	"context"
	"sync"
)

type fakeGenerator struct {
	mu        sync.Mutex
	completes int
	streams   int
	prompt    string
	text      string
	tokens    []string
	err       error
	failAfter int // stream: fail after this many tokens when err is set
}

func (f *fakeGenerator) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes++
	f.prompt = prompt
	return f.text, f.err
}

func (f *fakeGenerator) Stream(ctx context.Context, prompt string, onToken func(string) error) error {
	f.mu.Lock()
	f.streams++
	f.prompt = prompt
	f.mu.Unlock()

	for i, tok := range f.tokens {
		if f.err != nil && i == f.failAfter {
			return f.err
		}
		if err := onToken(tok); err != nil {
			return err
		}
	}
	if f.err != nil && f.failAfter >= len(f.tokens) {
		return f.err
	}
	return ctx.Err()
}

type fixedCounter int

func (c fixedCounter) Count(string) int { return int(c) }

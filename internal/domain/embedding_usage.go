package domain

import (
	"context"
	"sync/atomic"
)

type usageKey struct{}

// RequestUsage collects provider token usage for a single HTTP request.
// The handler puts a pointer into the context, the embedders and the generator add to it,
// and the wide-event log line reads it once the request is done.
type RequestUsage struct {
	embeddingTokens  atomic.Int64
	embeddingCalls   atomic.Int64
	generationTokens atomic.Int64
}

// NewContextWithUsage returns a context with an attached usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *RequestUsage) {
	u := &RequestUsage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *RequestUsage {
	u, _ := ctx.Value(usageKey{}).(*RequestUsage)
	return u
}

// AddEmbeddingTokens records one embedding call and its tokens. Safe on a nil receiver.
func (u *RequestUsage) AddEmbeddingTokens(n int) {
	if u == nil {
		return
	}
	u.embeddingCalls.Add(1)
	u.embeddingTokens.Add(int64(n))
}

// AddGenerationTokens records generated or estimated completion tokens. Safe on a nil receiver.
func (u *RequestUsage) AddGenerationTokens(n int) {
	if u == nil {
		return
	}
	u.generationTokens.Add(int64(n))
}

// EmbeddingTokens returns the embedding tokens consumed so far.
func (u *RequestUsage) EmbeddingTokens() int64 {
	if u == nil {
		return 0
	}
	return u.embeddingTokens.Load()
}

// EmbeddingCalls returns the number of embedding calls, cache hits included.
func (u *RequestUsage) EmbeddingCalls() int64 {
	if u == nil {
		return 0
	}
	return u.embeddingCalls.Load()
}

// GenerationTokens returns the generation tokens recorded so far.
func (u *RequestUsage) GenerationTokens() int64 {
	if u == nil {
		return 0
	}
	return u.generationTokens.Load()
}

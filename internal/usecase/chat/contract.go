package chat

import (
	"context"

	domchat "github.com/kailas-cloud/finrag/internal/domain/chat"
)

// Presence tells whether a namespace holds any chunk.
type Presence interface {
	HasAny(ctx context.Context, ns string) (bool, error)
}

// Retriever returns the chunks most relevant to a question.
type Retriever interface {
	Retrieve(ctx context.Context, ns, query string, topK int) ([]domchat.RetrievedChunk, error)
}

// Answerer generates grounded answers.
type Answerer interface {
	Generate(ctx context.Context, question string, chunks []domchat.RetrievedChunk, history []domchat.Turn) (domchat.Answer, error)
	Stream(ctx context.Context, question string, chunks []domchat.RetrievedChunk, history []domchat.Turn) <-chan domchat.Event
}

// Package chat answers questions against a namespace's documents.
package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	domchat "github.com/kailas-cloud/finrag/internal/domain/chat"
	"github.com/kailas-cloud/finrag/internal/metrics"
)

// Reply is either a whole answer or an event stream, never both.
// An empty namespace always yields a whole answer, even when a stream was asked for.
type Reply struct {
	Answer *domchat.Answer
	Events <-chan domchat.Event
}

// Service orchestrates presence check, retrieval and generation.
type Service struct {
	presence  Presence
	retriever Retriever
	answerer  Answerer
	logger    *zap.Logger
}

// New creates a chat service.
func New(p Presence, r Retriever, a Answerer, logger *zap.Logger) *Service {
	return &Service{presence: p, retriever: r, answerer: a, logger: logger}
}

// Chat answers question for ns. Errors before the first token are returned directly;
// later failures travel on the stream.
func (s *Service) Chat(
	ctx context.Context, ns, question string, history []domchat.Turn, stream bool,
) (Reply, error) {
	if strings.TrimSpace(question) == "" {
		return Reply{}, fmt.Errorf("%w: message is required", domain.ErrInvalidInput)
	}

	has, err := s.presence.HasAny(ctx, ns)
	if err != nil {
		return Reply{}, fmt.Errorf("check namespace: %w", err)
	}
	if !has {
		// Ни одного документа: не тратим ни эмбеддинг, ни вызов модели.
		metrics.GenerationShortCircuitTotal.Inc()
		s.logger.Debug("Namespace is empty, answering with fallback", zap.String("namespace", ns))
		return Reply{Answer: &domchat.Answer{Text: domchat.FallbackAnswer, Citations: []domchat.Citation{}}}, nil
	}

	chunks, err := s.retriever.Retrieve(ctx, ns, question, 0)
	if err != nil {
		return Reply{}, fmt.Errorf("retrieve: %w", err)
	}

	if stream {
		return Reply{Events: s.answerer.Stream(ctx, question, chunks, history)}, nil
	}

	ans, err := s.answerer.Generate(ctx, question, chunks, history)
	if err != nil {
		return Reply{}, fmt.Errorf("generate: %w", err)
	}
	return Reply{Answer: &ans}, nil
}

// Package answer turns retrieved chunks into a grounded answer, either whole or as a
// token stream.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/chat"
	"github.com/kailas-cloud/finrag/internal/metrics"
)

// Service is the AnswerGenerator.
type Service struct {
	gen          Generator
	counter      TokenCounter
	model        string
	historyTurns int
	logger       *zap.Logger
}

// New creates an answer service. historyTurns <= 0 means chat.HistoryTurns.
func New(gen Generator, counter TokenCounter, model string, historyTurns int, logger *zap.Logger) *Service {
	if historyTurns <= 0 {
		historyTurns = chat.HistoryTurns
	}
	return &Service{
		gen:          gen,
		counter:      counter,
		model:        model,
		historyTurns: historyTurns,
		logger:       logger,
	}
}

func (s *Service) prompt(question string, chunks []chat.RetrievedChunk, history []chat.Turn) string {
	p := BuildPrompt(question, chunks, history, s.historyTurns)
	if s.counter != nil {
		metrics.GenerationPromptTokens.WithLabelValues(s.model).Observe(float64(s.counter.Count(p)))
	}
	return p
}

// Generate returns the whole answer. With no chunks the model is not called and the
// fallback message is returned with empty citations.
func (s *Service) Generate(
	ctx context.Context, question string, chunks []chat.RetrievedChunk, history []chat.Turn,
) (chat.Answer, error) {
	if len(chunks) == 0 {
		metrics.GenerationShortCircuitTotal.Inc()
		return chat.Answer{Text: chat.FallbackAnswer, Citations: []chat.Citation{}}, nil
	}

	text, err := s.gen.Complete(ctx, s.prompt(question, chunks, history))
	if err != nil {
		return chat.Answer{}, wrapGeneration(err)
	}
	return chat.Answer{Text: strings.TrimSpace(text), Citations: chat.Citations(chunks)}, nil
}

// Stream emits token events in generation order, then exactly one sources event, then
// closes the channel. A generation failure is carried on the sources event; tokens
// already sent stay sent. Cancelling ctx stops the model call and closes the channel.
func (s *Service) Stream(
	ctx context.Context, question string, chunks []chat.RetrievedChunk, history []chat.Turn,
) <-chan chat.Event {
	out := make(chan chat.Event)

	go func() {
		defer close(out)

		send := func(ev chat.Event) error {
			select {
			case out <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if len(chunks) == 0 {
			metrics.GenerationShortCircuitTotal.Inc()
			if send(chat.TokenEvent(chat.FallbackAnswer)) == nil {
				_ = send(chat.SourcesEvent([]chat.Citation{}, nil))
			}
			return
		}

		err := s.gen.Stream(ctx, s.prompt(question, chunks, history), func(tok string) error {
			return send(chat.TokenEvent(tok))
		})
		if ctx.Err() != nil {
			s.logger.Debug("Answer stream abandoned by client", zap.Error(ctx.Err()))
			return
		}
		if err != nil {
			err = wrapGeneration(err)
			s.logger.Warn("Answer stream failed", zap.String("model", s.model), zap.Error(err))
		}
		_ = send(chat.SourcesEvent(chat.Citations(chunks), err))
	}()

	return out
}

func wrapGeneration(err error) error {
	if errors.Is(err, domain.ErrGeneration) || errors.Is(err, domain.ErrConfiguration) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrGeneration, err)
}

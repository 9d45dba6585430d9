package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/metrics"
)

const (
	modeBuffered = "buffered"
	modeStream   = "stream"
)

// GeneratorConfig holds chat model settings.
type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Logger      *zap.Logger
}

// Generator produces answers with the chat completions API.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	cfgErr      error
	logger      *zap.Logger
}

// NewGenerator creates a Generator. A missing API key surfaces as a configuration error on use.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	g := &Generator{
		client:      newClient(cfg.APIKey, cfg.BaseURL),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      cfg.Logger,
	}
	if cfg.APIKey == "" {
		g.cfgErr = domain.ConfigError("generation", "api_key")
	}
	return g
}

func (g *Generator) request(prompt string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		Stream:      stream,
	}
}

// Complete returns the whole answer for prompt.
func (g *Generator) Complete(ctx context.Context, prompt string) (string, error) {
	if g.cfgErr != nil {
		return "", g.cfgErr
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, g.request(prompt, false))
	metrics.GenerationDuration.WithLabelValues(g.model, modeBuffered).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, modeBuffered, "error").Inc()
		return "", parseAPIError(err, domain.ErrGeneration, domain.ErrRateLimited)
	}
	if len(resp.Choices) == 0 {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, modeBuffered, "error").Inc()
		return "", fmt.Errorf("%w: empty completion", domain.ErrGeneration)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.model, modeBuffered, "success").Inc()
	domain.UsageFromContext(ctx).AddGenerationTokens(resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}

// Stream passes every non-empty text fragment to onToken in generation order.
// An error from onToken stops reading and is returned as is.
func (g *Generator) Stream(ctx context.Context, prompt string, onToken func(string) error) error {
	if g.cfgErr != nil {
		return g.cfgErr
	}

	start := time.Now()
	defer func() {
		metrics.GenerationDuration.WithLabelValues(g.model, modeStream).Observe(time.Since(start).Seconds())
	}()

	stream, err := g.client.CreateChatCompletionStream(ctx, g.request(prompt, true))
	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, modeStream, "error").Inc()
		return parseAPIError(err, domain.ErrGeneration, domain.ErrRateLimited)
	}
	defer stream.Close()

	fragments := metrics.GenerationStreamTokensTotal.WithLabelValues(g.model)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metrics.GenerationRequestsTotal.WithLabelValues(g.model, modeStream, "error").Inc()
			g.logger.Warn("Generation stream broke", zap.String("model", g.model), zap.Error(err))
			return fmt.Errorf("%w: stream: %w", domain.ErrGeneration, err)
		}
		if chunk.Usage != nil {
			domain.UsageFromContext(ctx).AddGenerationTokens(chunk.Usage.CompletionTokens)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}

		fragments.Inc()
		if err := onToken(chunk.Choices[0].Delta.Content); err != nil {
			metrics.GenerationRequestsTotal.WithLabelValues(g.model, modeStream, "aborted").Inc()
			return err
		}
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.model, modeStream, "success").Inc()
	return nil
}

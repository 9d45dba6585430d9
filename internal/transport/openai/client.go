// Package openai talks to an OpenAI-compatible endpoint (Gemini's by default) for
// embeddings and chat generation.
package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

func newClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// parseAPIError extracts a readable message from the provider response and wraps it
// with class. A 429 additionally matches domain.ErrRateLimited.
func parseAPIError(err error, class, rateLimited error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		wrap := classify(reqErr.HTTPStatusCode, class, rateLimited)
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("provider error %d: %s: %w", reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("provider error %d: %s: %w", reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		wrap := classify(apiErr.HTTPStatusCode, class, rateLimited)
		return fmt.Errorf("provider error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("provider request failed: %w", errors.Join(class, err))
}

func classify(status int, class, rateLimited error) error {
	if status == http.StatusTooManyRequests {
		return errors.Join(class, rateLimited)
	}
	return class
}

// extractDetail reads {"detail": "..."} or [{"error": {"message": "..."}}] bodies.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}

	// Gemini оборачивает ошибку в массив.
	var wrapped []struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wrapped) == nil && len(wrapped) > 0 && wrapped[0].Error.Message != "" {
		return wrapped[0].Error.Message
	}
	return ""
}

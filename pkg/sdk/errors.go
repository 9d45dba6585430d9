package finrag

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by *APIError. Use errors.Is() to check.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrPayloadTooLarge    = errors.New("payload too large")
	ErrUnreadableDocument = errors.New("unreadable document")
	ErrQuotaExceeded      = errors.New("embedding quota exceeded")
	ErrRateLimited        = errors.New("rate limited")
	ErrNotConfigured      = errors.New("service not configured")
	ErrUpstream           = errors.New("upstream provider error")
	ErrUnavailable        = errors.New("service unavailable")
)

var codeSentinels = map[string]error{
	"unauthorized":             ErrUnauthorized,
	"bad_request":              ErrInvalidInput,
	"not_found":                ErrNotFound,
	"payload_too_large":        ErrPayloadTooLarge,
	"unreadable_document":      ErrUnreadableDocument,
	"embedding_quota_exceeded": ErrQuotaExceeded,
	"rate_limited":             ErrRateLimited,
	"not_configured":           ErrNotConfigured,
	"upstream_error":           ErrUpstream,
	"store_unavailable":        ErrUnavailable,
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("finrag: http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("finrag: http %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Is reports whether the error code maps to target.
func (e *APIError) Is(target error) bool {
	s, ok := codeSentinels[e.Code]
	return ok && s == target
}

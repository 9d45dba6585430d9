package chi

import (
	"time"

	domchat "github.com/kailas-cloud/finrag/internal/domain/chat"
)

// ErrorCode is a machine-readable error kind carried next to the message.
type ErrorCode string

// Error codes returned by the API.
const (
	ErrorCodeBadRequest      ErrorCode = "bad_request"
	ErrorCodeUnauthorized    ErrorCode = "unauthorized"
	ErrorCodeNotFound        ErrorCode = "not_found"
	ErrorCodePayloadTooLarge ErrorCode = "payload_too_large"
	ErrorCodeUnreadable      ErrorCode = "unreadable_document"
	ErrorCodeQuotaExceeded   ErrorCode = "embedding_quota_exceeded"
	ErrorCodeRateLimited     ErrorCode = "rate_limited"
	ErrorCodeNotConfigured   ErrorCode = "not_configured"
	ErrorCodeUpstream        ErrorCode = "upstream_error"
	ErrorCodeUnavailable     ErrorCode = "store_unavailable"
	ErrorCodeInternal        ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// UploadResponse is returned by POST /api/fundamental/upload.
type UploadResponse struct {
	Filename   string `json:"filename"`
	PageCount  int    `json:"page_count"`
	ChunkCount int    `json:"chunk_count"`
	Message    string `json:"message"`
}

// DocumentItem is one entry of the document listing.
type DocumentItem struct {
	Filename   string `json:"filename"`
	PageCount  int    `json:"page_count"`
	ChunkCount int    `json:"chunk_count"`
}

// DocumentListResponse is returned by GET /api/fundamental/documents.
type DocumentListResponse struct {
	Documents []DocumentItem `json:"documents"`
}

// DeleteResponse is returned by DELETE /api/fundamental/document/{filename}.
// Success is always true; Degraded reports that some chunks may remain.
type DeleteResponse struct {
	Success  bool `json:"success"`
	Deleted  int  `json:"deleted"`
	Degraded bool `json:"degraded"`
}

// HistoryTurn is a prior chat message sent by the client.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/fundamental/chat.
type ChatRequest struct {
	Message string        `json:"message"`
	History []HistoryTurn `json:"history"`
}

// ChatParams are the query parameters of POST /api/fundamental/chat.
type ChatParams struct {
	// Stream selects SSE (default) or a buffered JSON answer.
	Stream *bool `form:"stream,omitempty" json:"stream,omitempty"`
}

// ChatResponse is the buffered chat answer.
type ChatResponse struct {
	Answer    string             `json:"answer"`
	Citations []domchat.Citation `json:"citations"`
}

// UsageResponse is returned by GET /api/usage.
type UsageResponse struct {
	Period          string    `json:"period"`
	Provider        string    `json:"provider"`
	PeriodStartAt   time.Time `json:"period_start_at"`
	PeriodEndAt     time.Time `json:"period_end_at"`
	TokensUsed      int64     `json:"tokens_used"`
	TokensLimit     int64     `json:"tokens_limit"`
	TokensRemaining int64     `json:"tokens_remaining"`
	IsExhausted     bool      `json:"is_exhausted"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version"`
}

type sseToken struct {
	Token string `json:"token"`
}

type sseSources struct {
	Sources []domchat.Citation `json:"sources"`
}

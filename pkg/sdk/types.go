package finrag

import "time"

// Role is a conversation participant.
type Role string

// Roles understood by the server. Anything but RoleUser is rendered as the assistant.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleModel     Role = "model"
)

// Turn is one prior message of the conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Citation points at a page of an uploaded document.
type Citation struct {
	Filename string `json:"filename"`
	Page     int    `json:"page"`
}

// Answer is a buffered chat answer.
type Answer struct {
	Text      string
	Citations []Citation
}

// UploadResult describes an ingested document.
type UploadResult struct {
	Filename   string `json:"filename"`
	PageCount  int    `json:"page_count"`
	ChunkCount int    `json:"chunk_count"`
	Message    string `json:"message"`
}

// Document is one entry of the document listing.
type Document struct {
	Filename   string `json:"filename"`
	PageCount  int    `json:"page_count"`
	ChunkCount int    `json:"chunk_count"`
}

// DeleteResult reports a document deletion. Degraded means some chunks may remain.
type DeleteResult struct {
	Deleted  int  `json:"deleted"`
	Degraded bool `json:"degraded"`
}

// UsagePeriod is the aggregation granularity for usage reports.
type UsagePeriod string

// UsagePeriod constants.
const (
	PeriodDay   UsagePeriod = "day"
	PeriodMonth UsagePeriod = "month"
)

// UsageReport is the embedding token budget of the current period.
type UsageReport struct {
	Period          UsagePeriod `json:"period"`
	Provider        string      `json:"provider"`
	PeriodStart     time.Time   `json:"period_start_at"`
	PeriodEnd       time.Time   `json:"period_end_at"`
	TokensUsed      int64       `json:"tokens_used"`
	TokensLimit     int64       `json:"tokens_limit"`     // 0 = unlimited
	TokensRemaining int64       `json:"tokens_remaining"` // -1 = unlimited
	IsExhausted     bool        `json:"is_exhausted"`
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status  string            `json:"status"` // "healthy" or "degraded"
	Checks  map[string]string `json:"checks"` // component -> "ok"/"error"
	Version string            `json:"version"`
}

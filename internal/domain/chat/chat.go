package chat

import "math"

// FallbackAnswer is returned instead of a model call when nothing relevant was retrieved.
const FallbackAnswer = "I couldn't find relevant information in your uploaded documents. " +
	"Please try rephrasing your question or upload a relevant PDF."

// HistoryTurns is the number of most recent turns rendered into the prompt.
const HistoryTurns = 6

// Role is a conversation participant.
type Role string

// Known roles. Anything that is not RoleUser renders as the assistant.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleModel     Role = "model"
)

// Turn is one prior message of the conversation.
type Turn struct {
	Role    Role
	Content string
}

// IsUser reports whether the turn was written by the end user.
func (t Turn) IsUser() bool { return t.Role == RoleUser }

// RetrievedChunk is a chunk returned for a query, with its similarity score.
type RetrievedChunk struct {
	Filename string
	Page     int
	Text     string
	Score    float64
}

// Citation points at a page of an uploaded document.
type Citation struct {
	Filename string `json:"filename"`
	Page     int    `json:"page"`
}

// Answer is a buffered generation result.
type Answer struct {
	Text      string
	Citations []Citation
}

// RoundScore rounds a similarity score to 3 decimal places.
func RoundScore(s float64) float64 {
	return math.Round(s*1000) / 1000
}

// Citations deduplicates chunks by (filename, page), keeping first-occurrence order.
// The result is never nil.
func Citations(chunks []RetrievedChunk) []Citation {
	out := make([]Citation, 0, len(chunks))
	seen := make(map[Citation]struct{}, len(chunks))
	for _, c := range chunks {
		key := Citation{Filename: c.Filename, Page: c.Page}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// LastTurns returns at most n of the most recent turns.
func LastTurns(history []Turn, n int) []Turn {
	if n <= 0 {
		return nil
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

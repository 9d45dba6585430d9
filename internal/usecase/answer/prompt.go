package answer

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/finrag/internal/domain/chat"
)

const promptTemplate = `You are a professional financial analyst assistant. Answer questions based ONLY on the provided document excerpts.

If the answer is not found in the context, say "This information isn't available in the uploaded documents."

Always cite your sources using the format: [Source N — filename, Page X]

--- Document Context ---
%s

--- Conversation History ---
%s
--- End History ---

User Question: %s

Provide a clear, structured answer with specific citations to the document sources.`

// BuildPrompt renders the grounded prompt shared by buffered and streaming answers.
// Chunks are numbered from 1 in retrieval order; only the last historyTurns turns are kept.
func BuildPrompt(question string, chunks []chat.RetrievedChunk, history []chat.Turn, historyTurns int) string {
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = fmt.Sprintf("[Source %d — %s, Page %d]\n%s", i+1, c.Filename, c.Page, c.Text)
	}

	var hist strings.Builder
	for _, t := range chat.LastTurns(history, historyTurns) {
		role := "Assistant"
		if t.IsUser() {
			role = "User"
		}
		hist.WriteString(role)
		hist.WriteString(": ")
		hist.WriteString(t.Content)
		hist.WriteByte('\n')
	}

	return fmt.Sprintf(promptTemplate, strings.Join(blocks, "\n\n"), hist.String(), question)
}

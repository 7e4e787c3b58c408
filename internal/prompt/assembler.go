// Package prompt builds the ordered message sequences handed to the
// chat-completion model: the grounded RAG template and the cross-block
// conversation assembly.
package prompt

import (
	"fmt"
	"strings"

	"github.com/hidata/rag-platform/internal/llm"
	"github.com/hidata/rag-platform/internal/model"
)

// RAGTemplate grounds the model in retrieved context only.
const RAGTemplate = "Answer the question based only on the following context:\n%s\n\nQuestion: %s\n"

// NoContextAnswer is returned without calling the model when RAG mode finds
// nothing to ground on.
const NoContextAnswer = "No relevant documents found in the directory to answer the question."

const (
	plainSystemInstruction = "You are a helpful assistant continuing an ongoing conversation. Answer the user's question using the conversation history."

	crossThreadSystemInstruction = "You are a helpful assistant continuing an ongoing conversation. " +
		"Besides this conversation's own history, you are given excerpts from related discussion threads the user has linked. " +
		"Treat those excerpts as background knowledge: use facts, dates and decisions from them when relevant, " +
		"but do not confuse their turn-taking with this conversation's."

	externalOpenDelimiter  = "--- Begin related context from connected conversations ---"
	externalCloseDelimiter = "--- End related context ---"

	focusInstruction = "Prioritize answering the user's current question. Use the related context only where it helps."
)

// minContentLength filters near-empty history lines out of external blocks.
const minContentLength = 5

var deadlineKeywords = []string{
	"ddl", "deadline", "due date",
	"when", "time", "date",
	"mentioned", "said", "told", "previous",
	"what", "why", "how", "who", "where", "which",
}

// ExternalSource is one connected block's formatted history.
type ExternalSource struct {
	SourceID string
	Turns    []model.TurnRecord
}

// ContainsRelevanceKeyword reports whether text mentions any of the
// follow-up keyword families. Used by intent routing to short-circuit to
// "continue conversation" when classification would under-detect an
// implicit follow-up.
func ContainsRelevanceKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range deadlineKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// FormatExternalSource renders one connected block's history as a labeled
// text block. Lines shorter than six characters are dropped; lines touching
// deadline vocabulary get an attention marker.
func FormatExternalSource(src ExternalSource) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Related discussion from conversation %s:\n", src.SourceID)
	for _, turn := range src.Turns {
		if len(turn.Content) <= minContentLength {
			continue
		}
		line := fmt.Sprintf("%s: %s", turn.Sender, turn.Content)
		if hasDeadlineHint(turn.Content) {
			line = "[IMPORTANT] " + line
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func hasDeadlineHint(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range []string{"ddl", "deadline", "due date"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Assemble builds the full message sequence for one generation call:
// system instruction, own history oldest first, delimited external blocks,
// a focusing instruction, then the user's question. External sections are
// omitted entirely when no sources are present.
func Assemble(question string, ownHistory []model.TurnRecord, external []ExternalSource) []llm.ChatMessage {
	msgs := make([]llm.ChatMessage, 0, len(ownHistory)+len(external)+5)

	system := plainSystemInstruction
	if len(external) > 0 {
		system = crossThreadSystemInstruction
	}
	msgs = append(msgs, llm.ChatMessage{Role: string(model.RoleSystem), Content: system})

	for _, turn := range ownHistory {
		role := model.RoleUser
		if turn.Sender == "AI" {
			role = model.RoleAssistant
		}
		msgs = append(msgs, llm.ChatMessage{Role: string(role), Content: turn.Content})
	}

	if len(external) > 0 {
		msgs = append(msgs, llm.ChatMessage{Role: string(model.RoleSystem), Content: externalOpenDelimiter})
		for _, src := range external {
			msgs = append(msgs, llm.ChatMessage{Role: string(model.RoleSystem), Content: FormatExternalSource(src)})
		}
		msgs = append(msgs, llm.ChatMessage{Role: string(model.RoleSystem), Content: externalCloseDelimiter})
		msgs = append(msgs, llm.ChatMessage{Role: string(model.RoleSystem), Content: focusInstruction})
	}

	msgs = append(msgs, llm.ChatMessage{Role: string(model.RoleUser), Content: question})
	return msgs
}

// RAGMessage renders the grounded single-message prompt.
func RAGMessage(contextText, question string) string {
	return fmt.Sprintf(RAGTemplate, contextText, question)
}

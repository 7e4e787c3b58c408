package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidata/rag-platform/internal/model"
)

func TestAssemblePlainConversation(t *testing.T) {
	history := []model.TurnRecord{
		{ID: 0, Sender: "user-1", Content: "Hello there"},
		{ID: 1, Sender: "AI", Content: "Hi, how can I help?"},
	}

	msgs := Assemble("What did I say first?", history, nil)

	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	assert.NotContains(t, msgs[0].Content, "related discussion")
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "Hello there", msgs[1].Content)
	assert.Equal(t, "assistant", msgs[2].Role)
	assert.Equal(t, "What did I say first?", msgs[len(msgs)-1].Content)
}

func TestAssembleWithExternalSources(t *testing.T) {
	history := []model.TurnRecord{
		{ID: 0, Sender: "user-1", Content: "Where were we?"},
	}
	external := []ExternalSource{
		{
			SourceID: "B2",
			Turns: []model.TurnRecord{
				{ID: 0, Sender: "user-1", Content: "The deadline for phase one is March 3."},
				{ID: 1, Sender: "AI", Content: "Noted, phase one ends March 3."},
			},
		},
	}

	msgs := Assemble("When is phase one due?", history, external)

	joined := new(strings.Builder)
	for _, m := range msgs {
		joined.WriteString(m.Content)
		joined.WriteByte('\n')
	}
	out := joined.String()

	assert.Contains(t, out, "Related discussion from conversation B2:")
	// both turns appear in original chronological order
	first := strings.Index(out, "phase one is March 3")
	second := strings.Index(out, "phase one ends March 3")
	require.GreaterOrEqual(t, first, 0)
	require.GreaterOrEqual(t, second, 0)
	assert.Less(t, first, second)

	// external blocks are bracketed and followed by a focusing instruction
	open := strings.Index(out, externalOpenDelimiter)
	closing := strings.Index(out, externalCloseDelimiter)
	assert.Less(t, open, closing)
	assert.Contains(t, out, focusInstruction)

	// the question is last
	assert.Equal(t, "When is phase one due?", msgs[len(msgs)-1].Content)
}

func TestFormatExternalSourceFiltersShortLines(t *testing.T) {
	out := FormatExternalSource(ExternalSource{
		SourceID: "B9",
		Turns: []model.TurnRecord{
			{Sender: "user-1", Content: "ok"},
			{Sender: "user-1", Content: "hello"},
			{Sender: "user-1", Content: "a longer line that survives"},
		},
	})

	assert.NotContains(t, out, "ok\n")
	assert.NotContains(t, out, "hello")
	assert.Contains(t, out, "a longer line that survives")
}

func TestFormatExternalSourceFlagsDeadlines(t *testing.T) {
	out := FormatExternalSource(ExternalSource{
		SourceID: "B1",
		Turns: []model.TurnRecord{
			{Sender: "user-1", Content: "The DDL for the report is Friday."},
			{Sender: "user-1", Content: "We also discussed the color scheme."},
		},
	})

	assert.Contains(t, out, "[IMPORTANT] user-1: The DDL for the report is Friday.")
	assert.Contains(t, out, "user-1: We also discussed the color scheme.")
	assert.NotContains(t, out, "[IMPORTANT] user-1: We also discussed")
}

func TestContainsRelevanceKeyword(t *testing.T) {
	assert.True(t, ContainsRelevanceKeyword("when is it due?"))
	assert.True(t, ContainsRelevanceKeyword("you mentioned something earlier"))
	assert.True(t, ContainsRelevanceKeyword("What about the budget"))
	assert.False(t, ContainsRelevanceKeyword("let's start fresh"))
}

func TestRAGMessage(t *testing.T) {
	msg := RAGMessage("Project X is due on 2025-01-01.", "when is the deadline")
	assert.Equal(t,
		"Answer the question based only on the following context:\nProject X is due on 2025-01-01.\n\nQuestion: when is the deadline\n",
		msg)
}

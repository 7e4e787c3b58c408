package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidata/rag-platform/internal/events"
	"github.com/hidata/rag-platform/internal/llm"
	"github.com/hidata/rag-platform/internal/model"
	"github.com/hidata/rag-platform/internal/prompt"
	"github.com/hidata/rag-platform/internal/store"
	"github.com/hidata/rag-platform/pkg/logger"
)

type scriptedLLM struct {
	answer   string
	err      error
	calls    int
	requests []*llm.CompletionRequest
}

func (s *scriptedLLM) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.calls++
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.answer}, nil
}

func (s *scriptedLLM) Name() string     { return "scripted" }
func (s *scriptedLLM) Models() []string { return nil }

type memTurnStore struct {
	queries    map[string]string
	histories  map[string][]model.TurnRecord
	stored     []model.PendingQuery
	getErr     error
	historyErr error
	storeErr   error
}

func newMemTurnStore() *memTurnStore {
	return &memTurnStore{
		queries:   map[string]string{},
		histories: map[string][]model.TurnRecord{},
	}
}

func (m *memTurnStore) GetQuery(_ context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	q, ok := m.queries[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return q, nil
}

func (m *memTurnStore) History(_ context.Context, blockID string) ([]model.TurnRecord, error) {
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	return m.histories[blockID], nil
}

func (m *memTurnStore) StoreQuery(_ context.Context, blockID, query, senderID string, _ time.Duration) (string, error) {
	if m.storeErr != nil {
		return "", m.storeErr
	}
	m.stored = append(m.stored, model.PendingQuery{Query: query, SenderID: senderID})
	return blockID + ":99", nil
}

type memArchive struct {
	turns []*model.ConversationTurn
	err   error
}

func (m *memArchive) PutTurn(_ context.Context, turn *model.ConversationTurn) error {
	if m.err != nil {
		return m.err
	}
	m.turns = append(m.turns, turn)
	return nil
}

type memPublisher struct {
	events []events.TurnCompleted
}

func (m *memPublisher) PublishTurnCompleted(_ context.Context, e events.TurnCompleted) error {
	m.events = append(m.events, e)
	return nil
}

type staticSource struct {
	text string
	err  error
}

func (s staticSource) Context(context.Context, string) (string, error) { return s.text, s.err }

func TestNewGeneratorRejectsUnknownMode(t *testing.T) {
	_, err := NewGenerator("TURBO", &scriptedLLM{}, newMemTurnStore(), nil, nil, nil, "m", logger.NewNop())
	assert.ErrorContains(t, err, "unknown generation mode")
}

func TestNewGeneratorRAGRequiresSource(t *testing.T) {
	_, err := NewGenerator(ModeRAG, &scriptedLLM{}, newMemTurnStore(), nil, nil, nil, "m", logger.NewNop())
	assert.ErrorContains(t, err, "context source")
}

// Retrieval in RAG mode must surface grounded facts to the model verbatim.
func TestRAGContextReachesModel(t *testing.T) {
	client := &scriptedLLM{answer: "January 1st, 2025."}
	turns := newMemTurnStore()
	turns.queries["B1:0"] = "when is the deadline"

	g, err := NewGenerator(ModeRAG, client, turns, nil, nil,
		staticSource{text: "Project X is due on 2025-01-01."}, "gpt-4o-mini", logger.NewNop())
	require.NoError(t, err)

	answer, err := g.GenerateAnswer(context.Background(), "ws-1", "B1:0", nil)
	require.NoError(t, err)
	assert.Equal(t, "January 1st, 2025.", answer)

	require.Equal(t, 1, client.calls)
	sent := client.requests[0].Messages[0].Content
	assert.Contains(t, sent, "2025-01-01")
	assert.Contains(t, sent, "when is the deadline")
}

func TestRAGEmptyContextShortCircuits(t *testing.T) {
	client := &scriptedLLM{answer: "should never be used"}
	turns := newMemTurnStore()
	turns.queries["B1:0"] = "anything"

	g, err := NewGenerator(ModeRAG, client, turns, nil, nil,
		staticSource{text: "   "}, "gpt-4o-mini", logger.NewNop())
	require.NoError(t, err)

	answer, err := g.GenerateAnswer(context.Background(), "ws-1", "B1:0", nil)
	require.NoError(t, err)
	assert.Equal(t, prompt.NoContextAnswer, answer)
	assert.Zero(t, client.calls)
}

func TestGPTModeIgnoresContext(t *testing.T) {
	client := &scriptedLLM{answer: "sure"}
	turns := newMemTurnStore()
	turns.queries["B1:0"] = "tell me a joke"

	g, err := NewGenerator(ModeGPT, client, turns, nil, nil,
		staticSource{text: "Project X is due on 2025-01-01."}, "gpt-4o-mini", logger.NewNop())
	require.NoError(t, err)

	_, err = g.GenerateAnswer(context.Background(), "ws-1", "B1:0", nil)
	require.NoError(t, err)

	for _, msg := range client.requests[0].Messages {
		assert.NotContains(t, msg.Content, "2025-01-01")
	}
}

func TestConnectedBlockHistoryInPrompt(t *testing.T) {
	client := &scriptedLLM{answer: "ok"}
	turns := newMemTurnStore()
	turns.queries["B1:0"] = "what did we decide over there?"
	turns.histories["B2"] = []model.TurnRecord{
		{ID: 0, Sender: "user-1", Content: "Let us ship the beta next month."},
		{ID: 1, Sender: "AI", Content: "Beta ship target noted for next month."},
	}

	g, err := NewGenerator(ModeGPT, client, turns, nil, nil, nil, "gpt-4o-mini", logger.NewNop())
	require.NoError(t, err)

	_, err = g.GenerateAnswer(context.Background(), "ws-1", "B1:0",
		[]model.Connection{{ID: "B2", Type: model.ConnectionTypeConversation}})
	require.NoError(t, err)

	var joined strings.Builder
	for _, msg := range client.requests[0].Messages {
		joined.WriteString(msg.Content)
		joined.WriteByte('\n')
	}
	out := joined.String()
	assert.Contains(t, out, "Related discussion from conversation B2:")
	first := strings.Index(out, "ship the beta next month")
	second := strings.Index(out, "Beta ship target noted")
	require.GreaterOrEqual(t, first, 0)
	require.GreaterOrEqual(t, second, 0)
	assert.Less(t, first, second)
}

func TestMissingQueryBecomesPlaceholder(t *testing.T) {
	client := &scriptedLLM{answer: "best effort"}
	turns := newMemTurnStore()

	g, err := NewGenerator(ModeGPT, client, turns, nil, nil, nil, "gpt-4o-mini", logger.NewNop())
	require.NoError(t, err)

	answer, err := g.GenerateAnswer(context.Background(), "ws-1", "B1:7", nil)
	require.NoError(t, err)
	assert.Equal(t, "best effort", answer)

	last := client.requests[0].Messages[len(client.requests[0].Messages)-1]
	assert.Equal(t, placeholderNoQuery, last.Content)
}

func TestAnswerPersistedAndArchived(t *testing.T) {
	client := &scriptedLLM{answer: "an answer"}
	turns := newMemTurnStore()
	turns.queries["B1:3"] = "a question"
	archive := &memArchive{}
	pub := &memPublisher{}

	g, err := NewGenerator(ModeGPT, client, turns, archive, pub, nil, "gpt-4o-mini", logger.NewNop())
	require.NoError(t, err)

	_, err = g.GenerateAnswer(context.Background(), "ws-1", "B1:3", nil)
	require.NoError(t, err)

	require.Len(t, turns.stored, 1)
	assert.Equal(t, "an answer", turns.stored[0].Query)
	assert.Equal(t, store.SenderAI, turns.stored[0].SenderID)

	require.Len(t, archive.turns, 1)
	turn := archive.turns[0]
	assert.Equal(t, "ws-1#B1#3", turn.SortKey)
	assert.Equal(t, 3, turn.TurnID)
	require.Len(t, turn.Messages, 2)
	assert.Equal(t, model.RoleUser, turn.Messages[0].Role)
	assert.Equal(t, "a question", turn.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, turn.Messages[1].Role)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "B1", pub.events[0].BlockID)
	assert.Equal(t, 3, pub.events[0].TurnID)
}

func TestPersistFailureKeepsAnswer(t *testing.T) {
	client := &scriptedLLM{answer: "still delivered"}
	turns := newMemTurnStore()
	turns.queries["B1:0"] = "q"
	turns.storeErr = errors.New("redis down")
	archive := &memArchive{err: errors.New("dynamo down")}

	g, err := NewGenerator(ModeGPT, client, turns, archive, nil, nil, "gpt-4o-mini", logger.NewNop())
	require.NoError(t, err)

	answer, err := g.GenerateAnswer(context.Background(), "ws-1", "B1:0", nil)
	require.NoError(t, err)
	assert.Equal(t, "still delivered", answer)
}

func TestCompletionFailurePropagates(t *testing.T) {
	client := &scriptedLLM{err: errors.New("model unavailable")}
	turns := newMemTurnStore()
	turns.queries["B1:0"] = "q"

	g, err := NewGenerator(ModeGPT, client, turns, nil, nil, nil, "gpt-4o-mini", logger.NewNop())
	require.NoError(t, err)

	_, err = g.GenerateAnswer(context.Background(), "ws-1", "B1:0", nil)
	assert.ErrorContains(t, err, "completion failed")
}

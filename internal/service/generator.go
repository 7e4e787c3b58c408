package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hidata/rag-platform/internal/events"
	"github.com/hidata/rag-platform/internal/llm"
	"github.com/hidata/rag-platform/internal/model"
	"github.com/hidata/rag-platform/internal/prompt"
	"github.com/hidata/rag-platform/internal/store"
	"github.com/hidata/rag-platform/pkg/logger"
	"github.com/hidata/rag-platform/pkg/metrics"
)

// Mode selects how answers are grounded. Fixed at construction.
type Mode string

const (
	// ModeRAG grounds every answer in retrieved document context.
	ModeRAG Mode = "RAG"
	// ModeGPT answers from conversation history and model knowledge alone.
	ModeGPT Mode = "GPT"
)

// Placeholder strings substituted into the prompt when a store read fails.
// The pipeline keeps going; the gap becomes visible text, not an abort.
const (
	placeholderNoQuery   = "No query found for this conversation turn."
	placeholderNoHistory = "Conversation history could not be retrieved."
)

// TurnStore is the ephemeral working log of the current conversation.
type TurnStore interface {
	GetQuery(ctx context.Context, key string) (string, error)
	History(ctx context.Context, blockID string) ([]model.TurnRecord, error)
	StoreQuery(ctx context.Context, blockID, query, senderID string, expiration time.Duration) (string, error)
}

// TurnArchive is the durable log written once per completed turn.
type TurnArchive interface {
	PutTurn(ctx context.Context, turn *model.ConversationTurn) error
}

// Generator orchestrates one answer: fetch the pending query, assemble
// context, call the model, persist the result.
type Generator struct {
	mode      Mode
	llm       llm.Client
	turns     TurnStore
	archive   TurnArchive
	publisher events.Publisher
	source    ContextSource
	model     string
	logger    *logger.Logger
}

// NewGenerator builds a generator for one mode. RAG mode requires a context
// source; an unknown mode string is rejected outright.
func NewGenerator(mode Mode, client llm.Client, turns TurnStore, archive TurnArchive, publisher events.Publisher, source ContextSource, chatModel string, log *logger.Logger) (*Generator, error) {
	switch mode {
	case ModeRAG:
		if source == nil {
			return nil, fmt.Errorf("RAG mode requires a context source")
		}
	case ModeGPT:
	default:
		return nil, fmt.Errorf("unknown generation mode %q", mode)
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Generator{
		mode:      mode,
		llm:       client,
		turns:     turns,
		archive:   archive,
		publisher: publisher,
		source:    source,
		model:     chatModel,
		logger:    log,
	}, nil
}

// Mode returns the generator's fixed operating mode.
func (g *Generator) Mode() Mode { return g.mode }

// GenerateAnswer answers the pending query stored under turnKey
// ("{block_id}:{turn_id}") and persists the answer as a new AI turn.
func (g *Generator) GenerateAnswer(ctx context.Context, workspaceID, turnKey string, connections []model.Connection) (string, error) {
	blockID, turnID, err := store.ParseTurnKey(turnKey)
	if err != nil {
		return "", err
	}
	log := g.logger.WithBlock(workspaceID, blockID)

	query, err := g.turns.GetQuery(ctx, turnKey)
	if err != nil {
		log.Warn("pending query unavailable", zap.String("turn_key", turnKey), zap.Error(err))
		query = placeholderNoQuery
	}

	history, err := g.turns.History(ctx, blockID)
	if err != nil {
		log.Warn("history unavailable", zap.Error(err))
		history = []model.TurnRecord{{Content: placeholderNoHistory, Sender: store.SenderAI}}
	}

	var answer string
	switch g.mode {
	case ModeRAG:
		answer, err = g.generateRAG(ctx, query)
	case ModeGPT:
		answer, err = g.generateChat(ctx, query, history, connections)
	}
	if err != nil {
		return "", err
	}

	g.persistAnswer(ctx, log, workspaceID, blockID, turnID, query, answer)
	return answer, nil
}

// generateRAG grounds the answer in retrieved or directory context. An
// empty context short-circuits without a model call.
func (g *Generator) generateRAG(ctx context.Context, query string) (string, error) {
	contextText, err := g.source.Context(ctx, query)
	if err != nil {
		return "", fmt.Errorf("reading context: %w", err)
	}
	if strings.TrimSpace(contextText) == "" {
		return prompt.NoContextAnswer, nil
	}

	return g.complete(ctx, []llm.ChatMessage{
		{Role: string(model.RoleUser), Content: prompt.RAGMessage(contextText, query)},
	})
}

// generateChat answers from history plus any connected blocks' context.
func (g *Generator) generateChat(ctx context.Context, query string, history []model.TurnRecord, connections []model.Connection) (string, error) {
	var external []prompt.ExternalSource
	for _, conn := range connections {
		if conn.Type != model.ConnectionTypeConversation {
			continue
		}
		turns, err := g.turns.History(ctx, conn.ID)
		if err != nil {
			g.logger.Warn("skipping unreadable connected block",
				zap.String("connection_id", conn.ID), zap.Error(err))
			continue
		}
		external = append(external, prompt.ExternalSource{SourceID: conn.ID, Turns: turns})
	}

	return g.complete(ctx, prompt.Assemble(query, history, external))
}

func (g *Generator) complete(ctx context.Context, messages []llm.ChatMessage) (string, error) {
	start := time.Now()
	resp, err := g.llm.Complete(ctx, &llm.CompletionRequest{
		Model:    g.model,
		Messages: messages,
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	elapsed := time.Since(start).Seconds()
	if resp != nil {
		metrics.RecordCompletion(g.model, status, elapsed, resp.TokensIn, resp.TokensOut)
	} else {
		metrics.RecordCompletion(g.model, status, elapsed, 0, 0)
	}
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	return resp.Content, nil
}

// persistAnswer writes the answer back to the working log, archives the
// completed turn, and emits a turn event. All three are best effort: the
// caller already has their answer.
func (g *Generator) persistAnswer(ctx context.Context, log *logger.Logger, workspaceID, blockID, turnID, query, answer string) {
	if _, err := g.turns.StoreQuery(ctx, blockID, answer, store.SenderAI, 0); err != nil {
		log.Error("failed to store answer turn", zap.Error(err))
	}
	metrics.TurnsTotal.WithLabelValues(string(g.mode), store.SenderAI).Inc()

	if g.archive == nil {
		return
	}

	id, err := strconv.Atoi(turnID)
	if err != nil {
		log.Warn("non-numeric turn id, skipping archive", zap.String("turn_id", turnID))
		return
	}

	now := time.Now().UTC()
	turn := &model.ConversationTurn{
		WorkspaceID: workspaceID,
		SortKey:     store.TurnSortKey(workspaceID, blockID, id),
		BlockID:     blockID,
		TurnID:      id,
		Model:       g.model,
		CreatedAt:   now,
		UpdatedAt:   now,
		Messages: []model.Message{
			{Role: model.RoleUser, Content: query, Timestamp: now},
			{Role: model.RoleAssistant, Content: answer, Timestamp: now},
		},
		Status: "completed",
	}
	if err := g.archive.PutTurn(ctx, turn); err != nil {
		log.Error("failed to archive turn", zap.Error(err))
		return
	}

	if err := g.publisher.PublishTurnCompleted(ctx, events.TurnCompleted{
		WorkspaceID: workspaceID,
		BlockID:     blockID,
		TurnID:      id,
		Model:       g.model,
		Mode:        string(g.mode),
		CompletedAt: now,
	}); err != nil {
		log.Warn("failed to publish turn event", zap.Error(err))
	}
}

// Package model defines data structures for the RAG platform.
package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single utterance inside a conversation turn.
type Message struct {
	Role      Role      `json:"role" dynamodbav:"role"`
	Content   string    `json:"content" dynamodbav:"content"`
	Timestamp time.Time `json:"timestamp" dynamodbav:"timestamp"`
}

// TurnMetadata carries free-form attributes alongside a turn.
type TurnMetadata struct {
	Language string   `json:"language,omitempty" dynamodbav:"language,omitempty"`
	Platform string   `json:"platform,omitempty" dynamodbav:"platform,omitempty"`
	Tags     []string `json:"tags,omitempty" dynamodbav:"tags,omitempty"`
}

// ConversationTurn is one durable query/answer exchange, keyed by
// workspace#block#turn. Immutable after creation except Status.
type ConversationTurn struct {
	WorkspaceID string       `json:"workspace_id" dynamodbav:"workspace_id"`
	SortKey     string       `json:"sort_key" dynamodbav:"sort_key"`
	BlockID     string       `json:"block_id" dynamodbav:"block_id"`
	TurnID      int          `json:"turn_id" dynamodbav:"turn_id"`
	Model       string       `json:"model" dynamodbav:"model"`
	CreatedAt   time.Time    `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" dynamodbav:"updated_at"`
	Messages    []Message    `json:"messages" dynamodbav:"messages"`
	Metadata    TurnMetadata `json:"metadata" dynamodbav:"metadata"`
	Status      string       `json:"status" dynamodbav:"status"`
}

// PendingQuery is the ephemeral record placed in the key-value store while a
// turn awaits an answer. Keyed by "{block_id}:{turn_id}".
type PendingQuery struct {
	Query     string `json:"query"`
	SenderID  string `json:"sender_id"`
	Timestamp string `json:"timestamp"`
}

// TurnRecord is a key-value store turn together with its numeric id within
// the block, as returned by history listings.
type TurnRecord struct {
	ID        int    `json:"id"`
	Content   string `json:"content"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
}

// Connection is a declared link from one block to another.
type Connection struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// ConnectionTypeConversation marks connections whose history is pulled into
// the prompt as an external source.
const ConnectionTypeConversation = "conversation"

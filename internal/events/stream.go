package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the name of the turns stream.
	StreamName = "TURNS"

	// SubjectPrefix is the prefix for all turn subjects.
	SubjectPrefix = "turns"
)

// TurnCompleted is emitted after a turn has been archived.
type TurnCompleted struct {
	WorkspaceID string    `json:"workspace_id"`
	BlockID     string    `json:"block_id"`
	TurnID      int       `json:"turn_id"`
	Model       string    `json:"model"`
	Mode        string    `json:"mode"`
	CompletedAt time.Time `json:"completed_at"`
}

// Publisher is what the answer pipeline needs: fire one event per finished
// turn. Publishing is best effort; the answer is already committed when the
// event goes out.
type Publisher interface {
	PublishTurnCompleted(ctx context.Context, event TurnCompleted) error
}

// StreamManager manages the turns stream and publishes to it.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a stream manager over a connected client.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream creates the turns stream if it does not exist.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Completed conversation turns",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// TurnSubject returns the subject for one block's turn events.
func TurnSubject(workspaceID, blockID string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, workspaceID, blockID)
}

// PublishTurnCompleted publishes a turn-completed event.
func (m *StreamManager) PublishTurnCompleted(ctx context.Context, event TurnCompleted) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := TurnSubject(event.WorkspaceID, event.BlockID)
	if _, err := m.client.JetStream().Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// NoopPublisher satisfies Publisher when NATS is not configured.
type NoopPublisher struct{}

// PublishTurnCompleted drops the event.
func (NoopPublisher) PublishTurnCompleted(context.Context, TurnCompleted) error { return nil }

var _ Publisher = (*StreamManager)(nil)
var _ Publisher = NoopPublisher{}

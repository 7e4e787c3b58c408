package model

import "time"

// WorkspaceProject is a saved flowchart snapshot within a workspace. The
// flowchart payload is schemaless; numeric values survive a round trip
// through the durable store's exact-decimal representation.
type WorkspaceProject struct {
	WorkspaceID   string         `json:"workspace_id"`
	ProjectID     string         `json:"project_id"`
	FlowchartData map[string]any `json:"flowchart_data"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// SaveWorkspaceRequest is the request to save a project's flowchart.
type SaveWorkspaceRequest struct {
	WorkspaceID   string         `json:"workspace_id"`
	ProjectID     string         `json:"project_id,omitempty"`
	FlowchartData map[string]any `json:"flowchart_data"`
}

// WorkspaceData is the load-workspace response payload.
type WorkspaceData struct {
	Projects []ProjectData `json:"projects"`
}

// ProjectData is one project in a workspace listing.
type ProjectData struct {
	ID            string         `json:"id"`
	FlowchartData map[string]any `json:"flowchartData"`
}

// BlockChat is the per-block chat history view returned by the loader.
type BlockChat struct {
	BlockID  string        `json:"blockId"`
	Messages []ChatMessage `json:"messages"`
}

// ChatMessage is one rendered history line for the client.
type ChatMessage struct {
	ID        int    `json:"id"`
	Text      string `json:"text"`
	IsUser    bool   `json:"isUser"`
	Timestamp string `json:"timestamp"`
}

package promptflow

import (
	"context"
	"encoding/json"
	"time"
)

// Execution is the record created when a run starts: which diagram ran with which configuration.
type Execution struct {
	ID        string          `json:"id"`
	DiagramID DiagramID       `json:"diagram_id"`
	Config    json.RawMessage `json:"config"`
	CreatedAt time.Time       `json:"created_at"`
}

// GeneratedContent is one node's produced content within an execution.
// Terminal is true for output nodes and false for intermediate generating nodes.
type GeneratedContent struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"execution_id"`
	DiagramID   DiagramID `json:"diagram_id"`
	NodeID      string    `json:"node_id"`
	Content     string    `json:"content"`
	Terminal    bool      `json:"terminal"`
	CreatedAt   time.Time `json:"created_at"`
}

// Recorder persists execution artifacts. Every call is a single atomic write.
type Recorder interface {
	RecordExecution(ctx context.Context, diagramID DiagramID, config json.RawMessage) (string, error)
	RecordGeneratedContent(ctx context.Context, content *GeneratedContent) error
}

// ExecutionStore is a Recorder that can also manage its schema and read records back.
type ExecutionStore interface {
	Recorder

	// Schema
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error

	// GetExecution returns nil, nil when the execution does not exist.
	GetExecution(ctx context.Context, executionID string) (*Execution, error)
	// ListGeneratedContent returns the execution's content in write order.
	ListGeneratedContent(ctx context.Context, executionID string) ([]GeneratedContent, error)
}

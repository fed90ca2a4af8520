package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meikuraledutech/promptflow"
)

// RecordGeneratedContent inserts one node's content.
// If content.ID is empty, a UUID is auto-generated and written back.
func (s *PGStore) RecordGeneratedContent(ctx context.Context, content *promptflow.GeneratedContent) error {
	if content.ID == "" {
		content.ID = uuid.NewString()
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO generated_contents (id, execution_id, diagram_id, node_id, content, is_terminal) VALUES ($1, $2, $3, $4, $5, $6)`,
		content.ID, content.ExecutionID, string(content.DiagramID), content.NodeID, content.Content, content.Terminal,
	)
	if err != nil {
		return fmt.Errorf("promptflow: insert content for node %s: %w", content.NodeID, err)
	}
	return nil
}

// ListGeneratedContent returns all content of an execution in insertion order (seq).
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListGeneratedContent(ctx context.Context, executionID string) ([]promptflow.GeneratedContent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, execution_id, diagram_id, node_id, content, is_terminal, created_at
		 FROM generated_contents WHERE execution_id = $1 ORDER BY seq`, executionID)
	if err != nil {
		return nil, fmt.Errorf("promptflow: list content: %w", err)
	}
	defer rows.Close()

	contents := []promptflow.GeneratedContent{}
	for rows.Next() {
		var (
			c         promptflow.GeneratedContent
			diagramID string
		)
		if err := rows.Scan(&c.ID, &c.ExecutionID, &diagramID, &c.NodeID, &c.Content, &c.Terminal, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("promptflow: scan content: %w", err)
		}
		c.DiagramID = promptflow.DiagramID(diagramID)
		contents = append(contents, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("promptflow: rows content: %w", err)
	}

	return contents, nil
}

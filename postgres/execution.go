package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/meikuraledutech/promptflow"
)

// RecordExecution inserts the execution row for a starting run.
// A missing config is stored as JSON null. Returns the generated execution ID.
func (s *PGStore) RecordExecution(ctx context.Context, diagramID promptflow.DiagramID, config json.RawMessage) (string, error) {
	if len(config) == 0 {
		config = json.RawMessage("null")
	}
	id := uuid.NewString()

	_, err := s.db.Exec(ctx,
		`INSERT INTO executed_configs (id, diagram_id, config) VALUES ($1, $2, $3)`,
		id, string(diagramID), config,
	)
	if err != nil {
		return "", fmt.Errorf("promptflow: insert execution: %w", err)
	}
	return id, nil
}

// GetExecution fetches a single execution by its ID.
// Returns nil, nil if not found.
func (s *PGStore) GetExecution(ctx context.Context, executionID string) (*promptflow.Execution, error) {
	var (
		e         promptflow.Execution
		diagramID string
		config    []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, diagram_id, config, created_at FROM executed_configs WHERE id = $1`, executionID,
	).Scan(&e.ID, &diagramID, &config, &e.CreatedAt)

	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("promptflow: get execution: %w", err)
	}

	e.DiagramID = promptflow.DiagramID(diagramID)
	e.Config = json.RawMessage(config)
	return &e, nil
}

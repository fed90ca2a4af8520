// Package memory provides a concurrency-safe, in-process implementation of
// promptflow.ExecutionStore. Records live as long as the process; it backs the
// server's "memory" store and the engine tests.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meikuraledutech/promptflow"
)

// Store keeps executions and generated content in memory.
type Store struct {
	mu         sync.RWMutex
	executions map[string]promptflow.Execution
	contents   []promptflow.GeneratedContent
	now        func() time.Time
}

// Compile-time check: Store must implement promptflow.ExecutionStore.
var _ promptflow.ExecutionStore = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		executions: make(map[string]promptflow.Execution),
		now:        time.Now,
	}
}

// CreateSchema is a no-op.
func (s *Store) CreateSchema(ctx context.Context) error { return nil }

// DropSchema discards every record.
func (s *Store) DropSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions = make(map[string]promptflow.Execution)
	s.contents = nil
	return nil
}

// RecordExecution stores a new execution and returns its generated id.
func (s *Store) RecordExecution(ctx context.Context, diagramID promptflow.DiagramID, config json.RawMessage) (string, error) {
	exec := promptflow.Execution{
		ID:        uuid.NewString(),
		DiagramID: diagramID,
		Config:    append(json.RawMessage(nil), config...),
		CreatedAt: s.now(),
	}
	s.mu.Lock()
	s.executions[exec.ID] = exec
	s.mu.Unlock()
	return exec.ID, nil
}

// RecordGeneratedContent appends a copy of content, assigning its id and timestamp.
func (s *Store) RecordGeneratedContent(ctx context.Context, content *promptflow.GeneratedContent) error {
	c := *content
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = s.now()
	content.ID = c.ID

	s.mu.Lock()
	s.contents = append(s.contents, c)
	s.mu.Unlock()
	return nil
}

// GetExecution returns nil, nil if the execution is unknown.
func (s *Store) GetExecution(ctx context.Context, executionID string) (*promptflow.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[executionID]
	if !ok {
		return nil, nil
	}
	return &exec, nil
}

// ListGeneratedContent returns an empty slice (not nil) if none found.
func (s *Store) ListGeneratedContent(ctx context.Context, executionID string) ([]promptflow.GeneratedContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []promptflow.GeneratedContent{}
	for _, c := range s.contents {
		if c.ExecutionID == executionID {
			out = append(out, c)
		}
	}
	return out, nil
}

// Contents returns every recorded content row, across executions, in write order.
func (s *Store) Contents() []promptflow.GeneratedContent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]promptflow.GeneratedContent(nil), s.contents...)
}

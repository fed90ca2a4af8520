package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/promptflow"
)

func TestStore_RecordAndRead(t *testing.T) {
	ctx := context.Background()
	s := New()

	execID, err := s.RecordExecution(ctx, "42", json.RawMessage(`{"temperature":0.2}`))
	require.NoError(t, err)
	require.NotEmpty(t, execID)

	exec, err := s.GetExecution(ctx, execID)
	require.NoError(t, err)
	require.NotNil(t, exec)
	assert.Equal(t, promptflow.DiagramID("42"), exec.DiagramID)
	assert.JSONEq(t, `{"temperature":0.2}`, string(exec.Config))

	content := &promptflow.GeneratedContent{ExecutionID: execID, DiagramID: "42", NodeID: "b", Content: "say hello"}
	require.NoError(t, s.RecordGeneratedContent(ctx, content))
	assert.NotEmpty(t, content.ID)
	require.NoError(t, s.RecordGeneratedContent(ctx, &promptflow.GeneratedContent{ExecutionID: "other", NodeID: "x"}))

	rows, err := s.ListGeneratedContent(ctx, execID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "say hello", rows[0].Content)
	assert.False(t, rows[0].CreatedAt.IsZero())
}

func TestStore_Missing(t *testing.T) {
	ctx := context.Background()
	s := New()

	exec, err := s.GetExecution(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, exec)

	rows, err := s.ListGeneratedContent(ctx, "nope")
	assert.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestStore_DropSchema(t *testing.T) {
	ctx := context.Background()
	s := New()

	execID, err := s.RecordExecution(ctx, "1", nil)
	require.NoError(t, err)
	require.NoError(t, s.RecordGeneratedContent(ctx, &promptflow.GeneratedContent{ExecutionID: execID}))

	require.NoError(t, s.DropSchema(ctx))
	exec, err := s.GetExecution(ctx, execID)
	require.NoError(t, err)
	assert.Nil(t, exec)
	assert.Empty(t, s.Contents())
}

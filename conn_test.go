package promptflow_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/promptflow"
)

// fakeConn is an in-memory promptflow.Conn. Inbound messages are queued on in;
// closing in makes the peer look disconnected.
type fakeConn struct {
	in chan []byte

	// onWrite, when set, sees every outbound frame and may queue replies.
	onWrite func(c *fakeConn, f promptflow.Frame)

	mu        sync.Mutex
	out       []promptflow.Frame
	closed    bool
	closeCode int
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16)}
}

func (c *fakeConn) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-c.in:
		if !ok {
			return nil, promptflow.ErrPeerClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) WriteMessage(ctx context.Context, msg []byte) error {
	var f promptflow.Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return err
	}
	c.mu.Lock()
	c.out = append(c.out, f)
	hook := c.onWrite
	c.mu.Unlock()
	if hook != nil {
		hook(c, f)
	}
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeCode = code
	return nil
}

func (c *fakeConn) send(t *testing.T, v any) {
	t.Helper()
	msg, err := json.Marshal(v)
	require.NoError(t, err)
	c.in <- msg
}

func (c *fakeConn) frames() []promptflow.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]promptflow.Frame(nil), c.out...)
}

func (c *fakeConn) types() []string {
	var types []string
	for _, f := range c.frames() {
		types = append(types, f.Type)
	}
	return types
}

func (c *fakeConn) closeState() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode
}

// frameData decodes the data of the i-th outbound frame.
func frameData(t *testing.T, f promptflow.Frame) map[string]any {
	t.Helper()
	var data map[string]any
	require.NoError(t, json.Unmarshal(f.Data, &data))
	return data
}

// wireNode builds a node in the editor's wire shape.
func wireNode(id, nodeType, text string, pointedBy, pointingTo []string) map[string]any {
	n := map[string]any{
		"id":       id,
		"nodeType": nodeType,
		"data":     map[string]any{"text": text},
	}
	if pointedBy != nil {
		n["pointedBy"] = pointedBy
	}
	if pointingTo != nil {
		n["pointingTo"] = pointingTo
	}
	return n
}

func runRequest(mode string, nodes ...map[string]any) map[string]any {
	return map[string]any{
		"type":       mode,
		"diagram_id": 42,
		"config":     map[string]any{"temperature": 0.2},
		"data":       nodes,
	}
}

func parseRequest(t *testing.T, req map[string]any) *promptflow.RunRequest {
	t.Helper()
	msg, err := json.Marshal(req)
	require.NoError(t, err)
	parsed, err := promptflow.ParseRunRequest(msg)
	require.NoError(t, err)
	return parsed
}

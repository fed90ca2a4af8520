package promptflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Mode selects how a run's generating nodes are served.
type Mode string

const (
	// ModeRemote generates in-process with the server's Generator.
	ModeRemote Mode = "remote"
	// ModeLocal delegates generation to the peer with run_local requests.
	ModeLocal Mode = "local"
)

// Frame types exchanged on a run connection.
const (
	FrameRunLocal       = "run_local"
	FrameUpdateNode     = "update_node"
	FrameRunCompleted   = "run_completed"
	FrameRunFinished    = "run_finished"
	FrameRunError       = "run_error"
	FrameLocalLLM       = "local_llm"
	FrameLocalConnError = "local_conn_error"
)

// Conn is one duplex, message-oriented connection carrying a session's frames.
// ReadMessage returns ErrPeerClosed (wrapped) once the peer is gone and ctx.Err() when ctx ends.
type Conn interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, msg []byte) error
	Close(code int, reason string) error
}

// Websocket close codes used when a session ends.
const (
	CloseNormal         = 1000
	ClosePolicyViolated = 1008
	CloseInternalError  = 1011
)

// Frame is the envelope of every message. Run requests carry DiagramID and Config
// next to Type and Data; every other frame only uses Type and Data.
type Frame struct {
	Type      string          `json:"type"`
	DiagramID DiagramID       `json:"diagram_id,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// DecodeFrame parses one inbound message.
func DecodeFrame(msg []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return nil, &ProtocolError{Reason: "invalid frame", Err: err}
	}
	if f.Type == "" {
		return nil, &ProtocolError{Reason: "frame without type"}
	}
	return &f, nil
}

// RunRequest starts a run: the graph, its configuration blob and the generation mode.
type RunRequest struct {
	Mode      Mode
	DiagramID DiagramID
	Config    json.RawMessage
	Nodes     []Node
}

// ParseRunRequest decodes a run request frame.
func ParseRunRequest(msg []byte) (*RunRequest, error) {
	f, err := DecodeFrame(msg)
	if err != nil {
		return nil, err
	}
	mode := Mode(f.Type)
	if mode != ModeLocal && mode != ModeRemote {
		return nil, &ProtocolError{Reason: fmt.Sprintf("unexpected %q frame, want a run request", f.Type)}
	}
	if len(bytes.TrimSpace(f.Data)) == 0 {
		return nil, &ProtocolError{Reason: "run request without data"}
	}
	var nodes []Node
	if err := json.Unmarshal(f.Data, &nodes); err != nil {
		return nil, &ProtocolError{Reason: "invalid node list", Err: err}
	}
	return &RunRequest{
		Mode:      mode,
		DiagramID: f.DiagramID,
		Config:    f.Config,
		Nodes:     nodes,
	}, nil
}

type updateNodeData struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

type runCompletedData struct {
	Text string `json:"text"`
}

type runFinishedData struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

type runErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	NodeID  string `json:"node_id,omitempty"`
}

// ChatMessage is one message of a delegated chat-completions request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type runLocalPayload struct {
	ID       string        `json:"id"`
	Messages []ChatMessage `json:"messages"`
}

type runLocalData struct {
	URL  string          `json:"url"`
	Data runLocalPayload `json:"data"`
}

// writeFrame encodes {type, data} and writes it to conn.
func writeFrame(ctx context.Context, conn Conn, typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("promptflow: encode %s: %w", typ, err)
	}
	msg, err := json.Marshal(Frame{Type: typ, Data: raw})
	if err != nil {
		return fmt.Errorf("promptflow: encode %s: %w", typ, err)
	}
	if err := conn.WriteMessage(ctx, msg); err != nil {
		return fmt.Errorf("promptflow: write %s: %w", typ, err)
	}
	return nil
}

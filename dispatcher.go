package promptflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Dispatcher obtains the output of generating nodes for one run, either from the
// in-process Generator (remote mode) or from the peer (local mode).
type Dispatcher struct {
	mode      Mode
	conn      Conn
	generator Generator
	recorder  Recorder
	opts      Options

	executionID string
	diagramID   DiagramID
	logger      *slog.Logger
}

// Dispatch produces the value of a generating node from its rendered prompt and records it.
// In remote mode the value is then sent to the peer as update_node.
func (d *Dispatcher) Dispatch(ctx context.Context, node *Node, prompt string) (string, error) {
	var (
		value string
		err   error
	)
	if d.mode == ModeLocal {
		value, err = d.delegate(ctx, node, prompt)
	} else {
		value, err = d.generate(ctx, node, prompt)
	}
	if err != nil {
		return "", err
	}
	if ctx.Err() != nil {
		// The run was abandoned while the value was produced.
		return "", context.Cause(ctx)
	}

	if err := d.recorder.RecordGeneratedContent(ctx, &GeneratedContent{
		ExecutionID: d.executionID,
		DiagramID:   d.diagramID,
		NodeID:      node.ID,
		Content:     value,
		Terminal:    node.Kind == KindOutput,
	}); err != nil {
		return "", fmt.Errorf("promptflow: record content of node %q: %w", node.ID, err)
	}

	// Local values came from the peer; only remote ones are announced.
	if d.mode != ModeLocal {
		if err := writeFrame(ctx, d.conn, FrameUpdateNode, updateNodeData{ID: node.ID, Data: value}); err != nil {
			return "", err
		}
	}
	return value, nil
}

func (d *Dispatcher) generate(ctx context.Context, node *Node, prompt string) (string, error) {
	start := time.Now()
	value, err := d.generator.Generate(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return "", context.Cause(ctx)
		}
		return "", &GenerationError{NodeID: node.ID, Err: err}
	}
	d.logger.Debug("node generated", "node_id", node.ID, "duration", time.Since(start))
	return value, nil
}

// delegate sends a run_local request and blocks until the peer answers, fails or times out.
func (d *Dispatcher) delegate(ctx context.Context, node *Node, prompt string) (string, error) {
	var messages []ChatMessage
	if d.opts.SystemPrompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: d.opts.SystemPrompt})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: prompt})

	req := runLocalData{
		URL:  d.opts.DelegateURL,
		Data: runLocalPayload{ID: node.ID, Messages: messages},
	}
	if err := writeFrame(ctx, d.conn, FrameRunLocal, req); err != nil {
		return "", err
	}

	waitCtx, cancel := context.WithTimeout(ctx, d.opts.DelegateTimeout)
	defer cancel()

	msg, err := d.conn.ReadMessage(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", &DelegateTimeoutError{NodeID: node.ID, Timeout: d.opts.DelegateTimeout}
		}
		return "", err
	}

	f, err := DecodeFrame(msg)
	if err != nil {
		return "", err
	}
	switch f.Type {
	case FrameLocalLLM:
		return decodeDelegatedResult(node.ID, f.Data)
	case FrameLocalConnError:
		return "", &DelegatedChannelError{NodeID: node.ID}
	default:
		return "", &ProtocolError{Reason: fmt.Sprintf("unexpected %q frame while node %q awaits a delegated result", f.Type, node.ID)}
	}
}

// decodeDelegatedResult extracts the generated text from a local_llm payload.
// Accepted shapes: a JSON string, an object with "content" or "text", or a
// chat-completions response. Other objects are kept as raw JSON.
func decodeDelegatedResult(nodeID string, data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", &ProtocolError{Reason: "local_llm frame without data"}
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", &ProtocolError{Reason: "invalid local_llm data", Err: err}
		}
		return s, nil
	}
	if data[0] != '{' {
		return string(data), nil
	}

	var payload struct {
		ID      *flexID `json:"id"`
		Content *string `json:"content"`
		Text    *string `json:"text"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", &ProtocolError{Reason: "invalid local_llm data", Err: err}
	}

	switch {
	case payload.Content != nil:
		if err := matchDelegatedID(nodeID, payload.ID); err != nil {
			return "", err
		}
		return *payload.Content, nil
	case payload.Text != nil:
		if err := matchDelegatedID(nodeID, payload.ID); err != nil {
			return "", err
		}
		return *payload.Text, nil
	case len(payload.Choices) > 0:
		// Chat-completions responses carry their own "id", unrelated to the node.
		if c := payload.Choices[0]; c.Message.Content != "" {
			return c.Message.Content, nil
		}
		return payload.Choices[0].Text, nil
	default:
		return string(data), nil
	}
}

func matchDelegatedID(nodeID string, id *flexID) error {
	if id != nil && string(*id) != nodeID {
		return &ProtocolError{Reason: fmt.Sprintf("local_llm answers node %q, want %q", string(*id), nodeID)}
	}
	return nil
}

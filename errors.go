package promptflow

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrDelegatedChannel is reported when the peer's local generation channel fails.
	ErrDelegatedChannel = errors.New("promptflow: delegated generation channel failed")
	// ErrPeerClosed is returned by a Conn once the peer has gone away.
	ErrPeerClosed = errors.New("promptflow: peer closed connection")
)

// Codes carried by run_error frames.
const (
	CodeMalformedGraph  = "malformed_graph"
	CodeTemplate        = "template_error"
	CodeStuck           = "stuck_run"
	CodeProtocol        = "protocol_error"
	CodeGeneration      = "generation_failed"
	CodeDelegateTimeout = "delegate_timeout"
	CodeInternal        = "internal_error"
)

// MalformedGraphError reports a node list that cannot form a graph.
type MalformedGraphError struct {
	NodeID string
	Ref    string
	Reason string
}

func (e *MalformedGraphError) Error() string {
	switch {
	case e.Ref != "":
		return fmt.Sprintf("promptflow: malformed graph: node %q %s %q", e.NodeID, e.Reason, e.Ref)
	case e.NodeID != "":
		return fmt.Sprintf("promptflow: malformed graph: node %q: %s", e.NodeID, e.Reason)
	default:
		return "promptflow: malformed graph: " + e.Reason
	}
}

// TemplateRenderError reports a placeholder that points past the available context.
// Index is the placeholder as written in the template.
type TemplateRenderError struct {
	NodeID    string
	Index     string
	Available int
}

func (e *TemplateRenderError) Error() string {
	return fmt.Sprintf("promptflow: node %q: placeholder {%s} out of range (%d context values)",
		e.NodeID, e.Index, e.Available)
}

// StuckRunError reports a pass that made no progress while nodes were still pending.
type StuckRunError struct {
	Pending []string
	Cycle   []string
}

func (e *StuckRunError) Error() string {
	msg := fmt.Sprintf("promptflow: run stuck with %d unresolved nodes [%s]",
		len(e.Pending), strings.Join(e.Pending, ", "))
	if len(e.Cycle) > 0 {
		msg += fmt.Sprintf("; cycle %s", strings.Join(e.Cycle, " -> "))
	}
	return msg
}

// DelegatedChannelError reports a local_conn_error from the peer while a node was pending.
type DelegatedChannelError struct {
	NodeID string
}

func (e *DelegatedChannelError) Error() string {
	return fmt.Sprintf("%v (node %q)", ErrDelegatedChannel, e.NodeID)
}

func (e *DelegatedChannelError) Unwrap() error { return ErrDelegatedChannel }

// DelegateTimeoutError reports that the peer did not answer a run_local request in time.
type DelegateTimeoutError struct {
	NodeID  string
	Timeout time.Duration
}

func (e *DelegateTimeoutError) Error() string {
	return fmt.Sprintf("promptflow: node %q: no delegated result within %s", e.NodeID, e.Timeout)
}

// ProtocolError reports an inbound frame that could not be understood.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("promptflow: protocol error: %s: %v", e.Reason, e.Err)
	}
	return "promptflow: protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// GenerationError wraps a failure of the in-process generator.
type GenerationError struct {
	NodeID string
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("promptflow: node %q: generation failed: %v", e.NodeID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ErrorCode maps a fatal run error to the code sent in its run_error frame.
func ErrorCode(err error) string {
	var (
		malformed *MalformedGraphError
		tmpl      *TemplateRenderError
		stuck     *StuckRunError
		proto     *ProtocolError
		gen       *GenerationError
		timeout   *DelegateTimeoutError
	)
	switch {
	case errors.As(err, &malformed):
		return CodeMalformedGraph
	case errors.As(err, &tmpl):
		return CodeTemplate
	case errors.As(err, &stuck):
		return CodeStuck
	case errors.As(err, &proto):
		return CodeProtocol
	case errors.As(err, &gen):
		return CodeGeneration
	case errors.As(err, &timeout):
		return CodeDelegateTimeout
	default:
		return CodeInternal
	}
}

// errorNodeID returns the node a fatal error is attributed to, if any.
func errorNodeID(err error) string {
	var (
		tmpl    *TemplateRenderError
		gen     *GenerationError
		timeout *DelegateTimeoutError
		mal     *MalformedGraphError
	)
	switch {
	case errors.As(err, &tmpl):
		return tmpl.NodeID
	case errors.As(err, &gen):
		return gen.NodeID
	case errors.As(err, &timeout):
		return timeout.NodeID
	case errors.As(err, &mal):
		return mal.NodeID
	}
	return ""
}

package promptflow

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind classifies what a node does when it is resolved.
type Kind int

const (
	// KindPassthrough nodes resolve to their static text.
	KindPassthrough Kind = iota
	// KindGenerate nodes render their text as a prompt and resolve to generated text.
	KindGenerate
	// KindOutput nodes mark the end of a branch and are reported as run completions.
	KindOutput
)

// ParseKind maps a wire nodeType to a Kind. Unknown types are passthrough.
func ParseKind(nodeType string) Kind {
	switch nodeType {
	case "generate":
		return KindGenerate
	case "output":
		return KindOutput
	default:
		return KindPassthrough
	}
}

func (k Kind) String() string {
	switch k {
	case KindGenerate:
		return "generate"
	case KindOutput:
		return "output"
	default:
		return "node"
	}
}

// Node is a unit of work in a diagram.
// Predecessors must resolve before the node may run; Successors are unlocked once it resolves.
type Node struct {
	ID           string
	Kind         Kind
	Text         string
	Predecessors []string
	Successors   []string
}

type nodeData struct {
	Text string `json:"text"`
}

type wireNode struct {
	ID         flexID   `json:"id"`
	NodeType   string   `json:"nodeType"`
	Data       nodeData `json:"data"`
	PointedBy  []flexID `json:"pointedBy,omitempty"`
	PointingTo []flexID `json:"pointingTo,omitempty"`
}

// UnmarshalJSON decodes the diagram editor's node shape.
func (n *Node) UnmarshalJSON(b []byte) error {
	var w wireNode
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*n = Node{
		ID:           string(w.ID),
		Kind:         ParseKind(w.NodeType),
		Text:         w.Data.Text,
		Predecessors: flexIDs(w.PointedBy),
		Successors:   flexIDs(w.PointingTo),
	}
	return nil
}

// MarshalJSON encodes the node in the diagram editor's shape.
func (n Node) MarshalJSON() ([]byte, error) {
	w := wireNode{
		ID:       flexID(n.ID),
		NodeType: n.Kind.String(),
		Data:     nodeData{Text: n.Text},
	}
	for _, id := range n.Predecessors {
		w.PointedBy = append(w.PointedBy, flexID(id))
	}
	for _, id := range n.Successors {
		w.PointingTo = append(w.PointingTo, flexID(id))
	}
	return json.Marshal(w)
}

// DiagramID identifies the diagram a run belongs to. It decodes from a JSON string or number.
type DiagramID string

// UnmarshalJSON accepts both `"42"` and `42`.
func (d *DiagramID) UnmarshalJSON(b []byte) error {
	var id flexID
	if err := id.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("diagram_id: %w", err)
	}
	*d = DiagramID(id)
	return nil
}

// flexID is an identifier that may arrive as a JSON string or number.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexID(num.String())
	return nil
}

func (f flexID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(f))
}

func flexIDs(ids []flexID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

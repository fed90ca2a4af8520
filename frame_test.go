package promptflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRunRequest(t *testing.T) {
	msg := []byte(`{
		"type": "local",
		"diagram_id": 7,
		"config": {"model": "llama"},
		"data": [
			{"id": "a", "nodeType": "node", "data": {"text": "hello"}, "pointingTo": ["b"]},
			{"id": "b", "nodeType": "generate", "data": {"text": "say {1}"}, "pointedBy": ["a"], "pointingTo": ["c"]},
			{"id": "c", "nodeType": "output", "pointedBy": ["b"]},
			{"id": 4, "nodeType": "somethingElse", "data": {"text": "x"}}
		]
	}`)

	req, err := ParseRunRequest(msg)
	require.NoError(t, err)

	assert.Equal(t, ModeLocal, req.Mode)
	assert.Equal(t, DiagramID("7"), req.DiagramID)
	assert.JSONEq(t, `{"model":"llama"}`, string(req.Config))
	require.Len(t, req.Nodes, 4)

	assert.Equal(t, Node{ID: "a", Kind: KindPassthrough, Text: "hello", Successors: []string{"b"}}, req.Nodes[0])
	assert.Equal(t, Node{
		ID:           "b",
		Kind:         KindGenerate,
		Text:         "say {1}",
		Predecessors: []string{"a"},
		Successors:   []string{"c"},
	}, req.Nodes[1])
	assert.Equal(t, Node{ID: "c", Kind: KindOutput, Predecessors: []string{"b"}}, req.Nodes[2])
	assert.Equal(t, "4", req.Nodes[3].ID)
	assert.Equal(t, KindPassthrough, req.Nodes[3].Kind)
}

func TestParseRunRequest_Errors(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want string
	}{
		{name: "not json", msg: `hello`, want: "invalid frame"},
		{name: "missing type", msg: `{"data": []}`, want: "frame without type"},
		{name: "wrong type", msg: `{"type": "local_llm", "data": "x"}`, want: `unexpected "local_llm" frame`},
		{name: "missing data", msg: `{"type": "remote", "diagram_id": 1}`, want: "without data"},
		{name: "bad nodes", msg: `{"type": "remote", "data": {"id": "a"}}`, want: "invalid node list"},
		{name: "bad diagram id", msg: `{"type": "remote", "diagram_id": {}, "data": []}`, want: "invalid frame"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRunRequest([]byte(tt.msg))
			var proto *ProtocolError
			require.ErrorAs(t, err, &proto)
			assert.ErrorContains(t, err, tt.want)
			assert.Equal(t, CodeProtocol, ErrorCode(err))
		})
	}
}

func TestNodeMarshalJSON(t *testing.T) {
	n := Node{ID: "b", Kind: KindGenerate, Text: "say {1}", Predecessors: []string{"a"}}
	raw, err := json.Marshal(n)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"b","nodeType":"generate","data":{"text":"say {1}"},"pointedBy":["a"]}`, string(raw))

	var back Node
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, n, back)
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, KindGenerate, ParseKind("generate"))
	assert.Equal(t, KindOutput, ParseKind("output"))
	assert.Equal(t, KindPassthrough, ParseKind("node"))
	assert.Equal(t, KindPassthrough, ParseKind(""))
}

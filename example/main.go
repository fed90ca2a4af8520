// Command example sends a small diagram to a running promptflow server and prints
// every frame it receives until the run finishes.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"

	"github.com/fasthttp/websocket"

	"github.com/meikuraledutech/promptflow"
)

func main() {
	addr := flag.String("addr", "ws://localhost:3000/ws", "server websocket URL")
	local := flag.Bool("local", false, "serve generation from this client (local mode)")
	flag.Parse()

	ws, _, err := websocket.DefaultDialer.Dial(*addr, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	mode := promptflow.ModeRemote
	if *local {
		mode = promptflow.ModeLocal
	}

	// ── Diagram: a static text feeding one prompt and one output ─────
	nodes := []promptflow.Node{
		{ID: "a", Kind: promptflow.KindPassthrough, Text: "hello", Successors: []string{"b"}},
		{ID: "b", Kind: promptflow.KindGenerate, Text: "say {1}", Predecessors: []string{"a"}, Successors: []string{"c"}},
		{ID: "c", Kind: promptflow.KindOutput, Predecessors: []string{"b"}},
	}
	data, err := json.Marshal(nodes)
	if err != nil {
		log.Fatalf("encode: %v", err)
	}
	if err := ws.WriteJSON(promptflow.Frame{
		Type:      string(mode),
		DiagramID: "1",
		Config:    json.RawMessage(`{"temperature": 0.7}`),
		Data:      data,
	}); err != nil {
		log.Fatalf("send: %v", err)
	}

	for {
		var f promptflow.Frame
		if err := ws.ReadJSON(&f); err != nil {
			log.Fatalf("read: %v", err)
		}
		fmt.Printf("%-16s %s\n", f.Type, f.Data)

		switch f.Type {
		case promptflow.FrameRunLocal:
			// Stand in for a local model: answer with the user message.
			if err := ws.WriteJSON(answer(f.Data)); err != nil {
				log.Fatalf("answer: %v", err)
			}
		case promptflow.FrameRunFinished, promptflow.FrameRunError:
			return
		}
	}
}

func answer(raw json.RawMessage) promptflow.Frame {
	var req struct {
		Data struct {
			ID       string                   `json:"id"`
			Messages []promptflow.ChatMessage `json:"messages"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Fatalf("decode run_local: %v", err)
	}

	var content string
	for _, m := range req.Data.Messages {
		if m.Role == "user" {
			content = m.Content
		}
	}
	data, _ := json.Marshal(map[string]string{"id": req.Data.ID, "content": content})
	return promptflow.Frame{Type: promptflow.FrameLocalLLM, Data: data}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/promptflow"
	"github.com/meikuraledutech/promptflow/config"
	"github.com/meikuraledutech/promptflow/ctxlog"
	"github.com/meikuraledutech/promptflow/memory"
	"github.com/meikuraledutech/promptflow/openai"
)

func newTestApp(t *testing.T) (*fiber.App, *memory.Store, *promptflow.Manager) {
	t.Helper()
	return newTestAppWith(t, promptflow.Echo)
}

func newTestAppWith(t *testing.T, gen promptflow.Generator) (*fiber.App, *memory.Store, *promptflow.Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := memory.New()
	engine := promptflow.NewEngine(store, gen, promptflow.Options{})
	manager := promptflow.NewManager(engine, ctxlog.Discard())
	return newApp(ctx, store, manager, ctxlog.Discard()), store, manager
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestHealthz(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "ok", "active_runs": float64(0)}, decodeBody(t, resp))
}

func TestRuns_Empty(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/runs", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestSchemaRoutes(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/schema", nil))
	require.NoError(t, err)
	assert.Equal(t, "schema created", decodeBody(t, resp)["message"])

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/schema", nil))
	require.NoError(t, err)
	assert.Equal(t, "schema dropped", decodeBody(t, resp)["message"])
}

func TestGetExecution(t *testing.T) {
	app, store, _ := newTestApp(t)
	ctx := context.Background()

	execID, err := store.RecordExecution(ctx, "42", json.RawMessage(`{"temperature":0.2}`))
	require.NoError(t, err)
	require.NoError(t, store.RecordGeneratedContent(ctx, &promptflow.GeneratedContent{
		ExecutionID: execID,
		DiagramID:   "42",
		NodeID:      "c",
		Content:     "say hello",
		Terminal:    true,
	}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/executions/"+execID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	exec := body["execution"].(map[string]any)
	assert.Equal(t, execID, exec["id"])
	assert.Equal(t, "42", exec["diagram_id"])

	contents := body["contents"].([]any)
	require.Len(t, contents, 1)
	row := contents[0].(map[string]any)
	assert.Equal(t, "c", row["node_id"])
	assert.Equal(t, "say hello", row["content"])
	assert.Equal(t, true, row["terminal"])
}

func TestGetExecution_NotFound(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/executions/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "execution not found", decodeBody(t, resp)["error"])
}

func TestWS_RequiresUpgrade(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

// dial serves app on a loopback listener and opens a websocket to /ws.
func dial(t *testing.T, app *fiber.App) *websocket.Conn {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	t.Cleanup(func() { _ = app.Shutdown() })

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	return ws
}

func remoteRun() map[string]any {
	return map[string]any{
		"type":       "remote",
		"diagram_id": 7,
		"data": []map[string]any{
			{"id": "a", "nodeType": "node", "data": map[string]any{"text": "hello"}},
			{"id": "b", "nodeType": "generate", "data": map[string]any{"text": "say {1}"}, "pointedBy": []string{"a"}, "pointingTo": []string{"c"}},
			{"id": "c", "nodeType": "output", "pointedBy": []string{"b"}},
		},
	}
}

func TestWS_RemoteRun(t *testing.T) {
	app, store, manager := newTestApp(t)
	ws := dial(t, app)

	require.NoError(t, ws.WriteJSON(remoteRun()))

	var types []string
	var completed string
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f promptflow.Frame
		require.NoError(t, ws.ReadJSON(&f))
		types = append(types, f.Type)
		if f.Type == promptflow.FrameRunCompleted {
			var data struct {
				Text string `json:"text"`
			}
			require.NoError(t, json.Unmarshal(f.Data, &data))
			completed = data.Text
		}
		if f.Type == promptflow.FrameRunFinished || f.Type == promptflow.FrameRunError {
			break
		}
	}

	assert.Equal(t, []string{"update_node", "update_node", "run_completed", "run_finished"}, types)
	assert.Equal(t, "say hello", completed)
	assert.Equal(t, 1, manager.Len())

	contents := store.Contents()
	require.Len(t, contents, 2)
	assert.Equal(t, "b", contents[0].NodeID)
	assert.False(t, contents[0].Terminal)
	assert.Equal(t, "c", contents[1].NodeID)
	assert.True(t, contents[1].Terminal)

	require.NoError(t, ws.Close())
	assert.Eventually(t, func() bool { return manager.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("warn", "json", &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "v", line["k"])

	_, err = newLogger("loud", "text", &buf)
	assert.Error(t, err)
	_, err = newLogger("info", "xml", &buf)
	assert.Error(t, err)
}

func TestNewGenerator(t *testing.T) {
	cfg := config.Default()

	gen, err := newGenerator(cfg, http.DefaultClient)
	require.NoError(t, err)
	out, err := gen.Generate(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "ping", out)

	cfg.Generator.Kind = config.GeneratorOpenAI
	cfg.Generator.Model = "gpt-4o"
	gen, err = newGenerator(cfg, http.DefaultClient)
	require.NoError(t, err)
	assert.IsType(t, &openai.Client{}, gen)

	cfg.Generator.Kind = "oracle"
	_, err = newGenerator(cfg, http.DefaultClient)
	assert.ErrorContains(t, err, `unknown generator "oracle"`)
}

func TestOpenStore(t *testing.T) {
	cfg := config.Default()
	cfg.Store = config.StoreMemory

	store, closeStore, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &memory.Store{}, store)

	cfg.Store = "sqlite"
	_, _, err = openStore(context.Background(), cfg)
	assert.ErrorContains(t, err, `unknown store "sqlite"`)
}

func TestWS_DisconnectCancelsGeneration(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	gen := promptflow.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		close(started)
		select {
		case <-ctx.Done():
			close(cancelled)
			return "", ctx.Err()
		case <-time.After(3 * time.Second):
			return prompt, nil
		}
	})
	app, store, manager := newTestAppWith(t, gen)
	ws := dial(t, app)

	require.NoError(t, ws.WriteJSON(remoteRun()))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("generation never started")
	}
	require.NoError(t, ws.Close())

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("generation ran to completion after the client left")
	}
	assert.Eventually(t, func() bool { return manager.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, store.Contents())
}

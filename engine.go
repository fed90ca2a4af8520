package promptflow

import (
	"context"
	"fmt"
	"time"

	"github.com/meikuraledutech/promptflow/ctxlog"
)

// Defaults applied by NewEngine to zero Options fields.
const (
	DefaultDelegateURL     = "http://localhost:1234/v1/chat/completions"
	DefaultSystemPrompt    = "You are a helpful assistant that provides concise and accurate answers."
	DefaultDelegateTimeout = 2 * time.Minute
)

// Options tune how generating nodes are dispatched.
type Options struct {
	// DelegateURL is the peer-side endpoint named in run_local requests.
	DelegateURL string
	// SystemPrompt is prepended to delegated chat messages. Empty disables it.
	SystemPrompt string
	// DelegateTimeout bounds the wait for a local_llm answer.
	DelegateTimeout time.Duration
}

// Engine executes run requests. It is safe for concurrent use by many sessions;
// all per-run state lives in the run itself.
type Engine struct {
	recorder  Recorder
	generator Generator
	opts      Options
}

// NewEngine creates an Engine. A nil generator falls back to Echo.
func NewEngine(recorder Recorder, generator Generator, opts Options) *Engine {
	if generator == nil {
		generator = Echo
	}
	if opts.DelegateURL == "" {
		opts.DelegateURL = DefaultDelegateURL
	}
	if opts.DelegateTimeout <= 0 {
		opts.DelegateTimeout = DefaultDelegateTimeout
	}
	return &Engine{recorder: recorder, generator: generator, opts: opts}
}

// RunStatus is the terminal state of a run.
type RunStatus int

const (
	RunRunning RunStatus = iota
	RunCompleted
	RunStuck
	RunAborted
	RunFailed
)

func (s RunStatus) String() string {
	switch s {
	case RunRunning:
		return "running"
	case RunCompleted:
		return "completed"
	case RunStuck:
		return "stuck"
	case RunAborted:
		return "aborted"
	default:
		return "failed"
	}
}

// RunResult describes a finished run.
type RunResult struct {
	ExecutionID string
	Status      RunStatus
	Resolved    map[string]string
}

// Execute runs req to completion over conn, streaming frames as nodes resolve.
// The returned error is the run's single fatal condition; Status tells which kind.
func (e *Engine) Execute(ctx context.Context, conn Conn, req *RunRequest) (*RunResult, error) {
	logger := ctxlog.FromContext(ctx).With("diagram_id", string(req.DiagramID), "mode", string(req.Mode))

	graph, err := NewGraph(req.Nodes)
	if err != nil {
		logger.Warn("rejecting run", "error", err)
		return &RunResult{Status: RunFailed}, err
	}

	execID, err := e.recorder.RecordExecution(ctx, req.DiagramID, req.Config)
	if err != nil {
		return &RunResult{Status: RunFailed}, fmt.Errorf("promptflow: record execution: %w", err)
	}
	logger = logger.With("execution_id", execID)
	logger.Info("run started", "nodes", graph.Len())

	r := &run{
		graph:    graph,
		conn:     conn,
		recorder: e.recorder,
		resolved: make(map[string]string, graph.Len()),
		queued:   make(map[string]bool),
		execID:   execID,
		diagram:  req.DiagramID,
		logger:   logger,
		dispatcher: &Dispatcher{
			mode:        req.Mode,
			conn:        conn,
			generator:   e.generator,
			recorder:    e.recorder,
			opts:        e.opts,
			executionID: execID,
			diagramID:   req.DiagramID,
			logger:      logger,
		},
	}

	start := time.Now()
	err = r.execute(ctx)
	result := &RunResult{ExecutionID: execID, Status: r.status, Resolved: r.resolved}
	if err != nil {
		return result, err
	}

	logger.Info("run completed", "duration", time.Since(start))
	if err := writeFrame(ctx, conn, FrameRunFinished, runFinishedData{
		ExecutionID: execID,
		Status:      r.status.String(),
	}); err != nil {
		return result, err
	}
	return result, nil
}

package promptflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// run is the state of one execution: a FIFO ready queue over an immutable graph and
// the monotonically growing set of resolved outputs.
type run struct {
	graph      *Graph
	conn       Conn
	recorder   Recorder
	dispatcher *Dispatcher

	queue    []string
	queued   map[string]bool
	resolved map[string]string
	status   RunStatus

	execID  string
	diagram DiagramID
	logger  *slog.Logger
}

// execute drives wavefront passes until the graph is resolved or a fatal condition ends the run.
func (r *run) execute(ctx context.Context) error {
	r.status = RunRunning
	r.enqueue(r.graph.Roots()...)

	for pass := 1; ; pass++ {
		if len(r.resolved) == r.graph.Len() {
			r.status = RunCompleted
			return nil
		}

		snapshot := r.queue
		r.queue = nil
		clear(r.queued)

		progressed := 0
		for _, id := range snapshot {
			if ctx.Err() != nil {
				return r.fail(context.Cause(ctx))
			}
			if _, done := r.resolved[id]; done {
				continue
			}
			if !r.ready(id) {
				r.enqueue(id)
				continue
			}
			if err := r.resolve(ctx, id); err != nil {
				return r.fail(err)
			}
			progressed++
			r.enqueue(r.graph.Successors(id)...)
			r.compact()
		}
		r.logger.Debug("pass finished", "pass", pass, "resolved", progressed, "queued", len(r.queue))

		if progressed == 0 && len(r.resolved) < r.graph.Len() {
			return r.fail(&StuckRunError{
				Pending: r.graph.Pending(r.resolved),
				Cycle:   r.graph.Cycle(),
			})
		}
	}
}

// enqueue appends ids not yet resolved or queued, preserving order.
func (r *run) enqueue(ids ...string) {
	for _, id := range ids {
		if _, done := r.resolved[id]; done || r.queued[id] {
			continue
		}
		r.queued[id] = true
		r.queue = append(r.queue, id)
	}
}

// compact drops queue entries that were resolved later in the same pass.
func (r *run) compact() {
	kept := r.queue[:0]
	for _, id := range r.queue {
		if _, done := r.resolved[id]; done {
			delete(r.queued, id)
			continue
		}
		kept = append(kept, id)
	}
	r.queue = kept
}

// ready reports whether id may run now. Nodes that consume upstream outputs wait
// for all their predecessors; passthrough nodes never wait.
func (r *run) ready(id string) bool {
	n, _ := r.graph.Node(id)
	if n.Kind == KindPassthrough {
		return true
	}
	for _, p := range n.Predecessors {
		if _, ok := r.resolved[p]; !ok {
			return false
		}
	}
	return true
}

// inputs returns the predecessors' outputs in predecessor-list order.
func (r *run) inputs(n *Node) []string {
	values := make([]string, 0, len(n.Predecessors))
	for _, p := range n.Predecessors {
		values = append(values, r.resolved[p])
	}
	return values
}

func (r *run) resolve(ctx context.Context, id string) error {
	n, _ := r.graph.Node(id)

	switch n.Kind {
	case KindGenerate:
		prompt, err := r.render(n)
		if err != nil {
			return err
		}
		value, err := r.dispatcher.Dispatch(ctx, n, prompt)
		if err != nil {
			return err
		}
		r.resolved[id] = value

	case KindOutput:
		value, err := r.outputValue(n)
		if err != nil {
			return err
		}
		if err := r.recorder.RecordGeneratedContent(ctx, &GeneratedContent{
			ExecutionID: r.execID,
			DiagramID:   r.diagram,
			NodeID:      id,
			Content:     value,
			Terminal:    true,
		}); err != nil {
			return fmt.Errorf("promptflow: record content of node %q: %w", id, err)
		}
		r.resolved[id] = value
		if err := writeFrame(ctx, r.conn, FrameUpdateNode, updateNodeData{ID: id, Data: value}); err != nil {
			return err
		}
		if err := writeFrame(ctx, r.conn, FrameRunCompleted, runCompletedData{Text: value}); err != nil {
			return err
		}
		r.logger.Info("branch completed", "node_id", id)

	default:
		r.resolved[id] = n.Text
	}

	r.logger.Debug("node resolved", "node_id", id, "kind", n.Kind.String())
	return nil
}

func (r *run) render(n *Node) (string, error) {
	prompt, err := RenderPrompt(n.Text, r.inputs(n))
	if err != nil {
		var tmpl *TemplateRenderError
		if errors.As(err, &tmpl) {
			tmpl.NodeID = n.ID
		}
		return "", err
	}
	return prompt, nil
}

// outputValue renders an output node's text against its predecessors, or passes
// their outputs through when the node has no text of its own.
func (r *run) outputValue(n *Node) (string, error) {
	if n.Text != "" {
		return r.render(n)
	}
	return strings.Join(r.inputs(n), "\n"), nil
}

// fail records the terminal state matching err and returns it.
func (r *run) fail(err error) error {
	var stuck *StuckRunError
	switch {
	case errors.As(err, &stuck):
		r.status = RunStuck
	case errors.Is(err, ErrDelegatedChannel):
		r.status = RunAborted
	case errors.Is(err, ErrPeerClosed), errors.Is(err, context.Canceled):
		r.status = RunAborted
		r.logger.Info("run abandoned", "error", err)
		return err
	default:
		r.status = RunFailed
	}
	r.logger.Error("run terminated", "status", r.status.String(), "error", err)
	return err
}

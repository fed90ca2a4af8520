package promptflow

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meikuraledutech/promptflow/ctxlog"
)

// SessionInfo is a point-in-time view of one open session.
type SessionInfo struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Runs      int       `json:"runs"`
	// DiagramID and Mode describe the run in progress, if any.
	DiagramID DiagramID `json:"diagram_id,omitempty"`
	Mode      Mode      `json:"mode,omitempty"`
}

// Session owns one connection: it reads run requests and executes them one at a time.
type Session struct {
	id      string
	conn    Conn
	engine  *Engine
	started time.Time
	logger  *slog.Logger

	mu        sync.Mutex
	runs      int
	current   *RunRequest
	cancelRun context.CancelCauseFunc

	// gone is the read error that ended the connection, once seen.
	gone error
}

func newSession(conn Conn, engine *Engine, logger *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:      id,
		conn:    conn,
		engine:  engine,
		started: time.Now(),
		logger:  logger.With("session_id", id),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := SessionInfo{ID: s.id, StartedAt: s.started, Runs: s.runs}
	if s.current != nil {
		info.DiagramID = s.current.DiagramID
		info.Mode = s.current.Mode
	}
	return info
}

// Serve reads run requests until the peer leaves or a run ends fatally.
// A peer that goes away yields a nil error; every other ending returns the cause.
//
// A single goroutine reads the connection for the whole session, so a peer that
// leaves while a run is in progress cancels that run's context with ErrPeerClosed.
func (s *Session) Serve(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, s.logger)
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	in := s.pump(ctx)

	for {
		msg, err := in.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, ErrPeerClosed) || ctx.Err() != nil {
				s.logger.Info("peer disconnected")
				return nil
			}
			return err
		}
		if len(bytes.TrimSpace(msg)) == 0 {
			s.logger.Info("empty frame, closing session")
			_ = s.conn.Close(CloseNormal, "")
			return nil
		}

		req, err := ParseRunRequest(msg)
		if err != nil {
			s.logger.Warn("bad run request", "error", err)
			s.terminate(ctx, err)
			return err
		}

		runCtx, cancel := context.WithCancelCause(ctx)
		s.start(req, cancel)
		_, err = s.engine.Execute(runCtx, in, req)
		s.finish()
		cancel(nil)

		switch {
		case err == nil:
			continue
		case errors.Is(err, ErrPeerClosed), ctx.Err() != nil:
			s.logger.Info("peer disconnected during run")
			return nil
		case errors.Is(err, ErrDelegatedChannel):
			// The peer reported the failure itself; nothing more is sent.
			_ = s.conn.Close(CloseNormal, "delegated generation failed")
			return err
		default:
			s.terminate(ctx, err)
			return err
		}
	}
}

// terminate reports a fatal error to the peer with a run_error frame and closes the connection.
func (s *Session) terminate(ctx context.Context, cause error) {
	code := ErrorCode(cause)
	if err := writeFrame(ctx, s.conn, FrameRunError, runErrorData{
		Code:    code,
		Message: cause.Error(),
		NodeID:  errorNodeID(cause),
	}); err != nil {
		s.logger.Warn("could not send run_error", "error", err)
	}

	closeCode := CloseInternalError
	if code == CodeProtocol || code == CodeMalformedGraph {
		closeCode = ClosePolicyViolated
	}
	if err := s.conn.Close(closeCode, code); err != nil {
		s.logger.Debug("close failed", "error", err)
	}
}

// start marks req as the run in progress. A connection already gone cancels it at once.
func (s *Session) start(req *RunRequest, cancel context.CancelCauseFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	s.current = req
	s.cancelRun = cancel
	if s.gone != nil {
		cancel(s.gone)
	}
}

func (s *Session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.cancelRun = nil
}

// lost records the error that ended the connection and cancels the run in progress.
func (s *Session) lost(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gone = err
	if s.cancelRun != nil {
		s.cancelRun(err)
	}
}

type inbound struct {
	msg []byte
	err error
}

// inbox is the session's view of its connection: reads come from the pump, writes
// and Close go straight to the connection.
type inbox struct {
	Conn
	msgs <-chan inbound
}

// ReadMessage returns the next message read by the pump. When ctx ends first it
// returns the context's cause.
func (in *inbox) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case m, ok := <-in.msgs:
		if !ok {
			return nil, ErrPeerClosed
		}
		return m.msg, m.err
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

// pump reads the connection until it fails or ctx ends. A failed read is
// delivered to the session and cancels the run in progress.
func (s *Session) pump(ctx context.Context) *inbox {
	msgs := make(chan inbound)
	go func() {
		defer close(msgs)
		for {
			msg, err := s.conn.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.lost(err)
				}
				select {
				case msgs <- inbound{err: err}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case msgs <- inbound{msg: msg}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return &inbox{Conn: s.conn, msgs: msgs}
}

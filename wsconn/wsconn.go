// Package wsconn adapts a fasthttp websocket connection to promptflow.Conn.
package wsconn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fasthttp/websocket"

	"github.com/meikuraledutech/promptflow"
)

// writeWait bounds a single frame write when the context has no deadline.
const writeWait = 10 * time.Second

// Conn is a promptflow.Conn over one websocket. Reads come from the session
// reader goroutine only; writes are serialized.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
}

// Compile-time check: Conn must implement promptflow.Conn.
var _ promptflow.Conn = (*Conn)(nil)

// New wraps ws.
func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// ReadMessage blocks for the next message. The context's deadline becomes the read
// deadline and cancelling ctx interrupts the read; in both cases ctx.Err() is returned.
// Any other failure means the connection is gone and wraps promptflow.ErrPeerClosed.
func (c *Conn) ReadMessage(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline, _ := ctx.Deadline()
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", promptflow.ErrPeerClosed, err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	_, msg, err := c.ws.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", promptflow.ErrPeerClosed, err)
	}
	return msg, nil
}

// WriteMessage sends msg as one text frame.
func (c *Conn) WriteMessage(ctx context.Context, msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", promptflow.ErrPeerClosed, err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("%w: %v", promptflow.ErrPeerClosed, err)
	}
	return nil
}

// Close sends a close frame with code and reason, then closes the socket.
func (c *Conn) Close(code int, reason string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second))
	return c.ws.Close()
}

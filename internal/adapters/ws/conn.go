package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PabloGalante/ttrpg-gm/internal/app/fanout"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

var errConnClosed = errors.New("connection closed")

// conn serialises writes to one websocket.
type conn struct {
	ws   *websocket.Conn
	user domain.UserID

	mu     sync.Mutex
	closed bool
}

var _ fanout.Conn = (*conn)(nil)

func newConn(ws *websocket.Conn, user domain.UserID) *conn {
	return &conn{ws: ws, user: user}
}

func (c *conn) UserID() domain.UserID { return c.user }

func (c *conn) Send(ctx context.Context, ev fanout.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.write(ctx, websocket.TextMessage, data)
}

func (c *conn) ping() error {
	return c.write(context.Background(), websocket.PingMessage, nil)
}

func (c *conn) write(ctx context.Context, messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnClosed
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, data)
}

// Close sends a close frame once and closes the socket.
func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return c.ws.Close()
}

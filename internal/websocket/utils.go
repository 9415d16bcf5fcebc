package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = MaxSourceBytes + 1024
)

// Conn serializes writes to a gorilla connection, which allows only one
// concurrent writer. Reads stay on the caller's goroutine.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// NewConn wraps ws and installs the read limit and pong handler.
func NewConn(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(maxMessage)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &Conn{ws: ws}
}

// WriteJSON sends a typed payload under the write lock.
func (c *Conn) WriteJSON(event Event, data any) error {
	return c.write(ResponsePayload{Event: event, Data: data})
}

// WriteError sends an ErrorResponse.
func (c *Conn) WriteError(code, msg string) error {
	return c.write(ErrorResponse{Event: EventError, Code: code, Error: msg})
}

// ReadJSON reads and decodes one client message.
func (c *Conn) ReadJSON(v any) error {
	err := c.ws.ReadJSON(v)
	if err == nil {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	}
	return err
}

// KeepAlive pings the client until done is closed.
func (c *Conn) KeepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// CloseWhenDone sends a going-away close frame and closes the connection once
// ctx is done, unblocking any pending read. Call stop to detach it.
func (c *Conn) CloseWhenDone(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		c.mu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		c.mu.Unlock()
		_ = c.ws.Close()
	})
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}

func (c *Conn) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

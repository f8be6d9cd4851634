package hostbridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsCaller sends requests over a single WebSocket, one at a time.
type wsCaller struct {
	url    string
	conn   *websocket.Conn
	reqID  int
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
}

func dialWebSocket(ctx context.Context, url string, logger *slog.Logger) (*wsCaller, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}
	logger.Info("connected to document host", "url", url)
	return &wsCaller{url: url, conn: conn, logger: logger}, nil
}

func (c *wsCaller) call(ctx context.Context, method string, params, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(30 * time.Second)
	}
	c.conn.SetWriteDeadline(deadline)
	c.conn.SetReadDeadline(deadline)

	c.reqID++
	request := Request{JSONRPC: "2.0", ID: c.reqID, Method: method, Params: params}
	if err := c.conn.WriteJSON(request); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}

	// The host may push notifications; skip anything that is not our answer.
	for {
		var response Response
		if err := c.conn.ReadJSON(&response); err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if response.ID != request.ID {
			c.logger.Debug("skipping unrelated message", "id", response.ID)
			continue
		}
		return decodeResult(response, result)
	}
}

func (c *wsCaller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := c.conn.Close()
	c.logger.Info("closed document host connection", "url", c.url)
	return err
}

// ABOUTME: WebSocket transport speaking JSON-RPC text frames to a remote tool server
// ABOUTME: A read loop routes responses to pending calls keyed by request id

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type webSocketConnector struct {
	connectTimeout time.Duration
}

func newWebSocketConnector(connectTimeout time.Duration) Connector {
	return &webSocketConnector{connectTimeout: connectTimeout}
}

func (c *webSocketConnector) Connect(ctx context.Context, serverName string, details Details) (Client, error) {
	wd, ok := details.(WebSocketDetails)
	if !ok {
		return nil, fmt.Errorf("%w: websocket connector given %s details", ErrInvalidDetails, details.Transport())
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: c.connectTimeout}
	conn, _, err := dialer.DialContext(dialCtx, wd.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", wd.URL, err)
	}

	client := &webSocketClient{
		serverName: serverName,
		conn:       conn,
		pending:    make(map[int64]chan *rpcEnvelope),
		done:       make(chan struct{}),
		log:        slog.With("server", serverName, "transport", wd.Transport()),
	}
	go client.readLoop()

	if err := initializeSession(dialCtx, client); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

type webSocketClient struct {
	serverName string
	conn       *websocket.Conn
	log        *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan *rpcEnvelope
	onClose CloseHandler

	closeOnce sync.Once
	done      chan struct{}
}

// readLoop routes responses to their pending call and drops notifications.
// It runs until the connection fails or Close tears it down.
func (c *webSocketClient) readLoop() {
	var loopErr error
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			loopErr = err
			break
		}
		env, err := decodeEnvelope(payload)
		if err != nil {
			c.log.Warn("dropping undecodable frame", "error", err)
			continue
		}
		id, ok := env.responseID()
		if !ok {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.mu.Unlock()
		if ok {
			ch <- env
		}
	}
	c.teardown(loopErr, true)
}

// teardown releases pending calls and fires the close handler once. The
// handler is suppressed on a locally initiated Close.
func (c *webSocketClient) teardown(err error, remote bool) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()

		c.mu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		handler := c.onClose
		c.mu.Unlock()

		if !remote {
			return
		}
		c.log.Warn("websocket connection lost", "error", err)
		if handler != nil {
			handler(fmt.Errorf("connection lost: %w", err))
		}
	})
}

func (c *webSocketClient) ListTools(ctx context.Context) ([]RemoteTool, error) {
	result, err := c.invoke(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	return decodeListTools(result)
}

func (c *webSocketClient) CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	parsed, err := callArgs(args)
	if err != nil {
		return nil, err
	}
	result, err := c.invoke(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": parsed,
	})
	if err != nil {
		return nil, err
	}
	return decodeCallResult(result)
}

func (c *webSocketClient) OnClose(fn CloseHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func (c *webSocketClient) Close() error {
	c.teardown(nil, false)
	return nil
}

func (c *webSocketClient) invoke(ctx context.Context, method string, params any) (json.RawMessage, error) {
	select {
	case <-c.done:
		return nil, ErrNotConnected
	default:
	}

	ch := make(chan *rpcEnvelope, 1)
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()

	payload, err := encodeRequest(id, method, params)
	if err != nil {
		c.abandon(id)
		return nil, err
	}
	if err := c.write(payload); err != nil {
		c.abandon(id)
		return nil, fmt.Errorf("writing %s request: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.abandon(id)
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("%w: connection closed during %s", ErrNotConnected, method)
	case env, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%w: connection closed during %s", ErrNotConnected, method)
		}
		return env.resultOrError()
	}
}

func (c *webSocketClient) notify(ctx context.Context, method string, params any) error {
	payload, err := encodeNotification(method, params)
	if err != nil {
		return err
	}
	if err := c.write(payload); err != nil {
		return fmt.Errorf("writing %s notification: %w", method, err)
	}
	return nil
}

func (c *webSocketClient) write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *webSocketClient) abandon(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

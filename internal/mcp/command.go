// ABOUTME: Command transport that speaks framed JSON-RPC to a child process over stdio
// ABOUTME: A read loop routes response frames to pending calls keyed by request id

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const stderrTailSize = 4096

// tailBuffer keeps the most recent bytes written to it. The stderr of a tool
// server is attached to one so crash output survives for the close handler.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

type commandConnector struct {
	connectTimeout time.Duration
}

func newCommandConnector(connectTimeout time.Duration) Connector {
	return &commandConnector{connectTimeout: connectTimeout}
}

func (c *commandConnector) Connect(ctx context.Context, serverName string, details Details) (Client, error) {
	cd, ok := details.(CommandDetails)
	if !ok {
		return nil, fmt.Errorf("%w: command connector given %s details", ErrInvalidDetails, details.Transport())
	}

	// Deliberately not CommandContext: the process must outlive the
	// connect call's context.
	cmd := exec.Command(cd.Command, cd.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdout pipe: %w", err)
	}
	stderr := newTailBuffer(stderrTailSize)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %q: %w", cd.Command, err)
	}

	client := newCommandSession(serverName, cd.Transport(), stdin, stdout, stderr, func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	})
	go func() {
		// Reap the process; killing it (or its own exit) also closes the
		// stdout pipe, which unblocks the read loop.
		client.teardown(exitError(cmd.Wait()), true)
	}()

	initCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()
	if err := initializeSession(initCtx, client); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func exitError(err error) error {
	if err == nil {
		return fmt.Errorf("process exited")
	}
	return fmt.Errorf("process exited: %w", err)
}

type commandClient struct {
	serverName string
	stdout     *bufio.Reader
	stderr     *tailBuffer
	terminate  func()
	log        *slog.Logger

	writeMu sync.Mutex
	stdin   io.WriteCloser

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan *rpcEnvelope
	onClose CloseHandler

	closeOnce sync.Once
	done      chan struct{}
}

// newCommandSession wraps the stdio pipes of a running tool server process
// and starts the read loop. terminate, when non-nil, forcibly ends the
// process so the loop's blocked read unblocks during teardown.
func newCommandSession(serverName, transport string, stdin io.WriteCloser, stdout io.Reader, stderr *tailBuffer, terminate func()) *commandClient {
	c := &commandClient{
		serverName: serverName,
		stdin:      stdin,
		stdout:     bufio.NewReader(stdout),
		stderr:     stderr,
		terminate:  terminate,
		pending:    make(map[int64]chan *rpcEnvelope),
		done:       make(chan struct{}),
		log:        slog.With("server", serverName, "transport", transport),
	}
	go c.readLoop()
	return c
}

// readLoop is the only reader of stdout. It routes responses to their
// pending call and drops notifications and responses nobody is waiting for,
// such as a reply arriving after its caller already gave up.
func (c *commandClient) readLoop() {
	var loopErr error
	for {
		frame, err := c.readFrame()
		if err != nil {
			loopErr = err
			break
		}
		env, err := decodeEnvelope(frame)
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
	c.teardown(fmt.Errorf("connection lost: %w", loopErr), true)
}

// teardown releases pending calls and fires the close handler once. The
// handler is suppressed on a locally initiated Close.
func (c *commandClient) teardown(err error, remote bool) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.stdin.Close()
		if c.terminate != nil {
			c.terminate()
		}

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
		if tail := c.stderr.String(); tail != "" {
			err = fmt.Errorf("%w (stderr: %s)", err, tail)
		}
		c.log.Warn("tool server process exited", "error", err)
		if handler != nil {
			handler(err)
		}
	})
}

func (c *commandClient) ListTools(ctx context.Context) ([]RemoteTool, error) {
	result, err := c.invoke(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	return decodeListTools(result)
}

func (c *commandClient) CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
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

func (c *commandClient) OnClose(fn CloseHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func (c *commandClient) Close() error {
	c.teardown(nil, false)
	return nil
}

func (c *commandClient) invoke(ctx context.Context, method string, params any) (json.RawMessage, error) {
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
	if err := c.writeFrame(payload); err != nil {
		c.abandon(id)
		return nil, fmt.Errorf("writing %s request: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.abandon(id)
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("%w: process exited during %s", ErrNotConnected, method)
	case env, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%w: process exited during %s", ErrNotConnected, method)
		}
		return env.resultOrError()
	}
}

func (c *commandClient) notify(ctx context.Context, method string, params any) error {
	payload, err := encodeNotification(method, params)
	if err != nil {
		return err
	}
	if err := c.writeFrame(payload); err != nil {
		return fmt.Errorf("writing %s notification: %w", method, err)
	}
	return nil
}

func (c *commandClient) abandon(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *commandClient) writeFrame(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(payload))
	if _, err := io.WriteString(c.stdin, header); err != nil {
		return err
	}
	_, err := c.stdin.Write(payload)
	return err
}

func (c *commandClient) readFrame() ([]byte, error) {
	var contentLength int
	for {
		line, err := c.stdout.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if name, value, ok := strings.Cut(line, ":"); ok && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			contentLength, err = strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length header: %w", err)
			}
		}
	}
	if contentLength <= 0 {
		return nil, fmt.Errorf("frame missing Content-Length header")
	}
	frame := make([]byte, contentLength)
	if _, err := io.ReadFull(c.stdout, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// ABOUTME: Tests for the command transport session over in-memory pipes
// ABOUTME: Covers response routing, abandoned calls, and teardown behavior

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"
)

// pipeSession wires a commandClient to an in-memory peer standing in for a
// tool server process.
type pipeSession struct {
	client *commandClient
	in     *bufio.Reader
	out    *io.PipeWriter
}

func newPipeSession(t *testing.T) *pipeSession {
	t.Helper()
	fromClient, clientStdin := io.Pipe()
	clientStdout, toClient := io.Pipe()
	client := newCommandSession("pipes", "command", clientStdin, clientStdout, newTailBuffer(stderrTailSize), func() {
		toClient.Close()
		fromClient.Close()
	})
	t.Cleanup(func() { client.Close() })
	return &pipeSession{
		client: client,
		in:     bufio.NewReader(fromClient),
		out:    toClient,
	}
}

type peerRequest struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
}

func (s *pipeSession) readRequest() (peerRequest, error) {
	var req peerRequest
	var contentLength int
	for {
		line, err := s.in.ReadString('\n')
		if err != nil {
			return req, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if name, value, ok := strings.Cut(line, ":"); ok && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			contentLength, err = strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return req, err
			}
		}
	}
	buf := make([]byte, contentLength)
	if _, err := io.ReadFull(s.in, buf); err != nil {
		return req, err
	}
	return req, json.Unmarshal(buf, &req)
}

func (s *pipeSession) respond(id int64, result string) error {
	payload := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, id, result)
	_, err := fmt.Fprintf(s.out, "Content-Length: %d\r\n\r\n%s", len(payload), payload)
	return err
}

// A call that gives up must not take the connection with it: the next call
// on the same client has to receive its own response even when the stale
// reply for the abandoned call arrives first.
func TestCommandClientSurvivesAbandonedCall(t *testing.T) {
	s := newPipeSession(t)

	peerErr := make(chan error, 1)
	go func() {
		first, err := s.readRequest()
		if err != nil {
			peerErr <- err
			return
		}
		second, err := s.readRequest()
		if err != nil {
			peerErr <- err
			return
		}
		// Answer the abandoned call late, ahead of the live one.
		if err := s.respond(first.ID, `{"tools":[{"name":"stale.echo"}]}`); err != nil {
			peerErr <- err
			return
		}
		peerErr <- s.respond(second.ID, `{"tools":[{"name":"fresh.echo"}]}`)
	}()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.client.ListTools(cancelled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tools, err := s.client.ListTools(ctx)
	if err != nil {
		t.Fatalf("call after an abandoned one failed: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "fresh.echo" {
		t.Fatalf("got the wrong response: %+v", tools)
	}
	if err := <-peerErr; err != nil {
		t.Fatalf("peer failed: %v", err)
	}
}

func TestCommandClientCloseStopsCalls(t *testing.T) {
	s := newPipeSession(t)
	if err := s.client.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := s.client.ListTools(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after Close, got %v", err)
	}
}

func TestCommandClientReportsPeerExit(t *testing.T) {
	s := newPipeSession(t)
	closed := make(chan error, 1)
	s.client.OnClose(func(err error) { closed <- err })

	s.out.Close()

	select {
	case err := <-closed:
		if err == nil {
			t.Fatal("expected a close error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("close handler never fired")
	}
}

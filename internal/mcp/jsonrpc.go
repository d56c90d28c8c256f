// ABOUTME: JSON-RPC 2.0 client codec shared by the websocket and command transports
// ABOUTME: Covers the initialize handshake and tools/list, tools/call decoding

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const jsonRPCVersion = "2.0"

const protocolVersion = "2025-03-26"

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcEnvelope is the wire shape of requests, notifications and responses.
type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func encodeRequest(id int64, method string, params any) ([]byte, error) {
	idRaw, _ := json.Marshal(id)
	payload, err := json.Marshal(rpcEnvelope{
		JSONRPC: jsonRPCVersion,
		ID:      idRaw,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding json-rpc request: %w", err)
	}
	return payload, nil
}

func encodeNotification(method string, params any) ([]byte, error) {
	payload, err := json.Marshal(rpcEnvelope{
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding json-rpc notification: %w", err)
	}
	return payload, nil
}

func decodeEnvelope(payload []byte) (*rpcEnvelope, error) {
	var env rpcEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decoding json-rpc message: %w", err)
	}
	return &env, nil
}

// responseID extracts the request id this envelope answers. Server-initiated
// notifications carry no id and report false.
func (e *rpcEnvelope) responseID() (int64, bool) {
	if len(e.ID) == 0 {
		return 0, false
	}
	var id int64
	if err := json.Unmarshal(e.ID, &id); err != nil {
		return 0, false
	}
	return id, true
}

// resultOrError extracts the result payload, converting a wire-level error
// object into a Go error.
func (e *rpcEnvelope) resultOrError() (json.RawMessage, error) {
	if e.Error != nil {
		msg := strings.TrimSpace(e.Error.Message)
		if msg == "" {
			msg = "json-rpc request failed"
		}
		return nil, fmt.Errorf("server error %d: %s", e.Error.Code, msg)
	}
	return e.Result, nil
}

// decodeListTools parses a tools/list result payload.
func decodeListTools(result json.RawMessage) ([]RemoteTool, error) {
	if len(result) == 0 {
		return nil, nil
	}

	var out struct {
		Tools []struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("decoding tools/list result: %w", err)
	}

	tools := make([]RemoteTool, 0, len(out.Tools))
	for _, t := range out.Tools {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		tools = append(tools, RemoteTool{
			Name:        name,
			Description: strings.TrimSpace(t.Description),
			InputSchema: t.InputSchema,
		})
	}
	return tools, nil
}

// decodeCallResult parses a tools/call result payload into the value handed
// back to the invocation router. Structured content wins over text content;
// an isError result becomes a Go error carrying the text.
func decodeCallResult(result json.RawMessage) (json.RawMessage, error) {
	if len(result) == 0 {
		return json.RawMessage(`null`), nil
	}

	var out struct {
		IsError           bool            `json:"isError"`
		StructuredContent json.RawMessage `json:"structuredContent"`
		Content           []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("decoding tools/call result: %w", err)
	}

	var parts []string
	for _, c := range out.Content {
		if c.Type != "text" {
			continue
		}
		if text := strings.TrimSpace(c.Text); text != "" {
			parts = append(parts, text)
		}
	}
	text := strings.Join(parts, "\n")

	if out.IsError {
		if text == "" {
			text = "tool call failed"
		}
		return nil, errors.New(text)
	}

	if len(out.StructuredContent) > 0 && string(out.StructuredContent) != "null" {
		return out.StructuredContent, nil
	}
	if text != "" {
		encoded, err := json.Marshal(map[string]string{"text": text})
		if err != nil {
			return nil, fmt.Errorf("encoding text result: %w", err)
		}
		return encoded, nil
	}
	return result, nil
}

// callArgs normalizes raw argument JSON for a tools/call request.
func callArgs(args json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 {
		return map[string]any{}, nil
	}
	var parsed any
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if parsed == nil {
		return map[string]any{}, nil
	}
	return parsed, nil
}

// rpcCaller is the request/notification surface a transport client exposes
// to the shared session handshake.
type rpcCaller interface {
	invoke(ctx context.Context, method string, params any) (json.RawMessage, error)
	notify(ctx context.Context, method string, params any) error
}

// initializeSession performs the protocol handshake on a fresh connection.
func initializeSession(ctx context.Context, c rpcCaller) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "toolmesh",
			"version": "0.1.0",
		},
	}
	if _, err := c.invoke(ctx, "initialize", params); err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}
	if err := c.notify(ctx, "notifications/initialized", map[string]any{}); err != nil {
		return fmt.Errorf("confirm initialized: %w", err)
	}
	return nil
}

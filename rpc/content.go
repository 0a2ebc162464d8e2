package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// toolContent shapes a tool result for tools/call. A result that already
// has MCP content (a "content" list whose items all carry a "type") is
// returned unchanged; anything else becomes one text item holding the
// indented JSON of the result.
func toolContent(result any) (any, error) {
	data, err := marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode tool result: %w", err)
	}
	if isMCPContent(generic) {
		return json.RawMessage(data), nil
	}

	text, err := indent(generic)
	if err != nil {
		return nil, err
	}
	return mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}, nil
}

func marshal(v any) ([]byte, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

func isMCPContent(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	items, ok := m["content"].([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := obj["type"]; !ok {
			return false
		}
	}
	return true
}

// indent renders v with two-space indentation and without HTML escaping.
func indent(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("format tool result: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
)

// Request is a decoded JSON-RPC request object.
type Request struct {
	Method string
	Params map[string]any

	// ID is the normalized request id: a JSON string or integer. Nil for
	// notifications.
	ID json.RawMessage
}

// Notification reports whether the request carries no id.
func (r *Request) Notification() bool {
	return r.ID == nil
}

type successResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

type errorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *Error          `json:"error"`
}

// decodeRequest parses body into a Request. On failure it returns the
// error to send together with whatever usable id the body carried.
func decodeRequest(body []byte) (*Request, json.RawMessage, *Error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return nil, nil, newError(mcp.INVALID_REQUEST, "Batch requests are not supported.")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil || fields == nil {
		return nil, nil, newError(mcp.PARSE_ERROR, "Parse error: Invalid JSON received.")
	}

	id, idErr := normalizeID(fields["id"])
	if idErr != nil {
		return nil, nil, invalidRequest(idErr.Error())
	}

	var version string
	if raw, ok := fields["jsonrpc"]; ok {
		if err := json.Unmarshal(raw, &version); err != nil || version != mcp.JSONRPC_VERSION {
			return nil, id, invalidRequest(`jsonrpc must be "2.0"`)
		}
	}

	var method string
	raw, ok := fields["method"]
	if !ok {
		return nil, id, invalidRequest("method is required")
	}
	if err := json.Unmarshal(raw, &method); err != nil || method == "" {
		return nil, id, invalidRequest("method must be a non-empty string")
	}

	req := &Request{Method: method, ID: id}
	if raw, ok := fields["params"]; ok && !isNull(raw) {
		switch firstByte(raw) {
		case '{':
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			if err := dec.Decode(&req.Params); err != nil {
				return nil, id, invalidRequest("params must be an object")
			}
		case '[':
			e := newError(mcp.INVALID_PARAMS, "Positional parameters (arrays) are not supported by this server.")
			return nil, id, e
		default:
			return nil, id, invalidRequest("params must be an object")
		}
	}
	if req.Params == nil {
		req.Params = map[string]any{}
	}
	return req, id, nil
}

// normalizeID accepts a string or an integral number. Integral floats such
// as 7.0 are rewritten as integers; booleans, fractions and structured
// values are rejected. An absent or null id yields nil.
func normalizeID(raw json.RawMessage) (json.RawMessage, error) {
	if raw == nil || isNull(raw) {
		return nil, nil
	}
	switch firstByte(raw) {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errors.New("id must be a string or integer")
		}
		out, _ := json.Marshal(s)
		return out, nil
	case 't', 'f':
		return nil, errors.New("id must not be boolean")
	case '{', '[':
		return nil, errors.New("id must be a string or integer")
	}

	s := string(bytes.TrimSpace(raw))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return json.RawMessage(strconv.FormatInt(n, 10)), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errors.New("id must be a string or integer")
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return nil, errors.New("id must not be fractional")
	}
	return json.RawMessage(strconv.FormatFloat(f, 'f', 0, 64)), nil
}

func invalidRequest(detail string) *Error {
	return newError(mcp.INVALID_REQUEST, "Invalid Request: "+detail)
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func firstByte(raw json.RawMessage) byte {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 {
		return 0
	}
	return t[0]
}

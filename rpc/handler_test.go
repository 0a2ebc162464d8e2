package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jonwraymond/qsargate/auth"
	"github.com/jonwraymond/qsargate/cache"
	"github.com/jonwraymond/qsargate/tools"
)

type authFunc func(*http.Request) (*auth.Principal, *auth.Error)

func (f authFunc) AuthenticateRequest(r *http.Request) (*auth.Principal, *auth.Error) {
	return f(r)
}

func asResearcher() Authenticator {
	return authFunc(func(*http.Request) (*auth.Principal, *auth.Error) {
		return auth.NewPrincipal("alice", []string{"RESEARCHER"}, nil, auth.AuthMethodOIDC), nil
	})
}

// stubVerifier fails every token with err.
type stubVerifier struct{ err error }

func (v stubVerifier) Verify(context.Context, string, bool) (map[string]any, error) {
	return nil, v.err
}

func newPipeline(t *testing.T) *tools.Pipeline {
	t.Helper()
	reg := tools.NewRegistry()
	echo := mcp.NewTool("echo_tool", mcp.WithString("text", mcp.Required()))
	if err := reg.RegisterTool(echo, func(_ context.Context, args map[string]any) (any, error) {
		return map[string]any{"echo": args["text"]}, nil
	}, tools.ReadOnly()); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("content_tool", "", mcp.ToolInputSchema{}, func(context.Context, map[string]any) (any, error) {
		return mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "raw"}}}, nil
	}, tools.ReadOnly()); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("fail_tool", "", mcp.ToolInputSchema{}, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("toolbox exploded")
	}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("admin_tool", "", mcp.ToolInputSchema{}, func(context.Context, map[string]any) (any, error) {
		return "ok", nil
	}); err != nil {
		t.Fatal(err)
	}

	table := auth.NewPermissionTable(map[string][]string{
		"RESEARCHER": {"echo_tool", "content_tool", "fail_tool"},
	})
	return tools.NewPipeline(reg, tools.PipelineConfig{
		Authorizer: auth.NewRBACAuthorizer(auth.NewStaticPermissionStore(table), auth.RBACConfig{}),
		Cache:      cache.NewMiddleware(cache.NewMemoryCache(cache.DefaultPolicy()), nil, cache.DefaultPolicy(), nil),
	})
}

func newHandler(t *testing.T, a Authenticator) *Handler {
	t.Helper()
	return NewHandler(Config{Auth: a, Tools: newPipeline(t), Version: "1.2.3"})
}

func post(t *testing.T, h http.Handler, body string, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, out
}

func errorCode(t *testing.T, body map[string]any) int {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("response has no error object: %v", body)
	}
	return int(e["code"].(float64))
}

func call(name string, args string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":%q,"arguments":%s}}`, name, args)
}

func TestInitialize(t *testing.T) {
	// Lifecycle methods never consult the authenticator.
	h := newHandler(t, authFunc(func(*http.Request) (*auth.Principal, *auth.Error) {
		t.Fatal("authenticator called for initialize")
		return nil, nil
	}))

	rec, body := post(t, h, `{"jsonrpc":"2.0","id":"init-1","method":"initialize","params":{"capabilities":{}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["id"] != "init-1" {
		t.Errorf("id = %v, want init-1", body["id"])
	}
	result := body["result"].(map[string]any)
	if result["protocolVersion"] != ProtocolVersion {
		t.Errorf("protocolVersion = %v", result["protocolVersion"])
	}
	info := result["serverInfo"].(map[string]any)
	if info["name"] != DefaultServerName || info["version"] != "1.2.3" {
		t.Errorf("serverInfo = %v", info)
	}
	caps := result["capabilities"].(map[string]any)
	for name, want := range map[string]bool{"tools": true, "prompts": true, "resources": false, "sampling": false} {
		got := caps[name].(map[string]any)["enabled"]
		if got != want {
			t.Errorf("capabilities[%s].enabled = %v, want %v", name, got, want)
		}
	}
}

func TestInitialize_BadCapabilities(t *testing.T) {
	h := newHandler(t, asResearcher())
	rec, body := post(t, h, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"capabilities":"all"}}`)
	if rec.Code != http.StatusBadRequest || errorCode(t, body) != mcp.INVALID_PARAMS {
		t.Errorf("got %d %v, want 400 invalid params", rec.Code, body)
	}
}

func TestLifecycle(t *testing.T) {
	h := newHandler(t, asResearcher())

	rec, body := post(t, h, `{"jsonrpc":"2.0","id":2,"method":"initialized"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("initialized status = %d", rec.Code)
	}
	if got := body["result"].(map[string]any)["status"]; got != "ok" {
		t.Errorf("initialized result = %v", body["result"])
	}

	rec, _ = post(t, h, `{"jsonrpc":"2.0","id":3,"method":"shutdown"}`)
	if !strings.Contains(rec.Body.String(), `"result":null`) {
		t.Errorf("shutdown body = %s, want null result", rec.Body.String())
	}
}

func TestNotification(t *testing.T) {
	h := newHandler(t, asResearcher())
	for _, body := range []string{
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":null,"method":"exit"}`,
		`{"method":"tools/list"}`,
	} {
		rec, _ := post(t, h, body)
		if rec.Code != http.StatusNoContent {
			t.Errorf("%s: status = %d, want 204", body, rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("%s: body = %q, want empty", body, rec.Body.String())
		}
	}
}

func TestEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		code   int
		status int
	}{
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"initialize"}]`, mcp.INVALID_REQUEST, 400},
		{"malformed", `{"jsonrpc":`, mcp.PARSE_ERROR, 400},
		{"not an object", `"initialize"`, mcp.PARSE_ERROR, 400},
		{"empty body", ``, mcp.PARSE_ERROR, 400},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"initialize"}`, mcp.INVALID_REQUEST, 400},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, mcp.INVALID_REQUEST, 400},
		{"empty method", `{"jsonrpc":"2.0","id":1,"method":""}`, mcp.INVALID_REQUEST, 400},
		{"numeric method", `{"jsonrpc":"2.0","id":1,"method":5}`, mcp.INVALID_REQUEST, 400},
		{"boolean id", `{"jsonrpc":"2.0","id":true,"method":"initialize"}`, mcp.INVALID_REQUEST, 400},
		{"fractional id", `{"jsonrpc":"2.0","id":1.5,"method":"initialize"}`, mcp.INVALID_REQUEST, 400},
		{"object id", `{"jsonrpc":"2.0","id":{},"method":"initialize"}`, mcp.INVALID_REQUEST, 400},
		{"positional params", `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":[1]}`, mcp.INVALID_PARAMS, 400},
		{"scalar params", `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":"x"}`, mcp.INVALID_REQUEST, 400},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`, mcp.METHOD_NOT_FOUND, 404},
	}
	h := newHandler(t, asResearcher())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := post(t, h, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := errorCode(t, body); got != tt.code {
				t.Errorf("code = %d, want %d", got, tt.code)
			}
			if body["jsonrpc"] != "2.0" {
				t.Errorf("jsonrpc = %v", body["jsonrpc"])
			}
		})
	}
}

func TestIDNormalization(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{`7`, `"id":7`},
		{`7.0`, `"id":7`},
		{`-3`, `"id":-3`},
		{`"abc"`, `"id":"abc"`},
	}
	h := newHandler(t, asResearcher())
	for _, tt := range tests {
		rec, _ := post(t, h, `{"jsonrpc":"2.0","id":`+tt.id+`,"method":"initialized"}`)
		if !strings.Contains(rec.Body.String(), tt.want) {
			t.Errorf("id %s: body = %s, want %s", tt.id, rec.Body.String(), tt.want)
		}
	}
}

func TestBodyTooLarge(t *testing.T) {
	h := NewHandler(Config{Auth: asResearcher(), Tools: newPipeline(t), MaxBodyBytes: 16})
	rec, body := post(t, h, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
	if errorCode(t, body) != mcp.INVALID_REQUEST {
		t.Errorf("body = %v", body)
	}
}

func TestAuthErrors(t *testing.T) {
	tests := []struct {
		name      string
		verifier  auth.Verifier
		header    string
		code      int
		status    int
		challenge string
	}{
		{
			name:      "missing token",
			verifier:  stubVerifier{},
			code:      CodeUnauthorized,
			status:    401,
			challenge: "Bearer",
		},
		{
			name:      "invalid token",
			verifier:  stubVerifier{err: fmt.Errorf("%w: bad", auth.ErrInvalidSignature)},
			header:    "Bearer abc",
			code:      CodeUnauthorized,
			status:    401,
			challenge: `Bearer error="invalid_token"`,
		},
		{
			name:      "expired token",
			verifier:  stubVerifier{err: fmt.Errorf("%w: exp", auth.ErrTokenExpired)},
			header:    "Bearer abc",
			code:      CodeTokenExpired,
			status:    401,
			challenge: `Bearer error="invalid_token"`,
		},
		{
			name:     "key set unavailable",
			verifier: stubVerifier{err: fmt.Errorf("%w: down", auth.ErrKeySetUnavailable)},
			header:   "Bearer abc",
			code:     CodeServiceUnavailable,
			status:   503,
		},
		{
			name:   "misconfigured",
			header: "Bearer abc",
			code:   mcp.INTERNAL_ERROR,
			status: 500,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v auth.Verifier
			if tt.verifier != nil {
				v = tt.verifier
			}
			h := newHandler(t, auth.NewGate(auth.GateConfig{}, v))
			rec, body := post(t, h, `{"jsonrpc":"2.0","id":9,"method":"tools/list"}`, "Authorization", tt.header)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := errorCode(t, body); got != tt.code {
				t.Errorf("code = %d, want %d", got, tt.code)
			}
			if got := rec.Header().Get("WWW-Authenticate"); got != tt.challenge {
				t.Errorf("WWW-Authenticate = %q, want %q", got, tt.challenge)
			}
			if body["id"] != float64(9) {
				t.Errorf("id = %v, want 9", body["id"])
			}
		})
	}
}

func TestBypassGate(t *testing.T) {
	h := newHandler(t, auth.NewGate(auth.GateConfig{Bypass: true}, nil))
	rec, body := post(t, h, `{"jsonrpc":"2.0","id":1,"method":"prompts/list"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", rec.Code, body)
	}
	prompts, ok := body["result"].(map[string]any)["prompts"].([]any)
	if !ok || len(prompts) != 0 {
		t.Errorf("prompts = %v, want empty list", body["result"])
	}
}

func TestToolsList(t *testing.T) {
	h := newHandler(t, asResearcher())
	for _, method := range []string{"tools/list", "mcp/tool/list"} {
		rec, body := post(t, h, `{"jsonrpc":"2.0","id":1,"method":"`+method+`"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", method, rec.Code)
		}
		list := body["result"].(map[string]any)["tools"].([]any)
		var names []string
		for _, item := range list {
			names = append(names, item.(map[string]any)["name"].(string))
		}
		got := strings.Join(names, ",")
		if got != "echo_tool,content_tool,fail_tool" {
			t.Errorf("%s: tools = %s", method, got)
		}
	}
}

func textOf(t *testing.T, body map[string]any) string {
	t.Helper()
	result, ok := body["result"].(map[string]any)
	if !ok {
		t.Fatalf("no result: %v", body)
	}
	content := result["content"].([]any)
	if len(content) != 1 {
		t.Fatalf("content = %v, want one item", content)
	}
	item := content[0].(map[string]any)
	if item["type"] != "text" {
		t.Errorf("content type = %v", item["type"])
	}
	return item["text"].(string)
}

func TestToolsCall_WrapsResult(t *testing.T) {
	h := newHandler(t, asResearcher())
	want := "{\n  \"echo\": \"a<b\"\n}"

	// The second call is served from the cache as raw JSON.
	for i := 0; i < 2; i++ {
		rec, body := post(t, h, call("echo_tool", `{"text":"a<b"}`))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %v", rec.Code, body)
		}
		if got := textOf(t, body); got != want {
			t.Errorf("call %d: text = %q, want %q", i, got, want)
		}
	}
}

func TestToolsCall_ArgumentSources(t *testing.T) {
	h := newHandler(t, asResearcher())
	bodies := []string{
		`{"jsonrpc":"2.0","id":1,"method":"mcp/tool/call","params":{"name":"echo_tool","parameters":{"text":"p"}}}`,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo_tool","text":"p"}}`,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo_tool","arguments":{},"parameters":{"text":"p"}}}`,
	}
	for _, b := range bodies {
		rec, body := post(t, h, b)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d: %v", b, rec.Code, body)
			continue
		}
		if got := textOf(t, body); !strings.Contains(got, `"echo": "p"`) {
			t.Errorf("%s: text = %q", b, got)
		}
	}
}

func TestToolArguments(t *testing.T) {
	tests := []struct {
		name   string
		params string
		want   string
	}{
		{"parameters before arguments", `{"name":"t","parameters":{"a":1},"arguments":{"b":2}}`, `{"a":1}`},
		{"arguments", `{"name":"t","arguments":{"b":2}}`, `{"b":2}`},
		{"empty parameters defers to arguments", `{"name":"t","parameters":{},"arguments":{"b":2}}`, `{"b":2}`},
		{"empty arguments stays empty", `{"name":"t","arguments":{},"_meta":{"progressToken":1},"x":1}`, `{}`},
		{"empty parameters stays empty", `{"name":"t","parameters":{},"x":1}`, `{}`},
		{"top-level keys", `{"name":"t","x":1,"_meta":{"progressToken":1}}`, `{"x":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var params map[string]any
			if err := json.Unmarshal([]byte(tt.params), &params); err != nil {
				t.Fatal(err)
			}
			got, err := json.Marshal(toolArguments(params))
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("toolArguments() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestToolsCall_EmptyArgumentsIgnoresMeta(t *testing.T) {
	h := newHandler(t, asResearcher())
	rec, body := post(t, h, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo_tool","arguments":{},"text":"x","_meta":{"progressToken":1}}}`)
	if rec.Code != http.StatusBadRequest || errorCode(t, body) != mcp.INVALID_PARAMS {
		t.Errorf("status = %d body = %v, want invalid params", rec.Code, body)
	}
}

func TestFromToolError_KeepsRunesWhole(t *testing.T) {
	e := fromToolError(errors.New(strings.Repeat("a", maxErrorData-1) + "\u00e9 tail"))
	data, _ := e.Data.(string)
	if !utf8.ValidString(data) {
		t.Fatalf("data = %q is not valid UTF-8", data)
	}
	if len(data) != maxErrorData-1 {
		t.Errorf("len(data) = %d, want %d", len(data), maxErrorData-1)
	}
}

func TestToolsCall_ContentPassThrough(t *testing.T) {
	h := newHandler(t, asResearcher())
	for i := 0; i < 2; i++ {
		_, body := post(t, h, call("content_tool", `{}`))
		if got := textOf(t, body); got != "raw" {
			t.Errorf("call %d: text = %q, want raw", i, got)
		}
	}
}

func TestToolsCall_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		code   int
		status int
		msg    string
	}{
		{"missing name", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`, mcp.INVALID_PARAMS, 400, "Tool 'name' is missing"},
		{"unknown tool", call("nope", `{}`), mcp.METHOD_NOT_FOUND, 404, "Tool not found: nope"},
		{"forbidden", call("admin_tool", `{}`), CodeForbidden, 403, "Access denied to tool 'admin_tool'."},
		{"invalid params", call("echo_tool", `{"text":5}`), mcp.INVALID_PARAMS, 400, "Invalid tool parameters."},
		{"execution", call("fail_tool", `{}`), CodeToolExecution, 200, "Error during execution of tool 'fail_tool'."},
	}
	h := newHandler(t, asResearcher())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := post(t, h, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := errorCode(t, body); got != tt.code {
				t.Errorf("code = %d, want %d", got, tt.code)
			}
			msg := body["error"].(map[string]any)["message"].(string)
			if !strings.Contains(msg, tt.msg) {
				t.Errorf("message = %q, want %q", msg, tt.msg)
			}
		})
	}
}

func TestToolsCall_ErrorData(t *testing.T) {
	h := newHandler(t, asResearcher())

	_, body := post(t, h, call("echo_tool", `{}`))
	data, ok := body["error"].(map[string]any)["data"].([]any)
	if !ok || len(data) == 0 {
		t.Fatalf("invalid params data = %v, want violations", body["error"])
	}
	if v := data[0].(map[string]any); v["type"] != "required" {
		t.Errorf("violation = %v, want required", v)
	}

	_, body = post(t, h, call("fail_tool", `{}`))
	if got := body["error"].(map[string]any)["data"]; got != "toolbox exploded" {
		t.Errorf("execution data = %v", got)
	}
}

func TestPromptsGet(t *testing.T) {
	h := newHandler(t, asResearcher())

	rec, body := post(t, h, `{"jsonrpc":"2.0","id":1,"method":"prompts/get","params":{}}`)
	if rec.Code != 400 || errorCode(t, body) != mcp.INVALID_PARAMS {
		t.Errorf("without name: %d %v", rec.Code, body)
	}
	rec, body = post(t, h, `{"jsonrpc":"2.0","id":1,"method":"prompts/get","params":{"name":"summary"}}`)
	if rec.Code != 404 || errorCode(t, body) != mcp.METHOD_NOT_FOUND {
		t.Errorf("with name: %d %v", rec.Code, body)
	}
}

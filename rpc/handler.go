package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jonwraymond/qsargate/auth"
	"github.com/jonwraymond/qsargate/observe"
	"github.com/jonwraymond/qsargate/tools"
)

// Server identity reported by initialize.
const (
	ProtocolVersion   = "2025-03-26"
	DefaultServerName = "O-QT MCP Server"
	DefaultVersion    = "0.1.0"

	// DefaultMaxBodyBytes caps a request body.
	DefaultMaxBodyBytes = 1 << 20
)

// Method names.
const (
	MethodInitialize        = "initialize"
	MethodInitialized       = "initialized"
	MethodNotifyInitialized = "notifications/initialized"
	MethodShutdown          = "shutdown"
	MethodExit              = "exit"
	MethodToolsList         = "tools/list"
	MethodToolsCall         = "tools/call"
	MethodLegacyToolsList   = "mcp/tool/list"
	MethodLegacyToolsCall   = "mcp/tool/call"
	MethodPromptsList       = "prompts/list"
	MethodPromptsGet        = "prompts/get"
)

// Authenticator resolves the caller of an HTTP request.
type Authenticator interface {
	AuthenticateRequest(r *http.Request) (*auth.Principal, *auth.Error)
}

// Ensure Gate implements Authenticator
var _ Authenticator = (*auth.Gate)(nil)

// ToolService lists and runs tools on behalf of a principal.
type ToolService interface {
	ListDefinitions(p *auth.Principal) []mcp.Tool
	Call(ctx context.Context, p *auth.Principal, name string, args map[string]any) (any, error)
}

// Ensure Pipeline implements ToolService
var _ ToolService = (*tools.Pipeline)(nil)

// Config configures a Handler.
type Config struct {
	// Auth authenticates every method outside the lifecycle set. Required;
	// without it those methods fail with an internal error.
	Auth Authenticator

	// Tools serves tools/list and tools/call. Required.
	Tools ToolService

	// ServerName and Version are reported by initialize.
	// Defaults: DefaultServerName, DefaultVersion.
	ServerName string
	Version    string

	// MaxBodyBytes caps the request body.
	// Default: DefaultMaxBodyBytes.
	MaxBodyBytes int64

	Logger observe.Logger
}

// Handler serves the MCP endpoint.
type Handler struct {
	auth    Authenticator
	tools   ToolService
	info    mcp.Implementation
	maxBody int64
	logger  observe.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.ServerName == "" {
		cfg.ServerName = DefaultServerName
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Handler{
		auth:    cfg.Auth,
		tools:   cfg.Tools,
		info:    mcp.Implementation{Name: cfg.ServerName, Version: cfg.Version},
		maxBody: cfg.MaxBodyBytes,
		logger:  logger.With(observe.Field{Key: "component", Value: "rpc"}),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			e := newError(mcp.INVALID_REQUEST, "Request body too large.")
			e.status = http.StatusRequestEntityTooLarge
			h.writeError(w, nil, e)
			return
		}
		h.writeError(w, nil, newError(mcp.PARSE_ERROR, "Parse error: could not read request body."))
		return
	}

	req, id, rerr := decodeRequest(body)
	if rerr != nil {
		h.logger.Warn(r.Context(), "rejected JSON-RPC request",
			observe.Field{Key: "code", Value: rerr.Code},
			observe.Field{Key: "error", Value: rerr.Message},
		)
		h.writeError(w, id, rerr)
		return
	}

	h.logger.Debug(r.Context(), "dispatching method", observe.Field{Key: "method", Value: req.Method})
	result, rerr := h.dispatch(r, req)
	if rerr != nil {
		h.writeError(w, req.ID, rerr)
		return
	}
	if req.Notification() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      req.ID,
		Result:  result,
	})
}

func (h *Handler) dispatch(r *http.Request, req *Request) (any, *Error) {
	ctx := r.Context()

	switch req.Method {
	case MethodInitialize:
		return h.initialize(ctx, req.Params)
	case MethodInitialized, MethodNotifyInitialized:
		h.logger.Info(ctx, "session initialized")
		return map[string]string{"status": "ok"}, nil
	case MethodShutdown:
		h.logger.Info(ctx, "shutdown requested")
		return nil, nil
	case MethodExit:
		h.logger.Info(ctx, "exit notification received")
		return nil, nil
	}

	principal, rerr := h.authenticate(r)
	if rerr != nil {
		return nil, rerr
	}

	switch req.Method {
	case MethodToolsList, MethodLegacyToolsList:
		defs := h.tools.ListDefinitions(principal)
		h.logger.Info(ctx, "listing tools",
			observe.Field{Key: "user_id", Value: principal.Subject()},
			observe.Field{Key: "count", Value: len(defs)},
		)
		return map[string]any{"tools": defs}, nil
	case MethodToolsCall, MethodLegacyToolsCall:
		return h.callTool(ctx, principal, req.Params)
	case MethodPromptsList:
		return map[string]any{"prompts": []any{}}, nil
	case MethodPromptsGet:
		name, _ := req.Params["name"].(string)
		if name == "" {
			return nil, newError(mcp.INVALID_PARAMS, "Prompt 'name' is required.")
		}
		return nil, newError(mcp.METHOD_NOT_FOUND, fmt.Sprintf("Prompt not found: %s", name))
	default:
		return nil, newError(mcp.METHOD_NOT_FOUND, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

func (h *Handler) authenticate(r *http.Request) (*auth.Principal, *Error) {
	if h.auth == nil {
		h.logger.Error(r.Context(), "no authenticator configured")
		return nil, newError(mcp.INTERNAL_ERROR, "Authentication service misconfigured")
	}
	p, err := h.auth.AuthenticateRequest(r)
	if err != nil {
		return nil, fromAuthError(err)
	}
	return p, nil
}

type feature struct {
	Enabled bool `json:"enabled"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      mcp.Implementation `json:"serverInfo"`
	Capabilities    map[string]feature `json:"capabilities"`
}

func (h *Handler) initialize(ctx context.Context, params map[string]any) (any, *Error) {
	caps, ok := params["capabilities"]
	if ok && caps != nil {
		if _, isObj := caps.(map[string]any); !isObj {
			return nil, newError(mcp.INVALID_PARAMS, "Invalid initialize parameters: capabilities must be an object.")
		}
	}
	h.logger.Info(ctx, "initializing session",
		observe.Field{Key: "client_capabilities", Value: caps},
		observe.Field{Key: "client_info", Value: params["clientInfo"]},
	)
	return initializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      h.info,
		Capabilities: map[string]feature{
			"tools":     {Enabled: true},
			"resources": {Enabled: false},
			"prompts":   {Enabled: true},
			"sampling":  {Enabled: false},
		},
	}, nil
}

func (h *Handler) callTool(ctx context.Context, principal *auth.Principal, params map[string]any) (any, *Error) {
	name, _ := params["name"].(string)
	if name == "" {
		return nil, newError(mcp.INVALID_PARAMS, "Tool 'name' is missing or invalid in the request.")
	}

	result, err := h.tools.Call(ctx, principal, name, toolArguments(params))
	if err != nil {
		rerr := fromToolError(err)
		if rerr.Code == CodeToolExecution || rerr.Code == mcp.INTERNAL_ERROR {
			h.logger.Error(ctx, "tool call failed",
				observe.Field{Key: "tool", Value: name},
				observe.Field{Key: "error", Value: err.Error()},
			)
		}
		return nil, rerr
	}

	content, err := toolContent(result)
	if err != nil {
		h.logger.Error(ctx, "tool result not encodable",
			observe.Field{Key: "tool", Value: name},
			observe.Field{Key: "error", Value: err.Error()},
		)
		e := newError(CodeToolExecution, fmt.Sprintf("Error during execution of tool '%s'.", name))
		e.Data = truncate(err.Error())
		return nil, e
	}
	return content, nil
}

// toolArguments picks the tool input from tools/call params: a non-empty
// "parameters" object, else an "arguments" object, else an empty
// "parameters" object. Only when neither key is present do the remaining
// top-level keys become the input.
func toolArguments(params map[string]any) map[string]any {
	legacy, hasLegacy := params["parameters"].(map[string]any)
	if len(legacy) > 0 {
		return legacy
	}
	if args, ok := params["arguments"].(map[string]any); ok {
		return args
	}
	if hasLegacy {
		return legacy
	}
	rest := make(map[string]any, len(params))
	for k, v := range params {
		switch k {
		case "name", "arguments", "parameters", "_meta":
			continue
		}
		rest[k] = v
	}
	return rest
}

func (h *Handler) writeError(w http.ResponseWriter, id json.RawMessage, e *Error) {
	if e.challenge != "" {
		w.Header().Set("WWW-Authenticate", e.challenge)
	}
	writeJSON(w, e.Status(), errorResponse{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      id,
		Error:   e,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

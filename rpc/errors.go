package rpc

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jonwraymond/qsargate/audit"
	"github.com/jonwraymond/qsargate/auth"
	"github.com/jonwraymond/qsargate/tools"
)

// Application error codes, above the reserved JSON-RPC range.
const (
	CodeUnauthorized       = -32000
	CodeForbidden          = -32001
	CodeToolExecution      = -32002
	CodeTokenExpired       = -32003
	CodeServiceUnavailable = -32004
)

// Error is a JSON-RPC error object together with the HTTP status used to
// deliver it.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`

	status    int
	challenge string
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc %d: %s", e.Code, e.Message)
}

// Status returns the HTTP status for the response carrying e.
func (e *Error) Status() int {
	if e.status == 0 {
		return http.StatusInternalServerError
	}
	return e.status
}

func newError(code int, msg string) *Error {
	return &Error{Code: code, Message: msg, status: statusForCode(code)}
}

func statusForCode(code int) int {
	switch code {
	case mcp.PARSE_ERROR, mcp.INVALID_REQUEST, mcp.INVALID_PARAMS:
		return http.StatusBadRequest
	case mcp.METHOD_NOT_FOUND:
		return http.StatusNotFound
	case CodeUnauthorized, CodeTokenExpired:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeToolExecution:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// fromAuthError maps a gate failure. Every 401 carries a Bearer challenge;
// a presented but rejected token adds error="invalid_token".
func fromAuthError(err *auth.Error) *Error {
	var code int
	switch err.Kind {
	case auth.KindUnauthenticated:
		code = CodeUnauthorized
	case auth.KindTokenExpired:
		code = CodeTokenExpired
	case auth.KindForbidden:
		code = CodeForbidden
	case auth.KindServiceUnavailable:
		code = CodeServiceUnavailable
	default:
		code = mcp.INTERNAL_ERROR
	}
	e := &Error{Code: code, Message: err.Message, status: auth.StatusCode(err.Kind)}
	if e.status == http.StatusUnauthorized {
		e.challenge = "Bearer"
		if !errors.Is(err.Cause, auth.ErrMissingCredentials) {
			e.challenge = `Bearer error="invalid_token"`
		}
	}
	return e
}

// fromToolError maps a pipeline failure.
func fromToolError(err error) *Error {
	var te *tools.Error
	if !errors.As(err, &te) {
		e := newError(mcp.INTERNAL_ERROR, "Internal server error")
		e.Data = truncate(err.Error())
		return e
	}
	switch te.Kind {
	case tools.KindToolNotFound:
		return newError(mcp.METHOD_NOT_FOUND, fmt.Sprintf("Tool not found: %s", te.Tool))
	case tools.KindForbidden:
		return newError(CodeForbidden, te.Message)
	case tools.KindInvalidParameters:
		e := newError(mcp.INVALID_PARAMS, te.Message)
		e.Data = te.Details
		return e
	default:
		e := newError(CodeToolExecution, te.Message)
		e.Data = te.Details
		return e
	}
}

const maxErrorData = 200

func truncate(s string) string {
	return audit.Truncate(s, maxErrorData)
}

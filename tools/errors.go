package tools

import (
	"errors"
	"fmt"

	"github.com/jonwraymond/qsargate/audit"
)

// Registration errors.
var (
	ErrInvalidName   = errors.New("tools: invalid tool name")
	ErrDuplicateTool = errors.New("tools: tool already registered")
	ErrInvalidSchema = errors.New("tools: invalid input schema")
)

// Sentinels matched by *Error.Is for each Kind.
var (
	ErrToolNotFound      = errors.New("tools: tool not found")
	ErrForbidden         = errors.New("tools: forbidden")
	ErrInvalidParameters = errors.New("tools: invalid parameters")
	ErrExecution         = errors.New("tools: execution failed")
)

// Kind classifies a pipeline failure.
type Kind int

const (
	KindToolNotFound Kind = iota + 1
	KindForbidden
	KindInvalidParameters
	KindExecution
)

func (k Kind) String() string {
	switch k {
	case KindToolNotFound:
		return "tool_not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidParameters:
		return "invalid_parameters"
	case KindExecution:
		return "execution_error"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindToolNotFound:
		return ErrToolNotFound
	case KindForbidden:
		return ErrForbidden
	case KindInvalidParameters:
		return ErrInvalidParameters
	case KindExecution:
		return ErrExecution
	default:
		return nil
	}
}

// Error is a pipeline failure. Message is safe to return to callers;
// Details carries structured data for them (schema violations, a
// truncated execution error). Cause is for logs.
type Error struct {
	Kind    Kind
	Tool    string
	Message string
	Details any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the Kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// maxErrorDetail bounds error text returned to callers.
const maxErrorDetail = 200

func truncate(s string, n int) string {
	return audit.Truncate(s, n)
}

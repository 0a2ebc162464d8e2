package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jonwraymond/qsargate/observe"
)

// Event types.
const (
	TypeAuthorization = "authorization"
	TypeToolExecution = "tool_execution"
	TypeHTTPRequest   = "http_request"
)

// Authorization decisions.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Tool execution statuses.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusForbidden = "forbidden"
)

// MaxParamsLength bounds the serialized parameters carried by an event.
const MaxParamsLength = 500

// Event is a single audit record. Fields irrelevant to the event type are
// left empty and omitted from the JSON form.
type Event struct {
	Type      string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id,omitempty"`

	// Authorization and tool execution.
	Tool     string   `json:"tool,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Decision string   `json:"decision,omitempty"`
	Status   string   `json:"status,omitempty"`
	Params   string   `json:"params,omitempty"`
	Error    string   `json:"error,omitempty"`

	// HTTP requests.
	CorrelationID string  `json:"correlation_id,omitempty"`
	Method        string  `json:"method,omitempty"`
	Path          string  `json:"path,omitempty"`
	StatusCode    int     `json:"status_code,omitempty"`
	DurationMS    float64 `json:"duration_ms,omitempty"`
}

// Fields renders the event as log fields.
func (e Event) Fields() []observe.Field {
	fields := []observe.Field{
		{Key: "event_type", Value: e.Type},
		{Key: "timestamp", Value: e.Timestamp.UTC().Format(time.RFC3339Nano)},
	}
	add := func(k string, v any, ok bool) {
		if ok {
			fields = append(fields, observe.Field{Key: k, Value: v})
		}
	}
	add("user_id", e.UserID, e.UserID != "")
	add("tool", e.Tool, e.Tool != "")
	add("roles", e.Roles, len(e.Roles) > 0)
	add("decision", e.Decision, e.Decision != "")
	add("status", e.Status, e.Status != "")
	add("params", e.Params, e.Params != "")
	add("error", e.Error, e.Error != "")
	add("correlation_id", e.CorrelationID, e.CorrelationID != "")
	add("method", e.Method, e.Method != "")
	add("path", e.Path, e.Path != "")
	add("status_code", e.StatusCode, e.StatusCode != 0)
	add("duration_ms", e.DurationMS, e.Type == TypeHTTPRequest)
	return fields
}

// Sink receives audit events.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Emit must not block for long; slow backends should buffer.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event)

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// Emitter fans events out to sinks. A panicking sink is logged and does
// not prevent delivery to the others.
type Emitter struct {
	logger observe.Logger
	now    func() time.Time

	mu    sync.RWMutex
	sinks []Sink
}

// NewEmitter creates an emitter. Events are logged through logger when no
// sink is registered.
func NewEmitter(logger observe.Logger, sinks ...Sink) *Emitter {
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Emitter{
		logger: logger.With(observe.Field{Key: "component", Value: "audit"}),
		now:    time.Now,
		sinks:  append([]Sink(nil), sinks...),
	}
}

// Register adds a sink.
func (e *Emitter) Register(s Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, s)
}

// Emit stamps ev and delivers it. A nil emitter discards events.
func (e *Emitter) Emit(ctx context.Context, ev Event) {
	if e == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now()
	}

	e.mu.RLock()
	sinks := e.sinks
	e.mu.RUnlock()

	if len(sinks) == 0 {
		e.logger.Info(ctx, "AUDIT_EVENT", ev.Fields()...)
		return
	}
	for _, s := range sinks {
		e.deliver(ctx, s, ev)
	}
}

func (e *Emitter) deliver(ctx context.Context, s Sink, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(ctx, "audit sink failed",
				observe.Field{Key: "event_type", Value: ev.Type},
				observe.Field{Key: "error", Value: fmt.Sprint(r)},
			)
		}
	}()
	s.Emit(ctx, ev)
}

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger observe.Logger
}

// Emit logs ev at info level.
func (s LogSink) Emit(ctx context.Context, ev Event) {
	s.Logger.Info(ctx, "AUDIT_EVENT", ev.Fields()...)
}

// MemorySink keeps events in memory. Useful for tests and diagnostics.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Emit appends ev.
func (s *MemorySink) Emit(_ context.Context, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// Events returns a copy of the recorded events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Truncate shortens s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Ensure sinks implement Sink
var (
	_ Sink = SinkFunc(nil)
	_ Sink = LogSink{}
	_ Sink = (*MemorySink)(nil)
)

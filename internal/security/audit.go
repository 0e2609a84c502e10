package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"time"
)

// EventType categorizes audit events.
type EventType string

// Audit event types for session, run, tool and admin-auth activity.
const (
	EventSessionCreate EventType = "session_create"
	EventSessionDelete EventType = "session_delete"
	EventMessage       EventType = "message"
	EventRunComplete   EventType = "run_complete"
	EventToolCall      EventType = "tool_call"
	EventToolResult    EventType = "tool_result"
	EventRateLimit     EventType = "rate_limit"
	EventAuthSuccess   EventType = "auth_success"
	EventAuthFailure   EventType = "auth_failure"
)

// AuditEvent is one line of the audit trail. Seq and Timestamp are set by
// the logger.
type AuditEvent struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Remote    string    `json:"remote_addr,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	ToolName  string    `json:"tool_name,omitempty"`
	Tokens    int       `json:"tokens,omitempty"`
	Detail    string    `json:"detail,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures an AuditLogger.
type AuditLoggerConfig struct {
	// Writer receives one JSON object per line. Nil disables output.
	Writer io.Writer

	// Redactor is applied to Detail and Metadata values.
	Redactor *Redactor

	// OnEvent is called with every event, after redaction.
	OnEvent func(AuditEvent)

	// Now defaults to time.Now.
	Now func() time.Time
}

// AuditLogger appends audit events as JSONL. Events are numbered from 1 in
// the order they are written, so a reader can tell a truncated trail from
// a complete one. It is safe for concurrent use.
type AuditLogger struct {
	redactor *Redactor
	onEvent  func(AuditEvent)
	now      func() time.Time

	mu          sync.Mutex
	enc         *json.Encoder
	seq         uint64
	writeErrors int
}

// NewAuditLogger creates an audit logger.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	l := &AuditLogger{
		redactor: cfg.Redactor,
		onEvent:  cfg.OnEvent,
		now:      cfg.Now,
	}
	if l.now == nil {
		l.now = time.Now
	}
	if cfg.Writer != nil {
		l.enc = json.NewEncoder(cfg.Writer)
		l.enc.SetEscapeHTML(false)
	}
	return l
}

// Log numbers, timestamps, redacts and writes event. The caller's
// Metadata map is not modified.
func (l *AuditLogger) Log(event AuditEvent) {
	event.Metadata = maps.Clone(event.Metadata)
	if l.redactor != nil {
		event.Detail = l.redactor.Redact(event.Detail)
		for k, v := range event.Metadata {
			event.Metadata[k] = l.redactor.Redact(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	event.Seq = l.seq
	event.Timestamp = l.now()

	if l.onEvent != nil {
		l.onEvent(event)
	}
	if l.enc != nil {
		if err := l.enc.Encode(event); err != nil {
			l.writeErrors++
		}
	}
}

// WriteErrors returns how many events could not be written.
func (l *AuditLogger) WriteErrors() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeErrors
}

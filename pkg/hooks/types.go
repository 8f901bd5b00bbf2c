package hooks

import (
	"context"
	"time"
)

// Event defines a hook lifecycle trigger.
type Event string

const (
	EventBeforeCommand Event = "before_command"
	EventAfterCommand  Event = "after_command"
	EventBeforeBatch   Event = "before_batch"
	EventAfterBatch    Event = "after_batch"
	EventOnRollback    Event = "on_rollback"
	EventGatewayStart  Event = "gateway_start"
	EventGatewayStop   Event = "gateway_stop"
)

var knownEvents = []Event{
	EventBeforeCommand,
	EventAfterCommand,
	EventBeforeBatch,
	EventAfterBatch,
	EventOnRollback,
	EventGatewayStart,
	EventGatewayStop,
}

func KnownEvents() []Event {
	out := make([]Event, len(knownEvents))
	copy(out, knownEvents)
	return out
}

func IsKnownEvent(ev Event) bool {
	for _, known := range knownEvents {
		if known == ev {
			return true
		}
	}
	return false
}

// Context is an immutable hook event snapshot. Executor and coordinator
// fill the fields that apply; handlers must treat the maps as read-only.
type Context struct {
	Timestamp  time.Time      `json:"timestamp"`
	Command    string         `json:"command,omitempty"`
	BatchID    string         `json:"batch_id,omitempty"`
	BatchIndex int            `json:"batch_index,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	Success    bool           `json:"success"`
	ErrorKind  string         `json:"error_kind,omitempty"`
	Message    string         `json:"message,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Result is the hook execution result.
type Result struct {
	Status     string         `json:"status"`
	Message    string         `json:"message,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Err        error          `json:"-"`
	DurationMs int64          `json:"duration_ms"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Handler handles hook events. Handlers observe; they cannot veto
// execution, and an erroring handler never fails the command it watched.
type Handler interface {
	Name() string
	Handle(ctx context.Context, ev Event, data Context) Result
}

// AuditEntry is persisted for reproducibility and troubleshooting.
type AuditEntry struct {
	Event      Event          `json:"event"`
	Handler    string         `json:"handler"`
	Status     string         `json:"status"`
	Command    string         `json:"command,omitempty"`
	BatchID    string         `json:"batch_id,omitempty"`
	BatchIndex int            `json:"batch_index,omitempty"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// AuditSink writes hook audit entries.
type AuditSink interface {
	Write(entry AuditEntry) error
}

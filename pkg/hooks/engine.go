// Package hooks gives operators observation points around command and
// batch execution. Handlers are observers: they can log, audit, or export,
// but they can never veto or alter the work they watch.
package hooks

import (
	"context"
	"sync"
	"time"

	"github.com/Srjnnnn/blendgate/pkg/logger"
)

// Engine fans lifecycle events out to registered handlers and records each
// handler run in the audit sink. A nil Engine is valid and fires nothing.
type Engine struct {
	mu       sync.RWMutex
	handlers []Handler
	sink     AuditSink
}

// NewEngine returns an engine writing to sink. sink may be nil, in which
// case handler results are only logged.
func NewEngine(sink AuditSink) *Engine {
	return &Engine{sink: sink}
}

// Register appends a handler. Registration order is dispatch order.
func (e *Engine) Register(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// HandlerNames lists registered handlers in dispatch order.
func (e *Engine) HandlerNames() []string {
	if e == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, len(e.handlers))
	for i, h := range e.handlers {
		names[i] = h.Name()
	}
	return names
}

// Fire dispatches ev to every handler in order. Handler panics are not
// recovered; handlers are trusted in-process code. Errors are audited and
// logged, never propagated.
func (e *Engine) Fire(ctx context.Context, ev Event, data Context) {
	if e == nil {
		return
	}
	if data.Timestamp.IsZero() {
		data.Timestamp = time.Now().UTC()
	}

	e.mu.RLock()
	handlers := make([]Handler, len(e.handlers))
	copy(handlers, e.handlers)
	sink := e.sink
	e.mu.RUnlock()

	for _, h := range handlers {
		start := time.Now()
		res := h.Handle(ctx, ev, data)
		if res.DurationMs == 0 {
			res.DurationMs = time.Since(start).Milliseconds()
		}

		if res.Status == StatusError {
			logger.WarnCF("hooks", "handler_error", map[string]interface{}{
				"handler": h.Name(),
				"event":   string(ev),
				"error":   res.Err,
				"message": res.Message,
			})
		}

		if sink == nil {
			continue
		}
		entry := AuditEntry{
			Event:      ev,
			Handler:    h.Name(),
			Status:     res.Status,
			Command:    data.Command,
			BatchID:    data.BatchID,
			BatchIndex: data.BatchIndex,
			Message:    res.Message,
			DurationMs: res.DurationMs,
			Timestamp:  data.Timestamp,
			Metadata:   res.Metadata,
		}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		}
		if err := sink.Write(entry); err != nil {
			logger.WarnCF("hooks", "audit_write_failed", map[string]interface{}{
				"handler": h.Name(),
				"error":   err,
			})
		}
	}
}

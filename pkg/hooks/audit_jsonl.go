package hooks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// Buffer audit writes so hook dispatch never blocks on slow filesystems.
	auditQueueSize = 256
)

// JSONLAuditSink appends hook entries as JSONL, one file per day.
type JSONLAuditSink struct {
	path  string
	queue chan []byte
	done  chan struct{}
}

// NewJSONLAuditSink writes under <workspace>/audit/audit-YYYY-MM-DD.jsonl.
func NewJSONLAuditSink(workspace string) (*JSONLAuditSink, error) {
	name := fmt.Sprintf("audit-%s.jsonl", time.Now().UTC().Format("2006-01-02"))
	return NewJSONLAuditSinkAt(filepath.Join(workspace, "audit", name))
}

func NewJSONLAuditSinkAt(path string) (*JSONLAuditSink, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	sink := &JSONLAuditSink{
		path:  path,
		queue: make(chan []byte, auditQueueSize),
		done:  make(chan struct{}),
	}
	go sink.writeLoop()
	return sink, nil
}

func (s *JSONLAuditSink) Path() string {
	return s.path
}

func (s *JSONLAuditSink) Write(entry AuditEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	line := append(b, '\n')
	select {
	case s.queue <- line:
		return nil
	default:
	}

	// Queue full: drop oldest pending line so the current event can proceed.
	select {
	case <-s.queue:
	default:
	}
	select {
	case s.queue <- line:
	default:
	}
	return nil
}

// Close stops accepting entries and blocks until queued lines are flushed.
func (s *JSONLAuditSink) Close() {
	close(s.queue)
	<-s.done
}

func (s *JSONLAuditSink) writeLoop() {
	defer close(s.done)
	for line := range s.queue {
		_ = s.appendLine(line)
	}
}

func (s *JSONLAuditSink) appendLine(line []byte) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return err
	}
	return nil
}

// Package logger provides leveled, component-tagged logging for all
// blendgate subsystems. Output is one line per event with stable field
// ordering so log files stay grep-able.
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level controls which messages reach the output.
type Level int32

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int32(l))
	}
}

// ParseLevel maps a config string to a Level. Unknown strings fall back
// to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

var (
	mu       sync.Mutex
	out      io.Writer = os.Stderr
	minLevel int32     = int32(INFO)
)

// SetLevel sets the minimum level that will be written.
func SetLevel(l Level) {
	atomic.StoreInt32(&minLevel, int32(l))
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	return Level(atomic.LoadInt32(&minLevel))
}

// SetOutput redirects log output. Intended for tests and for the console
// command, which owns the terminal.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

func enabled(l Level) bool {
	return int32(l) >= atomic.LoadInt32(&minLevel)
}

func write(l Level, component, msg string, fields map[string]interface{}) {
	if !enabled(l) {
		return
	}
	var b strings.Builder
	b.WriteString(time.Now().UTC().Format("2006-01-02T15:04:05.000Z"))
	b.WriteByte(' ')
	b.WriteString(l.String())
	b.WriteByte(' ')
	b.WriteByte('[')
	b.WriteString(component)
	b.WriteByte(']')
	b.WriteByte(' ')
	b.WriteString(msg)
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte(' ')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(formatValue(fields[k]))
		}
	}
	b.WriteByte('\n')

	mu.Lock()
	defer mu.Unlock()
	io.WriteString(out, b.String())
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		if strings.ContainsAny(t, " \t\"=") {
			return fmt.Sprintf("%q", t)
		}
		if t == "" {
			return `""`
		}
		return t
	case error:
		return fmt.Sprintf("%q", t.Error())
	default:
		return fmt.Sprintf("%v", v)
	}
}

// DebugC logs a plain debug message for a component.
func DebugC(component, msg string) { write(DEBUG, component, msg, nil) }

// InfoC logs a plain info message for a component.
func InfoC(component, msg string) { write(INFO, component, msg, nil) }

// WarnC logs a plain warning message for a component.
func WarnC(component, msg string) { write(WARN, component, msg, nil) }

// ErrorC logs a plain error message for a component.
func ErrorC(component, msg string) { write(ERROR, component, msg, nil) }

// DebugCF logs a debug event with structured fields.
func DebugCF(component, event string, fields map[string]interface{}) {
	write(DEBUG, component, event, fields)
}

// InfoCF logs an info event with structured fields.
func InfoCF(component, event string, fields map[string]interface{}) {
	write(INFO, component, event, fields)
}

// WarnCF logs a warning event with structured fields.
func WarnCF(component, event string, fields map[string]interface{}) {
	write(WARN, component, event, fields)
}

// ErrorCF logs an error event with structured fields.
func ErrorCF(component, event string, fields map[string]interface{}) {
	write(ERROR, component, event, fields)
}

// Package script runs user-supplied Lua inside a sandboxed interpreter.
//
// Scripts replace the arbitrary remote-code path of the original bridge with
// something auditable: the host decides which libraries and scene verbs a
// script sees through one of three trust contexts, print output is captured
// instead of leaking to process stdout, and an instruction budget stops
// runaway loops even before the executor timeout fires.
package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shopify/go-lua"

	"github.com/Srjnnnn/blendgate/pkg/scene"
)

// Trust contexts, ordered from least to most capable.
const (
	ContextSafe       = "safe"
	ContextRestricted = "restricted"
	ContextFull       = "full"
)

const (
	// DefaultStepBudget bounds how many VM instructions a single script may
	// execute before it is aborted.
	DefaultStepBudget = 1_000_000

	// hookInterval is how often, in VM instructions, the watchdog hook runs
	// to check the budget and the command context.
	hookInterval = 1000
)

// ErrFullDisabled is returned when a script asks for the full context and
// the engine was built without WithFullContext(true).
var ErrFullDisabled = errors.New("full script context is disabled")

var processStart = time.Now()

// Result carries everything a finished script produced.
type Result struct {
	// Output holds one entry per print call, in order.
	Output []string

	// Globals is the table the script returned, converted to Go values.
	// Nil when the script returned nothing or a non-table value.
	Globals map[string]interface{}
}

// Engine builds one fresh Lua state per run. It is safe for concurrent use;
// runs share nothing but the scene backend itself.
type Engine struct {
	backend    scene.Backend
	stepBudget int
	allowFull  bool
}

// Option tweaks engine construction.
type Option func(*Engine)

// WithStepBudget overrides DefaultStepBudget. Values below 1 are ignored.
func WithStepBudget(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.stepBudget = n
		}
	}
}

// WithFullContext permits scripts to request the full trust context.
func WithFullContext(allowed bool) Option {
	return func(e *Engine) {
		e.allowFull = allowed
	}
}

// New builds an engine over the given scene backend.
func New(backend scene.Backend, opts ...Option) *Engine {
	e := &Engine{
		backend:    backend,
		stepBudget: DefaultStepBudget,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes code under the named trust context. The context governs both
// cancellation of the Lua VM (checked at every watchdog tick) and every
// scene call the script makes.
func (e *Engine) Run(ctx context.Context, code, trust string) (*Result, error) {
	switch trust {
	case "":
		trust = ContextSafe
	case ContextSafe, ContextRestricted, ContextFull:
	default:
		return nil, fmt.Errorf("unknown script context %q", trust)
	}
	if trust == ContextFull && !e.allowFull {
		return nil, ErrFullDisabled
	}
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("empty script")
	}

	state := lua.NewState()
	openSandboxLibraries(state)

	r := &runner{ctx: ctx, backend: e.backend}
	r.install(state, trust)

	steps := 0
	lua.SetDebugHook(state, func(l *lua.State, _ lua.Debug) {
		steps += hookInterval
		if err := ctx.Err(); err != nil {
			lua.Errorf(l, "script canceled: %s", err.Error())
		}
		if steps >= e.stepBudget {
			lua.Errorf(l, "script exceeded budget of %d steps", e.stepBudget)
		}
	}, lua.MaskCount, hookInterval)

	if err := state.Load(strings.NewReader(code), "=script", ""); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		// The watchdog aborts a canceled run by raising a Lua error, which
		// flattens the cause into a string. Re-wrap the context error so
		// callers can still match it with errors.Is.
		if cerr := ctx.Err(); cerr != nil {
			return nil, fmt.Errorf("run script: %w", cerr)
		}
		return nil, fmt.Errorf("run script: %w", err)
	}

	res := &Result{Output: r.output}
	if state.TypeOf(-1) == lua.TypeTable {
		res.Globals = mapAt(state, -1)
	}
	state.Pop(1)
	return res, nil
}

// openSandboxLibraries loads the library set every context shares and strips
// the loaders that would let a script pull code from disk.
func openSandboxLibraries(state *lua.State) {
	libs := []struct {
		name string
		open lua.Function
	}{
		{"_G", lua.BaseOpen},
		{"table", lua.TableOpen},
		{"string", lua.StringOpen},
		{"math", lua.MathOpen},
	}
	for _, lib := range libs {
		lua.Require(state, lib.name, lib.open, true)
		state.Pop(1)
	}
	for _, name := range []string{"dofile", "loadfile", "load"} {
		state.PushNil()
		state.SetGlobal(name)
	}
}

// Package executor turns one command request into exactly one outcome:
// resolve the handler, validate parameters, invoke under a deadline, and
// normalize whatever happens into the wire error vocabulary. Nothing a
// handler or backend does escapes as a raw fault.
package executor

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Srjnnnn/blendgate/pkg/command"
	"github.com/Srjnnnn/blendgate/pkg/hooks"
	"github.com/Srjnnnn/blendgate/pkg/logger"
)

const component = "executor"

// DefaultTimeout bounds a single command execution unless configured
// otherwise.
const DefaultTimeout = 30 * time.Second

var tracer = otel.Tracer("blendgate/executor")

// Executor resolves and runs commands against the registry it was built
// with. It is safe for concurrent use; the registry is immutable by the
// time an Executor exists.
type Executor struct {
	registry *command.Registry
	hooks    *hooks.Engine
	timeout  time.Duration
	perCmd   map[string]time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithHooks attaches a hook engine fired around every execution.
func WithHooks(engine *hooks.Engine) Option {
	return func(e *Executor) { e.hooks = engine }
}

// WithTimeout sets the default per-command deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithCommandTimeout overrides the deadline for one command name. Slow
// operations like render and script get their own budgets.
func WithCommandTimeout(name string, d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.perCmd[name] = d
		}
	}
}

// New builds an Executor over registry.
func New(registry *command.Registry, opts ...Option) *Executor {
	e := &Executor{
		registry: registry,
		timeout:  DefaultTimeout,
		perCmd:   make(map[string]time.Duration),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry exposes the command registry for introspection surfaces.
func (e *Executor) Registry() *command.Registry { return e.registry }

// TimeoutFor reports the deadline applied to one command name.
func (e *Executor) TimeoutFor(name string) time.Duration {
	if d, ok := e.perCmd[name]; ok {
		return d
	}
	return e.timeout
}

// Execute runs one request to a single outcome. Validation failures never
// reach the handler; handler faults and timeouts are mapped, never thrown.
func (e *Executor) Execute(ctx context.Context, req command.Request) command.Outcome {
	ctx, span := tracer.Start(ctx, "command.execute")
	span.SetAttributes(attribute.String("command.name", req.Name))
	defer span.End()

	handler, err := e.registry.Lookup(req.Name)
	if err != nil {
		logger.WarnCF(component, "unknown_command", map[string]interface{}{
			"command": req.Name,
		})
		return e.finish(ctx, span, req, nil, command.FailErr(err), 0)
	}

	params, err := command.Validate(handler.Contract(), req.Params)
	if err != nil {
		logger.DebugCF(component, "validation_failed", map[string]interface{}{
			"command": req.Name,
			"error":   err,
		})
		return e.finish(ctx, span, req, nil, command.FailErr(err), 0)
	}

	before := hooks.Context{Command: req.Name, Params: params}
	if info, ok := BatchFromContext(ctx); ok {
		before.BatchID = info.ID
		before.BatchIndex = info.Index
	}
	e.hooks.Fire(ctx, hooks.EventBeforeCommand, before)

	cctx, cancel := context.WithTimeout(ctx, e.TimeoutFor(req.Name))
	defer cancel()

	start := time.Now()
	result, err := handler.Execute(cctx, params)
	elapsed := time.Since(start)

	var outcome command.Outcome
	switch {
	case err == nil:
		outcome = command.OK(result)
	case errors.Is(err, context.DeadlineExceeded):
		outcome = command.Fail(command.KindTimeout, "command %s exceeded %s", req.Name, e.TimeoutFor(req.Name))
	default:
		outcome = command.FailErr(err)
	}

	return e.finish(ctx, span, req, params, outcome, elapsed)
}

// Revert attempts the compensating operation for a previously successful
// execution. The bool reports whether the handler could compensate at all;
// the error reports a compensation that was attempted and failed.
func (e *Executor) Revert(ctx context.Context, req command.Request, result map[string]interface{}) (bool, error) {
	handler, err := e.registry.Lookup(req.Name)
	if err != nil {
		return false, err
	}
	rev, ok := handler.(command.Reversible)
	if !ok {
		return false, nil
	}

	ctx, span := tracer.Start(ctx, "command.revert")
	span.SetAttributes(attribute.String("command.name", req.Name))
	defer span.End()

	cctx, cancel := context.WithTimeout(ctx, e.TimeoutFor(req.Name))
	defer cancel()

	if err := rev.Revert(cctx, req.Params, result); err != nil {
		span.SetStatus(codes.Error, err.Error())
		logger.WarnCF(component, "revert_failed", map[string]interface{}{
			"command": req.Name,
			"error":   err,
		})
		return true, err
	}
	logger.DebugCF(component, "revert_done", map[string]interface{}{
		"command": req.Name,
	})
	return true, nil
}

func (e *Executor) finish(ctx context.Context, span trace.Span, req command.Request, params map[string]interface{}, outcome command.Outcome, elapsed time.Duration) command.Outcome {
	span.SetAttributes(attribute.Bool("command.success", outcome.Success))

	data := hooks.Context{
		Command:    req.Name,
		Params:     params,
		Success:    outcome.Success,
		DurationMs: elapsed.Milliseconds(),
	}
	if info, ok := BatchFromContext(ctx); ok {
		data.BatchID = info.ID
		data.BatchIndex = info.Index
	}

	if outcome.Success {
		logger.InfoCF(component, "command_done", map[string]interface{}{
			"command":     req.Name,
			"duration_ms": elapsed.Milliseconds(),
		})
	} else {
		span.SetAttributes(attribute.String("command.error_kind", string(outcome.Error.Kind)))
		span.SetStatus(codes.Error, outcome.Error.Message)
		data.ErrorKind = string(outcome.Error.Kind)
		data.Message = outcome.Error.Message
		logger.WarnCF(component, "command_failed", map[string]interface{}{
			"command":     req.Name,
			"kind":        string(outcome.Error.Kind),
			"error":       outcome.Error.Message,
			"duration_ms": elapsed.Milliseconds(),
		})
	}

	e.hooks.Fire(ctx, hooks.EventAfterCommand, data)
	return outcome
}

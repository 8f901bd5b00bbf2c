package batch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Srjnnnn/blendgate/pkg/bus"
	"github.com/Srjnnnn/blendgate/pkg/command"
	"github.com/Srjnnnn/blendgate/pkg/executor"
	"github.com/Srjnnnn/blendgate/pkg/hooks"
	"github.com/Srjnnnn/blendgate/pkg/logger"
)

const component = "batch"

var tracer = otel.Tracer("blendgate/batch")

// Archiver receives completed batch results for durable storage. Archive
// failures are logged, never surfaced to pollers.
type Archiver interface {
	Archive(ctx context.Context, r *Result) error
}

// Coordinator accepts batches, runs each in its own goroutine with
// strictly sequential entries, and publishes incremental progress to the
// store so concurrent polls see a monotonically growing result.
type Coordinator struct {
	exec    *executor.Executor
	store   Store
	hooks   *hooks.Engine
	events  *bus.EventBus
	archive Archiver

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithHooks attaches a hook engine fired around batch lifecycles.
func WithHooks(engine *hooks.Engine) CoordinatorOption {
	return func(c *Coordinator) { c.hooks = engine }
}

// WithEvents publishes batch progress on the event bus.
func WithEvents(events *bus.EventBus) CoordinatorOption {
	return func(c *Coordinator) { c.events = events }
}

// WithArchiver archives completed batches.
func WithArchiver(a Archiver) CoordinatorOption {
	return func(c *Coordinator) { c.archive = a }
}

// NewCoordinator builds a Coordinator executing through exec and
// publishing results to store.
func NewCoordinator(exec *executor.Executor, store Store, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		exec:    exec,
		store:   store,
		cancels: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit validates the batch and, if structurally sound, stores a pending
// result under a fresh id and starts execution asynchronously. A
// validation failure rejects the whole batch before any command runs; no
// batch id is issued.
func (c *Coordinator) Submit(ctx context.Context, entries []Entry, opts Options) (string, error) {
	if err := ValidateEntries(entries); err != nil {
		logger.WarnCF(component, "batch_rejected", map[string]interface{}{
			"error": err,
			"total": len(entries),
		})
		return "", err
	}

	owned := make([]Entry, len(entries))
	copy(owned, entries)
	for i := range owned {
		owned[i].Index = i
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	if err := c.store.Put(id, &Result{
		BatchID:     id,
		Status:      StatusPending,
		Total:       len(owned),
		Options:     opts,
		SubmittedAt: now,
		Entries:     make([]EntryResult, 0, len(owned)),
	}); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Lock()
	c.cancels[id] = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(runCtx, id, owned, opts)

	logger.InfoCF(component, "batch_accepted", map[string]interface{}{
		"batch_id": id,
		"total":    len(owned),
	})
	return id, nil
}

// Poll returns a copy of the batch's current result.
func (c *Coordinator) Poll(id string) (*Result, error) {
	return c.store.Get(id)
}

// Cancel abandons a running batch. The entry in flight finishes (or times
// out); entries after it stay unrun; the result still finalizes as
// completed. Cancelling a finished batch is a no-op.
func (c *Coordinator) Cancel(id string) error {
	c.mu.Lock()
	cancel, ok := c.cancels[id]
	c.mu.Unlock()
	if ok {
		cancel()
		logger.InfoCF(component, "batch_cancelled", map[string]interface{}{
			"batch_id": id,
		})
		return nil
	}
	if _, err := c.store.Get(id); err != nil {
		return err
	}
	return nil
}

// Wait blocks until all running batches finish or ctx expires. Used for
// graceful shutdown.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports how many batches are currently executing.
func (c *Coordinator) Running() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cancels)
}

func (c *Coordinator) run(ctx context.Context, id string, entries []Entry, opts Options) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		if cancel, ok := c.cancels[id]; ok {
			delete(c.cancels, id)
			cancel()
		}
		c.mu.Unlock()
	}()

	ctx, span := tracer.Start(ctx, "batch.run")
	span.SetAttributes(
		attribute.String("batch.id", id),
		attribute.Int("batch.total", len(entries)),
	)
	defer span.End()

	start := time.Now()
	c.updateStatus(id, StatusRunning)
	c.hooks.Fire(ctx, hooks.EventBeforeBatch, hooks.Context{
		BatchID: id,
		Metadata: map[string]any{
			"total":               len(entries),
			"stop_on_error":       opts.StopOnError,
			"rollback_on_failure": opts.RollbackOnFailure,
		},
	})

	outcomes := make([]*command.Outcome, len(entries))
	states := make([]EntryState, len(entries))
	var successful, failed int

	for i := range entries {
		if ctx.Err() != nil {
			logger.WarnCF(component, "batch_interrupted", map[string]interface{}{
				"batch_id":   id,
				"next_index": i,
			})
			break
		}

		if met := evalCondition(entries[i].Condition, outcomes); !met {
			states[i] = StateSkipped
			c.appendEntry(id, EntryResult{
				Index:   i,
				Command: entries[i].Request.Name,
				State:   StateSkipped,
			}, successful, failed)
			c.publishEntry(ctx, id, i, StateSkipped, false)
			logger.DebugCF(component, "entry_skipped", map[string]interface{}{
				"batch_id":    id,
				"batch_index": i,
			})
			continue
		}

		out := c.exec.Execute(executor.WithBatch(ctx, id, i), entries[i].Request)
		outcomes[i] = &out
		states[i] = StateExecuted
		if out.Success {
			successful++
		} else {
			failed++
		}
		c.appendEntry(id, EntryResult{
			Index:   i,
			Command: entries[i].Request.Name,
			State:   StateExecuted,
			Outcome: &out,
		}, successful, failed)
		c.publishEntry(ctx, id, i, StateExecuted, out.Success)

		if !out.Success && opts.StopOnError {
			logger.WarnCF(component, "batch_halted", map[string]interface{}{
				"batch_id":    id,
				"batch_index": i,
				"kind":        string(out.Error.Kind),
			})
			break
		}
	}

	if opts.RollbackOnFailure && failed > 0 {
		c.rollback(ctx, id, entries, outcomes, states)
	}

	now := time.Now().UTC()
	_ = c.store.Update(id, func(r *Result) {
		r.Status = StatusCompleted
		r.CompletedAt = now
	})

	span.SetAttributes(
		attribute.Int("batch.successful", successful),
		attribute.Int("batch.failed", failed),
	)
	c.hooks.Fire(ctx, hooks.EventAfterBatch, hooks.Context{
		BatchID: id,
		Success: failed == 0,
		Metadata: map[string]any{
			"successful": successful,
			"failed":     failed,
			"total":      len(entries),
		},
	})
	if c.events != nil {
		_ = c.events.Publish(ctx, bus.Event{
			Type:   bus.EventBatchUpdate,
			Source: component,
			Payload: map[string]interface{}{
				"batch_id":   id,
				"status":     string(StatusCompleted),
				"successful": successful,
				"failed":     failed,
				"total":      len(entries),
			},
		})
	}
	logger.InfoCF(component, "batch_completed", map[string]interface{}{
		"batch_id":    id,
		"successful":  successful,
		"failed":      failed,
		"total":       len(entries),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if c.archive != nil {
		if final, err := c.store.Get(id); err == nil {
			if err := c.archive.Archive(context.WithoutCancel(ctx), final); err != nil {
				logger.WarnCF(component, "archive_failed", map[string]interface{}{
					"batch_id": id,
					"error":    err,
				})
			}
		}
	}
}

// rollback walks successfully executed entries in reverse and attempts
// each one's compensating operation. Failures are recorded against the
// entry and never re-trigger rollback.
func (c *Coordinator) rollback(ctx context.Context, id string, entries []Entry, outcomes []*command.Outcome, states []EntryState) {
	rbCtx := context.WithoutCancel(ctx)
	logger.InfoCF(component, "rollback_started", map[string]interface{}{
		"batch_id": id,
	})

	for i := len(entries) - 1; i >= 0; i-- {
		if states[i] != StateExecuted || outcomes[i] == nil || !outcomes[i].Success {
			continue
		}
		attempted, err := c.exec.Revert(rbCtx, entries[i].Request, outcomes[i].Result)
		report := &RollbackReport{Reverted: attempted && err == nil}
		if err != nil {
			report.Error = command.NewError(command.KindRollbackFailed,
				"rollback of %s at index %d: %s", entries[i].Request.Name, i, err.Error())
		}

		idx := i
		_ = c.store.Update(id, func(r *Result) {
			for j := range r.Entries {
				if r.Entries[j].Index == idx && r.Entries[j].State == StateExecuted {
					r.Entries[j].Rollback = report
					return
				}
			}
		})

		c.hooks.Fire(rbCtx, hooks.EventOnRollback, hooks.Context{
			BatchID:    id,
			BatchIndex: i,
			Command:    entries[i].Request.Name,
			Success:    report.Reverted,
			Message:    rollbackMessage(report),
		})
	}
}

func rollbackMessage(report *RollbackReport) string {
	switch {
	case report.Reverted:
		return "reverted"
	case report.Error != nil:
		return report.Error.Message
	default:
		return "no compensating operation"
	}
}

func (c *Coordinator) updateStatus(id string, s Status) {
	_ = c.store.Update(id, func(r *Result) {
		r.Status = s
	})
}

func (c *Coordinator) appendEntry(id string, er EntryResult, successful, failed int) {
	_ = c.store.Update(id, func(r *Result) {
		r.Entries = append(r.Entries, er)
		r.Successful = successful
		r.Failed = failed
	})
}

func (c *Coordinator) publishEntry(ctx context.Context, id string, index int, state EntryState, success bool) {
	if c.events == nil {
		return
	}
	_ = c.events.Publish(ctx, bus.Event{
		Type:   bus.EventBatchUpdate,
		Source: component,
		Payload: map[string]interface{}{
			"batch_id":    id,
			"batch_index": index,
			"state":       string(state),
			"success":     success,
			"status":      string(StatusRunning),
		},
	})
}

// evalCondition decides whether an entry may run given the outcomes of its
// dependencies. A dependency that was skipped or never ran has no outcome
// and counts as not successful.
func evalCondition(cond Condition, outcomes []*command.Outcome) bool {
	if cond.IsAlways() {
		return true
	}
	switch cond.effectiveMode() {
	case AnySuccess:
		for _, dep := range cond.DependsOn {
			if o := outcomes[dep]; o != nil && o.Success {
				return true
			}
		}
		return false
	default:
		for _, dep := range cond.DependsOn {
			if o := outcomes[dep]; o == nil || !o.Success {
				return false
			}
		}
		return true
	}
}

// Package gateway is the service facade every transport talks to. It
// wires the command registry, executor, batch coordinator, result store,
// advisor, and templates into one surface, tracks lifetime counters, and
// broadcasts scene and batch events for subscribers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Srjnnnn/blendgate/pkg/advisor"
	"github.com/Srjnnnn/blendgate/pkg/archive"
	"github.com/Srjnnnn/blendgate/pkg/batch"
	"github.com/Srjnnnn/blendgate/pkg/bus"
	"github.com/Srjnnnn/blendgate/pkg/command"
	"github.com/Srjnnnn/blendgate/pkg/commands"
	"github.com/Srjnnnn/blendgate/pkg/config"
	"github.com/Srjnnnn/blendgate/pkg/executor"
	"github.com/Srjnnnn/blendgate/pkg/hooks"
	"github.com/Srjnnnn/blendgate/pkg/hooks/builtin"
	"github.com/Srjnnnn/blendgate/pkg/logger"
	"github.com/Srjnnnn/blendgate/pkg/scene"
	"github.com/Srjnnnn/blendgate/pkg/script"
	"github.com/Srjnnnn/blendgate/pkg/templates"
)

const component = "gateway"

// statsFlushInterval bounds counter loss on an unclean exit.
const statsFlushInterval = 5 * time.Minute

// ChannelReporter lets the gateway report transport states in Status
// without depending on the channels package.
type ChannelReporter func() map[string]bool

// Gateway owns the dispatch core and the surrounding services.
type Gateway struct {
	cfg      *config.Config
	version  string
	backend  scene.Backend
	registry *command.Registry
	exec     *executor.Executor
	store    *batch.MemoryStore
	coord    *batch.Coordinator
	tmpl     *templates.Store
	events   *bus.EventBus
	hooks    *hooks.Engine
	archive  *archive.Store
	stats    *Stats

	channels  ChannelReporter
	startedAt time.Time
	stop      chan struct{}
}

// Option configures gateway construction.
type Option func(*Gateway)

// WithArchive attaches the durable batch archive. Completed batches are
// written there and poll misses fall back to it.
func WithArchive(a *archive.Store) Option {
	return func(g *Gateway) { g.archive = a }
}

// WithAuditSink routes hook events to sink.
func WithAuditSink(sink hooks.AuditSink) Option {
	return func(g *Gateway) { g.hooks = hooks.NewEngine(sink) }
}

// New wires a gateway over backend using cfg. The command catalog is
// registered during construction; the registry is read-only afterwards.
func New(cfg *config.Config, backend scene.Backend, version string, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		cfg:       cfg,
		version:   version,
		backend:   backend,
		registry:  command.NewRegistry(),
		events:    bus.NewEventBus(),
		hooks:     hooks.NewEngine(nil),
		tmpl:      templates.NewStore(cfg.TemplatesDir()),
		stats:     NewStats(cfg.StatsPath()),
		startedAt: time.Now(),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.hooks.Register(builtin.NewScriptPolicy(cfg.Script.AllowFull))

	engine := script.New(backend,
		script.WithStepBudget(cfg.Script.StepBudget),
		script.WithFullContext(cfg.Script.AllowFull),
	)
	if err := commands.RegisterAll(g.registry, backend, engine); err != nil {
		return nil, fmt.Errorf("register command catalog: %w", err)
	}

	g.exec = executor.New(g.registry,
		executor.WithHooks(g.hooks),
		executor.WithTimeout(time.Duration(cfg.Execution.CommandTimeoutSec)*time.Second),
		executor.WithCommandTimeout("render", time.Duration(cfg.Execution.RenderTimeoutSec)*time.Second),
		executor.WithCommandTimeout("script", time.Duration(cfg.Execution.ScriptTimeoutSec)*time.Second),
	)

	g.store = batch.NewMemoryStore(
		time.Duration(cfg.Store.TTLMinutes)*time.Minute,
		cfg.Store.Capacity,
	)

	coordOpts := []batch.CoordinatorOption{
		batch.WithHooks(g.hooks),
		batch.WithEvents(g.events),
	}
	if g.archive != nil {
		coordOpts = append(coordOpts, batch.WithArchiver(g.archive))
	}
	g.coord = batch.NewCoordinator(g.exec, g.store, coordOpts...)

	return g, nil
}

// Start fires the gateway_start hook and begins periodic stats flushing.
func (g *Gateway) Start(ctx context.Context) {
	g.hooks.Fire(ctx, hooks.EventGatewayStart, hooks.Context{
		Metadata: map[string]any{"version": g.version, "commands": g.registry.Len()},
	})
	logger.InfoCF(component, "started", map[string]interface{}{
		"version":  g.version,
		"commands": g.registry.Len(),
	})

	go func() {
		ticker := time.NewTicker(statsFlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := g.stats.Flush(); err != nil {
					logger.WarnCF(component, "stats_flush_failed", map[string]interface{}{
						"error": err,
					})
				}
			case <-g.stop:
				return
			}
		}
	}()
}

// Stop drains running batches, flushes stats, fires the gateway_stop hook,
// and closes the event bus. Waits at most the given grace period for
// in-flight batches.
func (g *Gateway) Stop(ctx context.Context) {
	close(g.stop)

	if err := g.coord.Wait(ctx); err != nil {
		logger.WarnCF(component, "drain_timeout", map[string]interface{}{
			"running": g.coord.Running(),
		})
	}
	if err := g.stats.Flush(); err != nil {
		logger.WarnCF(component, "stats_flush_failed", map[string]interface{}{
			"error": err,
		})
	}
	g.hooks.Fire(context.WithoutCancel(ctx), hooks.EventGatewayStop, hooks.Context{
		Metadata: map[string]any{
			"commands": g.stats.Commands(),
			"batches":  g.stats.Batches(),
		},
	})
	g.events.Close()
	logger.InfoC(component, "stopped")
}

// SetChannelReporter installs the transport state callback used by Status.
func (g *Gateway) SetChannelReporter(r ChannelReporter) { g.channels = r }

// Events exposes the bus for channel subscriptions.
func (g *Gateway) Events() *bus.EventBus { return g.events }

// Registry exposes the command catalog for introspection surfaces such as
// the console's tab completion.
func (g *Gateway) Registry() *command.Registry { return g.registry }

// SubmitCommand executes one command synchronously and returns its
// outcome. Successful executions publish a scene_update event.
func (g *Gateway) SubmitCommand(ctx context.Context, req command.Request) command.Outcome {
	outcome := g.exec.Execute(ctx, req)
	g.stats.CommandExecuted(outcome.Success)

	_ = g.events.Publish(ctx, bus.Event{
		Type:   bus.EventCommandExecuted,
		Source: component,
		Payload: map[string]interface{}{
			"command": req.Name,
			"success": outcome.Success,
		},
	})
	if outcome.Success {
		g.publishSceneUpdate(ctx)
	}
	return outcome
}

// SubmitBatch accepts a batch for asynchronous execution and returns its
// id. Structural validation failures reject the batch with no id.
func (g *Gateway) SubmitBatch(ctx context.Context, entries []batch.Entry, opts batch.Options) (string, error) {
	id, err := g.coord.Submit(ctx, entries, opts)
	if err != nil {
		return "", err
	}
	g.stats.BatchSubmitted()
	return id, nil
}

// PollBatch returns the batch's current result, consulting the archive for
// batches the store has already evicted.
func (g *Gateway) PollBatch(ctx context.Context, id string) (*batch.Result, error) {
	r, err := g.coord.Poll(id)
	if err == nil {
		return r, nil
	}
	if errors.Is(err, batch.ErrNotFound) && g.archive != nil {
		if archived, aerr := g.archive.Get(ctx, id); aerr == nil {
			return archived, nil
		}
	}
	return nil, err
}

// CancelBatch abandons a running batch.
func (g *Gateway) CancelBatch(id string) error {
	return g.coord.Cancel(id)
}

// RecentBatches lists the newest resident batch results.
func (g *Gateway) RecentBatches(limit int) []*batch.Result {
	return g.store.List(limit)
}

// StatusReport is the gateway's introspection snapshot, served at /status.
type StatusReport struct {
	Server         string          `json:"server"`
	Version        string          `json:"version"`
	UptimeSec      int64           `json:"uptime_sec"`
	Commands       int64           `json:"commands_total"`
	Batches        int64           `json:"batches_total"`
	Errors         int64           `json:"errors_total"`
	RunningBatches int             `json:"running_batches"`
	CatalogSize    int             `json:"catalog_size"`
	Channels       map[string]bool `json:"channels,omitempty"`
	SceneCounts    map[string]int  `json:"scene_counts,omitempty"`
}

// Status reports uptime, counters, channel states, and scene counts.
func (g *Gateway) Status(ctx context.Context) StatusReport {
	report := StatusReport{
		Server:         "blendgate",
		Version:        g.version,
		UptimeSec:      int64(time.Since(g.startedAt).Seconds()),
		Commands:       g.stats.Commands(),
		Batches:        g.stats.Batches(),
		Errors:         g.stats.Errors(),
		RunningBatches: g.coord.Running(),
		CatalogSize:    g.registry.Len(),
	}
	if g.channels != nil {
		report.Channels = g.channels()
	}
	if snap, err := g.backend.Snapshot(ctx); err == nil {
		report.SceneCounts = snap.Counts
	}
	return report
}

// SceneData returns a copy of the whole scene.
func (g *Gateway) SceneData(ctx context.Context) (*scene.Snapshot, error) {
	return g.backend.Snapshot(ctx)
}

// ListTemplates returns every available scene template.
func (g *Gateway) ListTemplates() ([]templates.Template, error) {
	return g.tmpl.List()
}

// Presets returns the named parameter bundles.
func (g *Gateway) Presets() (map[string]templates.Preset, error) {
	return g.tmpl.Presets()
}

// ApplyTemplate expands the named template with params and submits the
// resulting command list as a batch.
func (g *Gateway) ApplyTemplate(ctx context.Context, name string, params map[string]interface{}) (string, error) {
	t, err := g.tmpl.Get(name)
	if err != nil {
		return "", err
	}
	steps, err := t.Expand(params)
	if err != nil {
		return "", err
	}

	entries := make([]batch.Entry, len(steps))
	for i, step := range steps {
		entries[i] = batch.Entry{
			Request: command.Request{Name: step.Command, Params: step.Params},
		}
		if step.Condition != nil {
			entries[i].Condition = batch.Condition{
				DependsOn: step.Condition.DependsOn,
				Mode:      batch.Mode(step.Condition.Mode),
			}
		}
	}

	id, err := g.SubmitBatch(ctx, entries, batch.Options{
		RollbackOnFailure: g.cfg.Execution.RollbackOnFailure,
	})
	if err != nil {
		return "", err
	}
	logger.InfoCF(component, "template_applied", map[string]interface{}{
		"template": name,
		"batch_id": id,
		"steps":    len(steps),
	})
	return id, nil
}

// AIContext returns the advisor's scene summary.
func (g *Gateway) AIContext(ctx context.Context) (advisor.Context, error) {
	snap, err := g.backend.Snapshot(ctx)
	if err != nil {
		return advisor.Context{}, err
	}
	return advisor.BuildContext(snap), nil
}

// AISuggestions returns improvement suggestions for the given focus.
func (g *Gateway) AISuggestions(ctx context.Context, focus string) ([]advisor.Suggestion, error) {
	snap, err := g.backend.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return advisor.Suggest(snap, focus)
}

// Query maps a natural-language request to a catalog command and executes
// it. Unparseable queries return an InvalidParameter outcome.
func (g *Gateway) Query(ctx context.Context, text string) command.Outcome {
	req, err := advisor.ParseQuery(text)
	if err != nil {
		return command.Fail(command.KindInvalidParameter, "query: %s", err.Error())
	}
	return g.SubmitCommand(ctx, req)
}

func (g *Gateway) publishSceneUpdate(ctx context.Context) {
	snap, err := g.backend.Snapshot(ctx)
	if err != nil {
		return
	}
	_ = g.events.Publish(ctx, bus.Event{
		Type:   bus.EventSceneUpdate,
		Source: component,
		Payload: map[string]interface{}{
			"revision": snap.Revision,
			"counts":   snap.Counts,
		},
	})
}

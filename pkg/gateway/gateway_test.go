package gateway

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Srjnnnn/blendgate/pkg/batch"
	"github.com/Srjnnnn/blendgate/pkg/command"
	"github.com/Srjnnnn/blendgate/pkg/config"
	"github.com/Srjnnnn/blendgate/pkg/scene/memory"
)

func newTestGateway(t *testing.T, opts ...Option) *Gateway {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workspace = t.TempDir()
	g, err := New(cfg, memory.NewBackend(), "test", opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return g
}

func waitForBatch(t *testing.T, g *Gateway, id string) *batch.Result {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		r, err := g.PollBatch(context.Background(), id)
		if err != nil {
			t.Fatalf("PollBatch(%s) error = %v", id, err)
		}
		if r.Status == batch.StatusCompleted {
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("batch %s did not complete", id)
	return nil
}

func TestSubmitCommand(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	out := g.SubmitCommand(ctx, command.Request{
		Name:   "add_object",
		Params: map[string]interface{}{"type": "cube", "name": "C1"},
	})
	if !out.Success {
		t.Fatalf("add_object failed: %+v", out.Error)
	}
	if out.Result["name"] != "C1" {
		t.Fatalf("result name = %v, want C1", out.Result["name"])
	}

	if got := g.stats.Commands(); got != 1 {
		t.Fatalf("stats.Commands() = %d, want 1", got)
	}
	if got := g.stats.Errors(); got != 0 {
		t.Fatalf("stats.Errors() = %d, want 0", got)
	}
}

func TestSubmitCommandUnknownCountsAsError(t *testing.T) {
	g := newTestGateway(t)

	out := g.SubmitCommand(context.Background(), command.Request{Name: "no_such_command"})
	if out.Success {
		t.Fatal("expected failure for unknown command")
	}
	if out.Error.Kind != command.KindUnknownCommand {
		t.Fatalf("error kind = %s, want UnknownCommand", out.Error.Kind)
	}
	if got := g.stats.Errors(); got != 1 {
		t.Fatalf("stats.Errors() = %d, want 1", got)
	}
}

func TestSubmitBatchAndPoll(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	entries := []batch.Entry{
		{Request: command.Request{Name: "add_object", Params: map[string]interface{}{"type": "cube", "name": "B1"}}},
		{Request: command.Request{Name: "set_material", Params: map[string]interface{}{"object": "B1"}},
			Condition: batch.Condition{DependsOn: []int{0}}},
	}
	id, err := g.SubmitBatch(ctx, entries, batch.Options{})
	if err != nil {
		t.Fatalf("SubmitBatch() error = %v", err)
	}
	if id == "" {
		t.Fatal("SubmitBatch() returned empty id")
	}

	r := waitForBatch(t, g, id)
	if r.Successful != 2 || r.Failed != 0 {
		t.Fatalf("successful=%d failed=%d, want 2/0", r.Successful, r.Failed)
	}
	if got := g.stats.Batches(); got != 1 {
		t.Fatalf("stats.Batches() = %d, want 1", got)
	}
}

func TestSubmitBatchValidationIssuesNoID(t *testing.T) {
	g := newTestGateway(t)

	entries := []batch.Entry{
		{Request: command.Request{Name: "add_object"},
			Condition: batch.Condition{DependsOn: []int{2}}},
	}
	id, err := g.SubmitBatch(context.Background(), entries, batch.Options{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	ce, ok := command.AsError(err)
	if !ok || ce.Kind != command.KindBatchValidationError {
		t.Fatalf("error = %v, want BatchValidationError", err)
	}
	if id != "" {
		t.Fatalf("id = %q, want empty", id)
	}
	if got := g.stats.Batches(); got != 0 {
		t.Fatalf("stats.Batches() = %d, want 0", got)
	}
}

func TestApplyTemplate(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	id, err := g.ApplyTemplate(ctx, "studio_scene", nil)
	if err != nil {
		t.Fatalf("ApplyTemplate() error = %v", err)
	}
	r := waitForBatch(t, g, id)
	if r.Failed != 0 {
		t.Fatalf("template batch failed entries: %d", r.Failed)
	}

	snap, err := g.SceneData(ctx)
	if err != nil {
		t.Fatalf("SceneData() error = %v", err)
	}
	if snap.Counts["camera"] == 0 {
		t.Fatal("studio_scene should have created a camera")
	}
}

func TestApplyTemplateUnknownName(t *testing.T) {
	g := newTestGateway(t)
	if _, err := g.ApplyTemplate(context.Background(), "no_such_template", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestQuery(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	out := g.Query(ctx, "please add a cube")
	if !out.Success {
		t.Fatalf("query failed: %+v", out.Error)
	}

	out = g.Query(ctx, "argle bargle")
	if out.Success {
		t.Fatal("expected unparseable query to fail")
	}
	if out.Error.Kind != command.KindInvalidParameter {
		t.Fatalf("error kind = %s, want InvalidParameter", out.Error.Kind)
	}
}

func TestStatusReport(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	g.SubmitCommand(ctx, command.Request{
		Name:   "add_object",
		Params: map[string]interface{}{"type": "sphere"},
	})

	report := g.Status(ctx)
	if report.Server != "blendgate" {
		t.Fatalf("server = %q, want blendgate", report.Server)
	}
	if report.Commands != 1 {
		t.Fatalf("commands = %d, want 1", report.Commands)
	}
	if report.CatalogSize == 0 {
		t.Fatal("catalog size should not be zero")
	}
	if report.SceneCounts["mesh"] != 1 {
		t.Fatalf("scene mesh count = %d, want 1", report.SceneCounts["mesh"])
	}
}

func TestStatusIncludesChannelStates(t *testing.T) {
	g := newTestGateway(t)
	g.SetChannelReporter(func() map[string]bool {
		return map[string]bool{"http": true, "websocket": false}
	})

	report := g.Status(context.Background())
	if !report.Channels["http"] || report.Channels["websocket"] {
		t.Fatalf("channels = %v, want http on, websocket off", report.Channels)
	}
}

func TestPollBatchNotFound(t *testing.T) {
	g := newTestGateway(t)
	_, err := g.PollBatch(context.Background(), "missing")
	if !errors.Is(err, batch.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestEventsPublishedOnCommand(t *testing.T) {
	g := newTestGateway(t)
	ch, cancel := g.Events().Subscribe("test", 8)
	defer cancel()

	g.SubmitCommand(context.Background(), command.Request{
		Name:   "add_object",
		Params: map[string]interface{}{"type": "cube"},
	})

	types := map[string]bool{}
	timeout := time.After(time.Second)
	for len(types) < 2 {
		select {
		case ev := <-ch:
			types[ev.Type] = true
		case <-timeout:
			t.Fatalf("saw event types %v, want command_executed and scene_update", types)
		}
	}
	if !types["command_executed"] || !types["scene_update"] {
		t.Fatalf("event types = %v", types)
	}
}

func TestStatsPersistAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.json")

	s := NewStats(path)
	s.CommandExecuted(true)
	s.CommandExecuted(false)
	s.BatchSubmitted()
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	loaded := NewStats(path)
	if loaded.Commands() != 2 {
		t.Fatalf("commands = %d, want 2", loaded.Commands())
	}
	if loaded.Errors() != 1 {
		t.Fatalf("errors = %d, want 1", loaded.Errors())
	}
	if loaded.Batches() != 1 {
		t.Fatalf("batches = %d, want 1", loaded.Batches())
	}
}

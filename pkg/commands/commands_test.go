package commands

import (
	"context"
	"testing"

	"github.com/Srjnnnn/blendgate/pkg/command"
	"github.com/Srjnnnn/blendgate/pkg/scene"
	"github.com/Srjnnnn/blendgate/pkg/scene/memory"
	"github.com/Srjnnnn/blendgate/pkg/script"
)

// tryRun validates params against the handler's contract the way the
// executor would, then executes with the normalized payload.
func tryRun(h command.Handler, params map[string]interface{}) (map[string]interface{}, error) {
	validated, err := command.Validate(h.Contract(), params)
	if err != nil {
		return nil, err
	}
	return h.Execute(context.Background(), validated)
}

func run(t *testing.T, h command.Handler, params map[string]interface{}) map[string]interface{} {
	t.Helper()
	result, err := tryRun(h, params)
	if err != nil {
		t.Fatalf("%s: %v", h.Name(), err)
	}
	return result
}

func wantKind(t *testing.T, err error, kind command.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	ce, ok := command.AsError(err)
	if !ok {
		t.Fatalf("error %v carries no kind", err)
	}
	if ce.Kind != kind {
		t.Fatalf("kind = %s, want %s (%s)", ce.Kind, kind, ce.Message)
	}
}

func seed(t *testing.T, b *memory.Backend, kind, name string, attrs map[string]interface{}) {
	t.Helper()
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	attrs["name"] = name
	if _, err := b.CreateEntity(context.Background(), kind, attrs); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
}

func entityByName(t *testing.T, b *memory.Backend, name string) *scene.Entity {
	t.Helper()
	ctx := context.Background()
	id, err := b.Resolve(ctx, name)
	if err != nil {
		t.Fatalf("Resolve(%s): %v", name, err)
	}
	ent, err := b.Inspect(ctx, id)
	if err != nil {
		t.Fatalf("Inspect(%s): %v", name, err)
	}
	return ent
}

func gone(t *testing.T, b *memory.Backend, name string) {
	t.Helper()
	if _, err := b.Resolve(context.Background(), name); err == nil {
		t.Fatalf("%s should not exist", name)
	}
}

func mustVec(t *testing.T, v interface{}) []float64 {
	t.Helper()
	out, ok := coerceVec3(v)
	if !ok {
		t.Fatalf("value %v is not a vec3", v)
	}
	return out
}

func TestRegisterAllWiresTheCatalog(t *testing.T) {
	backend := memory.NewBackend()
	reg := command.NewRegistry()
	if err := RegisterAll(reg, backend, script.New(backend)); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	want := []string{
		"add_object", "delete_object", "move_object", "rotate_object", "scale_object",
		"set_material", "render",
		"animate", "animate_advanced", "camera_animation",
		"geometry_nodes", "create_node_group",
		"lighting_setup", "physics_simulation",
		"procedural_generation",
		"ai_optimize_scene", "ai_suggest_improvements",
		"script",
	}
	if reg.Len() != len(want) {
		t.Fatalf("registered %d commands, want %d", reg.Len(), len(want))
	}
	for _, name := range want {
		if _, err := reg.Lookup(name); err != nil {
			t.Fatalf("Lookup(%s): %v", name, err)
		}
	}

	// Registering twice must trip the duplicate guard.
	err := RegisterAll(reg, backend, script.New(backend))
	wantKind(t, err, command.KindDuplicateCommand)
}

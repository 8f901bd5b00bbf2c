package script

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Srjnnnn/blendgate/pkg/scene"
	"github.com/Srjnnnn/blendgate/pkg/scene/memory"
)

func seedEntity(t *testing.T, b *memory.Backend, kind, name string, attrs map[string]interface{}) {
	t.Helper()
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	attrs["name"] = name
	if _, err := b.CreateEntity(context.Background(), kind, attrs); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
}

func TestRunCapturesPrint(t *testing.T) {
	eng := New(memory.NewBackend())

	res, err := eng.Run(context.Background(), `print("hello", 1, true) print("second")`, ContextSafe)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"hello\t1\ttrue", "second"}
	if !reflect.DeepEqual(res.Output, want) {
		t.Fatalf("output = %q, want %q", res.Output, want)
	}
}

func TestRunReturnsGlobals(t *testing.T) {
	eng := New(memory.NewBackend())

	res, err := eng.Run(context.Background(), `
		return {count = 3, label = "ok", ratio = 1.5, items = {1, 2, 3}}
	`, ContextSafe)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := res.Globals["count"]; got != 3 {
		t.Fatalf("count = %v (%T), want 3", got, got)
	}
	if got := res.Globals["label"]; got != "ok" {
		t.Fatalf("label = %v, want ok", got)
	}
	if got := res.Globals["ratio"]; got != 1.5 {
		t.Fatalf("ratio = %v, want 1.5", got)
	}
	if got := res.Globals["items"]; !reflect.DeepEqual(got, []interface{}{1, 2, 3}) {
		t.Fatalf("items = %v, want [1 2 3]", got)
	}
}

func TestRunWithoutReturnLeavesGlobalsNil(t *testing.T) {
	eng := New(memory.NewBackend())

	res, err := eng.Run(context.Background(), `local x = 1 + 1`, ContextSafe)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Globals != nil {
		t.Fatalf("globals = %v, want nil", res.Globals)
	}
}

func TestSceneReadBindings(t *testing.T) {
	backend := memory.NewBackend()
	seedEntity(t, backend, scene.KindMesh, "Cube", map[string]interface{}{"primitive": "cube"})
	seedEntity(t, backend, scene.KindCamera, "Camera", nil)
	seedEntity(t, backend, scene.KindMaterial, "Steel", nil)
	eng := New(backend)

	res, err := eng.Run(context.Background(), `
		local objs = scene.objects()
		local cube = scene.get("Cube")
		local stats = scene.stats()
		return {
			object_count = #objs,
			cube_kind = cube.kind,
			cube_primitive = cube.attrs.primitive,
			total = stats.total,
			meshes = stats.counts.mesh,
			missing = scene.get("Nope") == nil,
		}
	`, ContextSafe)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Materials are not objects, so only the mesh and the camera count.
	if got := res.Globals["object_count"]; got != 2 {
		t.Fatalf("object_count = %v, want 2", got)
	}
	if got := res.Globals["cube_kind"]; got != scene.KindMesh {
		t.Fatalf("cube_kind = %v, want %s", got, scene.KindMesh)
	}
	if got := res.Globals["cube_primitive"]; got != "cube" {
		t.Fatalf("cube_primitive = %v, want cube", got)
	}
	if got := res.Globals["total"]; got != 3 {
		t.Fatalf("total = %v, want 3", got)
	}
	if got := res.Globals["meshes"]; got != 1 {
		t.Fatalf("meshes = %v, want 1", got)
	}
	if got := res.Globals["missing"]; got != true {
		t.Fatalf("missing = %v, want true", got)
	}
}

func TestSafeContextHidesMutators(t *testing.T) {
	eng := New(memory.NewBackend())

	res, err := eng.Run(context.Background(), `
		return {
			create = scene.create == nil,
			set = scene.set == nil,
			delete = scene.delete == nil,
			os_gone = os == nil,
		}
	`, ContextSafe)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, key := range []string{"create", "set", "delete", "os_gone"} {
		if res.Globals[key] != true {
			t.Fatalf("%s should be hidden in safe context, globals = %v", key, res.Globals)
		}
	}
}

func TestRestrictedContextMutatesScene(t *testing.T) {
	backend := memory.NewBackend()
	seedEntity(t, backend, scene.KindMesh, "Old", nil)
	eng := New(backend)

	res, err := eng.Run(context.Background(), `
		local name = scene.create("mesh", {name = "FromLua", location = {1, 2, 3}})
		scene.set(name, {material = "Steel"})
		scene.delete("Old")
		return {created = name}
	`, ContextRestricted)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := res.Globals["created"]; got != "FromLua" {
		t.Fatalf("created = %v, want FromLua", got)
	}

	ctx := context.Background()
	id, err := backend.Resolve(ctx, "FromLua")
	if err != nil {
		t.Fatalf("created entity missing: %v", err)
	}
	ent, err := backend.Inspect(ctx, id)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if ent.Attrs["material"] != "Steel" {
		t.Fatalf("material = %v, want Steel", ent.Attrs["material"])
	}
	if _, err := backend.Resolve(ctx, "Old"); !errors.Is(err, scene.ErrNotFound) {
		t.Fatalf("Old should be deleted, Resolve err = %v", err)
	}
}

func TestMutatingMissingObjectRaises(t *testing.T) {
	eng := New(memory.NewBackend())

	_, err := eng.Run(context.Background(), `scene.set("Ghost", {x = 1})`, ContextRestricted)
	if err == nil {
		t.Fatal("expected error for missing object")
	}
	if !strings.Contains(err.Error(), "Ghost") {
		t.Fatalf("error should name the object, got %v", err)
	}
}

func TestFullContextRequiresOptIn(t *testing.T) {
	eng := New(memory.NewBackend())

	if _, err := eng.Run(context.Background(), `return {}`, ContextFull); !errors.Is(err, ErrFullDisabled) {
		t.Fatalf("err = %v, want ErrFullDisabled", err)
	}
}

func TestFullContextExposesClock(t *testing.T) {
	eng := New(memory.NewBackend(), WithFullContext(true))

	res, err := eng.Run(context.Background(), `
		return {has_time = os.time() > 0, has_clock = os.clock() >= 0}
	`, ContextFull)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Globals["has_time"] != true || res.Globals["has_clock"] != true {
		t.Fatalf("os bindings missing, globals = %v", res.Globals)
	}
}

func TestStepBudgetStopsRunawayLoops(t *testing.T) {
	eng := New(memory.NewBackend(), WithStepBudget(10_000))

	_, err := eng.Run(context.Background(), `while true do end`, ContextSafe)
	if err == nil {
		t.Fatal("expected budget error")
	}
	if !strings.Contains(err.Error(), "budget") {
		t.Fatalf("err = %v, want budget exhaustion", err)
	}
}

func TestCanceledContextStopsScript(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng := New(memory.NewBackend())

	_, err := eng.Run(ctx, `local i = 0 while true do i = i + 1 end`, ContextSafe)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !strings.Contains(err.Error(), "cancel") {
		t.Fatalf("err = %v, want cancellation", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want errors.Is(context.Canceled)", err)
	}
}

func TestDeadlineExceededSurvivesWrapping(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	eng := New(memory.NewBackend(), WithStepBudget(1<<30))

	_, err := eng.Run(ctx, `local i = 0 while true do i = i + 1 end`, ContextSafe)
	if err == nil {
		t.Fatal("expected deadline error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want errors.Is(context.DeadlineExceeded)", err)
	}
}

func TestUnknownContextRejected(t *testing.T) {
	eng := New(memory.NewBackend())

	if _, err := eng.Run(context.Background(), `return {}`, "yolo"); err == nil {
		t.Fatal("expected error for unknown context")
	}
}

func TestEmptyScriptRejected(t *testing.T) {
	eng := New(memory.NewBackend())

	if _, err := eng.Run(context.Background(), "   \n", ContextSafe); err == nil {
		t.Fatal("expected error for empty script")
	}
}

func TestParseErrorReported(t *testing.T) {
	eng := New(memory.NewBackend())

	_, err := eng.Run(context.Background(), `this is not lua`, ContextSafe)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "parse script") {
		t.Fatalf("err = %v, want parse failure", err)
	}
}

func TestFileLoadersAreScrubbed(t *testing.T) {
	eng := New(memory.NewBackend(), WithFullContext(true))

	for _, trust := range []string{ContextSafe, ContextRestricted, ContextFull} {
		res, err := eng.Run(context.Background(), `
			return {dofile = dofile == nil, loadfile = loadfile == nil, load = load == nil}
		`, trust)
		if err != nil {
			t.Fatalf("Run(%s): %v", trust, err)
		}
		for _, key := range []string{"dofile", "loadfile", "load"} {
			if res.Globals[key] != true {
				t.Fatalf("%s still reachable in %s context", key, trust)
			}
		}
	}
}

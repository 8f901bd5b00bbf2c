package commands

import (
	"context"
	"testing"

	"github.com/Srjnnnn/blendgate/pkg/command"
	"github.com/Srjnnnn/blendgate/pkg/scene"
	"github.com/Srjnnnn/blendgate/pkg/scene/memory"
)

func TestLightingThreePoint(t *testing.T) {
	backend := memory.NewBackend()
	h := NewLightingSetup(backend)

	result := run(t, h, map[string]interface{}{"strength": 2.0})

	lights, _ := result["lights"].([]interface{})
	if len(lights) != 3 {
		t.Fatalf("lights = %v, want 3", lights)
	}

	key := entityByName(t, backend, "KeyLight")
	if key.Attrs["light_type"] != "SUN" {
		t.Fatalf("KeyLight type = %v, want SUN", key.Attrs["light_type"])
	}
	if key.Attrs["energy"] != 2.0 {
		t.Fatalf("KeyLight energy = %v, want 2", key.Attrs["energy"])
	}
	if got := mustVec(t, key.Attrs["color"]); got[2] != 0.8 {
		t.Fatalf("KeyLight color = %v, want warm preset", got)
	}

	fill := entityByName(t, backend, "FillLight")
	if fill.Attrs["energy"] != 0.6 {
		t.Fatalf("FillLight energy = %v, want 0.6", fill.Attrs["energy"])
	}
	rim := entityByName(t, backend, "RimLight")
	if rim.Attrs["light_type"] != "SPOT" {
		t.Fatalf("RimLight type = %v, want SPOT", rim.Attrs["light_type"])
	}
}

func TestLightingStudio(t *testing.T) {
	backend := memory.NewBackend()
	h := NewLightingSetup(backend)

	result := run(t, h, map[string]interface{}{
		"type":  "studio",
		"color": []interface{}{0.9, 0.9, 1.0},
	})

	lights, _ := result["lights"].([]interface{})
	if len(lights) != 4 {
		t.Fatalf("lights = %v, want 4", lights)
	}

	top := entityByName(t, backend, "StudioTop")
	if top.Attrs["energy"] != 0.2 {
		t.Fatalf("StudioTop energy = %v, want 0.2", top.Attrs["energy"])
	}
	if top.Attrs["size"] != 4.0 {
		t.Fatalf("StudioTop size = %v, want 4", top.Attrs["size"])
	}
	// Studio rigs take the requested color on every light.
	if got := mustVec(t, top.Attrs["color"]); got[0] != 0.9 {
		t.Fatalf("StudioTop color = %v, want override applied", got)
	}
}

func TestLightingSun(t *testing.T) {
	backend := memory.NewBackend()
	h := NewLightingSetup(backend)

	result := run(t, h, map[string]interface{}{
		"type":  "sun",
		"color": []interface{}{1.0, 0.9, 0.7},
	})

	lights, _ := result["lights"].([]interface{})
	if len(lights) != 1 || lights[0] != "Sun" {
		t.Fatalf("lights = %v, want [Sun]", lights)
	}
	sun := entityByName(t, backend, "Sun")
	if got := mustVec(t, sun.Attrs["color"]); got[2] != 0.7 {
		t.Fatalf("Sun color = %v, want param applied", got)
	}
}

func TestLightingHDRIUpserts(t *testing.T) {
	backend := memory.NewBackend()
	h := NewLightingSetup(backend)

	first := run(t, h, map[string]interface{}{"type": "hdri", "strength": 1.5})
	lights, _ := first["lights"].([]interface{})
	if len(lights) != 1 || lights[0] != "Environment" {
		t.Fatalf("first lights = %v, want [Environment]", lights)
	}

	second := run(t, h, map[string]interface{}{"type": "hdri", "strength": 3.0})
	lights, _ = second["lights"].([]interface{})
	// The second run mutated the existing world entity, so there is nothing
	// new for a rollback to delete.
	if len(lights) != 0 {
		t.Fatalf("second lights = %v, want empty", lights)
	}

	env := entityByName(t, backend, "Environment")
	if env.Kind != scene.KindWorld {
		t.Fatalf("kind = %s, want world", env.Kind)
	}
	if env.Attrs["strength"] != 3.0 {
		t.Fatalf("strength = %v, want 3 after second run", env.Attrs["strength"])
	}
}

func TestLightingStrengthMustBePositive(t *testing.T) {
	h := NewLightingSetup(memory.NewBackend())

	_, err := tryRun(h, map[string]interface{}{"strength": 0.0})
	wantKind(t, err, command.KindInvalidParameter)
}

func TestLightingRevertDeletesRig(t *testing.T) {
	backend := memory.NewBackend()
	h := NewLightingSetup(backend)

	result := run(t, h, map[string]interface{}{})
	if err := h.Revert(context.Background(), nil, result); err != nil {
		t.Fatalf("Revert: %v", err)
	}

	for _, name := range []string{"KeyLight", "FillLight", "RimLight"} {
		gone(t, backend, name)
	}
}

func TestPhysicsSimulation(t *testing.T) {
	backend := memory.NewBackend()
	seed(t, backend, scene.KindMesh, "Cube", nil)
	h := NewPhysicsSimulation(backend)

	result := run(t, h, map[string]interface{}{"object": "Cube"})

	if result["type"] != "rigid_body" || result["baked"] != false {
		t.Fatalf("result = %v", result)
	}
	cube := entityByName(t, backend, "Cube")
	sim, ok := cube.Attrs["physics"].(map[string]interface{})
	if !ok {
		t.Fatalf("physics attr missing: %v", cube.Attrs)
	}
	if sim["mass"] != 1.0 || sim["frame_end"] != 250 {
		t.Fatalf("physics = %v", sim)
	}
}

func TestPhysicsSimulationBake(t *testing.T) {
	backend := memory.NewBackend()
	seed(t, backend, scene.KindMesh, "Cloth", nil)
	h := NewPhysicsSimulation(backend)

	result := run(t, h, map[string]interface{}{
		"object": "Cloth",
		"type":   "cloth",
		"bake":   true,
	})

	if result["baked"] != true {
		t.Fatalf("baked = %v, want true", result["baked"])
	}
	ent := entityByName(t, backend, "Cloth")
	sim := ent.Attrs["physics"].(map[string]interface{})
	if sim["baked"] != true {
		t.Fatalf("physics = %v, want baked", sim)
	}
}

func TestPhysicsSimulationNeedsMesh(t *testing.T) {
	backend := memory.NewBackend()
	seed(t, backend, scene.KindLight, "Lamp", nil)
	h := NewPhysicsSimulation(backend)

	_, err := tryRun(h, map[string]interface{}{"object": "Lamp"})
	wantKind(t, err, command.KindInvalidParameter)
}

func TestPhysicsSimulationRevert(t *testing.T) {
	backend := memory.NewBackend()
	seed(t, backend, scene.KindMesh, "Cube", nil)
	h := NewPhysicsSimulation(backend)

	result := run(t, h, map[string]interface{}{"object": "Cube"})
	if err := h.Revert(context.Background(), nil, result); err != nil {
		t.Fatalf("Revert: %v", err)
	}

	cube := entityByName(t, backend, "Cube")
	if cube.Attrs["physics"] != nil {
		t.Fatalf("physics = %v, want cleared", cube.Attrs["physics"])
	}
}

package commands

import (
	"context"
	"reflect"
	"testing"

	"github.com/Srjnnnn/blendgate/pkg/command"
	"github.com/Srjnnnn/blendgate/pkg/scene"
	"github.com/Srjnnnn/blendgate/pkg/scene/memory"
)

func TestSetMaterialCreates(t *testing.T) {
	backend := memory.NewBackend()
	seed(t, backend, scene.KindMesh, "Cube", nil)
	h := NewSetMaterial(backend)

	result := run(t, h, map[string]interface{}{
		"object":    "Cube",
		"material":  "Gold",
		"color":     []interface{}{1.0, 0.8, 0.2, 1.0},
		"metallic":  1.0,
		"roughness": 0.1,
	})

	if result["created"] != true {
		t.Fatalf("created = %v, want true", result["created"])
	}
	mat := entityByName(t, backend, "Gold")
	if mat.Kind != scene.KindMaterial {
		t.Fatalf("kind = %s, want material", mat.Kind)
	}
	if mat.Attrs["metallic"] != 1.0 {
		t.Fatalf("metallic = %v, want 1", mat.Attrs["metallic"])
	}
	if got, ok := mat.Attrs["color"].([]float64); !ok || !reflect.DeepEqual(got, []float64{1, 0.8, 0.2, 1}) {
		t.Fatalf("color = %v, want [1 0.8 0.2 1]", mat.Attrs["color"])
	}
	cube := entityByName(t, backend, "Cube")
	if cube.Attrs["material"] != "Gold" {
		t.Fatalf("assigned material = %v, want Gold", cube.Attrs["material"])
	}
}

func TestSetMaterialReusesExisting(t *testing.T) {
	backend := memory.NewBackend()
	seed(t, backend, scene.KindMesh, "Cube", nil)
	seed(t, backend, scene.KindMaterial, "Gold", map[string]interface{}{"roughness": 0.9})
	h := NewSetMaterial(backend)

	result := run(t, h, map[string]interface{}{
		"object":    "Cube",
		"material":  "Gold",
		"roughness": 0.2,
	})

	if result["created"] != false {
		t.Fatalf("created = %v, want false", result["created"])
	}
	mat := entityByName(t, backend, "Gold")
	if mat.Attrs["roughness"] != 0.2 {
		t.Fatalf("roughness = %v, want 0.2", mat.Attrs["roughness"])
	}
}

func TestSetMaterialRecordsPrevious(t *testing.T) {
	backend := memory.NewBackend()
	seed(t, backend, scene.KindMesh, "Cube", map[string]interface{}{"material": "OldPaint"})
	h := NewSetMaterial(backend)

	result := run(t, h, map[string]interface{}{"object": "Cube", "material": "Chrome"})

	prev, ok := result["previous"].(map[string]interface{})
	if !ok {
		t.Fatalf("previous missing from result: %v", result)
	}
	if prev["material"] != "OldPaint" {
		t.Fatalf("previous material = %v, want OldPaint", prev["material"])
	}
}

func TestSetMaterialRevert(t *testing.T) {
	backend := memory.NewBackend()
	seed(t, backend, scene.KindMesh, "Cube", map[string]interface{}{"material": "OldPaint"})
	h := NewSetMaterial(backend)

	result := run(t, h, map[string]interface{}{"object": "Cube", "material": "Chrome"})
	if err := h.Revert(context.Background(), nil, result); err != nil {
		t.Fatalf("Revert: %v", err)
	}

	cube := entityByName(t, backend, "Cube")
	if cube.Attrs["material"] != "OldPaint" {
		t.Fatalf("material = %v, want OldPaint restored", cube.Attrs["material"])
	}
	// The material entity was created by the command, so the revert removes it.
	gone(t, backend, "Chrome")
}

func TestSetMaterialRevertKeepsSharedMaterial(t *testing.T) {
	backend := memory.NewBackend()
	seed(t, backend, scene.KindMesh, "Cube", nil)
	seed(t, backend, scene.KindMaterial, "Gold", nil)
	h := NewSetMaterial(backend)

	result := run(t, h, map[string]interface{}{"object": "Cube", "material": "Gold"})
	if err := h.Revert(context.Background(), nil, result); err != nil {
		t.Fatalf("Revert: %v", err)
	}

	// Pre-existing materials survive the rollback.
	entityByName(t, backend, "Gold")
	cube := entityByName(t, backend, "Cube")
	if got, ok := cube.Attrs["material"].(string); ok && got != "" {
		t.Fatalf("material = %q, want cleared", got)
	}
}

func TestSetMaterialValidation(t *testing.T) {
	backend := memory.NewBackend()
	seed(t, backend, scene.KindMesh, "Cube", nil)
	h := NewSetMaterial(backend)

	tests := []struct {
		name   string
		params map[string]interface{}
		kind   command.Kind
	}{
		{"missing object", map[string]interface{}{}, command.KindMissingParameter},
		{"unknown object", map[string]interface{}{"object": "Ghost"}, command.KindInvalidParameter},
		{"metallic above range", map[string]interface{}{"object": "Cube", "metallic": 1.5}, command.KindInvalidParameter},
		{"short color", map[string]interface{}{"object": "Cube", "color": []interface{}{1.0, 1.0, 1.0}}, command.KindInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tryRun(h, tt.params)
			wantKind(t, err, tt.kind)
		})
	}
}

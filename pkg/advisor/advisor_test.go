package advisor

import (
	"math"
	"testing"

	"github.com/Srjnnnn/blendgate/pkg/scene"
)

func snapshotWith(entities ...scene.Entity) *scene.Snapshot {
	return &scene.Snapshot{Entities: entities}
}

func mesh(name string, vertices int, loc []float64, material string) scene.Entity {
	attrs := map[string]interface{}{"vertices": vertices}
	if loc != nil {
		attrs["location"] = loc
	}
	if material != "" {
		attrs["material"] = material
	}
	return scene.Entity{Kind: scene.KindMesh, Name: name, Attrs: attrs}
}

func TestAnalyzeCounts(t *testing.T) {
	snap := snapshotWith(
		mesh("Cube", 8, nil, "Steel"),
		mesh("Sphere", 482, nil, ""),
		scene.Entity{Kind: scene.KindLight, Name: "Key"},
		scene.Entity{Kind: scene.KindCamera, Name: "Camera"},
		scene.Entity{Kind: scene.KindMaterial, Name: "Steel"},
		scene.Entity{Kind: scene.KindEmpty, Name: "Anchor",
			Attrs: map[string]interface{}{"animated": true}},
	)

	a := Analyze(snap)
	if a.ObjectCount != 5 {
		t.Fatalf("ObjectCount = %d, want 5", a.ObjectCount)
	}
	if a.MeshObjects != 2 || a.LightCount != 1 || a.CameraCount != 1 {
		t.Fatalf("breakdown = %+v", a)
	}
	if a.MaterialCount != 1 {
		t.Fatalf("MaterialCount = %d, want 1", a.MaterialCount)
	}
	if a.TotalVertices != 490 {
		t.Fatalf("TotalVertices = %d, want 490", a.TotalVertices)
	}
	if !a.HasAnimation {
		t.Fatal("animated entity not detected")
	}
}

func TestScoreIsCapped(t *testing.T) {
	small := Analysis{ObjectCount: 3, TotalVertices: 1000, MaterialCount: 2}
	want := 3*0.1 + 1000*0.0001 + 2*0.05
	if got := Score(small); math.Abs(got-want) > 1e-9 {
		t.Fatalf("Score = %v, want %v", got, want)
	}

	huge := Analysis{ObjectCount: 10000, TotalVertices: 5000000, MaterialCount: 300}
	if got := Score(huge); got != 10 {
		t.Fatalf("Score = %v, want cap of 10", got)
	}
}

func TestBuildContextFlags(t *testing.T) {
	empty := BuildContext(snapshotWith())
	for _, flag := range []string{"empty_scene", "no_camera", "no_lights", "no_materials"} {
		if !hasFlag(empty.Flags, flag) {
			t.Fatalf("empty scene missing flag %s: %v", flag, empty.Flags)
		}
	}
	if len(empty.Recommendations) != 3 {
		t.Fatalf("recommendations = %v", empty.Recommendations)
	}

	furnished := BuildContext(snapshotWith(
		mesh("Cube", 8, nil, "Steel"),
		scene.Entity{Kind: scene.KindLight, Name: "Key"},
		scene.Entity{Kind: scene.KindCamera, Name: "Camera"},
		scene.Entity{Kind: scene.KindMaterial, Name: "Steel"},
	))
	if len(furnished.Flags) != 0 {
		t.Fatalf("furnished scene flags = %v", furnished.Flags)
	}
	if len(furnished.Recommendations) != 0 {
		t.Fatalf("furnished scene recommendations = %v", furnished.Recommendations)
	}
}

func TestSuggestComposition(t *testing.T) {
	out, err := Suggest(snapshotWith(), "")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("suggestions = %+v", out)
	}
	if out[0].Priority != "high" || out[0].Action == nil || out[0].Action.Command != "add_object" {
		t.Fatalf("empty-scene suggestion = %+v", out[0])
	}
	if out[1].Action == nil || out[1].Action.Params["type"] != "camera" {
		t.Fatalf("camera suggestion = %+v", out[1])
	}
}

func TestSuggestDetectsClustering(t *testing.T) {
	tight := snapshotWith(
		mesh("A", 8, []float64{0, 0, 0}, "m"),
		mesh("B", 8, []float64{1, 0, 0}, "m"),
		mesh("C", 8, []float64{0, 1, 0}, "m"),
		scene.Entity{Kind: scene.KindCamera, Name: "Camera"},
	)
	out, err := Suggest(tight, FocusComposition)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(out) != 1 || out[0].Area != "composition" {
		t.Fatalf("clustered suggestions = %+v", out)
	}

	spread := snapshotWith(
		mesh("A", 8, []float64{-10, 0, 0}, "m"),
		mesh("B", 8, []float64{10, 0, 0}, "m"),
		scene.Entity{Kind: scene.KindCamera, Name: "Camera"},
	)
	out, err = Suggest(spread, FocusComposition)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("spread scene suggestions = %+v", out)
	}
}

func TestSuggestLighting(t *testing.T) {
	dark, err := Suggest(snapshotWith(mesh("Cube", 8, nil, "m")), FocusLighting)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(dark) != 1 || dark[0].Priority != "high" || dark[0].Action.Command != "lighting_setup" {
		t.Fatalf("dark scene = %+v", dark)
	}

	single, err := Suggest(snapshotWith(
		scene.Entity{Kind: scene.KindLight, Name: "Key"},
	), FocusLighting)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(single) != 1 || single[0].Priority != "medium" {
		t.Fatalf("single light = %+v", single)
	}
}

func TestSuggestMaterials(t *testing.T) {
	out, err := Suggest(snapshotWith(
		mesh("Bare1", 8, nil, ""),
		mesh("Bare2", 8, nil, ""),
		mesh("Clothed", 8, nil, "Steel"),
	), FocusMaterials)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(out) != 1 || out[0].Text != "2 objects have no materials." {
		t.Fatalf("materials = %+v", out)
	}
}

func TestSuggestPerformance(t *testing.T) {
	heavy := snapshotWith(mesh("Statue", 120000, nil, "m"))
	out, err := Suggest(heavy, FocusPerformance)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(out) != 1 || out[0].Action.Command != "ai_optimize_scene" {
		t.Fatalf("performance = %+v", out)
	}

	light := snapshotWith(mesh("Cube", 8, nil, "m"))
	out, err = Suggest(light, FocusPerformance)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("light scene performance = %+v", out)
	}
}

func TestSuggestUnknownFocus(t *testing.T) {
	if _, err := Suggest(snapshotWith(), "vibes"); err == nil {
		t.Fatal("unknown focus accepted")
	}
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

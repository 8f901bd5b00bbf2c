package templates

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestListEmbeddedDefaults(t *testing.T) {
	store := NewStore("")

	all, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	names := make([]string, len(all))
	for i, tpl := range all {
		names[i] = tpl.Name
		if tpl.Description == "" {
			t.Fatalf("template %s has no description", tpl.Name)
		}
		if len(tpl.Commands) == 0 {
			t.Fatalf("template %s has no commands", tpl.Name)
		}
	}

	want := []string{"product_showcase", "studio_scene", "terrain_env"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("names = %v, want sorted %v", names, want)
		}
	}
}

func TestWorkspaceOverrideWins(t *testing.T) {
	dir := t.TempDir()
	override := `
name: studio_scene
description: Replaced by the workspace
commands:
  - command: add_object
    params: {type: cube}
`
	if err := os.WriteFile(filepath.Join(dir, "studio_scene.yaml"), []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewStore(dir)
	tpl, err := store.Get("studio_scene")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tpl.Description != "Replaced by the workspace" {
		t.Fatalf("description = %q, want the override", tpl.Description)
	}
	if len(tpl.Commands) != 1 {
		t.Fatalf("commands = %d, want 1", len(tpl.Commands))
	}
}

func TestWorkspaceAddsTemplate(t *testing.T) {
	dir := t.TempDir()
	extra := `
description: Single cube drop
commands:
  - command: add_object
    params: {type: cube, name: Dropped}
`
	if err := os.WriteFile(filepath.Join(dir, "cube_drop.yml"), []byte(extra), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewStore(dir)
	// The name falls back to the file stem when the document omits it.
	tpl, err := store.Get("cube_drop")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tpl.Commands[0].Params["name"] != "Dropped" {
		t.Fatalf("params = %v", tpl.Commands[0].Params)
	}
}

func TestGetUnknownTemplate(t *testing.T) {
	store := NewStore("")

	_, err := store.Get("volcano_lair")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMissingWorkspaceDirIsFine(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "never_created"))

	if _, err := store.List(); err != nil {
		t.Fatalf("List: %v", err)
	}
}

func TestExpandSubstitutesTypedPlaceholders(t *testing.T) {
	store := NewStore("")
	tpl, err := store.Get("terrain_env")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	steps, err := tpl.Expand(map[string]interface{}{"seed": 7})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	if steps[0].Command != "procedural_generation" {
		t.Fatalf("first step = %v", steps[0])
	}
	if steps[0].Params["seed"] != 7 {
		t.Fatalf("seed = %v (%T), want the caller's 7", steps[0].Params["seed"], steps[0].Params["seed"])
	}
	// Untouched params keep the template defaults.
	if steps[0].Params["size"] != 40.0 {
		t.Fatalf("size = %v, want the declared default", steps[0].Params["size"])
	}
	// Conditions survive expansion.
	if steps[4].Condition == nil || steps[4].Condition.DependsOn[0] != 3 {
		t.Fatalf("condition = %v", steps[4].Condition)
	}
}

func TestExpandKeepsValueTypesInVectors(t *testing.T) {
	store := NewStore("")
	tpl, err := store.Get("product_showcase")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	steps, err := tpl.Expand(map[string]interface{}{"product_scale": 2.5})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	scale, ok := steps[1].Params["scale"].([]interface{})
	if !ok || len(scale) != 3 {
		t.Fatalf("scale = %v", steps[1].Params["scale"])
	}
	for _, v := range scale {
		if v != 2.5 {
			t.Fatalf("scale element = %v (%T), want 2.5", v, v)
		}
	}
}

func TestExpandStringInterpolation(t *testing.T) {
	tpl := &Template{
		Name:   "t",
		Params: map[string]interface{}{"subject": "Cube"},
		Commands: []Step{
			{Command: "set_material", Params: map[string]interface{}{
				"object":   "${subject}",
				"material": "${subject}_paint",
			}},
		},
	}

	steps, err := tpl.Expand(nil)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if steps[0].Params["object"] != "Cube" {
		t.Fatalf("object = %v", steps[0].Params["object"])
	}
	if steps[0].Params["material"] != "Cube_paint" {
		t.Fatalf("material = %v", steps[0].Params["material"])
	}
}

func TestExpandMissingValue(t *testing.T) {
	tpl := &Template{
		Name: "t",
		Commands: []Step{
			{Command: "render", Params: map[string]interface{}{"samples": "${samples}"}},
		},
	}

	_, err := tpl.Expand(nil)
	if err == nil || !strings.Contains(err.Error(), "${samples}") {
		t.Fatalf("err = %v, want a missing-placeholder failure", err)
	}
}

func TestPresets(t *testing.T) {
	store := NewStore("")

	presets, err := store.Presets()
	if err != nil {
		t.Fatalf("Presets: %v", err)
	}

	for _, name := range []string{"quick_render", "pbr_metal", "three_point_lighting", "turntable"} {
		preset, ok := presets[name]
		if !ok {
			t.Fatalf("preset %s missing from %v", name, presets)
		}
		if preset.Command == "" {
			t.Fatalf("preset %s has no command", name)
		}
	}
	if presets["quick_render"].Params["samples"] != 32 {
		t.Fatalf("quick_render = %v", presets["quick_render"].Params)
	}
}

func TestWorkspacePresetOverride(t *testing.T) {
	dir := t.TempDir()
	override := `
quick_render:
  command: render
  params:
    samples: 16
house_style:
  command: set_material
  params:
    material: HouseStyle
`
	if err := os.WriteFile(filepath.Join(dir, "presets.yaml"), []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewStore(dir)
	presets, err := store.Presets()
	if err != nil {
		t.Fatalf("Presets: %v", err)
	}
	if presets["quick_render"].Params["samples"] != 16 {
		t.Fatalf("quick_render = %v, want the override", presets["quick_render"].Params)
	}
	if _, ok := presets["house_style"]; !ok {
		t.Fatal("workspace-added preset missing")
	}
	// Untouched embedded presets remain.
	if _, ok := presets["pbr_metal"]; !ok {
		t.Fatal("embedded preset lost during merge")
	}
}

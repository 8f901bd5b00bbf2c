package commands

import (
	"context"
	"fmt"

	"github.com/Srjnnnn/blendgate/pkg/advisor"
	"github.com/Srjnnnn/blendgate/pkg/command"
	"github.com/Srjnnnn/blendgate/pkg/scene"
)

// highPolyVertices is the vertex estimate above which a mesh is flagged
// for decimation.
const highPolyVertices = 10000

// OptimizeScene analyzes the scene for cost sinks and, in apply mode,
// executes the safe subset of fixes directly against the backend.
type OptimizeScene struct {
	backend scene.Backend
}

func NewOptimizeScene(backend scene.Backend) *OptimizeScene {
	return &OptimizeScene{backend: backend}
}

func (h *OptimizeScene) Name() string { return "ai_optimize_scene" }

func (h *OptimizeScene) Contract() *command.Contract {
	return &command.Contract{
		Name:        "ai_optimize_scene",
		Description: "Analyze the scene for optimizations, optionally applying them",
		Params: []command.ParamSpec{
			{Key: "mode", Type: command.TypeString, Default: "analyze", Enum: []string{"analyze", "apply"}},
		},
	}
}

func (h *OptimizeScene) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	snap, err := h.backend.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	optimizations := findOptimizations(snap)
	mode := str(params, "mode")
	result := map[string]interface{}{
		"mode":          mode,
		"complexity":    advisor.Score(advisor.Analyze(snap)),
		"optimizations": optimizations,
	}
	if mode != "apply" {
		return result, nil
	}

	applied := 0
	for _, raw := range optimizations {
		opt := raw.(map[string]interface{})
		if err := h.apply(ctx, opt); err != nil {
			return nil, err
		}
		applied++
	}
	result["applied"] = applied
	return result, nil
}

func (h *OptimizeScene) apply(ctx context.Context, opt map[string]interface{}) error {
	target := str(opt, "target")
	switch str(opt, "type") {
	case "decimate":
		ent, err := lookupObject(ctx, h.backend, target)
		if err != nil {
			return err
		}
		modifiers, _ := ent.Attrs["modifiers"].([]interface{})
		modifiers = append(modifiers, map[string]interface{}{"type": "DECIMATE", "ratio": 0.5})
		vertices := 0
		if f, ok := asFloat(ent.Attrs["vertices"]); ok {
			vertices = int(f / 2)
		}
		return h.backend.MutateEntity(ctx, ent.ID, map[string]interface{}{
			"modifiers": modifiers,
			"vertices":  vertices,
		})

	case "remove_material":
		return deleteByName(ctx, h.backend, target)
	}
	return nil
}

// findOptimizations flags high-poly meshes for decimation and unreferenced
// materials for removal.
func findOptimizations(snap *scene.Snapshot) []interface{} {
	used := map[string]bool{}
	for _, ent := range snap.Entities {
		if mat, ok := ent.Attrs["material"].(string); ok && mat != "" {
			used[mat] = true
		}
	}

	out := []interface{}{}
	for _, ent := range snap.Entities {
		switch ent.Kind {
		case scene.KindMesh:
			if f, ok := asFloat(ent.Attrs["vertices"]); ok && int(f) > highPolyVertices {
				out = append(out, map[string]interface{}{
					"type":   "decimate",
					"target": ent.Name,
					"reason": fmt.Sprintf("%d vertices exceed the %d budget", int(f), highPolyVertices),
				})
			}
		case scene.KindMaterial:
			if !used[ent.Name] {
				out = append(out, map[string]interface{}{
					"type":   "remove_material",
					"target": ent.Name,
					"reason": "material is not assigned to any object",
				})
			}
		}
	}
	return out
}

// SuggestImprovements surfaces the advisor's rule-based suggestions for one
// focus area, or all of them.
type SuggestImprovements struct {
	backend scene.Backend
}

func NewSuggestImprovements(backend scene.Backend) *SuggestImprovements {
	return &SuggestImprovements{backend: backend}
}

func (h *SuggestImprovements) Name() string { return "ai_suggest_improvements" }

func (h *SuggestImprovements) Contract() *command.Contract {
	return &command.Contract{
		Name:        "ai_suggest_improvements",
		Description: "Suggest scene improvements for a focus area",
		Params: []command.ParamSpec{
			{Key: "focus", Type: command.TypeString, Default: advisor.FocusAll,
				Enum: []string{advisor.FocusLighting, advisor.FocusMaterials, advisor.FocusComposition, advisor.FocusPerformance, advisor.FocusAll}},
		},
	}
}

func (h *SuggestImprovements) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	snap, err := h.backend.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	focus := str(params, "focus")
	suggestions, err := advisor.Suggest(snap, focus)
	if err != nil {
		return nil, command.NewError(command.KindInvalidParameter, "%s", err.Error())
	}

	items := make([]interface{}, 0, len(suggestions))
	for _, s := range suggestions {
		item := map[string]interface{}{
			"priority":   s.Priority,
			"area":       s.Area,
			"suggestion": s.Text,
		}
		if s.Action != nil {
			action := map[string]interface{}{"command": s.Action.Command}
			if len(s.Action.Params) > 0 {
				action["params"] = s.Action.Params
			}
			item["action"] = action
		}
		items = append(items, item)
	}

	return map[string]interface{}{
		"focus":       focus,
		"suggestions": items,
	}, nil
}

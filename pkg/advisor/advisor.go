// Package advisor derives scene analysis, improvement suggestions, and
// natural-language command mapping from scene snapshots. Everything here
// is rule-based; no external model is consulted.
package advisor

import (
	"fmt"
	"math"

	"github.com/Srjnnnn/blendgate/pkg/scene"
)

// Focus selects which rule family Suggestions applies.
const (
	FocusComposition = "composition"
	FocusLighting    = "lighting"
	FocusMaterials   = "materials"
	FocusPerformance = "performance"
	FocusAll         = "all"
)

// Analysis is the numeric breakdown of one snapshot.
type Analysis struct {
	ObjectCount   int  `json:"object_count"`
	MeshObjects   int  `json:"mesh_objects"`
	LightCount    int  `json:"light_count"`
	CameraCount   int  `json:"camera_count"`
	MaterialCount int  `json:"materials_count"`
	TotalVertices int  `json:"total_vertices"`
	HasAnimation  bool `json:"has_animation"`
}

// Context is the scene summary served at /ai/context and by the
// ai_suggest_improvements command.
type Context struct {
	Analysis        Analysis `json:"scene_analysis"`
	ComplexityScore float64  `json:"complexity_score"`
	Flags           []string `json:"flags"`
	Recommendations []string `json:"recommendations"`
}

// Action is a ready-to-submit command a suggestion proposes.
type Action struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Suggestion is one improvement with an optional concrete action.
type Suggestion struct {
	Area     string  `json:"area"`
	Priority string  `json:"priority"`
	Text     string  `json:"suggestion"`
	Action   *Action `json:"action,omitempty"`
}

const (
	// Object counts weigh lightly, raw vertices barely, materials in
	// between; the sum is capped so downstream consumers can treat the
	// score as 0-10.
	weightObjects   = 0.1
	weightVertices  = 0.0001
	weightMaterials = 0.05
	complexityCap   = 10

	highObjectCount   = 100
	clusterRadius     = 2.0
	highComplexity    = 8.0
	highPolyThreshold = 10000
)

// Analyze tallies a snapshot into an Analysis.
func Analyze(snap *scene.Snapshot) Analysis {
	var a Analysis
	for _, e := range snap.Entities {
		switch e.Kind {
		case scene.KindMesh:
			a.MeshObjects++
			a.ObjectCount++
			a.TotalVertices += attrInt(e, "vertices")
		case scene.KindLight:
			a.LightCount++
			a.ObjectCount++
		case scene.KindCamera:
			a.CameraCount++
			a.ObjectCount++
		case scene.KindEmpty:
			a.ObjectCount++
		case scene.KindMaterial:
			a.MaterialCount++
		}
		if attrBool(e, "animated") {
			a.HasAnimation = true
		}
	}
	return a
}

// Score computes the capped complexity score for an analysis.
func Score(a Analysis) float64 {
	score := float64(a.ObjectCount)*weightObjects +
		float64(a.TotalVertices)*weightVertices +
		float64(a.MaterialCount)*weightMaterials
	return math.Min(score, complexityCap)
}

// BuildContext produces the full scene context: analysis, complexity,
// flags, and plain-text recommendations.
func BuildContext(snap *scene.Snapshot) Context {
	a := Analyze(snap)
	ctx := Context{
		Analysis:        a,
		ComplexityScore: Score(a),
		Flags:           []string{},
		Recommendations: []string{},
	}

	if a.ObjectCount == 0 {
		ctx.Flags = append(ctx.Flags, "empty_scene")
	}
	if a.CameraCount == 0 {
		ctx.Flags = append(ctx.Flags, "no_camera")
	}
	if a.LightCount == 0 {
		ctx.Flags = append(ctx.Flags, "no_lights")
	}
	if a.MaterialCount == 0 {
		ctx.Flags = append(ctx.Flags, "no_materials")
	}
	if a.ObjectCount > highObjectCount {
		ctx.Flags = append(ctx.Flags, "high_object_count")
	}
	if ctx.ComplexityScore >= highComplexity {
		ctx.Flags = append(ctx.Flags, "high_complexity")
	}

	if a.MeshObjects == 0 {
		ctx.Recommendations = append(ctx.Recommendations,
			"Consider adding some mesh objects to populate the scene")
	}
	if a.LightCount == 0 {
		ctx.Recommendations = append(ctx.Recommendations,
			"Add lighting to improve scene visibility and mood")
	}
	if a.MaterialCount == 0 {
		ctx.Recommendations = append(ctx.Recommendations,
			"Apply materials to objects for better visual appeal")
	}
	return ctx
}

// Suggest applies the rule family named by focus to a snapshot. An empty
// focus means composition; "all" runs every family in a fixed order.
func Suggest(snap *scene.Snapshot, focus string) ([]Suggestion, error) {
	switch focus {
	case "", FocusComposition:
		return suggestComposition(snap), nil
	case FocusLighting:
		return suggestLighting(snap), nil
	case FocusMaterials:
		return suggestMaterials(snap), nil
	case FocusPerformance:
		return suggestPerformance(snap), nil
	case FocusAll:
		var out []Suggestion
		out = append(out, suggestComposition(snap)...)
		out = append(out, suggestLighting(snap)...)
		out = append(out, suggestMaterials(snap)...)
		out = append(out, suggestPerformance(snap)...)
		return out, nil
	default:
		return nil, fmt.Errorf("unknown focus %q", focus)
	}
}

func suggestComposition(snap *scene.Snapshot) []Suggestion {
	a := Analyze(snap)
	out := []Suggestion{}

	if a.MeshObjects == 0 {
		out = append(out, Suggestion{
			Area:     "content",
			Priority: "high",
			Text:     "Scene is empty. Consider adding some objects.",
			Action: &Action{Command: "add_object",
				Params: map[string]interface{}{"type": "cube"}},
		})
	}
	if clustered(snap) {
		out = append(out, Suggestion{
			Area:     "composition",
			Priority: "medium",
			Text:     "Objects are clustered together. Consider spreading them out.",
		})
	}
	if a.CameraCount == 0 {
		out = append(out, Suggestion{
			Area:     "composition",
			Priority: "high",
			Text:     "No camera in scene. Add one to frame the shot.",
			Action: &Action{Command: "add_object",
				Params: map[string]interface{}{"type": "camera"}},
		})
	}
	return out
}

func suggestLighting(snap *scene.Snapshot) []Suggestion {
	a := Analyze(snap)
	out := []Suggestion{}

	switch a.LightCount {
	case 0:
		out = append(out, Suggestion{
			Area:     "lighting",
			Priority: "high",
			Text:     "No lights in scene. Add lighting for better visibility.",
			Action: &Action{Command: "lighting_setup",
				Params: map[string]interface{}{"type": "three_point"}},
		})
	case 1:
		out = append(out, Suggestion{
			Area:     "lighting",
			Priority: "medium",
			Text:     "Single light source creates harsh shadows. Add fill lighting.",
			Action: &Action{Command: "add_object",
				Params: map[string]interface{}{"type": "light", "name": "Fill"}},
		})
	}
	return out
}

func suggestMaterials(snap *scene.Snapshot) []Suggestion {
	out := []Suggestion{}
	var bare []string
	for _, e := range snap.Entities {
		if e.Kind == scene.KindMesh && attrString(e, "material") == "" {
			bare = append(bare, e.Name)
		}
	}
	if len(bare) > 0 {
		out = append(out, Suggestion{
			Area:     "materials",
			Priority: "medium",
			Text:     fmt.Sprintf("%d objects have no materials.", len(bare)),
		})
	}
	return out
}

func suggestPerformance(snap *scene.Snapshot) []Suggestion {
	a := Analyze(snap)
	out := []Suggestion{}

	if Score(a) >= highComplexity {
		for _, e := range snap.Entities {
			if e.Kind == scene.KindMesh && attrInt(e, "vertices") > highPolyThreshold {
				out = append(out, Suggestion{
					Area:     "performance",
					Priority: "high",
					Text:     fmt.Sprintf("%s is heavy. Decimating it would reduce render cost.", e.Name),
					Action: &Action{Command: "ai_optimize_scene",
						Params: map[string]interface{}{"mode": "apply"}},
				})
				break
			}
		}
	}
	if a.ObjectCount > highObjectCount {
		out = append(out, Suggestion{
			Area:     "performance",
			Priority: "medium",
			Text:     "Scene holds a large number of objects. Consider grouping or instancing.",
		})
	}
	return out
}

// clustered reports whether mesh objects sit within clusterRadius of
// their shared centroid on average. Objects without a location attribute
// are ignored.
func clustered(snap *scene.Snapshot) bool {
	var positions [][]float64
	for _, e := range snap.Entities {
		if e.Kind != scene.KindMesh {
			continue
		}
		if loc, ok := attrVec3(e, "location"); ok {
			positions = append(positions, loc)
		}
	}
	if len(positions) < 2 {
		return false
	}

	var cx, cy, cz float64
	for _, p := range positions {
		cx += p[0]
		cy += p[1]
		cz += p[2]
	}
	n := float64(len(positions))
	cx, cy, cz = cx/n, cy/n, cz/n

	var total float64
	for _, p := range positions {
		dx, dy, dz := p[0]-cx, p[1]-cy, p[2]-cz
		total += math.Sqrt(dx*dx + dy*dy + dz*dz)
	}
	return total/n < clusterRadius
}

func attrInt(e scene.Entity, key string) int {
	switch v := e.Attrs[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func attrBool(e scene.Entity, key string) bool {
	b, _ := e.Attrs[key].(bool)
	return b
}

func attrString(e scene.Entity, key string) string {
	s, _ := e.Attrs[key].(string)
	return s
}

func attrVec3(e scene.Entity, key string) ([]float64, bool) {
	switch v := e.Attrs[key].(type) {
	case []float64:
		if len(v) == 3 {
			return v, true
		}
	case []interface{}:
		if len(v) == 3 {
			out := make([]float64, 3)
			for i, raw := range v {
				switch n := raw.(type) {
				case float64:
					out[i] = n
				case int:
					out[i] = float64(n)
				default:
					return nil, false
				}
			}
			return out, true
		}
	}
	return nil, false
}

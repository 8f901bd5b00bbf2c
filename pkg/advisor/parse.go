package advisor

import (
	"fmt"
	"strings"

	"github.com/Srjnnnn/blendgate/pkg/command"
)

var primitives = []string{
	"cube", "sphere", "plane", "cylinder", "cone", "torus", "monkey",
}

// ParseQuery maps a natural-language request onto a catalog command.
// Matching is keyword-based and first-match-wins; unparseable queries
// return an error so channels can answer with a clear rejection instead
// of guessing.
func ParseQuery(text string) (command.Request, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return command.Request{}, fmt.Errorf("empty query")
	}
	split := func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '?' || r == '!'
	}
	// Matching is case-insensitive but extracted object names keep the
	// caller's casing; entity names are case-sensitive.
	words := strings.FieldsFunc(strings.ToLower(trimmed), split)
	raw := strings.FieldsFunc(trimmed, split)
	has := func(keys ...string) bool {
		for _, w := range words {
			for _, k := range keys {
				if w == k {
					return true
				}
			}
		}
		return false
	}

	switch {
	case has("suggest", "improve", "improvement", "improvements", "advice"):
		return command.Request{Name: "ai_suggest_improvements",
			Params: map[string]interface{}{}}, nil

	case has("optimize", "optimise", "faster", "slow"):
		return command.Request{Name: "ai_optimize_scene",
			Params: map[string]interface{}{"mode": "analyze"}}, nil

	case has("summary", "summarize", "describe", "info", "status"):
		return command.Request{Name: "ai_optimize_scene",
			Params: map[string]interface{}{"mode": "analyze"}}, nil

	case has("render", "snapshot", "picture", "image"):
		return command.Request{Name: "render",
			Params: map[string]interface{}{}}, nil

	case has("light", "lights", "lighting", "illuminate"):
		return command.Request{Name: "lighting_setup",
			Params: map[string]interface{}{"type": "three_point"}}, nil

	case has("terrain", "landscape", "mountains"):
		return command.Request{Name: "procedural_generation",
			Params: map[string]interface{}{"type": "terrain"}}, nil

	case has("city", "buildings", "town"):
		return command.Request{Name: "procedural_generation",
			Params: map[string]interface{}{"type": "city"}}, nil

	case has("forest", "trees"):
		return command.Request{Name: "procedural_generation",
			Params: map[string]interface{}{"type": "forest"}}, nil

	case has("physics", "gravity", "rigid"):
		return command.Request{Name: "physics_simulation",
			Params: map[string]interface{}{}}, nil

	case has("spin", "rotate", "animate", "animation"):
		if name, ok := objectAfter(words, raw, "rotate", "spin", "animate"); ok {
			return command.Request{Name: "animate",
				Params: map[string]interface{}{"object": name}}, nil
		}
		return command.Request{}, fmt.Errorf("animation query needs an object name")

	case has("delete", "remove", "drop"):
		if name, ok := objectAfter(words, raw, "delete", "remove", "drop"); ok {
			return command.Request{Name: "delete_object",
				Params: map[string]interface{}{"name": name}}, nil
		}
		return command.Request{}, fmt.Errorf("deletion query needs an object name")

	case has("camera"):
		return command.Request{Name: "add_object",
			Params: map[string]interface{}{"type": "camera"}}, nil

	case has("add", "create", "make", "new", "spawn"):
		for _, p := range primitives {
			if has(p) {
				return command.Request{Name: "add_object",
					Params: map[string]interface{}{"type": p}}, nil
			}
		}
		return command.Request{}, fmt.Errorf("could not tell what to add from %q", text)
	}

	return command.Request{}, fmt.Errorf("could not map query %q to a command", text)
}

// objectAfter returns the first word following any of the verbs, skipping
// articles. "delete the Cube" yields "Cube".
func objectAfter(words, raw []string, verbs ...string) (string, bool) {
	for i, w := range words {
		for _, v := range verbs {
			if w != v {
				continue
			}
			for j := i + 1; j < len(words); j++ {
				switch words[j] {
				case "the", "a", "an", "my", "that", "this":
					continue
				default:
					return raw[j], true
				}
			}
		}
	}
	return "", false
}

// Package commands implements the full catalog of scene operations: object
// lifecycle, transforms, materials, rendering, animation, node graphs,
// lighting rigs, physics, procedural generation, the advisor commands, and
// sandboxed scripting. Every handler declares a parameter contract and runs
// against whatever scene.Backend the gateway was built with.
package commands

import (
	"context"
	"errors"

	"github.com/Srjnnnn/blendgate/pkg/command"
	"github.com/Srjnnnn/blendgate/pkg/scene"
	"github.com/Srjnnnn/blendgate/pkg/script"
)

// RegisterAll wires the complete catalog into reg. The script engine is
// passed separately because it carries its own sandbox policy.
func RegisterAll(reg *command.Registry, backend scene.Backend, eng *script.Engine) error {
	handlers := []command.Handler{
		NewAddObject(backend),
		NewDeleteObject(backend),
		NewMoveObject(backend),
		NewRotateObject(backend),
		NewScaleObject(backend),
		NewSetMaterial(backend),
		NewRender(backend),
		NewAnimate(backend),
		NewAnimateAdvanced(backend),
		NewCameraAnimation(backend),
		NewGeometryNodes(backend),
		NewCreateNodeGroup(backend),
		NewLightingSetup(backend),
		NewPhysicsSimulation(backend),
		NewProceduralGeneration(backend),
		NewOptimizeScene(backend),
		NewSuggestImprovements(backend),
		NewScript(eng),
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}

// The helpers below read validated parameters. The validator has already
// normalized declared keys, so plain type assertions are enough; the zero
// value only ever shows up for keys a contract does not declare.

func str(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}

func num(params map[string]interface{}, key string) float64 {
	f, _ := params[key].(float64)
	return f
}

func integer(params map[string]interface{}, key string) int {
	n, _ := params[key].(int)
	return n
}

func boolean(params map[string]interface{}, key string) bool {
	b, _ := params[key].(bool)
	return b
}

func vec(params map[string]interface{}, key string) []float64 {
	v, _ := params[key].([]float64)
	return v
}

// asFloat coerces the number shapes that appear in attrs and free-form
// payloads: validated params carry float64/int, scripted attrs may carry
// either.
func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

// coerceVec3 accepts the vector encodings found in entity attrs.
func coerceVec3(v interface{}) ([]float64, bool) {
	switch t := v.(type) {
	case []float64:
		if len(t) != 3 {
			return nil, false
		}
		out := make([]float64, 3)
		copy(out, t)
		return out, true
	case []interface{}:
		if len(t) != 3 {
			return nil, false
		}
		out := make([]float64, 3)
		for i, e := range t {
			f, ok := asFloat(e)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	}
	return nil, false
}

// lookupObject resolves a name to its entity, mapping a miss to an
// InvalidParameter error so callers see which name was wrong.
func lookupObject(ctx context.Context, backend scene.Backend, name string) (*scene.Entity, error) {
	id, err := backend.Resolve(ctx, name)
	if err != nil {
		if errors.Is(err, scene.ErrNotFound) {
			return nil, command.NewError(command.KindInvalidParameter, "object not found: %s", name)
		}
		return nil, err
	}
	return backend.Inspect(ctx, id)
}

// deleteByName removes an entity during a revert. A name that no longer
// resolves counts as already compensated.
func deleteByName(ctx context.Context, backend scene.Backend, name string) error {
	id, err := backend.Resolve(ctx, name)
	if err != nil {
		if errors.Is(err, scene.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := backend.DeleteEntity(ctx, id); err != nil && !errors.Is(err, scene.ErrNotFound) {
		return err
	}
	return nil
}

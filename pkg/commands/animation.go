package commands

import (
	"context"
	"errors"
	"math"

	"github.com/Srjnnnn/blendgate/pkg/command"
	"github.com/Srjnnnn/blendgate/pkg/scene"
)

var animatableProperties = []string{"location", "rotation", "scale"}

// parseKeyframes normalizes the free-form keyframe list: each entry is an
// object with an integer frame and a vec3 value, optionally (when
// allowProperty is set) naming which property the key drives.
func parseKeyframes(raw []interface{}, allowProperty bool) ([]interface{}, error) {
	if len(raw) == 0 {
		return nil, command.NewError(command.KindInvalidParameter, "parameter keyframes: must not be empty")
	}
	out := make([]interface{}, 0, len(raw))
	for i, e := range raw {
		entry, ok := e.(map[string]interface{})
		if !ok {
			return nil, command.NewError(command.KindInvalidParameter, "parameter keyframes[%d]: expected object", i)
		}
		frame, ok := asFloat(entry["frame"])
		if !ok || frame != math.Trunc(frame) {
			return nil, command.NewError(command.KindInvalidParameter, "parameter keyframes[%d]: frame must be an integer", i)
		}
		value, ok := coerceVec3(entry["value"])
		if !ok {
			return nil, command.NewError(command.KindInvalidParameter, "parameter keyframes[%d]: value must be a vec3", i)
		}
		key := map[string]interface{}{"frame": int(frame), "value": value}
		if allowProperty {
			if prop, present := entry["property"]; present {
				name, _ := prop.(string)
				if !validProperty(name) {
					return nil, command.NewError(command.KindInvalidParameter, "parameter keyframes[%d]: unknown property %v", i, prop)
				}
				key["property"] = name
			}
		}
		out = append(out, key)
	}
	return out, nil
}

func validProperty(name string) bool {
	for _, p := range animatableProperties {
		if p == name {
			return true
		}
	}
	return false
}

// Animate keys one property of an object over a frame range.
type Animate struct {
	backend scene.Backend
}

func NewAnimate(backend scene.Backend) *Animate {
	return &Animate{backend: backend}
}

func (h *Animate) Name() string { return "animate" }

func (h *Animate) Contract() *command.Contract {
	return &command.Contract{
		Name:        "animate",
		Description: "Keyframe one property of an object",
		Params: []command.ParamSpec{
			{Key: "name", Type: command.TypeString, Required: true},
			{Key: "frame_start", Type: command.TypeInt, Default: 1, Min: command.Float64(0)},
			{Key: "frame_end", Type: command.TypeInt, Default: 250, Min: command.Float64(0)},
			{Key: "property", Type: command.TypeString, Default: "location", Enum: animatableProperties},
			{Key: "keyframes", Type: command.TypeArray, Required: true},
		},
	}
}

func (h *Animate) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	ent, err := lookupObject(ctx, h.backend, str(params, "name"))
	if err != nil {
		return nil, err
	}
	start, end := integer(params, "frame_start"), integer(params, "frame_end")
	if end < start {
		return nil, command.NewError(command.KindInvalidParameter, "parameter frame_end: %d is before frame_start %d", end, start)
	}
	keys, err := parseKeyframes(params["keyframes"].([]interface{}), false)
	if err != nil {
		return nil, err
	}

	property := str(params, "property")
	changes := map[string]interface{}{
		"animation": map[string]interface{}{
			"property":    property,
			"frame_start": start,
			"frame_end":   end,
			"keyframes":   keys,
		},
		"animated": true,
	}
	if err := h.backend.MutateEntity(ctx, ent.ID, changes); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"name":      ent.Name,
		"property":  property,
		"keyframes": len(keys),
	}, nil
}

// AnimateAdvanced keys an object with explicit interpolation and easing,
// allowing each keyframe to target its own property.
type AnimateAdvanced struct {
	backend scene.Backend
}

func NewAnimateAdvanced(backend scene.Backend) *AnimateAdvanced {
	return &AnimateAdvanced{backend: backend}
}

func (h *AnimateAdvanced) Name() string { return "animate_advanced" }

func (h *AnimateAdvanced) Contract() *command.Contract {
	return &command.Contract{
		Name:        "animate_advanced",
		Description: "Keyframe an object with interpolation and easing control",
		Params: []command.ParamSpec{
			{Key: "name", Type: command.TypeString, Required: true},
			{Key: "interpolation", Type: command.TypeString, Default: "BEZIER",
				Enum: []string{"LINEAR", "BEZIER", "CONSTANT", "ELASTIC", "BOUNCE"}},
			{Key: "easing", Type: command.TypeString, Default: "AUTO",
				Enum: []string{"AUTO", "EASE_IN", "EASE_OUT", "EASE_IN_OUT"}},
			{Key: "keyframes", Type: command.TypeArray, Required: true},
		},
	}
}

func (h *AnimateAdvanced) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	ent, err := lookupObject(ctx, h.backend, str(params, "name"))
	if err != nil {
		return nil, err
	}
	keys, err := parseKeyframes(params["keyframes"].([]interface{}), true)
	if err != nil {
		return nil, err
	}

	interpolation := str(params, "interpolation")
	easing := str(params, "easing")
	changes := map[string]interface{}{
		"animation": map[string]interface{}{
			"interpolation": interpolation,
			"easing":        easing,
			"keyframes":     keys,
		},
		"animated": true,
	}
	if err := h.backend.MutateEntity(ctx, ent.ID, changes); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"name":          ent.Name,
		"keyframes":     len(keys),
		"interpolation": interpolation,
		"easing":        easing,
	}, nil
}

// CameraAnimation generates a camera path: an orbit around a target, a
// straight flythrough over it, or a static tracking shot.
type CameraAnimation struct {
	backend scene.Backend
}

func NewCameraAnimation(backend scene.Backend) *CameraAnimation {
	return &CameraAnimation{backend: backend}
}

func (h *CameraAnimation) Name() string { return "camera_animation" }

func (h *CameraAnimation) Contract() *command.Contract {
	return &command.Contract{
		Name:        "camera_animation",
		Description: "Generate an orbit, flythrough, or tracking camera move",
		Params: []command.ParamSpec{
			{Key: "camera", Type: command.TypeString, Default: ""},
			{Key: "type", Type: command.TypeString, Default: "orbit",
				Enum: []string{"orbit", "flythrough", "tracking"}},
			{Key: "target", Type: command.TypeString},
			{Key: "radius", Type: command.TypeNumber, Default: 10.0, Min: command.Float64(0.1)},
			{Key: "height", Type: command.TypeNumber, Default: 5.0},
			{Key: "frame_start", Type: command.TypeInt, Default: 1, Min: command.Float64(0)},
			{Key: "frame_end", Type: command.TypeInt, Default: 120, Min: command.Float64(0)},
		},
	}
}

func (h *CameraAnimation) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	start, end := integer(params, "frame_start"), integer(params, "frame_end")
	if end <= start {
		return nil, command.NewError(command.KindInvalidParameter, "parameter frame_end: %d is not after frame_start %d", end, start)
	}

	cam, err := h.pickCamera(ctx, str(params, "camera"))
	if err != nil {
		return nil, err
	}

	center := []float64{0, 0, 0}
	targetName := str(params, "target")
	if targetName != "" {
		target, err := lookupObject(ctx, h.backend, targetName)
		if err != nil {
			return nil, err
		}
		if loc, ok := coerceVec3(target.Attrs["location"]); ok {
			center = loc
		}
	}

	moveType := str(params, "type")
	radius := num(params, "radius")
	height := num(params, "height")
	keys := cameraPath(moveType, cam, center, radius, height, start, end)

	changes := map[string]interface{}{
		"camera_animation": map[string]interface{}{
			"type":        moveType,
			"target":      targetName,
			"radius":      radius,
			"height":      height,
			"frame_start": start,
			"frame_end":   end,
			"keyframes":   keys,
		},
		"animated": true,
	}
	if err := h.backend.MutateEntity(ctx, cam.ID, changes); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"camera":    cam.Name,
		"type":      moveType,
		"keyframes": len(keys),
	}, nil
}

// pickCamera resolves the named camera, or the first camera in the scene
// when no name was given.
func (h *CameraAnimation) pickCamera(ctx context.Context, name string) (*scene.Entity, error) {
	if name != "" {
		ent, err := lookupObject(ctx, h.backend, name)
		if err != nil {
			return nil, err
		}
		if ent.Kind != scene.KindCamera {
			return nil, command.NewError(command.KindInvalidParameter, "object %s is not a camera", name)
		}
		return ent, nil
	}

	snap, err := h.backend.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	for i := range snap.Entities {
		if snap.Entities[i].Kind == scene.KindCamera {
			ent := snap.Entities[i]
			return &ent, nil
		}
	}
	return nil, errors.New("no camera in the scene")
}

func cameraPath(moveType string, cam *scene.Entity, center []float64, radius, height float64, start, end int) []interface{} {
	switch moveType {
	case "flythrough":
		const segments = 4
		keys := make([]interface{}, 0, segments+1)
		for i := 0; i <= segments; i++ {
			t := float64(i) / segments
			keys = append(keys, pathKey(frameAt(start, end, t), []float64{
				center[0] + radius*(2*t-1),
				center[1] + radius*(2*t-1),
				center[2] + height,
			}))
		}
		return keys

	case "tracking":
		location, ok := coerceVec3(cam.Attrs["location"])
		if !ok {
			location = []float64{radius, -radius, height}
		}
		return []interface{}{
			pathKey(start, location),
			pathKey(end, location),
		}

	default: // orbit
		const segments = 12
		keys := make([]interface{}, 0, segments+1)
		for i := 0; i <= segments; i++ {
			t := float64(i) / segments
			angle := 2 * math.Pi * t
			keys = append(keys, pathKey(frameAt(start, end, t), []float64{
				center[0] + radius*math.Cos(angle),
				center[1] + radius*math.Sin(angle),
				center[2] + height,
			}))
		}
		return keys
	}
}

func pathKey(frame int, location []float64) map[string]interface{} {
	return map[string]interface{}{"frame": frame, "location": location}
}

func frameAt(start, end int, t float64) int {
	return start + int(math.Round(t*float64(end-start)))
}

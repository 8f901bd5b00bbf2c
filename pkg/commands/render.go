package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Srjnnnn/blendgate/pkg/command"
	"github.com/Srjnnnn/blendgate/pkg/scene"
)

// defaultAnimationFrames matches the stock scene frame range when a render
// is asked for an animation without any configured range.
const defaultAnimationFrames = 250

// Render drives a still or animation render. The settings land on a
// RenderSettings world entity so later snapshots and renders see them; the
// gateway gives this command its own, longer deadline.
type Render struct {
	backend scene.Backend
}

func NewRender(backend scene.Backend) *Render {
	return &Render{backend: backend}
}

func (h *Render) Name() string { return "render" }

func (h *Render) Contract() *command.Contract {
	return &command.Contract{
		Name:        "render",
		Description: "Render a still image or animation",
		Params: []command.ParamSpec{
			{Key: "output", Type: command.TypeString, Default: "//render_output"},
			{Key: "format", Type: command.TypeString, Default: "PNG",
				Enum: []string{"PNG", "JPEG", "EXR", "TIFF"}},
			{Key: "resolution", Type: command.TypeArray, Length: 2, Default: []interface{}{1920, 1080}},
			{Key: "samples", Type: command.TypeInt, Default: 128, Min: command.Float64(1), Max: command.Float64(4096)},
			{Key: "engine", Type: command.TypeString, Default: "CYCLES",
				Enum: []string{"CYCLES", "BLENDER_EEVEE", "BLENDER_WORKBENCH"}},
			{Key: "animation", Type: command.TypeBool, Default: false},
		},
	}
}

func (h *Render) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	resolution, err := resolutionPair(params["resolution"])
	if err != nil {
		return nil, err
	}

	snap, err := h.backend.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap.Counts[scene.KindCamera] == 0 {
		return nil, errors.New("render requires a camera in the scene")
	}

	engine := str(params, "engine")
	format := str(params, "format")
	animation := boolean(params, "animation")

	frames := 1
	if animation {
		frames = animationFrames(snap)
	}

	settings := map[string]interface{}{
		"engine":     engine,
		"format":     format,
		"samples":    integer(params, "samples"),
		"resolution": resolution,
		"output":     str(params, "output"),
		"frames":     frames,
	}
	if err := h.storeSettings(ctx, settings); err != nil {
		return nil, err
	}

	output := fmt.Sprintf("%s.%s", str(params, "output"), strings.ToLower(format))
	return map[string]interface{}{
		"output":     output,
		"frames":     frames,
		"engine":     engine,
		"resolution": resolution,
	}, nil
}

// storeSettings upserts the RenderSettings world entity.
func (h *Render) storeSettings(ctx context.Context, settings map[string]interface{}) error {
	id, err := h.backend.Resolve(ctx, "RenderSettings")
	if errors.Is(err, scene.ErrNotFound) {
		settings["name"] = "RenderSettings"
		_, err = h.backend.CreateEntity(ctx, scene.KindWorld, settings)
		return err
	}
	if err != nil {
		return err
	}
	return h.backend.MutateEntity(ctx, id, settings)
}

// animationFrames reads the widest frame range any animated entity
// declares, falling back to the stock range.
func animationFrames(snap *scene.Snapshot) int {
	frames := 0
	for _, ent := range snap.Entities {
		for _, key := range []string{"animation", "camera_animation"} {
			anim, ok := ent.Attrs[key].(map[string]interface{})
			if !ok {
				continue
			}
			start, okStart := asFloat(anim["frame_start"])
			end, okEnd := asFloat(anim["frame_end"])
			if okStart && okEnd && int(end-start)+1 > frames {
				frames = int(end-start) + 1
			}
		}
	}
	if frames == 0 {
		return defaultAnimationFrames
	}
	return frames
}

func resolutionPair(raw interface{}) ([]interface{}, error) {
	arr, _ := raw.([]interface{})
	if len(arr) != 2 {
		return nil, command.NewError(command.KindInvalidParameter, "parameter resolution: expected [width, height]")
	}
	out := make([]interface{}, 2)
	for i, e := range arr {
		f, ok := asFloat(e)
		if !ok || f < 1 {
			return nil, command.NewError(command.KindInvalidParameter, "parameter resolution: expected positive numbers")
		}
		out[i] = int(f)
	}
	return out, nil
}

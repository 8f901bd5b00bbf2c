package commands

import (
	"context"
	"errors"

	"github.com/Srjnnnn/blendgate/pkg/command"
	"github.com/Srjnnnn/blendgate/pkg/scene"
)

// SetMaterial assigns a PBR material to an object, creating the material
// entity on first use and updating it afterwards.
type SetMaterial struct {
	backend scene.Backend
}

func NewSetMaterial(backend scene.Backend) *SetMaterial {
	return &SetMaterial{backend: backend}
}

func (h *SetMaterial) Name() string { return "set_material" }

func (h *SetMaterial) Contract() *command.Contract {
	return &command.Contract{
		Name:        "set_material",
		Description: "Assign a PBR material to an object",
		Params: []command.ParamSpec{
			{Key: "object", Type: command.TypeString, Required: true},
			{Key: "material", Type: command.TypeString, Default: "RemoteMaterial"},
			{Key: "color", Type: command.TypeVec4, Default: []float64{0.8, 0.8, 0.8, 1.0}},
			{Key: "metallic", Type: command.TypeNumber, Default: 0.0, Min: command.Float64(0), Max: command.Float64(1)},
			{Key: "roughness", Type: command.TypeNumber, Default: 0.5, Min: command.Float64(0), Max: command.Float64(1)},
			{Key: "emission", Type: command.TypeVec3, Default: []float64{0, 0, 0}},
			{Key: "emission_strength", Type: command.TypeNumber, Default: 1.0, Min: command.Float64(0)},
		},
	}
}

func (h *SetMaterial) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	obj, err := lookupObject(ctx, h.backend, str(params, "object"))
	if err != nil {
		return nil, err
	}

	matName := str(params, "material")
	props := map[string]interface{}{
		"color":             vec(params, "color"),
		"metallic":          num(params, "metallic"),
		"roughness":         num(params, "roughness"),
		"emission":          vec(params, "emission"),
		"emission_strength": num(params, "emission_strength"),
	}

	created := false
	matID, err := h.backend.Resolve(ctx, matName)
	switch {
	case err == nil:
		if err := h.backend.MutateEntity(ctx, matID, props); err != nil {
			return nil, err
		}
	case errors.Is(err, scene.ErrNotFound):
		attrs := map[string]interface{}{"name": matName}
		for k, v := range props {
			attrs[k] = v
		}
		matID, err = h.backend.CreateEntity(ctx, scene.KindMaterial, attrs)
		if err != nil {
			return nil, err
		}
		created = true
	default:
		return nil, err
	}

	result := map[string]interface{}{
		"object":   obj.Name,
		"material": matName,
		"created":  created,
	}
	if prev, ok := obj.Attrs["material"].(string); ok && prev != "" {
		result["previous"] = map[string]interface{}{"material": prev}
	}

	if err := h.backend.MutateEntity(ctx, obj.ID, map[string]interface{}{"material": matName}); err != nil {
		return nil, err
	}
	return result, nil
}

// Revert restores the object's prior material assignment and removes the
// material entity when this execution created it.
func (h *SetMaterial) Revert(ctx context.Context, params, result map[string]interface{}) error {
	objName := str(result, "object")
	ent, err := lookupObject(ctx, h.backend, objName)
	if err != nil {
		return err
	}

	restored := ""
	if prev, ok := result["previous"].(map[string]interface{}); ok {
		restored = str(prev, "material")
	}
	if err := h.backend.MutateEntity(ctx, ent.ID, map[string]interface{}{"material": restored}); err != nil {
		return err
	}

	if created, _ := result["created"].(bool); created {
		return deleteByName(ctx, h.backend, str(result, "material"))
	}
	return nil
}

package commands

import (
	"context"
	"errors"

	"github.com/Srjnnnn/blendgate/pkg/command"
	"github.com/Srjnnnn/blendgate/pkg/scene"
)

// primitiveVertices estimates the vertex count of each mesh primitive at
// subdivision level zero. Estimates feed the advisor's complexity score.
var primitiveVertices = map[string]int{
	"cube":     8,
	"sphere":   482,
	"cylinder": 64,
	"cone":     33,
	"torus":    576,
	"plane":    4,
	"monkey":   507,
}

func estimateVertices(primitive string, subdivisions int) int {
	est := primitiveVertices[primitive]
	for i := 0; i < subdivisions; i++ {
		est *= 4
	}
	return est
}

// AddObject creates one object entity: a mesh primitive, or a camera,
// light, or empty.
type AddObject struct {
	backend scene.Backend
}

func NewAddObject(backend scene.Backend) *AddObject {
	return &AddObject{backend: backend}
}

func (h *AddObject) Name() string { return "add_object" }

func (h *AddObject) Contract() *command.Contract {
	return &command.Contract{
		Name:        "add_object",
		Description: "Add an object to the scene",
		Params: []command.ParamSpec{
			{Key: "type", Type: command.TypeString, Default: "cube",
				Enum: []string{"cube", "sphere", "cylinder", "cone", "torus", "plane", "monkey", "empty", "camera", "light"}},
			{Key: "name", Type: command.TypeString, Default: ""},
			{Key: "location", Type: command.TypeVec3, Default: []float64{0, 0, 0}},
			{Key: "rotation", Type: command.TypeVec3, Default: []float64{0, 0, 0}},
			{Key: "scale", Type: command.TypeVec3, Default: []float64{1, 1, 1}},
			{Key: "subdivisions", Type: command.TypeInt, Default: 0, Min: command.Float64(0), Max: command.Float64(6)},
			{Key: "material", Type: command.TypeString},
			{Key: "parent", Type: command.TypeString},
			{Key: "collection", Type: command.TypeString, Default: "Collection"},
		},
	}
}

func (h *AddObject) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	typ := str(params, "type")
	location := vec(params, "location")

	attrs := map[string]interface{}{
		"location":   location,
		"rotation":   vec(params, "rotation"),
		"scale":      vec(params, "scale"),
		"collection": str(params, "collection"),
	}
	if name := str(params, "name"); name != "" {
		attrs["name"] = name
	}

	kind := scene.KindMesh
	switch typ {
	case "camera":
		kind = scene.KindCamera
	case "light":
		kind = scene.KindLight
		attrs["light_type"] = "POINT"
		attrs["energy"] = 1000.0
	case "empty":
		kind = scene.KindEmpty
	default:
		attrs["primitive"] = typ
		subdivisions := integer(params, "subdivisions")
		attrs["subdivisions"] = subdivisions
		attrs["vertices"] = estimateVertices(typ, subdivisions)
	}

	if material := str(params, "material"); material != "" {
		attrs["material"] = material
	}
	if parent := str(params, "parent"); parent != "" {
		if _, err := h.backend.Resolve(ctx, parent); err != nil {
			if errors.Is(err, scene.ErrNotFound) {
				return nil, command.NewError(command.KindInvalidParameter, "parent object not found: %s", parent)
			}
			return nil, err
		}
		attrs["parent"] = parent
	}

	id, err := h.backend.CreateEntity(ctx, kind, attrs)
	if err != nil {
		return nil, err
	}
	ent, err := h.backend.Inspect(ctx, id)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"name":     ent.Name,
		"id":       string(id),
		"type":     typ,
		"location": location,
	}, nil
}

func (h *AddObject) Revert(ctx context.Context, params, result map[string]interface{}) error {
	id := str(result, "id")
	if id == "" {
		return errors.New("revert add_object: result carries no id")
	}
	if err := h.backend.DeleteEntity(ctx, scene.EntityID(id)); err != nil && !errors.Is(err, scene.ErrNotFound) {
		return err
	}
	return nil
}

// DeleteObject removes an object by name. There is no inverse: the entity's
// full attribute set is gone once deleted.
type DeleteObject struct {
	backend scene.Backend
}

func NewDeleteObject(backend scene.Backend) *DeleteObject {
	return &DeleteObject{backend: backend}
}

func (h *DeleteObject) Name() string { return "delete_object" }

func (h *DeleteObject) Contract() *command.Contract {
	return &command.Contract{
		Name:        "delete_object",
		Description: "Delete an object from the scene",
		Params: []command.ParamSpec{
			{Key: "name", Type: command.TypeString, Required: true},
		},
	}
}

func (h *DeleteObject) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	name := str(params, "name")
	ent, err := lookupObject(ctx, h.backend, name)
	if err != nil {
		return nil, err
	}
	if err := h.backend.DeleteEntity(ctx, ent.ID); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"deleted": ent.Name,
		"id":      string(ent.ID),
	}, nil
}

// The three transform commands share one implementation; they differ only
// in which attribute they touch and how relative mode combines values
// (translation and rotation add, scaling multiplies).

func transformContract(name, attr, doc string) *command.Contract {
	return &command.Contract{
		Name:        name,
		Description: doc,
		Params: []command.ParamSpec{
			{Key: "name", Type: command.TypeString, Required: true},
			{Key: attr, Type: command.TypeVec3, Required: true},
			{Key: "relative", Type: command.TypeBool, Default: false},
		},
	}
}

func transformDefaults(attr string) []float64 {
	if attr == "scale" {
		return []float64{1, 1, 1}
	}
	return []float64{0, 0, 0}
}

func applyTransform(ctx context.Context, backend scene.Backend, params map[string]interface{}, attr string, multiply bool) (map[string]interface{}, error) {
	name := str(params, "name")
	target := vec(params, attr)

	ent, err := lookupObject(ctx, backend, name)
	if err != nil {
		return nil, err
	}
	previous, ok := coerceVec3(ent.Attrs[attr])
	if !ok {
		previous = transformDefaults(attr)
	}

	next := make([]float64, 3)
	copy(next, target)
	if boolean(params, "relative") {
		for i := range next {
			if multiply {
				next[i] = previous[i] * target[i]
			} else {
				next[i] = previous[i] + target[i]
			}
		}
	}

	if err := backend.MutateEntity(ctx, ent.ID, map[string]interface{}{attr: next}); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"name":     ent.Name,
		attr:       next,
		"previous": previous,
	}, nil
}

func revertTransform(ctx context.Context, backend scene.Backend, result map[string]interface{}, attr string) error {
	name := str(result, "name")
	previous, ok := coerceVec3(result["previous"])
	if !ok {
		return errors.New("revert transform: result carries no previous value")
	}
	ent, err := lookupObject(ctx, backend, name)
	if err != nil {
		return err
	}
	return backend.MutateEntity(ctx, ent.ID, map[string]interface{}{attr: previous})
}

// MoveObject sets or offsets an object's location.
type MoveObject struct {
	backend scene.Backend
}

func NewMoveObject(backend scene.Backend) *MoveObject {
	return &MoveObject{backend: backend}
}

func (h *MoveObject) Name() string { return "move_object" }

func (h *MoveObject) Contract() *command.Contract {
	return transformContract("move_object", "location", "Move an object to a new location")
}

func (h *MoveObject) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	return applyTransform(ctx, h.backend, params, "location", false)
}

func (h *MoveObject) Revert(ctx context.Context, params, result map[string]interface{}) error {
	return revertTransform(ctx, h.backend, result, "location")
}

// RotateObject sets or offsets an object's euler rotation, in radians.
type RotateObject struct {
	backend scene.Backend
}

func NewRotateObject(backend scene.Backend) *RotateObject {
	return &RotateObject{backend: backend}
}

func (h *RotateObject) Name() string { return "rotate_object" }

func (h *RotateObject) Contract() *command.Contract {
	return transformContract("rotate_object", "rotation", "Rotate an object (euler radians)")
}

func (h *RotateObject) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	return applyTransform(ctx, h.backend, params, "rotation", false)
}

func (h *RotateObject) Revert(ctx context.Context, params, result map[string]interface{}) error {
	return revertTransform(ctx, h.backend, result, "rotation")
}

// ScaleObject sets or multiplies an object's scale.
type ScaleObject struct {
	backend scene.Backend
}

func NewScaleObject(backend scene.Backend) *ScaleObject {
	return &ScaleObject{backend: backend}
}

func (h *ScaleObject) Name() string { return "scale_object" }

func (h *ScaleObject) Contract() *command.Contract {
	return transformContract("scale_object", "scale", "Scale an object")
}

func (h *ScaleObject) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	return applyTransform(ctx, h.backend, params, "scale", true)
}

func (h *ScaleObject) Revert(ctx context.Context, params, result map[string]interface{}) error {
	return revertTransform(ctx, h.backend, result, "scale")
}

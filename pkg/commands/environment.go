package commands

import (
	"context"

	"github.com/Srjnnnn/blendgate/pkg/command"
	"github.com/Srjnnnn/blendgate/pkg/scene"
)

// lightSpec is one light of a canned rig, with its energy expressed as a
// multiple of the requested strength.
type lightSpec struct {
	name      string
	lightType string
	location  []float64
	factor    float64
	color     []float64
	size      float64
}

var threePointRig = []lightSpec{
	{name: "KeyLight", lightType: "SUN", location: []float64{5, -5, 8}, factor: 1.0, color: []float64{1, 0.95, 0.8}},
	{name: "FillLight", lightType: "AREA", location: []float64{-3, -3, 4}, factor: 0.3, color: []float64{0.8, 0.9, 1}},
	{name: "RimLight", lightType: "SPOT", location: []float64{0, 5, 6}, factor: 0.5, color: []float64{1, 1, 0.9}},
}

var studioRig = []lightSpec{
	{name: "StudioMain", lightType: "AREA", location: []float64{3, -3, 5}, factor: 1.0, size: 3},
	{name: "StudioSide1", lightType: "AREA", location: []float64{4, 0, 3}, factor: 0.4, size: 2},
	{name: "StudioSide2", lightType: "AREA", location: []float64{-4, 0, 3}, factor: 0.4, size: 2},
	{name: "StudioTop", lightType: "AREA", location: []float64{0, 0, 8}, factor: 0.2, size: 4},
}

// LightingSetup builds a lighting rig in one shot: a classic three-point
// rig, a studio softbox arrangement, an HDRI-style environment, or a single
// sun lamp.
type LightingSetup struct {
	backend scene.Backend
}

func NewLightingSetup(backend scene.Backend) *LightingSetup {
	return &LightingSetup{backend: backend}
}

func (h *LightingSetup) Name() string { return "lighting_setup" }

func (h *LightingSetup) Contract() *command.Contract {
	return &command.Contract{
		Name:        "lighting_setup",
		Description: "Create a complete lighting rig",
		Params: []command.ParamSpec{
			{Key: "type", Type: command.TypeString, Default: "three_point",
				Enum: []string{"three_point", "studio", "hdri", "sun"}},
			{Key: "strength", Type: command.TypeNumber, Default: 1.0},
			{Key: "color", Type: command.TypeVec3, Default: []float64{1, 1, 1}},
		},
	}
}

func (h *LightingSetup) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	strength := num(params, "strength")
	if strength <= 0 {
		return nil, command.NewError(command.KindInvalidParameter, "parameter strength: must be positive")
	}
	color := vec(params, "color")
	rigType := str(params, "type")

	// created collects the final entity names so a rollback can undo the
	// whole rig by name.
	var created []string

	switch rigType {
	case "studio":
		names, err := h.createRig(ctx, studioRig, strength, color)
		if err != nil {
			return nil, err
		}
		created = names

	case "hdri":
		name, fresh, err := h.createEnvironment(ctx, strength, color)
		if err != nil {
			return nil, err
		}
		if fresh {
			created = append(created, name)
		}

	case "sun":
		name, err := h.createLight(ctx, lightSpec{
			name: "Sun", lightType: "SUN", location: []float64{0, 0, 10}, factor: 1.0, color: color,
		}, strength)
		if err != nil {
			return nil, err
		}
		created = append(created, name)

	default: // three_point
		names, err := h.createRig(ctx, threePointRig, strength, nil)
		if err != nil {
			return nil, err
		}
		created = names
	}

	lights := make([]interface{}, len(created))
	for i, name := range created {
		lights[i] = name
	}
	return map[string]interface{}{
		"type":   rigType,
		"lights": lights,
	}, nil
}

// createRig builds every light of a rig. A nil override keeps each light's
// own color.
func (h *LightingSetup) createRig(ctx context.Context, rig []lightSpec, strength float64, override []float64) ([]string, error) {
	names := make([]string, 0, len(rig))
	for _, spec := range rig {
		if override != nil {
			spec.color = override
		}
		name, err := h.createLight(ctx, spec, strength)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func (h *LightingSetup) createLight(ctx context.Context, spec lightSpec, strength float64) (string, error) {
	attrs := map[string]interface{}{
		"name":       spec.name,
		"light_type": spec.lightType,
		"energy":     strength * spec.factor,
		"location":   spec.location,
	}
	if spec.color != nil {
		attrs["color"] = spec.color
	}
	if spec.size > 0 {
		attrs["size"] = spec.size
	}
	id, err := h.backend.CreateEntity(ctx, scene.KindLight, attrs)
	if err != nil {
		return "", err
	}
	ent, err := h.backend.Inspect(ctx, id)
	if err != nil {
		return "", err
	}
	return ent.Name, nil
}

// createEnvironment upserts the world entity carrying the environment sky.
// The bool reports whether this call created it.
func (h *LightingSetup) createEnvironment(ctx context.Context, strength float64, color []float64) (string, bool, error) {
	const worldName = "Environment"
	attrs := map[string]interface{}{
		"sky":      true,
		"strength": strength,
		"color":    color,
	}

	id, err := h.backend.Resolve(ctx, worldName)
	if err == nil {
		return worldName, false, h.backend.MutateEntity(ctx, id, attrs)
	}
	attrs["name"] = worldName
	id, err = h.backend.CreateEntity(ctx, scene.KindWorld, attrs)
	if err != nil {
		return "", false, err
	}
	ent, err := h.backend.Inspect(ctx, id)
	if err != nil {
		return "", false, err
	}
	return ent.Name, true, nil
}

// Revert deletes every entity the rig created; names that are already gone
// count as compensated.
func (h *LightingSetup) Revert(ctx context.Context, params, result map[string]interface{}) error {
	lights, _ := result["lights"].([]interface{})
	for _, raw := range lights {
		name, _ := raw.(string)
		if name == "" {
			continue
		}
		if err := deleteByName(ctx, h.backend, name); err != nil {
			return err
		}
	}
	return nil
}

// PhysicsSimulation attaches a physics setup to a mesh object and
// optionally marks it baked.
type PhysicsSimulation struct {
	backend scene.Backend
}

func NewPhysicsSimulation(backend scene.Backend) *PhysicsSimulation {
	return &PhysicsSimulation{backend: backend}
}

func (h *PhysicsSimulation) Name() string { return "physics_simulation" }

func (h *PhysicsSimulation) Contract() *command.Contract {
	return &command.Contract{
		Name:        "physics_simulation",
		Description: "Attach a physics simulation to a mesh object",
		Params: []command.ParamSpec{
			{Key: "object", Type: command.TypeString, Required: true},
			{Key: "type", Type: command.TypeString, Default: "rigid_body",
				Enum: []string{"rigid_body", "soft_body", "cloth", "fluid"}},
			{Key: "mass", Type: command.TypeNumber, Default: 1.0, Min: command.Float64(0)},
			{Key: "frame_end", Type: command.TypeInt, Default: 250, Min: command.Float64(1)},
			{Key: "bake", Type: command.TypeBool, Default: false},
		},
	}
}

func (h *PhysicsSimulation) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	ent, err := lookupObject(ctx, h.backend, str(params, "object"))
	if err != nil {
		return nil, err
	}
	if ent.Kind != scene.KindMesh {
		return nil, command.NewError(command.KindInvalidParameter, "physics needs a mesh object, %s is a %s", ent.Name, ent.Kind)
	}

	simType := str(params, "type")
	baked := boolean(params, "bake")
	changes := map[string]interface{}{
		"physics": map[string]interface{}{
			"type":      simType,
			"mass":      num(params, "mass"),
			"frame_end": integer(params, "frame_end"),
			"baked":     baked,
		},
	}
	if err := h.backend.MutateEntity(ctx, ent.ID, changes); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"object": ent.Name,
		"type":   simType,
		"baked":  baked,
	}, nil
}

// Revert clears the simulation attributes from the object.
func (h *PhysicsSimulation) Revert(ctx context.Context, params, result map[string]interface{}) error {
	ent, err := lookupObject(ctx, h.backend, str(result, "object"))
	if err != nil {
		return err
	}
	return h.backend.MutateEntity(ctx, ent.ID, map[string]interface{}{"physics": nil})
}

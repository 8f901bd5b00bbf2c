package script

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Shopify/go-lua"

	"github.com/Srjnnnn/blendgate/pkg/scene"
)

// objectKinds are the entity kinds scene.objects() lists. Materials, node
// groups and other data blocks stay reachable through scene.get.
var objectKinds = map[string]bool{
	scene.KindMesh:   true,
	scene.KindCamera: true,
	scene.KindLight:  true,
	scene.KindEmpty:  true,
}

// runner owns the per-execution state the bindings close over: the command
// context every scene call runs under, and the captured print lines.
type runner struct {
	ctx     context.Context
	backend scene.Backend
	output  []string
}

// install wires the print override and the scene table for the given trust
// context. Mutating verbs only exist in restricted and full; the os table
// only in full.
func (r *runner) install(state *lua.State, trust string) {
	state.PushGoFunction(r.luaPrint)
	state.SetGlobal("print")

	funcs := []lua.RegistryFunction{
		{Name: "objects", Function: r.sceneObjects},
		{Name: "get", Function: r.sceneGet},
		{Name: "stats", Function: r.sceneStats},
	}
	if trust == ContextRestricted || trust == ContextFull {
		funcs = append(funcs,
			lua.RegistryFunction{Name: "create", Function: r.sceneCreate},
			lua.RegistryFunction{Name: "set", Function: r.sceneSet},
			lua.RegistryFunction{Name: "delete", Function: r.sceneDelete},
		)
	}
	state.NewTable()
	lua.SetFunctions(state, funcs, 0)
	state.SetGlobal("scene")

	if trust == ContextFull {
		state.NewTable()
		lua.SetFunctions(state, []lua.RegistryFunction{
			{Name: "clock", Function: osClock},
			{Name: "time", Function: osTime},
		}, 0)
		state.SetGlobal("os")
	}
}

func (r *runner) luaPrint(state *lua.State) int {
	top := state.Top()
	parts := make([]string, 0, top)
	for i := 1; i <= top; i++ {
		parts = append(parts, formatValue(goValue(state, i)))
	}
	r.output = append(r.output, strings.Join(parts, "\t"))
	return 0
}

func (r *runner) sceneObjects(state *lua.State) int {
	snap, err := r.backend.Snapshot(r.ctx)
	if err != nil {
		lua.Errorf(state, "scene.objects: %s", err.Error())
		return 0
	}
	state.NewTable()
	i := 0
	for _, ent := range snap.Entities {
		if !objectKinds[ent.Kind] {
			continue
		}
		i++
		state.NewTable()
		state.PushString(string(ent.ID))
		state.SetField(-2, "id")
		state.PushString(ent.Name)
		state.SetField(-2, "name")
		state.PushString(ent.Kind)
		state.SetField(-2, "kind")
		state.RawSetInt(-2, i)
	}
	return 1
}

// sceneGet returns nil rather than raising so scripts can probe for objects
// with a plain equality check.
func (r *runner) sceneGet(state *lua.State) int {
	name := lua.CheckString(state, 1)
	id, err := r.backend.Resolve(r.ctx, name)
	if err != nil {
		state.PushNil()
		return 1
	}
	ent, err := r.backend.Inspect(r.ctx, id)
	if err != nil {
		state.PushNil()
		return 1
	}
	state.NewTable()
	state.PushString(string(ent.ID))
	state.SetField(-2, "id")
	state.PushString(ent.Name)
	state.SetField(-2, "name")
	state.PushString(ent.Kind)
	state.SetField(-2, "kind")
	pushGoValue(state, ent.Attrs)
	state.SetField(-2, "attrs")
	return 1
}

func (r *runner) sceneStats(state *lua.State) int {
	snap, err := r.backend.Snapshot(r.ctx)
	if err != nil {
		lua.Errorf(state, "scene.stats: %s", err.Error())
		return 0
	}
	counts := make(map[string]interface{}, len(snap.Counts))
	for kind, n := range snap.Counts {
		counts[kind] = n
	}
	state.NewTable()
	state.PushInteger(int(snap.Revision))
	state.SetField(-2, "revision")
	state.PushInteger(len(snap.Entities))
	state.SetField(-2, "total")
	pushGoValue(state, counts)
	state.SetField(-2, "counts")
	return 1
}

// sceneCreate returns the final name of the new entity, which may differ
// from the requested one when the backend had to dedupe it.
func (r *runner) sceneCreate(state *lua.State) int {
	kind := lua.CheckString(state, 1)
	attrs := map[string]interface{}{}
	if !state.IsNoneOrNil(2) {
		lua.CheckType(state, 2, lua.TypeTable)
		attrs = mapAt(state, 2)
	}
	id, err := r.backend.CreateEntity(r.ctx, kind, attrs)
	if err != nil {
		lua.Errorf(state, "scene.create: %s", err.Error())
		return 0
	}
	ent, err := r.backend.Inspect(r.ctx, id)
	if err != nil {
		lua.Errorf(state, "scene.create: %s", err.Error())
		return 0
	}
	state.PushString(ent.Name)
	return 1
}

func (r *runner) sceneSet(state *lua.State) int {
	name := lua.CheckString(state, 1)
	lua.CheckType(state, 2, lua.TypeTable)
	changes := mapAt(state, 2)
	id, err := r.backend.Resolve(r.ctx, name)
	if err != nil {
		lua.Errorf(state, "scene.set: no object named %s", name)
		return 0
	}
	if err := r.backend.MutateEntity(r.ctx, id, changes); err != nil {
		lua.Errorf(state, "scene.set: %s", err.Error())
		return 0
	}
	return 0
}

func (r *runner) sceneDelete(state *lua.State) int {
	name := lua.CheckString(state, 1)
	id, err := r.backend.Resolve(r.ctx, name)
	if err != nil {
		lua.Errorf(state, "scene.delete: no object named %s", name)
		return 0
	}
	if err := r.backend.DeleteEntity(r.ctx, id); err != nil {
		lua.Errorf(state, "scene.delete: %s", err.Error())
		return 0
	}
	return 0
}

func osClock(state *lua.State) int {
	state.PushNumber(time.Since(processStart).Seconds())
	return 1
}

func osTime(state *lua.State) int {
	state.PushNumber(float64(time.Now().Unix()))
	return 1
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "nil"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// goValue converts the Lua value at index into a Go value. Whole numbers
// come back as int so returned tables marshal without trailing decimals.
func goValue(state *lua.State, index int) interface{} {
	switch state.TypeOf(index) {
	case lua.TypeString:
		v, _ := state.ToString(index)
		return v
	case lua.TypeNumber:
		v, _ := state.ToNumber(index)
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return int(v)
		}
		return v
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeTable:
		return goTable(state, index)
	default:
		return nil
	}
}

// goTable converts a Lua table, producing a slice when the keys form the
// sequence 1..n and a map otherwise.
func goTable(state *lua.State, index int) interface{} {
	index = state.AbsIndex(index)

	isArray := true
	maxIndex := 0
	count := 0
	state.PushNil()
	for state.Next(index) {
		if isArray {
			if state.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := state.ToInteger(-2); ok && idx > 0 {
				count++
				if idx > maxIndex {
					maxIndex = idx
				}
			} else {
				isArray = false
			}
		}
		state.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		out := make([]interface{}, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			state.RawGetInt(index, i)
			out = append(out, goValue(state, -1))
			state.Pop(1)
		}
		return out
	}
	return mapAt(state, index)
}

// mapAt converts the string-keyed pairs of the table at index. Non-string
// keys are dropped.
func mapAt(state *lua.State, index int) map[string]interface{} {
	out := map[string]interface{}{}
	if state.TypeOf(index) != lua.TypeTable {
		return out
	}
	index = state.AbsIndex(index)
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			key, _ := state.ToString(-2)
			out[key] = goValue(state, -1)
		}
		state.Pop(1)
	}
	return out
}

func pushGoValue(state *lua.State, v interface{}) {
	switch t := v.(type) {
	case nil:
		state.PushNil()
	case bool:
		state.PushBoolean(t)
	case string:
		state.PushString(t)
	case int:
		state.PushInteger(t)
	case int64:
		state.PushInteger(int(t))
	case float64:
		state.PushNumber(t)
	case scene.EntityID:
		state.PushString(string(t))
	case []float64:
		state.NewTable()
		for i, item := range t {
			state.PushNumber(item)
			state.RawSetInt(-2, i+1)
		}
	case []string:
		state.NewTable()
		for i, item := range t {
			state.PushString(item)
			state.RawSetInt(-2, i+1)
		}
	case []interface{}:
		state.NewTable()
		for i, item := range t {
			pushGoValue(state, item)
			state.RawSetInt(-2, i+1)
		}
	case map[string]interface{}:
		state.NewTable()
		for key, item := range t {
			pushGoValue(state, item)
			state.SetField(-2, key)
		}
	default:
		state.PushString(fmt.Sprintf("%v", t))
	}
}

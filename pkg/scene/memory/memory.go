// Package memory is the in-process reference implementation of
// scene.Backend. It backs the console, the test suite, and any deployment
// where blendgate fronts its own scene model rather than a live engine.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Srjnnnn/blendgate/pkg/scene"
)

// Backend holds all entities in a mutex-guarded map. Every read hands out
// deep copies so callers can never mutate shared state.
type Backend struct {
	mu       sync.RWMutex
	entities map[scene.EntityID]*scene.Entity
	byName   map[string]scene.EntityID
	revision int64
	seq      map[string]int
}

// NewBackend returns an empty scene.
func NewBackend() *Backend {
	return &Backend{
		entities: make(map[scene.EntityID]*scene.Entity),
		byName:   make(map[string]scene.EntityID),
		seq:      make(map[string]int),
	}
}

func (b *Backend) CreateEntity(ctx context.Context, kind string, attrs map[string]interface{}) (scene.EntityID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if kind == "" {
		return "", fmt.Errorf("entity kind required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	name, _ := attrs["name"].(string)
	if name == "" {
		b.seq[kind]++
		name = fmt.Sprintf("%s_%03d", titleKind(kind), b.seq[kind])
	}
	name = b.dedupeName(name)

	id := scene.EntityID(uuid.NewString())
	ent := &scene.Entity{
		ID:    id,
		Kind:  kind,
		Name:  name,
		Attrs: copyAttrs(attrs),
	}
	ent.Attrs["name"] = name

	b.entities[id] = ent
	b.byName[name] = id
	b.revision++
	return id, nil
}

func (b *Backend) MutateEntity(ctx context.Context, id scene.EntityID, changes map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ent, ok := b.entities[id]
	if !ok {
		return scene.ErrNotFound
	}

	if newName, ok := changes["name"].(string); ok && newName != "" && newName != ent.Name {
		delete(b.byName, ent.Name)
		newName = b.dedupeName(newName)
		ent.Name = newName
		b.byName[newName] = id
	}
	for k, v := range changes {
		if k == "name" {
			ent.Attrs["name"] = ent.Name
			continue
		}
		ent.Attrs[k] = copyValue(v)
	}
	b.revision++
	return nil
}

func (b *Backend) DeleteEntity(ctx context.Context, id scene.EntityID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ent, ok := b.entities[id]
	if !ok {
		return scene.ErrNotFound
	}
	delete(b.byName, ent.Name)
	delete(b.entities, id)
	b.revision++
	return nil
}

func (b *Backend) Resolve(ctx context.Context, name string) (scene.EntityID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	id, ok := b.byName[name]
	if !ok {
		return "", scene.ErrNotFound
	}
	return id, nil
}

func (b *Backend) Inspect(ctx context.Context, id scene.EntityID) (*scene.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	ent, ok := b.entities[id]
	if !ok {
		return nil, scene.ErrNotFound
	}
	return copyEntity(ent), nil
}

func (b *Backend) Snapshot(ctx context.Context) (*scene.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := &scene.Snapshot{
		Revision: b.revision,
		Counts:   make(map[string]int),
		Entities: make([]scene.Entity, 0, len(b.entities)),
		TakenAt:  time.Now().UTC(),
	}
	for _, ent := range b.entities {
		snap.Counts[ent.Kind]++
		snap.Entities = append(snap.Entities, *copyEntity(ent))
	}
	sort.Slice(snap.Entities, func(i, j int) bool {
		return snap.Entities[i].Name < snap.Entities[j].Name
	})
	return snap, nil
}

// dedupeName appends .001-style suffixes until the name is free. Callers
// must hold the write lock.
func (b *Backend) dedupeName(name string) string {
	if _, taken := b.byName[name]; !taken {
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%03d", name, i)
		if _, taken := b.byName[candidate]; !taken {
			return candidate
		}
	}
}

func titleKind(kind string) string {
	if kind == "" {
		return "Entity"
	}
	return strings.ToUpper(kind[:1]) + kind[1:]
}

func copyEntity(e *scene.Entity) *scene.Entity {
	return &scene.Entity{
		ID:    e.ID,
		Kind:  e.Kind,
		Name:  e.Name,
		Attrs: copyAttrs(e.Attrs),
	}
}

func copyAttrs(attrs map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return copyAttrs(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []float64:
		out := make([]float64, len(t))
		copy(out, t)
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

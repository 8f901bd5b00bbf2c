// Package scene defines the contract between command handlers and the
// engine that actually holds scene state. The dispatcher never interprets
// backend internals; it resolves names, applies mutations, and reads
// snapshots through this interface only.
package scene

import (
	"context"
	"errors"
	"time"
)

// EntityID is an opaque handle to one scene entity. IDs are stable for the
// life of the entity and never reused.
type EntityID string

// Entity kinds used by the stock command catalog. Backends may define
// more; the dispatcher treats kinds as opaque strings.
const (
	KindMesh      = "mesh"
	KindCamera    = "camera"
	KindLight     = "light"
	KindEmpty     = "empty"
	KindMaterial  = "material"
	KindNodeGroup = "node_group"
	KindWorld     = "world"
	KindSim       = "sim"
)

// ErrNotFound is returned when an id or name resolves to nothing.
var ErrNotFound = errors.New("entity not found")

// Entity is one addressable piece of scene state.
type Entity struct {
	ID    EntityID               `json:"id"`
	Kind  string                 `json:"kind"`
	Name  string                 `json:"name"`
	Attrs map[string]interface{} `json:"attrs,omitempty"`
}

// Snapshot is a point-in-time copy of scene state. Mutating a snapshot
// never affects the backend.
type Snapshot struct {
	Revision int64          `json:"revision"`
	Counts   map[string]int `json:"counts"`
	Entities []Entity       `json:"entities"`
	TakenAt  time.Time      `json:"taken_at"`
}

// Backend is the external collaborator every handler mutates scene state
// through. Each operation is individually linearizable; there is no
// cross-operation transaction, which is exactly why batch rollback is
// best-effort compensation rather than an abort.
type Backend interface {
	// CreateEntity adds an entity of the given kind. When attrs carries a
	// "name" the backend uses it, deduplicating with a numeric suffix the
	// way content tools do; otherwise it assigns one. Returns the new id.
	CreateEntity(ctx context.Context, kind string, attrs map[string]interface{}) (EntityID, error)

	// MutateEntity merges changes into the entity's attributes. A "name"
	// change re-indexes the entity. Fails with ErrNotFound when id is gone.
	MutateEntity(ctx context.Context, id EntityID, changes map[string]interface{}) error

	// DeleteEntity removes the entity. Fails with ErrNotFound when absent.
	DeleteEntity(ctx context.Context, id EntityID) error

	// Resolve maps a human-readable name to an id. Handlers resolve names
	// per execution and never cache the result, so entries later in a
	// batch observe renames made by earlier ones.
	Resolve(ctx context.Context, name string) (EntityID, error)

	// Inspect returns a copy of one entity.
	Inspect(ctx context.Context, id EntityID) (*Entity, error)

	// Snapshot returns a copy of the whole scene.
	Snapshot(ctx context.Context) (*Snapshot, error)
}

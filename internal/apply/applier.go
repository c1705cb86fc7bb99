package apply

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cyntientops/field-sync/internal/model"
)

// Applier applies one queued mutation to the authoritative backend.
// Implementations must be idempotent: replaying an operation that partially
// succeeded server-side must not double-apply (the HTTP appliers send the
// operation ID as an idempotency key).
type Applier interface {
	Entity() model.EntityType
	Apply(ctx context.Context, op *model.SyncOperation) error
}

// DivergenceError is returned by an applier when the server state no longer
// matches what the client mutation assumed. It is not a failure; the sync
// engine turns it into a conflict record.
type DivergenceError struct {
	ServerData json.RawMessage
}

func (e *DivergenceError) Error() string {
	return "server state diverged from client mutation"
}

// Registry holds one applier per entity type.
type Registry struct {
	appliers map[model.EntityType]Applier
}

func NewRegistry(appliers ...Applier) *Registry {
	r := &Registry{appliers: make(map[model.EntityType]Applier, len(appliers))}
	for _, a := range appliers {
		r.appliers[a.Entity()] = a
	}
	return r
}

// Register replaces the applier for its entity type.
func (r *Registry) Register(a Applier) {
	r.appliers[a.Entity()] = a
}

func (r *Registry) Get(entity model.EntityType) (Applier, error) {
	a, ok := r.appliers[entity]
	if !ok {
		return nil, fmt.Errorf("no applier registered for entity %s", entity)
	}
	return a, nil
}

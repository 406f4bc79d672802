package source

import (
	"context"
	"fmt"

	"devpulse/internal/domain"
)

// Batch groups the raw items discovered for one source identity, so the
// upsert layer can register the source row before inserting its items.
type Batch struct {
	Source domain.Source
	Items  []domain.RawItem
}

// Connector captures a single connector implementation (GitHub, model
// hub, blog feeds). A connector never fails the whole run because one of
// its configured sources failed: that source yields an empty batch.
type Connector interface {
	Name() string
	Fetch(ctx context.Context) ([]Batch, error)
}

// Registry keeps a mapping from connector names to their implementations.
type Registry struct {
	connectors map[string]Connector
	order      []string
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{connectors: map[string]Connector{}}
}

// Register adds or replaces a connector implementation.
func (r *Registry) Register(c Connector) {
	if r.connectors == nil {
		r.connectors = map[string]Connector{}
	}
	if _, ok := r.connectors[c.Name()]; !ok {
		r.order = append(r.order, c.Name())
	}
	r.connectors[c.Name()] = c
}

// Resolve returns a connector by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Connector, error) {
	if c, ok := r.connectors[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("connector %s is not registered", name)
}

// Names lists registered connectors in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

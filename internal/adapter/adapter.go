// Package adapter transforms legacy rows selected by a query plan into
// records for the target store.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"legacy-migrate/internal/catalog"
	"legacy-migrate/internal/legacy"
	"legacy-migrate/internal/planner"
	"legacy-migrate/internal/targetstore"
)

// ErrNoAdapter is returned when no adapter is registered for a class.
var ErrNoAdapter = errors.New("no adapter registered")

// Result holds the records produced from one legacy row. The first record
// becomes the row's migration marker.
type Result struct {
	Records []targetstore.Record
}

// Adapter transforms one legacy row into zero or more target records.
type Adapter interface {
	Transform(ctx context.Context, row legacy.Row) (Result, error)
}

// ActionSupporter is implemented by adapters that only handle some actions.
type ActionSupporter interface {
	Supports(action planner.Action) bool
}

// Supports reports whether a can run for action.
func Supports(a Adapter, action planner.Action) bool {
	if s, ok := a.(ActionSupporter); ok {
		return s.Supports(action)
	}
	return true
}

// Registry maps classes to adapters. It is populated at startup.
type Registry struct {
	adapters map[catalog.Class]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[catalog.Class]Adapter)}
}

// Register binds an adapter to class, replacing any previous one.
func (r *Registry) Register(class catalog.Class, a Adapter) {
	r.adapters[class] = a
}

// Lookup returns the adapter for class.
func (r *Registry) Lookup(class catalog.Class) (Adapter, error) {
	a, ok := r.adapters[class]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, class)
	}
	return a, nil
}

// Classes returns the registered classes in name order.
func (r *Registry) Classes() []catalog.Class {
	classes := make([]catalog.Class, 0, len(r.adapters))
	for class := range r.adapters {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	return classes
}

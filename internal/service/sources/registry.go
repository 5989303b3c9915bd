package sources

import (
	"fmt"
	"sort"

	"FinArb/internal/domain/models"
	"FinArb/internal/domain/repository"
)

// Registered pairs a source's static description with its fetch adapter.
type Registered struct {
	Source  models.Source
	Fetcher repository.Fetcher
}

// Registry is the static capability -> sources mapping, built once at
// engine construction and read-only afterwards. Multiple engines can
// hold independent registries; there is no process-global state.
type Registry struct {
	entries []Registered
	byID    map[string]Registered
	byCap   map[models.Capability][]models.Source
}

// NewRegistry builds a registry from the given entries. Source IDs must
// be unique.
func NewRegistry(entries []Registered) (*Registry, error) {
	r := &Registry{
		entries: entries,
		byID:    make(map[string]Registered, len(entries)),
		byCap:   make(map[models.Capability][]models.Source),
	}
	for _, e := range entries {
		if e.Source.ID == "" {
			return nil, fmt.Errorf("source with empty id")
		}
		if _, dup := r.byID[e.Source.ID]; dup {
			return nil, fmt.Errorf("duplicate source id %q", e.Source.ID)
		}
		if e.Fetcher == nil {
			return nil, fmt.Errorf("source %q has no fetcher", e.Source.ID)
		}
		r.byID[e.Source.ID] = e
		for _, c := range e.Source.Capabilities {
			r.byCap[c] = append(r.byCap[c], e.Source)
		}
	}
	// deterministic iteration order regardless of construction order
	for c := range r.byCap {
		list := r.byCap[c]
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return r, nil
}

// Capable returns the sources declaring the capability, in id order.
func (r *Registry) Capable(c models.Capability) []models.Source {
	return r.byCap[c]
}

// FetcherFor returns the fetch adapter for a source id.
func (r *Registry) FetcherFor(id string) (repository.Fetcher, bool) {
	e, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return e.Fetcher, true
}

// SourceByID returns the static source description for an id.
func (r *Registry) SourceByID(id string) (models.Source, bool) {
	e, ok := r.byID[id]
	return e.Source, ok
}

// All returns every registered entry.
func (r *Registry) All() []Registered {
	return r.entries
}

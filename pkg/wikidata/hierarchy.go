package wikidata

import (
	"context"
	"fmt"
)

// EntityFetcher is the part of Client the resolver needs.
type EntityFetcher interface {
	GetEntities(ctx context.Context, ids []string) (map[string]Entity, error)
}

// Resolver walks the "located in the administrative territorial entity" chain
// upwards from an entity and collects the ancestors' labels, nearest first.
type Resolver struct {
	fetcher  EntityFetcher
	maxDepth int
}

// NewResolver creates a resolver that follows at most maxDepth hops.
func NewResolver(f EntityFetcher, maxDepth int) *Resolver {
	return &Resolver{fetcher: f, maxDepth: maxDepth}
}

// Resolve fetches id and returns the labels of its administrative ancestors.
// A missing start entity yields an empty path.
func (r *Resolver) Resolve(ctx context.Context, id string) ([]string, error) {
	m, err := r.fetcher.GetEntities(ctx, []string{id})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}
	start, ok := m[id]
	if !ok {
		return []string{}, nil
	}
	return r.Walk(ctx, start)
}

// Walk resolves the path from an already fetched entity.
//
// Each hop fetches the parent once and reuses it for both its label and its own
// parent claim. The walk stops when an entity has no parent, the parent was
// already visited, the parent does not exist, or maxDepth hops were taken.
// Parents without a label advance the walk without adding an entry.
func (r *Resolver) Walk(ctx context.Context, start Entity) ([]string, error) {
	path := []string{}
	// The start counts as visited, so a chain leading back to it ends before
	// repeating it: A -> B -> A yields [B].
	visited := map[string]bool{start.ID: true}
	current := start

	for step := 0; step < r.maxDepth; step++ {
		parentID, ok := current.FirstItemID(PropLocatedIn)
		if !ok || visited[parentID] {
			break
		}
		visited[parentID] = true

		m, err := r.fetcher.GetEntities(ctx, []string{parentID})
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", parentID, err)
		}
		parent, ok := m[parentID]
		if !ok {
			break
		}
		if label := parent.Label(); label != "" {
			path = append(path, label)
		}
		current = parent
	}
	return path, nil
}

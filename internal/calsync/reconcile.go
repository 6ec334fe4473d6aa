package calsync

import (
	"context"
	"fmt"
)

// Instances are written and deleted in fixed-size chunks to keep
// statement sizes bounded.
const reconcileChunkSize = 100

// runStats is the per-run mutable state for one reconciliation. It is
// threaded through the call explicitly rather than captured, so nothing
// is shared between concurrent runs.
type runStats struct {
	upserted int
	deleted  int
}

// reconcile writes the produced instances in chunks keyed by
// (feed, instance key), then deletes stored instances inside the window
// whose key was not produced by this run. Upsert fully completes before
// the stale-instance query, so the delete only ever observes a state
// that already includes everything this run wrote.
func (e *Engine) reconcile(ctx context.Context, feed Feed, w Window, produced []Instance) (runStats, error) {
	var stats runStats

	for chunk := range chunks(produced, reconcileChunkSize) {
		n, err := e.store.UpsertInstances(ctx, chunk)
		if err != nil {
			return stats, fmt.Errorf("%w: upserting instances: %v", ErrStore, err)
		}
		stats.upserted += n
	}

	stored, err := e.store.InstancesInWindow(ctx, feed.ID, w)
	if err != nil {
		return stats, fmt.Errorf("%w: selecting stored instances: %v", ErrStore, err)
	}

	keep := make(map[string]struct{}, len(produced))
	for _, inst := range produced {
		keep[inst.InstanceKey] = struct{}{}
	}

	var stale []string
	for _, inst := range stored {
		if _, ok := keep[inst.InstanceKey]; !ok {
			stale = append(stale, inst.ID)
		}
	}

	for chunk := range chunks(stale, reconcileChunkSize) {
		if err := e.store.DeleteInstances(ctx, chunk); err != nil {
			return stats, fmt.Errorf("%w: deleting stale instances: %v", ErrStore, err)
		}
		stats.deleted += len(chunk)
	}

	return stats, nil
}

// chunks yields successive sub-slices of at most size elements.
func chunks[T any](s []T, size int) func(func([]T) bool) {
	return func(yield func([]T) bool) {
		for start := 0; start < len(s); start += size {
			end := min(start+size, len(s))
			if !yield(s[start:end]) {
				return
			}
		}
	}
}

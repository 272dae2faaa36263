package tree

import (
	"context"
	"time"

	"peakfit/workout-catalog/internal/domain"
	"peakfit/workout-catalog/internal/repository"
	"peakfit/workout-catalog/internal/treestore"
)

type candidate struct {
	workout domain.Workout
	moved   time.Time
	date    time.Time
	dated   bool
}

// outranks reports whether a should be kept over b. The copy written by the
// latest move wins, then a later date, then a copy whose path matches its
// stored discriminators. Otherwise the copy seen first in traversal order
// stays.
func (a candidate) outranks(b candidate) bool {
	if !a.moved.Equal(b.moved) {
		return a.moved.After(b.moved)
	}
	if a.dated != b.dated {
		return a.dated
	}
	if a.dated && !a.date.Equal(b.date) {
		return a.date.After(b.date)
	}
	return !a.workout.Location.Drift && b.workout.Location.Drift
}

// Reconcile finds ids stored more than once, keeps one copy of each and
// removes the rest with a single multi-path write.
func (r *WorkoutRepository) Reconcile(ctx context.Context) (*repository.ReconcileReport, error) {
	tree, err := r.readRoot(ctx)
	if err != nil {
		return nil, err
	}

	report := &repository.ReconcileReport{
		DuplicateIDs: []string{},
		Removed:      []domain.Location{},
	}
	groups := make(map[string][]candidate)
	var order []string

	err = walk(tree, Depth, func(e entry) error {
		report.Scanned++
		w, err := r.annotate(e)
		if err != nil || w.ID == "" {
			return nil
		}
		c := candidate{workout: w}
		if ts, err := domain.ParseDate(w.Date); err == nil {
			c.date, c.dated = ts, true
		}
		if ts, err := domain.ParseDate(w.MovedAt); err == nil {
			c.moved = ts
		}
		if _, ok := groups[w.ID]; !ok {
			order = append(order, w.ID)
		}
		groups[w.ID] = append(groups[w.ID], c)
		return nil
	})
	if err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	// list collections lose several entries in one rewrite
	listDrops := make(map[string]map[int]bool)
	listPaths := make(map[string]domain.Discriminators)

	for _, id := range order {
		copies := groups[id]
		if len(copies) < 2 {
			continue
		}
		report.DuplicateIDs = append(report.DuplicateIDs, id)

		keep := 0
		for i := 1; i < len(copies); i++ {
			if copies[i].outranks(copies[keep]) {
				keep = i
			}
		}
		for i, c := range copies {
			if i == keep {
				continue
			}
			loc := *c.workout.Location
			report.Removed = append(report.Removed, loc)

			leaf := r.leafPath(loc.Path)
			if !loc.Listed() {
				updates[leaf.Child(loc.Key).String()] = nil
				continue
			}
			k := leaf.String()
			if listDrops[k] == nil {
				listDrops[k] = make(map[int]bool)
				listPaths[k] = loc.Path
			}
			listDrops[k][loc.Index] = true
		}
	}

	for k, drops := range listDrops {
		rel := treestore.Path(listPaths[k].Segments()).Child(LeafKey)
		list, _ := treestore.Lookup(tree, rel).([]any)
		kept := make([]any, 0, len(list))
		for i, v := range list {
			if !drops[i] {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			updates[k] = nil
		} else {
			updates[k] = kept
		}
	}

	if len(updates) > 0 {
		if err := r.store.MultiWrite(ctx, updates); err != nil {
			return nil, storageErr("multi-write", r.root, err)
		}
	}

	r.logger.Info().
		Int("scanned", report.Scanned).
		Int("duplicates", len(report.DuplicateIDs)).
		Int("removed", len(report.Removed)).
		Msg("catalog reconciled")
	return report, nil
}

package tree

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"peakfit/workout-catalog/internal/domain"
	"peakfit/workout-catalog/internal/repository"
	"peakfit/workout-catalog/internal/treestore"
)

// WorkoutRepository implements repository.WorkoutRepository below one root path.
type WorkoutRepository struct {
	store  treestore.Store
	root   treestore.Path
	move   MoveMode
	logger zerolog.Logger
	now    func() time.Time
}

var _ repository.WorkoutRepository = (*WorkoutRepository)(nil)

// NewWorkoutRepository creates a repository rooted at config.Root.
func NewWorkoutRepository(store treestore.Store, config Config, logger zerolog.Logger) *WorkoutRepository {
	move := config.MoveMode
	if move == "" {
		move = MoveAtomic
	}
	return &WorkoutRepository{
		store:  store,
		root:   config.Root.Child(),
		move:   move,
		logger: logger,
		now:    time.Now,
	}
}

// Root returns the path the repository operates under.
func (r *WorkoutRepository) Root() treestore.Path {
	return r.root.Child()
}

func (r *WorkoutRepository) leafPath(d domain.Discriminators) treestore.Path {
	return r.root.Child(d.Segments()...).Child(LeafKey)
}

func storageErr(op string, p treestore.Path, err error) error {
	return &repository.StorageError{Op: op, Path: p.String(), Err: err}
}

func (r *WorkoutRepository) readRoot(ctx context.Context) (any, error) {
	tree, err := r.store.Read(ctx, r.root)
	if err != nil {
		return nil, storageErr("read", r.root, err)
	}
	return tree, nil
}

// annotate turns a leaf entry into a record carrying its location. A stored
// discriminator wins over the path; a missing one is taken from the path.
func (r *WorkoutRepository) annotate(e entry) (domain.Workout, error) {
	w, err := fromNode(e.node)
	if err != nil {
		return domain.Workout{}, err
	}
	w.ID = nodeID(e.node, e.key)

	stored := w.Discriminators()
	merged, drift := mergeDiscriminators(stored, e.path)
	w = w.WithDiscriminators(merged)

	loc := e.location()
	loc.Drift = drift
	w.Location = &loc

	if drift {
		r.logger.Warn().
			Str("id", w.ID).
			Strs("path", e.path.Segments()).
			Strs("stored", stored.Segments()).
			Msg("workout discriminators disagree with its catalog path")
	}
	return w, nil
}

func mergeDiscriminators(stored, path domain.Discriminators) (domain.Discriminators, bool) {
	drift := false
	pick := func(s, p string) string {
		if s == "" {
			return p
		}
		if s != p {
			drift = true
		}
		return s
	}
	return domain.Discriminators{
		Goal:        pick(stored.Goal, path.Goal),
		Limitations: pick(stored.Limitations, path.Limitations),
		Level:       pick(stored.Level, path.Level),
		Day:         pick(stored.Day, path.Day),
	}, drift
}

// List returns every record in the catalog, ordered by path then key.
func (r *WorkoutRepository) List(ctx context.Context) ([]domain.Workout, error) {
	tree, err := r.readRoot(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Workout, 0)
	seen := make(map[string]domain.Location)
	err = walk(tree, Depth, func(e entry) error {
		w, err := r.annotate(e)
		if err != nil {
			r.logger.Warn().Err(err).Strs("path", e.path.Segments()).Str("key", e.key).Msg("skipping unreadable workout")
			return nil
		}
		if w.ID != "" {
			if prev, dup := seen[w.ID]; dup {
				r.logger.Warn().
					Str("id", w.ID).
					Strs("first", prev.Path.Segments()).
					Strs("again", w.Location.Path.Segments()).
					Msg("duplicate workout id in catalog")
			} else {
				seen[w.ID] = *w.Location
			}
		}
		out = append(out, w)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID walks the catalog and returns the first record whose id matches.
// Records without an id field match on their key.
func (r *WorkoutRepository) GetByID(ctx context.Context, id string) (*domain.Workout, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "required")
	}
	tree, err := r.readRoot(ctx)
	if err != nil {
		return nil, err
	}

	var (
		found  *domain.Workout
		decErr error
	)
	err = walk(tree, Depth, func(e entry) error {
		if nodeID(e.node, e.key) != id {
			return nil
		}
		w, err := r.annotate(e)
		if err != nil {
			decErr = err
			return errStopWalk
		}
		found = &w
		return errStopWalk
	})
	if err != nil {
		return nil, err
	}
	if decErr != nil {
		return nil, fmt.Errorf("workout %q: %w", id, decErr)
	}
	if found == nil {
		return nil, &repository.NotFoundError{ID: id}
	}
	return found, nil
}

// Insert files data under its discriminators with a store-generated id.
func (r *WorkoutRepository) Insert(ctx context.Context, ownerID string, data domain.Workout) (*domain.Workout, error) {
	if ownerID == "" {
		return nil, domain.NewValidationError("createdBy", "owner is required")
	}
	if _, err := domain.DerivePath(data); err != nil {
		return nil, err
	}

	leaf := r.leafPath(data.Discriminators())
	key, err := r.store.GenerateKey(ctx, leaf)
	if err != nil {
		return nil, storageErr("generate key", leaf, err)
	}

	w := data
	w.ID = key
	w.CreatedBy = ownerID
	w.Date = domain.FormatDate(r.now())
	w.MovedAt = ""
	w.Location = nil

	node, err := toNode(w)
	if err != nil {
		return nil, err
	}
	target, value, index, err := r.placement(ctx, leaf, key, node)
	if err != nil {
		return nil, err
	}
	if err := r.store.Write(ctx, target, value); err != nil {
		return nil, storageErr("write", target, err)
	}

	w.Location = placedAt(w.Discriminators(), key, index)
	r.logger.Debug().Str("id", key).Strs("path", w.Discriminators().Segments()).Msg("workout inserted")
	return &w, nil
}

// Update applies patch to the record with the given id. When the patch
// changes a discriminator the record is moved to its new path.
func (r *WorkoutRepository) Update(ctx context.Context, id string, patch domain.WorkoutPatch) (*domain.Workout, error) {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.ID != nil && *patch.ID != existing.ID {
		return nil, domain.NewValidationError("id", "cannot be changed")
	}

	loc := *existing.Location
	updated := patch.Apply(*existing)
	if _, err := domain.DerivePath(updated); err != nil {
		return nil, err
	}

	from := loc.Path
	to := updated.Discriminators()
	if to != from {
		updated.MovedAt = domain.FormatDate(r.now())
	}
	node, err := toNode(updated)
	if err != nil {
		return nil, err
	}
	if to == from {
		target := r.leafPath(from).Child(loc.Key)
		if loc.Listed() {
			target = r.leafPath(from).Child(strconv.Itoa(loc.Index))
		}
		if err := r.store.Write(ctx, target, node); err != nil {
			return nil, storageErr("write", target, err)
		}
		updated.Location = &domain.Location{Path: to, Key: loc.Key, Index: loc.Index}
		return &updated, nil
	}

	return r.moveRecord(ctx, updated, node, loc)
}

func (r *WorkoutRepository) moveRecord(ctx context.Context, updated domain.Workout, node map[string]any, loc domain.Location) (*domain.Workout, error) {
	from := loc.Path
	to := updated.Discriminators()

	key := loc.Key
	if key == "" {
		key = updated.ID
	}
	if treestore.ValidateKey(key) != nil {
		// the record keeps its id field; only its key is new
		generated, err := r.store.GenerateKey(ctx, r.leafPath(to))
		if err != nil {
			return nil, storageErr("generate key", r.leafPath(to), err)
		}
		key = generated
	}
	target, value, index, err := r.placement(ctx, r.leafPath(to), key, node)
	if err != nil {
		return nil, err
	}

	oldPath, oldValue, err := r.removal(ctx, loc, updated.ID)
	if err != nil {
		return nil, err
	}

	log := r.logger.With().
		Str("id", updated.ID).
		Strs("from", from.Segments()).
		Strs("to", to.Segments()).
		Str("mode", string(r.move)).
		Logger()

	switch r.move {
	case MoveSequential:
		if err := r.store.Write(ctx, target, value); err != nil {
			return nil, storageErr("write", target, err)
		}
		if err := r.apply(ctx, oldPath, oldValue); err != nil {
			log.Warn().Err(err).Msg("workout copied but old copy not removed")
			return nil, &repository.PartialMoveError{ID: updated.ID, From: from, To: to, Err: err}
		}
	default:
		updates := map[string]any{
			target.String():  value,
			oldPath.String(): oldValue,
		}
		if err := r.store.MultiWrite(ctx, updates); err != nil {
			return nil, storageErr("multi-write", r.root, err)
		}
	}

	log.Info().Msg("workout moved")
	updated.Location = placedAt(to, key, index)
	return &updated, nil
}

// placement works out the write that files node under key in the collection
// at leaf. Keyed or absent collections get a new child. A list collection is
// rewritten with node appended, and index is its position in the list; it is
// -1 for keyed writes.
func (r *WorkoutRepository) placement(ctx context.Context, leaf treestore.Path, key string, node map[string]any) (treestore.Path, any, int, error) {
	list, listed, err := r.listAt(ctx, leaf)
	if err != nil {
		return nil, nil, -1, err
	}
	if !listed {
		return leaf.Child(key), node, -1, nil
	}
	return leaf, append(list, node), len(list), nil
}

// listAt reads the collection at leaf and reports whether it is a list.
func (r *WorkoutRepository) listAt(ctx context.Context, leaf treestore.Path) ([]any, bool, error) {
	current, err := r.store.Read(ctx, leaf)
	if err != nil {
		return nil, false, storageErr("read", leaf, err)
	}
	list, ok := current.([]any)
	return list, ok, nil
}

func placedAt(path domain.Discriminators, key string, index int) *domain.Location {
	if index >= 0 {
		return &domain.Location{Path: path, Index: index}
	}
	return &domain.Location{Path: path, Key: key, Index: -1}
}

// removal works out the write that takes record id out of the collection at
// loc. Keyed entries are removed by key. List collections are filtered by id
// and rewritten, or removed once nothing is left in them.
func (r *WorkoutRepository) removal(ctx context.Context, loc domain.Location, id string) (treestore.Path, any, error) {
	leaf := r.leafPath(loc.Path)
	if !loc.Listed() {
		return leaf.Child(loc.Key), nil, nil
	}

	current, err := r.store.Read(ctx, leaf)
	if err != nil {
		return nil, nil, storageErr("read", leaf, err)
	}
	list, _ := current.([]any)
	kept := make([]any, 0, len(list))
	for _, v := range list {
		if node, ok := v.(map[string]any); ok && nodeID(node, "") == id {
			continue
		}
		kept = append(kept, v)
	}
	if len(kept) == 0 {
		return leaf, nil, nil
	}
	return leaf, kept, nil
}

// apply writes value at p, removing the node when value is nil.
func (r *WorkoutRepository) apply(ctx context.Context, p treestore.Path, value any) error {
	if value == nil {
		if err := r.store.Remove(ctx, p); err != nil {
			return storageErr("remove", p, err)
		}
		return nil
	}
	if err := r.store.Write(ctx, p, value); err != nil {
		return storageErr("write", p, err)
	}
	return nil
}

// Delete removes the record with the given id. Ancestors left empty are kept.
func (r *WorkoutRepository) Delete(ctx context.Context, id string) error {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	p, value, err := r.removal(ctx, *existing.Location, existing.ID)
	if err != nil {
		return err
	}
	if err := r.apply(ctx, p, value); err != nil {
		return err
	}
	r.logger.Debug().Str("id", id).Strs("path", existing.Location.Path.Segments()).Msg("workout deleted")
	return nil
}

// BulkInsert validates every record first; one invalid record means nothing
// is written. All records are then written with a single multi-path write.
// Unlike Insert, a date supplied on a record is kept; only missing dates are
// set to now.
func (r *WorkoutRepository) BulkInsert(ctx context.Context, ownerID string, records []domain.Workout) ([]domain.Workout, error) {
	if ownerID == "" {
		return nil, domain.NewValidationError("createdBy", "owner is required")
	}

	var fieldErrs []domain.FieldError
	for i, rec := range records {
		_, err := domain.DerivePath(rec)
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			for _, fe := range ve.Errors {
				fieldErrs = append(fieldErrs, domain.FieldError{
					Field:   fmt.Sprintf("records[%d].%s", i, fe.Field),
					Message: fe.Message,
				})
			}
		} else if err != nil {
			return nil, err
		}
	}
	if len(fieldErrs) > 0 {
		return nil, domain.NewValidationErrors(fieldErrs)
	}

	out := make([]domain.Workout, 0, len(records))
	if len(records) == 0 {
		return out, nil
	}

	now := domain.FormatDate(r.now())
	updates := make(map[string]any, len(records))
	// list collections receive all their new records in one rewrite
	lists := make(map[string][]any)
	checked := make(map[string]bool)
	for _, rec := range records {
		leaf := r.leafPath(rec.Discriminators())
		key, err := r.store.GenerateKey(ctx, leaf)
		if err != nil {
			return nil, storageErr("generate key", leaf, err)
		}

		w := rec
		w.ID = key
		w.CreatedBy = ownerID
		if w.Date == "" {
			w.Date = now
		}
		w.MovedAt = ""
		w.Location = nil

		node, err := toNode(w)
		if err != nil {
			return nil, err
		}

		k := leaf.String()
		if !checked[k] {
			checked[k] = true
			list, listed, err := r.listAt(ctx, leaf)
			if err != nil {
				return nil, err
			}
			if listed {
				lists[k] = list
			}
		}
		if list, ok := lists[k]; ok {
			w.Location = placedAt(w.Discriminators(), key, len(list))
			lists[k] = append(list, node)
		} else {
			updates[leaf.Child(key).String()] = node
			w.Location = placedAt(w.Discriminators(), key, -1)
		}
		out = append(out, w)
	}
	for k, list := range lists {
		updates[k] = list
	}

	if err := r.store.MultiWrite(ctx, updates); err != nil {
		return nil, storageErr("multi-write", r.root, err)
	}
	r.logger.Info().Int("count", len(out)).Msg("workouts bulk inserted")
	return out, nil
}

// DeleteAll removes the repository root and everything below it.
func (r *WorkoutRepository) DeleteAll(ctx context.Context) error {
	if err := r.store.Remove(ctx, r.root); err != nil {
		return storageErr("remove", r.root, err)
	}
	r.logger.Warn().Str("root", r.root.String()).Msg("workout catalog wiped")
	return nil
}

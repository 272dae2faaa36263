package tree

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"peakfit/workout-catalog/internal/domain"
	"peakfit/workout-catalog/internal/repository"
	"peakfit/workout-catalog/internal/treestore"
)

// PendingQueue keeps submitted workouts at <root>/<id> until a moderator
// approves them into the catalog or deletes them.
type PendingQueue struct {
	store   treestore.Store
	root    treestore.Path
	catalog *Catalog
	logger  zerolog.Logger
	now     func() time.Time
}

var _ repository.PendingQueue = (*PendingQueue)(nil)

func newPendingQueue(store treestore.Store, root treestore.Path, catalog *Catalog, logger zerolog.Logger) *PendingQueue {
	return &PendingQueue{
		store:   store,
		root:    root.Child(),
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

// List returns queued records in key order, which is submission order.
func (q *PendingQueue) List(ctx context.Context) ([]domain.Workout, error) {
	tree, err := q.store.Read(ctx, q.root)
	if err != nil {
		return nil, storageErr("read", q.root, err)
	}
	m, _ := tree.(map[string]any)
	out := make([]domain.Workout, 0, len(m))
	for _, k := range treestore.SortedKeys(m) {
		node, ok := m[k].(map[string]any)
		if !ok {
			continue
		}
		w, err := fromNode(node)
		if err != nil {
			q.logger.Warn().Err(err).Str("key", k).Msg("skipping unreadable pending workout")
			continue
		}
		w.ID = k
		out = append(out, w)
	}
	return out, nil
}

func (q *PendingQueue) get(ctx context.Context, id string) (*domain.Workout, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "required")
	}
	if err := treestore.ValidateKey(id); err != nil {
		return nil, domain.NewValidationError("id", "not a pending workout key")
	}
	p := q.root.Child(id)
	v, err := q.store.Read(ctx, p)
	if err != nil {
		return nil, storageErr("read", p, err)
	}
	node, ok := v.(map[string]any)
	if !ok {
		return nil, &repository.NotFoundError{ID: id}
	}
	w, err := fromNode(node)
	if err != nil {
		return nil, err
	}
	w.ID = id
	return &w, nil
}

// Submit queues data for moderation. Discriminators are only checked on
// approval, so a moderator can still fill them in.
func (q *PendingQueue) Submit(ctx context.Context, ownerID string, data domain.Workout) (*domain.Workout, error) {
	if ownerID == "" {
		return nil, domain.NewValidationError("createdBy", "owner is required")
	}
	key, err := q.store.GenerateKey(ctx, q.root)
	if err != nil {
		return nil, storageErr("generate key", q.root, err)
	}

	w := data
	w.ID = key
	w.CreatedBy = ownerID
	w.Date = domain.FormatDate(q.now())
	w.MovedAt = ""
	w.Location = nil

	node, err := toNode(w)
	if err != nil {
		return nil, err
	}
	p := q.root.Child(key)
	if err := q.store.Write(ctx, p, node); err != nil {
		return nil, storageErr("write", p, err)
	}
	q.logger.Debug().Str("id", key).Str("owner", ownerID).Msg("workout submitted for review")
	return &w, nil
}

// Approve files the queued record in its owner's catalog under a new
// store-generated id. The catalog write and the queue removal go out in one
// multi-path write, so a failure leaves the record queued.
func (q *PendingQueue) Approve(ctx context.Context, id string, patch domain.WorkoutPatch) (*domain.Workout, error) {
	pending, err := q.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.ID != nil && *patch.ID != id {
		return nil, domain.NewValidationError("id", "cannot be changed")
	}

	w := patch.Apply(*pending)
	if _, err := domain.DerivePath(w); err != nil {
		return nil, err
	}
	repo, err := q.catalog.repoFor(w.CreatedBy)
	if err != nil {
		return nil, err
	}

	leaf := repo.leafPath(w.Discriminators())
	key, err := q.store.GenerateKey(ctx, leaf)
	if err != nil {
		return nil, storageErr("generate key", leaf, err)
	}
	w.ID = key
	w.MovedAt = ""
	if w.Date == "" {
		w.Date = domain.FormatDate(q.now())
	}

	node, err := toNode(w)
	if err != nil {
		return nil, err
	}
	target, value, index, err := repo.placement(ctx, leaf, key, node)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{
		target.String():          value,
		q.root.Child(id).String(): nil,
	}
	if err := q.store.MultiWrite(ctx, updates); err != nil {
		return nil, storageErr("multi-write", q.root, err)
	}

	w.Location = placedAt(w.Discriminators(), key, index)
	q.logger.Info().
		Str("pendingId", id).
		Str("id", key).
		Strs("path", w.Discriminators().Segments()).
		Msg("pending workout approved")
	return &w, nil
}

// Delete drops a queued record without filing it.
func (q *PendingQueue) Delete(ctx context.Context, id string) error {
	if _, err := q.get(ctx, id); err != nil {
		return err
	}
	p := q.root.Child(id)
	if err := q.store.Remove(ctx, p); err != nil {
		return storageErr("remove", p, err)
	}
	q.logger.Debug().Str("id", id).Msg("pending workout deleted")
	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"peakfit/workout-catalog/internal/domain"
)

// Error constants for repository layer
var (
	ErrNotFound    = RepositoryError("not found")
	ErrPartialMove = RepositoryError("partial move")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// NotFoundError reports a workout id that matched no leaf entry.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("workout %q not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StorageError wraps a failed store call with the operation and path.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PartialMoveError is returned when a sequential move wrote the record under
// its new path but failed to remove the old copy. The record now exists twice
// until the old copy is removed or a reconcile sweep runs.
type PartialMoveError struct {
	ID   string
	From domain.Discriminators
	To   domain.Discriminators
	Err  error
}

func (e *PartialMoveError) Error() string {
	return fmt.Sprintf("workout %q copied to %v but not removed from %v: %v", e.ID, e.To.Segments(), e.From.Segments(), e.Err)
}

func (e *PartialMoveError) Is(target error) bool {
	return target == ErrPartialMove
}

func (e *PartialMoveError) Unwrap() error { return e.Err }

// WorkoutRepository defines the interface for interacting with the workout catalog.
type WorkoutRepository interface {
	// List returns every record in path order, each annotated with its location.
	List(ctx context.Context) ([]domain.Workout, error)
	GetByID(ctx context.Context, id string) (*domain.Workout, error)
	// Insert files a new record under its discriminators, owned by ownerID.
	Insert(ctx context.Context, ownerID string, data domain.Workout) (*domain.Workout, error)
	// Update applies patch in place, or moves the record when a
	// discriminator changes.
	Update(ctx context.Context, id string, patch domain.WorkoutPatch) (*domain.Workout, error)
	Delete(ctx context.Context, id string) error
	// BulkInsert validates every record before writing any and writes them
	// all in one call.
	BulkInsert(ctx context.Context, ownerID string, records []domain.Workout) ([]domain.Workout, error)
	// DeleteAll removes the repository's whole subtree.
	DeleteAll(ctx context.Context) error
	// Reconcile removes duplicate copies left behind by interrupted moves.
	Reconcile(ctx context.Context) (*ReconcileReport, error)
}

// PendingQueue holds submitted workouts until a moderator approves or
// rejects them. Queued records are not part of the catalog.
type PendingQueue interface {
	List(ctx context.Context) ([]domain.Workout, error)
	// Submit queues data under a store-generated id, owned by ownerID.
	Submit(ctx context.Context, ownerID string, data domain.Workout) (*domain.Workout, error)
	// Approve applies patch to the queued record, files it in the catalog
	// under a new id and removes it from the queue in one multi-path write.
	Approve(ctx context.Context, id string, patch domain.WorkoutPatch) (*domain.Workout, error)
	Delete(ctx context.Context, id string) error
}

// WorkoutCatalog hands out repositories scoped to an owner. In global scope
// every owner gets the same repository.
type WorkoutCatalog interface {
	ForOwner(ownerID string) (WorkoutRepository, error)
	// Pending returns the moderation queue. Approved records are filed in
	// the repository of their owner.
	Pending() PendingQueue
}

// ReconcileReport summarizes a duplicate sweep.
type ReconcileReport struct {
	Scanned      int               `json:"scanned"`
	DuplicateIDs []string          `json:"duplicateIds"`
	Removed      []domain.Location `json:"removed"`
}

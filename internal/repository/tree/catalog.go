// Package tree implements the workout catalog on a hierarchical store.
//
// Records live at <root>/goal/limitations/level/day/exercises/<id>. There is
// no index on id: lookups walk the whole tree, so GetByID, Update and Delete
// cost O(total records).
package tree

import (
	"fmt"

	"github.com/rs/zerolog"

	"peakfit/workout-catalog/internal/domain"
	"peakfit/workout-catalog/internal/repository"
	"peakfit/workout-catalog/internal/treestore"
)

// Scope decides whether the catalog is shared or partitioned per owner.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeOwner  Scope = "owner"
)

// MoveMode decides how a record is relocated when a discriminator changes.
type MoveMode string

const (
	// MoveAtomic writes the new copy and removes the old one in one
	// multi-path write.
	MoveAtomic MoveMode = "atomic"
	// MoveSequential writes the new copy, then removes the old one. A failed
	// removal leaves a duplicate and returns a PartialMoveError.
	MoveSequential MoveMode = "sequential"
)

// DefaultPendingRoot is where submitted workouts wait for moderation.
const DefaultPendingRoot = "pendingWorkouts"

// Config configures the catalog.
type Config struct {
	Root     treestore.Path
	Scope    Scope
	MoveMode MoveMode
	// PendingRoot holds the moderation queue. It must not overlap Root.
	PendingRoot treestore.Path
}

// Catalog hands out workout repositories for a scope.
type Catalog struct {
	store   treestore.Store
	config  Config
	logger  zerolog.Logger
	global  *WorkoutRepository
	pending *PendingQueue
}

var _ repository.WorkoutCatalog = (*Catalog)(nil)

// NewCatalog creates a catalog on store. Unset scope and move mode default to
// ScopeGlobal and MoveAtomic, and an unset pending root to DefaultPendingRoot.
func NewCatalog(store treestore.Store, config Config, logger zerolog.Logger) (*Catalog, error) {
	if config.Scope == "" {
		config.Scope = ScopeGlobal
	}
	if config.MoveMode == "" {
		config.MoveMode = MoveAtomic
	}
	if config.Scope != ScopeGlobal && config.Scope != ScopeOwner {
		return nil, fmt.Errorf("unknown catalog scope %q", config.Scope)
	}
	if config.MoveMode != MoveAtomic && config.MoveMode != MoveSequential {
		return nil, fmt.Errorf("unknown move mode %q", config.MoveMode)
	}
	if err := config.Root.Validate(); err != nil {
		return nil, fmt.Errorf("catalog root: %w", err)
	}
	if len(config.PendingRoot) == 0 {
		config.PendingRoot = treestore.Path{DefaultPendingRoot}
	}
	if err := config.PendingRoot.Validate(); err != nil {
		return nil, fmt.Errorf("pending root: %w", err)
	}
	if config.Root.HasPrefix(config.PendingRoot) || config.PendingRoot.HasPrefix(config.Root) {
		return nil, fmt.Errorf("pending root %q overlaps catalog root %q", config.PendingRoot, config.Root)
	}

	c := &Catalog{store: store, config: config, logger: logger}
	if config.Scope == ScopeGlobal {
		c.global = NewWorkoutRepository(store, config, logger)
	}
	c.pending = newPendingQueue(store, config.PendingRoot, c, logger.With().Str("queue", "pending").Logger())
	return c, nil
}

// ForOwner returns the repository ownerID works in.
func (c *Catalog) ForOwner(ownerID string) (repository.WorkoutRepository, error) {
	r, err := c.repoFor(ownerID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Pending returns the moderation queue shared by every owner.
func (c *Catalog) Pending() repository.PendingQueue {
	return c.pending
}

func (c *Catalog) repoFor(ownerID string) (*WorkoutRepository, error) {
	if c.global != nil {
		return c.global, nil
	}
	if err := treestore.ValidateKey(ownerID); err != nil {
		return nil, domain.NewValidationError("ownerId", "not usable as a catalog partition")
	}
	cfg := c.config
	cfg.Root = c.config.Root.Child(ownerID)
	return NewWorkoutRepository(c.store, cfg, c.logger.With().Str("owner", ownerID).Logger()), nil
}

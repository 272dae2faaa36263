package tree

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peakfit/workout-catalog/internal/domain"
	"peakfit/workout-catalog/internal/repository"
	"peakfit/workout-catalog/internal/treestore"
)

func TestNewCatalog_Defaults(t *testing.T) {
	t.Parallel()

	c, err := NewCatalog(treestore.NewMemory(), Config{Root: treestore.MustParsePath("workouts")}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, ScopeGlobal, c.config.Scope)
	assert.Equal(t, MoveAtomic, c.config.MoveMode)

	_, err = NewCatalog(treestore.NewMemory(), Config{Scope: "team"}, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewCatalog(treestore.NewMemory(), Config{MoveMode: "teleport"}, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewCatalog(treestore.NewMemory(), Config{Root: treestore.Path{"bad.root"}}, zerolog.Nop())
	assert.Error(t, err)
}

func TestCatalog_GlobalScopeSharesOneRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c, err := NewCatalog(treestore.NewMemory(), Config{Root: treestore.MustParsePath("workouts")}, zerolog.Nop())
	require.NoError(t, err)

	alice, err := c.ForOwner("alice")
	require.NoError(t, err)
	bob, err := c.ForOwner("bob")
	require.NoError(t, err)

	w, err := alice.Insert(ctx, "alice", pushUps())
	require.NoError(t, err)

	got, err := bob.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.CreatedBy)
}

func TestCatalog_OwnerScopeIsolates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := treestore.NewMemory()

	c, err := NewCatalog(mem, Config{Root: treestore.MustParsePath("workouts"), Scope: ScopeOwner}, zerolog.Nop())
	require.NoError(t, err)

	alice, err := c.ForOwner("alice")
	require.NoError(t, err)
	bob, err := c.ForOwner("bob")
	require.NoError(t, err)

	w, err := alice.Insert(ctx, "alice", pushUps())
	require.NoError(t, err)
	_, err = bob.BulkInsert(ctx, "bob", []domain.Workout{pushUps()})
	require.NoError(t, err)

	_, err = bob.GetByID(ctx, w.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, bob.DeleteAll(ctx))

	mine, err := alice.List(ctx)
	require.NoError(t, err)
	assert.Len(t, mine, 1, "deleting bob's partition leaves alice's")

	stored, err := mem.Read(ctx, treestore.MustParsePath("workouts/alice/strength/none/beginner/monday/exercises").Child(w.ID))
	require.NoError(t, err)
	assert.NotNil(t, stored)

	_, err = c.ForOwner("")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = c.ForOwner("a/b")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

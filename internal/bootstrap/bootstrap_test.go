package bootstrap

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peakfit/workout-catalog/internal/config"
	"peakfit/workout-catalog/internal/domain"
	"peakfit/workout-catalog/internal/treestore"
	"peakfit/workout-catalog/internal/treestore/dynamo"
)

func memoryConfig() config.Config {
	return config.Config{
		Store:   config.StoreConfig{Backend: config.BackendMemory, PartitionDepth: 2},
		Catalog: config.CatalogConfig{Root: "workouts", Scope: "global", MoveMode: "atomic"},
	}
}

func TestOpen_Memory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	app, err := Open(ctx, memoryConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close(ctx)) }()

	assert.IsType(t, &treestore.Memory{}, app.Store)
	assert.Nil(t, app.Files)

	repo, err := app.Catalog.ForOwner("alice")
	require.NoError(t, err)
	w, err := repo.Insert(ctx, "alice", domain.Workout{
		Goal: "strength", Limitations: "none", Level: "beginner", Day: "monday", Title: "Plank",
	})
	require.NoError(t, err)

	node, err := app.Store.Read(ctx, treestore.MustParsePath("workouts/strength/none/beginner/monday/exercises").Child(w.ID))
	require.NoError(t, err)
	assert.NotNil(t, node)
}

func TestOpenStore_DynamoDB(t *testing.T) {
	t.Parallel()
	cfg := memoryConfig()
	cfg.Store.Backend = config.BackendDynamoDB
	cfg.DynamoDB = config.DynamoDBConfig{Table: "catalog", Region: "us-east-1", Endpoint: "http://localhost:8000", ScanSegments: 2}

	store, closeFn, err := OpenStore(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, closeFn)
	assert.IsType(t, &dynamo.Store{}, store)
}

func TestOpenStore_UnknownBackend(t *testing.T) {
	t.Parallel()
	cfg := memoryConfig()
	cfg.Store.Backend = "sqlite"

	_, _, err := OpenStore(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, `unknown store backend "sqlite"`)
}

func TestNewCatalog_Config(t *testing.T) {
	t.Parallel()

	_, err := NewCatalog(treestore.NewMemory(), config.CatalogConfig{Root: "a.b"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewCatalog(treestore.NewMemory(), config.CatalogConfig{Root: "workouts", Scope: "team"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewCatalog(treestore.NewMemory(), config.CatalogConfig{Root: "workouts", PendingRoot: "workouts/queue"}, zerolog.Nop())
	assert.ErrorContains(t, err, "overlaps")

	c, err := NewCatalog(treestore.NewMemory(), config.CatalogConfig{Root: "catalog/v2", Scope: "owner"}, zerolog.Nop())
	require.NoError(t, err)
	_, err = c.ForOwner("")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

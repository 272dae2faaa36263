// Package bootstrap turns a loaded config into the running pieces shared by
// the server and the CLI: the tree store, the workout catalog and the
// optional thumbnail storage.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"

	"peakfit/workout-catalog/internal/config"
	"peakfit/workout-catalog/internal/repository/tree"
	"peakfit/workout-catalog/internal/storage"
	"peakfit/workout-catalog/internal/treestore"
	"peakfit/workout-catalog/internal/treestore/dynamo"
	"peakfit/workout-catalog/internal/treestore/mongo"
)

// App holds everything opened from a Config. Close releases it.
type App struct {
	Store   treestore.Store
	Catalog *tree.Catalog
	// Files is nil when no S3 bucket is configured.
	Files storage.FileStorage

	closers []func(context.Context) error
}

// Open connects the configured backend and builds the catalog on top of it.
func Open(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	store, closeStore, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app := &App{Store: store}
	if closeStore != nil {
		app.closers = append(app.closers, closeStore)
	}

	app.Catalog, err = NewCatalog(store, cfg.Catalog, logger)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	if cfg.S3.Enabled() {
		app.Files, err = storage.NewS3Storage(ctx, cfg.S3, logger)
		if err != nil {
			_ = app.Close(ctx)
			return nil, fmt.Errorf("init s3 storage: %w", err)
		}
	} else {
		logger.Info().Msg("no S3 bucket configured; thumbnail uploads disabled")
	}
	return app, nil
}

// Close releases the store connection, if any.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenStore returns the tree store selected by cfg.Store.Backend and a close
// function, which is nil when the backend holds no connection.
func OpenStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (treestore.Store, func(context.Context) error, error) {
	logger = logger.With().Str("backend", cfg.Store.Backend).Logger()

	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.Warn().Msg("using in-memory store; data is lost on exit")
		return treestore.NewMemory(), nil, nil

	case config.BackendMongo:
		client, err := mongo.ConnectDB(ctx, cfg.Database.URI)
		if err != nil {
			return nil, nil, err
		}
		store := mongo.NewStore(client.Database(cfg.Database.Name), cfg.Store.PartitionDepth)
		if err := mongo.EnsureIndexes(ctx, store.Collection()); err != nil {
			_ = mongo.DisconnectDB(client)
			return nil, nil, err
		}
		logger.Info().Str("database", cfg.Database.Name).Msg("connected to MongoDB")
		return store, func(context.Context) error { return mongo.DisconnectDB(client) }, nil

	case config.BackendDynamoDB:
		client, err := newDynamoClient(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, nil, err
		}
		store := dynamo.New(client, dynamo.Config{
			Table:          cfg.DynamoDB.Table,
			PartitionDepth: cfg.Store.PartitionDepth,
			ScanSegments:   cfg.DynamoDB.ScanSegments,
		})
		logger.Info().Str("table", cfg.DynamoDB.Table).Msg("using DynamoDB")
		return store, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func newDynamoClient(ctx context.Context, cfg config.DynamoDBConfig) (*dynamodb.Client, error) {
	awsConfig, err := awsCfg.LoadDefaultConfig(ctx, awsCfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(awsConfig, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// NewCatalog builds the workout catalog from its config section.
func NewCatalog(store treestore.Store, cfg config.CatalogConfig, logger zerolog.Logger) (*tree.Catalog, error) {
	root, err := treestore.ParsePath(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("catalog.root: %w", err)
	}
	pending, err := treestore.ParsePath(cfg.PendingRoot)
	if err != nil {
		return nil, fmt.Errorf("catalog.pending_root: %w", err)
	}
	return tree.NewCatalog(store, tree.Config{
		Root:        root,
		Scope:       tree.Scope(cfg.Scope),
		MoveMode:    tree.MoveMode(cfg.MoveMode),
		PendingRoot: pending,
	}, logger.With().Str("component", "catalog").Logger())
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"peakfit/workout-catalog/internal/logging"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      logging.Config `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	DynamoDB DynamoDBConfig `mapstructure:"dynamodb"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	S3       S3Config       `mapstructure:"s3"`
	JWT      JWTConfig      `mapstructure:"jwt"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the tree store backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // memory, mongo or dynamodb
	// PartitionDepth is how many path segments form one stored document or item.
	// Queued workouts sit one level below catalog.pending_root, and partitions
	// deeper than that cannot hold them.
	PartitionDepth int `mapstructure:"partition_depth"`
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

type DynamoDBConfig struct {
	Table        string `mapstructure:"table"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	ScanSegments int    `mapstructure:"scan_segments"`
}

// CatalogConfig decides where workouts live and how they move.
type CatalogConfig struct {
	Root     string `mapstructure:"root"`
	Scope    string `mapstructure:"scope"`     // global or owner
	MoveMode string `mapstructure:"move_mode"` // atomic or sequential
	// PendingRoot holds workouts waiting for moderation.
	PendingRoot string `mapstructure:"pending_root"`
}

type S3Config struct {
	Endpoint        string        `mapstructure:"endpoint"`
	Region          string        `mapstructure:"region"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	BucketName      string        `mapstructure:"bucket_name"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	PresignExpiry   time.Duration `mapstructure:"presign_expiry"`
}

// Enabled reports whether thumbnail storage is configured.
func (c S3Config) Enabled() bool {
	return c.BucketName != ""
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"` // lifetime of tokens minted by catalogctl
}

const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendDynamoDB = "dynamodb"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.partition_depth", 2)
	v.SetDefault("database.uri", "mongodb://localhost:27017/?replicaSet=rs0")
	v.SetDefault("database.name", "workout_catalog")
	v.SetDefault("dynamodb.table", "workout_catalog")
	v.SetDefault("dynamodb.region", "us-east-1")
	v.SetDefault("dynamodb.scan_segments", 4)
	v.SetDefault("catalog.root", "workouts")
	v.SetDefault("catalog.scope", "global")
	v.SetDefault("catalog.move_mode", "atomic")
	v.SetDefault("catalog.pending_root", "pendingWorkouts")
	v.SetDefault("s3.use_ssl", true) // Default to true for cloud providers
	v.SetDefault("s3.presign_expiry", "15m")
	v.SetDefault("jwt.expiration", "1h") // Default JWT expiry to 1 hour

	// Unmarshal only sees environment values for keys viper already knows.
	for _, key := range []string{
		"dynamodb.endpoint",
		"s3.endpoint", "s3.region", "s3.access_key_id", "s3.secret_access_key", "s3.bucket_name",
		"jwt.secret",
	} {
		v.SetDefault(key, "")
	}
}

// LoadConfig reads configuration from a config.yaml in path, then lets
// environment variables override it (server.address -> SERVER_ADDRESS).
// A missing config file is not an error.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	return load(v)
}

// LoadFile reads configuration from an explicit file. The file must exist.
func LoadFile(file string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(file)
	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	var config Config

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// Validate rejects unknown enum values and unusable numbers.
func (c Config) Validate() error {
	var problems []string

	switch c.Store.Backend {
	case BackendMemory, BackendMongo, BackendDynamoDB:
	default:
		problems = append(problems, fmt.Sprintf("store.backend %q is not one of memory, mongo, dynamodb", c.Store.Backend))
	}
	if c.Store.PartitionDepth < 1 {
		problems = append(problems, "store.partition_depth must be at least 1")
	}
	switch c.Catalog.Scope {
	case "global", "owner":
	default:
		problems = append(problems, fmt.Sprintf("catalog.scope %q is not one of global, owner", c.Catalog.Scope))
	}
	switch c.Catalog.MoveMode {
	case "atomic", "sequential":
	default:
		problems = append(problems, fmt.Sprintf("catalog.move_mode %q is not one of atomic, sequential", c.Catalog.MoveMode))
	}
	if c.Store.Backend == BackendDynamoDB && c.DynamoDB.Table == "" {
		problems = append(problems, "dynamodb.table is required for the dynamodb backend")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

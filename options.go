package kuzumemory

import (
	"log/slog"

	"github.com/kuzu-memory/kuzu-memory-go/internal/graph"
	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

type openOptions struct {
	config        types.Config
	yamlPath      string
	logger        *slog.Logger
	poolConfig    graph.PoolConfig
	dbPath        string
	backupDir     string
	migrationsDir string
}

func defaultOptions() openOptions {
	return openOptions{
		config:     types.DefaultConfig(),
		logger:     slog.Default(),
		poolConfig: graph.DefaultPoolConfig(),
	}
}

// Option configures Open.
type Option func(*openOptions)

// WithConfig overrides the default configuration. Keys persisted in the
// database's settings table take precedence over it. If WithYAMLConfig is
// also supplied, the configuration given here is not used at all.
func WithConfig(cfg types.Config) Option {
	return func(o *openOptions) { o.config = cfg }
}

// WithYAMLConfig loads configuration from a project-level kuzu-memory.yaml,
// layered over the defaults and KUZUMEMORY_ environment variables. It
// replaces any configuration given by WithConfig rather than layering on it.
func WithYAMLConfig(path string) Option {
	return func(o *openOptions) { o.yamlPath = path }
}

// WithLogger sets the structured logger used for warnings emitted by the
// access tracker, the backup service, and the Store's performance-budget
// checks in GenerateMemories and AttachMemories.
func WithLogger(logger *slog.Logger) Option {
	return func(o *openOptions) { o.logger = logger }
}

// WithPoolConfig overrides the graph adapter's pool size, acquire timeout,
// and circuit-breaker thresholds.
func WithPoolConfig(cfg graph.PoolConfig) Option {
	return func(o *openOptions) { o.poolConfig = cfg }
}

// WithMaintenancePaths sets the database file path and backup directory
// used by SmartPrune/Consolidate when SnapshotFirst is requested.
func WithMaintenancePaths(dbPath, backupDir string) Option {
	return func(o *openOptions) { o.dbPath = dbPath; o.backupDir = backupDir }
}

// WithMigrationsDir applies the versioned NNN_name.up.sql migrations in dir
// on top of the baseline schema, for operators upgrading an existing
// deployment in place instead of relying solely on the embedded Schema
// constant. See the repository's migrations/ directory.
func WithMigrationsDir(dir string) Option {
	return func(o *openOptions) { o.migrationsDir = dir }
}

package types

import "time"

// Config holds every tunable KuzuMemory recognizes, grouped by subsystem.
type Config struct {
	Performance PerformanceConfig
	Recall      RecallConfig
	Retention   RetentionConfig
	Analytics   AnalyticsConfig
	Dedup       DedupConfig
}

// PerformanceConfig governs the hot-path latency budgets and whether
// exceeding them is a logged warning or a surfaced error.
type PerformanceConfig struct {
	MaxRecallTimeMS     float64 // default 10
	MaxGenerationTimeMS float64 // default 20
	StrictMonitoring    bool    // default false
}

// RecallConfig governs the recall coordinator's defaults.
type RecallConfig struct {
	MaxMemories       int      // default 10
	CacheEnabled      bool     // default false
	StrategiesEnabled []string // default: keyword, entity, temporal

	// BaseWeight multiplies every candidate's decay score before sorting,
	// mirroring the original's configurable decay_config["base_weight"].
	// A flat per-call multiplier has no effect on relative ranking at its
	// default of 1.0; it exists so a deployment can scale confidence in
	// temporal-decay ranking up or down without touching half-lives.
	BaseWeight float64 // default 1.0
}

// RetentionConfig holds the retention settings. Open reads the scheduled
// backup fields. SmartThreshold, ArchiveEnabled and ArchiveRecoveryDays are
// loaded but not applied: Store.SmartPrune takes its threshold and archive
// flag from prune.Options, and archives expire after a fixed 30 days
// (types.DefaultArchiveExpiry).
type RetentionConfig struct {
	SmartThreshold      float64 // default 0.30
	ArchiveEnabled      bool    // default true
	ArchiveRecoveryDays int     // default 30

	// ScheduledBackupEnabled turns on the background backup loop. It is a
	// no-op unless Open is also given a database path and backup directory
	// via WithMaintenancePaths.
	ScheduledBackupEnabled  bool          // default false
	ScheduledBackupInterval time.Duration // default 1h
	BackupRetentionHourly   int           // default 24
	BackupRetentionDaily    int           // default 7
	BackupRetentionWeekly   int           // default 4
	BackupRetentionMonthly  int           // default 12
}

// AnalyticsConfig governs the access tracker's batching behavior.
type AnalyticsConfig struct {
	TrackerEnabled     bool          // default true
	BatchInterval      time.Duration // default 5s
	BatchSize          int           // default 100
	StaleThresholdDays int           // default 90
}

// DedupConfig governs the deduplication engine's three similarity
// thresholds.
type DedupConfig struct {
	ExactThreshold    float64 // default 0.95 (reserved; exact layer is hash equality)
	NearThreshold     float64 // default 0.85
	SemanticThreshold float64 // default 0.70
}

// DefaultConfig returns the default value of every configuration field.
func DefaultConfig() Config {
	return Config{
		Performance: PerformanceConfig{
			MaxRecallTimeMS:     10,
			MaxGenerationTimeMS: 20,
			StrictMonitoring:    false,
		},
		Recall: RecallConfig{
			MaxMemories:       10,
			CacheEnabled:      false,
			StrategiesEnabled: []string{"keyword", "entity", "temporal"},
			BaseWeight:        1.0,
		},
		Retention: RetentionConfig{
			SmartThreshold:          0.30,
			ArchiveEnabled:          true,
			ArchiveRecoveryDays:     30,
			ScheduledBackupEnabled:  false,
			ScheduledBackupInterval: time.Hour,
			BackupRetentionHourly:   24,
			BackupRetentionDaily:    7,
			BackupRetentionWeekly:   4,
			BackupRetentionMonthly:  12,
		},
		Analytics: AnalyticsConfig{
			TrackerEnabled:     true,
			BatchInterval:      5 * time.Second,
			BatchSize:          100,
			StaleThresholdDays: 90,
		},
		Dedup: DedupConfig{
			ExactThreshold:    0.95,
			NearThreshold:     0.85,
			SemanticThreshold: 0.70,
		},
	}
}

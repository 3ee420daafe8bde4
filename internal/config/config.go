// Package config loads KuzuMemory's configuration from environment variables
// (KUZUMEMORY_ prefix) and an optional project-level YAML file, with a
// handful of hot keys persisted in and overridable from the database's
// settings table, read when the Store is opened.
package config

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

// fileConfig mirrors the subset of types.Config a project's kuzu-memory.yaml
// may override. Absent fields leave the environment/default value in place.
type fileConfig struct {
	Performance *struct {
		MaxRecallTimeMS     *float64 `yaml:"max_recall_time_ms"`
		MaxGenerationTimeMS *float64 `yaml:"max_generation_time_ms"`
		StrictMonitoring    *bool    `yaml:"strict_monitoring"`
	} `yaml:"performance"`
	Recall *struct {
		MaxMemories  *int     `yaml:"max_memories"`
		CacheEnabled *bool    `yaml:"cache_enabled"`
		BaseWeight   *float64 `yaml:"base_weight"`
	} `yaml:"recall"`
	Retention *struct {
		SmartThreshold          *float64 `yaml:"smart_threshold"`
		ArchiveEnabled          *bool    `yaml:"archive_enabled"`
		ArchiveRecoveryDays     *int     `yaml:"archive_recovery_days"`
		ScheduledBackupEnabled  *bool    `yaml:"scheduled_backup_enabled"`
		ScheduledBackupInterval *int     `yaml:"scheduled_backup_interval_s"`
		BackupRetentionHourly   *int     `yaml:"backup_retention_hourly"`
		BackupRetentionDaily    *int     `yaml:"backup_retention_daily"`
		BackupRetentionWeekly   *int     `yaml:"backup_retention_weekly"`
		BackupRetentionMonthly  *int     `yaml:"backup_retention_monthly"`
	} `yaml:"retention"`
	Analytics *struct {
		TrackerEnabled     *bool `yaml:"tracker_enabled"`
		BatchIntervalS     *int  `yaml:"batch_interval_s"`
		BatchSize          *int  `yaml:"batch_size"`
		StaleThresholdDays *int  `yaml:"stale_threshold_days"`
	} `yaml:"analytics"`
	Dedup *struct {
		ExactThreshold    *float64 `yaml:"exact_threshold"`
		NearThreshold     *float64 `yaml:"near_threshold"`
		SemanticThreshold *float64 `yaml:"semantic_threshold"`
	} `yaml:"dedup"`
}

// Load builds a types.Config from defaults, environment variables, and
// (if present) the project-level YAML file at yamlPath. yamlPath may be
// empty, in which case only defaults and environment variables apply.
func Load(yamlPath string) (types.Config, error) {
	cfg := types.DefaultConfig()
	applyEnv(&cfg)

	if yamlPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(yamlPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, types.NewConfigurationError(fmt.Errorf("config: reading %s: %w", yamlPath, err))
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, types.NewConfigurationError(fmt.Errorf("config: parsing %s: %w", yamlPath, err))
	}
	applyFile(&cfg, fc)

	return cfg, nil
}

// LoadFromDB augments cfg with the hot keys persisted in the settings
// table, which take precedence over environment/file values. Absent rows
// are not errors. A failed query (for example a missing settings table) is
// returned as an error, together with cfg unchanged.
func LoadFromDB(db *sql.DB, cfg types.Config) (types.Config, error) {
	if db == nil {
		return cfg, errors.New("config: database connection is required")
	}

	if v, ok, err := getFloatSetting(db, "retention.smart_threshold"); err != nil {
		return cfg, fmt.Errorf("config: loading retention.smart_threshold: %w", err)
	} else if ok {
		cfg.Retention.SmartThreshold = v
	}

	if v, ok, err := getBoolSetting(db, "performance.strict_monitoring"); err != nil {
		return cfg, fmt.Errorf("config: loading performance.strict_monitoring: %w", err)
	} else if ok {
		cfg.Performance.StrictMonitoring = v
	}

	return cfg, nil
}

// SaveOverride persists a single hot key/value pair to the settings table,
// upserting so repeated calls update rather than duplicate the row.
func SaveOverride(db *sql.DB, key, value string) error {
	if db == nil {
		return errors.New("config: database connection is required")
	}
	_, err := db.Exec(`
		INSERT INTO settings (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

func getFloatSetting(db *sql.DB, key string) (float64, bool, error) {
	raw, ok, err := getSetting(db, key)
	if err != nil || !ok {
		return 0, false, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, nil
	}
	return v, true, nil
}

func getBoolSetting(db *sql.DB, key string) (bool, bool, error) {
	raw, ok, err := getSetting(db, key)
	if err != nil || !ok {
		return false, false, err
	}
	return raw == "true" || raw == "1", true, nil
}

func getSetting(db *sql.DB, key string) (string, bool, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func applyFile(cfg *types.Config, fc fileConfig) {
	if p := fc.Performance; p != nil {
		if p.MaxRecallTimeMS != nil {
			cfg.Performance.MaxRecallTimeMS = *p.MaxRecallTimeMS
		}
		if p.MaxGenerationTimeMS != nil {
			cfg.Performance.MaxGenerationTimeMS = *p.MaxGenerationTimeMS
		}
		if p.StrictMonitoring != nil {
			cfg.Performance.StrictMonitoring = *p.StrictMonitoring
		}
	}
	if r := fc.Recall; r != nil {
		if r.MaxMemories != nil {
			cfg.Recall.MaxMemories = *r.MaxMemories
		}
		if r.CacheEnabled != nil {
			cfg.Recall.CacheEnabled = *r.CacheEnabled
		}
		if r.BaseWeight != nil {
			cfg.Recall.BaseWeight = *r.BaseWeight
		}
	}
	if r := fc.Retention; r != nil {
		if r.SmartThreshold != nil {
			cfg.Retention.SmartThreshold = *r.SmartThreshold
		}
		if r.ArchiveEnabled != nil {
			cfg.Retention.ArchiveEnabled = *r.ArchiveEnabled
		}
		if r.ArchiveRecoveryDays != nil {
			cfg.Retention.ArchiveRecoveryDays = *r.ArchiveRecoveryDays
		}
		if r.ScheduledBackupEnabled != nil {
			cfg.Retention.ScheduledBackupEnabled = *r.ScheduledBackupEnabled
		}
		if r.ScheduledBackupInterval != nil {
			cfg.Retention.ScheduledBackupInterval = time.Duration(*r.ScheduledBackupInterval) * time.Second
		}
		if r.BackupRetentionHourly != nil {
			cfg.Retention.BackupRetentionHourly = *r.BackupRetentionHourly
		}
		if r.BackupRetentionDaily != nil {
			cfg.Retention.BackupRetentionDaily = *r.BackupRetentionDaily
		}
		if r.BackupRetentionWeekly != nil {
			cfg.Retention.BackupRetentionWeekly = *r.BackupRetentionWeekly
		}
		if r.BackupRetentionMonthly != nil {
			cfg.Retention.BackupRetentionMonthly = *r.BackupRetentionMonthly
		}
	}
	if a := fc.Analytics; a != nil {
		if a.TrackerEnabled != nil {
			cfg.Analytics.TrackerEnabled = *a.TrackerEnabled
		}
		if a.BatchIntervalS != nil {
			cfg.Analytics.BatchInterval = time.Duration(*a.BatchIntervalS) * time.Second
		}
		if a.BatchSize != nil {
			cfg.Analytics.BatchSize = *a.BatchSize
		}
		if a.StaleThresholdDays != nil {
			cfg.Analytics.StaleThresholdDays = *a.StaleThresholdDays
		}
	}
	if d := fc.Dedup; d != nil {
		if d.ExactThreshold != nil {
			cfg.Dedup.ExactThreshold = *d.ExactThreshold
		}
		if d.NearThreshold != nil {
			cfg.Dedup.NearThreshold = *d.NearThreshold
		}
		if d.SemanticThreshold != nil {
			cfg.Dedup.SemanticThreshold = *d.SemanticThreshold
		}
	}
}

func applyEnv(cfg *types.Config) {
	cfg.Performance.MaxRecallTimeMS = getEnvFloat("KUZUMEMORY_MAX_RECALL_TIME_MS", cfg.Performance.MaxRecallTimeMS)
	cfg.Performance.MaxGenerationTimeMS = getEnvFloat("KUZUMEMORY_MAX_GENERATION_TIME_MS", cfg.Performance.MaxGenerationTimeMS)
	cfg.Performance.StrictMonitoring = getEnvBool("KUZUMEMORY_STRICT_MONITORING", cfg.Performance.StrictMonitoring)

	cfg.Recall.MaxMemories = getEnvInt("KUZUMEMORY_RECALL_MAX_MEMORIES", cfg.Recall.MaxMemories)
	cfg.Recall.CacheEnabled = getEnvBool("KUZUMEMORY_RECALL_CACHE_ENABLED", cfg.Recall.CacheEnabled)
	cfg.Recall.BaseWeight = getEnvFloat("KUZUMEMORY_RECALL_BASE_WEIGHT", cfg.Recall.BaseWeight)

	cfg.Retention.SmartThreshold = getEnvFloat("KUZUMEMORY_RETENTION_SMART_THRESHOLD", cfg.Retention.SmartThreshold)
	cfg.Retention.ArchiveEnabled = getEnvBool("KUZUMEMORY_RETENTION_ARCHIVE_ENABLED", cfg.Retention.ArchiveEnabled)
	cfg.Retention.ArchiveRecoveryDays = getEnvInt("KUZUMEMORY_RETENTION_ARCHIVE_RECOVERY_DAYS", cfg.Retention.ArchiveRecoveryDays)
	cfg.Retention.ScheduledBackupEnabled = getEnvBool("KUZUMEMORY_RETENTION_SCHEDULED_BACKUP_ENABLED", cfg.Retention.ScheduledBackupEnabled)
	cfg.Retention.ScheduledBackupInterval = time.Duration(getEnvInt("KUZUMEMORY_RETENTION_SCHEDULED_BACKUP_INTERVAL_S", int(cfg.Retention.ScheduledBackupInterval.Seconds()))) * time.Second
	cfg.Retention.BackupRetentionHourly = getEnvInt("KUZUMEMORY_RETENTION_BACKUP_HOURLY", cfg.Retention.BackupRetentionHourly)
	cfg.Retention.BackupRetentionDaily = getEnvInt("KUZUMEMORY_RETENTION_BACKUP_DAILY", cfg.Retention.BackupRetentionDaily)
	cfg.Retention.BackupRetentionWeekly = getEnvInt("KUZUMEMORY_RETENTION_BACKUP_WEEKLY", cfg.Retention.BackupRetentionWeekly)
	cfg.Retention.BackupRetentionMonthly = getEnvInt("KUZUMEMORY_RETENTION_BACKUP_MONTHLY", cfg.Retention.BackupRetentionMonthly)

	cfg.Analytics.TrackerEnabled = getEnvBool("KUZUMEMORY_ANALYTICS_TRACKER_ENABLED", cfg.Analytics.TrackerEnabled)
	cfg.Analytics.BatchSize = getEnvInt("KUZUMEMORY_ANALYTICS_BATCH_SIZE", cfg.Analytics.BatchSize)
	cfg.Analytics.StaleThresholdDays = getEnvInt("KUZUMEMORY_ANALYTICS_STALE_THRESHOLD_DAYS", cfg.Analytics.StaleThresholdDays)
	cfg.Analytics.BatchInterval = time.Duration(getEnvInt("KUZUMEMORY_ANALYTICS_BATCH_INTERVAL_S", int(cfg.Analytics.BatchInterval.Seconds()))) * time.Second

	cfg.Dedup.ExactThreshold = getEnvFloat("KUZUMEMORY_DEDUP_EXACT_THRESHOLD", cfg.Dedup.ExactThreshold)
	cfg.Dedup.NearThreshold = getEnvFloat("KUZUMEMORY_DEDUP_NEAR_THRESHOLD", cfg.Dedup.NearThreshold)
	cfg.Dedup.SemanticThreshold = getEnvFloat("KUZUMEMORY_DEDUP_SEMANTIC_THRESHOLD", cfg.Dedup.SemanticThreshold)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}

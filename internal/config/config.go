// Package config provides configuration structures and loading for gomigrator.
package config

import "time"

// Ledger drivers.
const (
	LedgerDriverMySQL  = "mysql"
	LedgerDriverSQLite = "sqlite"
)

// Config represents the complete application configuration.
type Config struct {
	Legacy     DatabaseConfig   `yaml:"legacy" mapstructure:"legacy"`
	LegacyAPI  APIConfig        `yaml:"legacy_api" mapstructure:"legacy_api"`
	Target     DatabaseConfig   `yaml:"target" mapstructure:"target"`
	TargetAPI  APIConfig        `yaml:"target_api" mapstructure:"target_api"`
	Ledger     LedgerConfig     `yaml:"ledger" mapstructure:"ledger"`
	Processing ProcessingConfig `yaml:"processing" mapstructure:"processing"`
	Migration  MigrationConfig  `yaml:"migration" mapstructure:"migration"`
	Runtime    RuntimeConfig    `yaml:"runtime" mapstructure:"runtime"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
}

// DatabaseConfig represents a MySQL database connection configuration.
type DatabaseConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	TLS                string `yaml:"tls" mapstructure:"tls"` // disable, preferred, required
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// IsSet reports whether a host was configured.
func (d DatabaseConfig) IsSet() bool {
	return d.Host != ""
}

// APIConfig represents a REST endpoint of a process engine.
type APIConfig struct {
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url"`
	Username          string        `yaml:"username" mapstructure:"username"`
	Password          string        `yaml:"password" mapstructure:"password"`
	BearerToken       string        `yaml:"bearer_token" mapstructure:"bearer_token"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"` // 0 = unlimited
}

// LedgerConfig selects where the migration ledger lives.
type LedgerConfig struct {
	Driver   string         `yaml:"driver" mapstructure:"driver"` // mysql or sqlite
	Path     string         `yaml:"path" mapstructure:"path"`     // sqlite file path
	Table    string         `yaml:"table" mapstructure:"table"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
}

// ProcessingConfig represents paging settings shared by all pipelines.
type ProcessingConfig struct {
	PageSize     int     `yaml:"page_size" mapstructure:"page_size"`
	SleepSeconds float64 `yaml:"sleep_seconds" mapstructure:"sleep_seconds"`
	PartitionID  int     `yaml:"partition_id" mapstructure:"partition_id"`
}

// MigrationConfig controls the history migration.
type MigrationConfig struct {
	EntityTypes          []string `yaml:"entity_types" mapstructure:"entity_types"` // empty = all
	DisabledInterceptors []string `yaml:"disabled_interceptors" mapstructure:"disabled_interceptors"`
	DefaultTenantID      string   `yaml:"default_tenant_id" mapstructure:"default_tenant_id"`
}

// RuntimeConfig controls the runtime instance transplanter.
type RuntimeConfig struct {
	JobType                    string        `yaml:"job_type" mapstructure:"job_type"`
	JobActivationTimeout       time.Duration `yaml:"job_activation_timeout" mapstructure:"job_activation_timeout"`
	JobLockTimeout             time.Duration `yaml:"job_lock_timeout" mapstructure:"job_lock_timeout"`
	MaxJobsToActivate          int           `yaml:"max_jobs_to_activate" mapstructure:"max_jobs_to_activate"`
	MaxProcessInstances        int           `yaml:"max_process_instances" mapstructure:"max_process_instances"` // 0 = unlimited
	TenantIDs                  []string      `yaml:"tenant_ids" mapstructure:"tenant_ids"`
	AllowParallelMultiInstance bool          `yaml:"allow_parallel_multi_instance" mapstructure:"allow_parallel_multi_instance"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// MetricsConfig represents run metrics export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"` // empty = disabled
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Legacy: DatabaseConfig{
			Port:               3306,
			TLS:                "preferred",
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		LegacyAPI: APIConfig{
			Timeout: 30 * time.Second,
		},
		Target: DatabaseConfig{
			Port:               3306,
			TLS:                "preferred",
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		TargetAPI: APIConfig{
			Timeout: 30 * time.Second,
		},
		Ledger: LedgerConfig{
			Driver: LedgerDriverSQLite,
			Path:   "gomigrator-ledger.db",
			Table:  "migration_ledger",
			Database: DatabaseConfig{
				Port:               3306,
				TLS:                "preferred",
				MaxConnections:     10,
				MaxIdleConnections: 5,
			},
		},
		Processing: ProcessingConfig{
			PageSize:     500,
			SleepSeconds: 0,
			PartitionID:  1,
		},
		Migration: MigrationConfig{
			DefaultTenantID: "<default>",
		},
		Runtime: RuntimeConfig{
			JobType:              "migrator",
			JobActivationTimeout: 5 * time.Second,
			JobLockTimeout:       5 * time.Minute,
			MaxJobsToActivate:    32,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// ApplyOverrides applies CLI flag overrides to the configuration.
// Only non-zero/non-empty values are applied.
func (c *Config) ApplyOverrides(logLevel, logFormat string, pageSize int, sleepSeconds float64, maxInstances int) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
	if pageSize > 0 {
		c.Processing.PageSize = pageSize
	}
	if sleepSeconds > 0 {
		c.Processing.SleepSeconds = sleepSeconds
	}
	if maxInstances > 0 {
		c.Runtime.MaxProcessInstances = maxInstances
	}
}

// TenantAllowed reports whether a tenant passes the runtime allow-list.
// An empty allow-list admits every tenant.
func (r RuntimeConfig) TenantAllowed(tenantID string) bool {
	if len(r.TenantIDs) == 0 {
		return true
	}
	for _, allowed := range r.TenantIDs {
		if allowed == tenantID {
			return true
		}
	}
	return false
}

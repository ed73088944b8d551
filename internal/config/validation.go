package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dbsmedya/gomigrator/internal/types"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
// History migration needs the legacy and target databases; runtime
// migration needs both REST APIs. Sections that are left empty are only
// reported when the corresponding mode is requested, see ValidateFor.
func (c *Config) Validate() error {
	return c.ValidateFor(true, false)
}

// ValidateFor validates the configuration for the selected migration kinds.
func (c *Config) ValidateFor(history, runtime bool) error {
	var errors ValidationErrors

	if history {
		errors = append(errors, c.validateDatabase("legacy", &c.Legacy)...)
		errors = append(errors, c.validateDatabase("target", &c.Target)...)
		errors = append(errors, c.validateMigration()...)
	}

	if runtime {
		errors = append(errors, c.validateAPI("legacy_api", &c.LegacyAPI)...)
		errors = append(errors, c.validateAPI("target_api", &c.TargetAPI)...)
		errors = append(errors, c.validateRuntime()...)
	}

	errors = append(errors, c.validateLedger()...)
	errors = append(errors, c.validateProcessing()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateDatabase(prefix string, db *DatabaseConfig) ValidationErrors {
	var errors ValidationErrors

	if db.Host == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".host",
			Message: "host is required",
		})
	}

	if db.Port <= 0 || db.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".port",
			Message: "port must be between 1 and 65535",
		})
	}

	if db.User == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".user",
			Message: "user is required",
		})
	}

	if db.Database == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".database",
			Message: "database name is required",
		})
	}

	validTLS := map[string]bool{"disable": true, "preferred": true, "required": true, "": true}
	if !validTLS[db.TLS] {
		errors = append(errors, ValidationError{
			Field:   prefix + ".tls",
			Message: "tls must be 'disable', 'preferred', or 'required'",
		})
	}

	if db.MaxConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".max_connections",
			Message: "max_connections cannot be negative",
		})
	}

	if db.MaxIdleConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".max_idle_connections",
			Message: "max_idle_connections cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateAPI(prefix string, api *APIConfig) ValidationErrors {
	var errors ValidationErrors

	if api.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".base_url",
			Message: "base_url is required",
		})
	} else if u, err := url.Parse(api.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".base_url",
			Message: "base_url must be an absolute URL",
		})
	}

	if api.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".timeout",
			Message: "timeout cannot be negative",
		})
	}

	if api.RequestsPerSecond < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".requests_per_second",
			Message: "requests_per_second cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateLedger() ValidationErrors {
	var errors ValidationErrors

	switch c.Ledger.Driver {
	case LedgerDriverSQLite:
		if c.Ledger.Path == "" {
			errors = append(errors, ValidationError{
				Field:   "ledger.path",
				Message: "path is required for the sqlite ledger",
			})
		}
	case LedgerDriverMySQL:
		errors = append(errors, c.validateDatabase("ledger.database", &c.Ledger.Database)...)
	default:
		errors = append(errors, ValidationError{
			Field:   "ledger.driver",
			Message: "driver must be 'mysql' or 'sqlite'",
		})
	}

	if c.Ledger.Table == "" {
		errors = append(errors, ValidationError{
			Field:   "ledger.table",
			Message: "table is required",
		})
	}

	return errors
}

func (c *Config) validateProcessing() ValidationErrors {
	var errors ValidationErrors

	if c.Processing.PageSize <= 0 {
		errors = append(errors, ValidationError{
			Field:   "processing.page_size",
			Message: "page_size must be positive",
		})
	}

	if c.Processing.SleepSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "processing.sleep_seconds",
			Message: "sleep_seconds cannot be negative",
		})
	}

	// Target keys reserve 13 bits for the partition.
	if c.Processing.PartitionID < 1 || c.Processing.PartitionID > 8191 {
		errors = append(errors, ValidationError{
			Field:   "processing.partition_id",
			Message: "partition_id must be between 1 and 8191",
		})
	}

	return errors
}

func (c *Config) validateMigration() ValidationErrors {
	var errors ValidationErrors

	for i, name := range c.Migration.EntityTypes {
		t, err := types.ParseEntityType(name)
		if err != nil || !t.IsHistory() {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("migration.entity_types[%d]", i),
				Message: fmt.Sprintf("%q is not a history entity type", name),
			})
		}
	}

	return errors
}

func (c *Config) validateRuntime() ValidationErrors {
	var errors ValidationErrors

	if strings.TrimSpace(c.Runtime.JobType) == "" {
		errors = append(errors, ValidationError{
			Field:   "runtime.job_type",
			Message: "job_type is required",
		})
	}

	if c.Runtime.JobActivationTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "runtime.job_activation_timeout",
			Message: "job_activation_timeout must be positive",
		})
	}

	if c.Runtime.MaxJobsToActivate <= 0 {
		errors = append(errors, ValidationError{
			Field:   "runtime.max_jobs_to_activate",
			Message: "max_jobs_to_activate must be positive",
		})
	}

	if c.Runtime.MaxProcessInstances < 0 {
		errors = append(errors, ValidationError{
			Field:   "runtime.max_process_instances",
			Message: "max_process_instances cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}

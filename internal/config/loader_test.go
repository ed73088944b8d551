package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test.yaml")

	configContent := `
legacy:
  host: legacy-db
  port: 3306
  user: camunda
  password: secret
  database: engine
  tls: disable
  max_connections: 5
  max_idle_connections: 2

target:
  host: target-db
  port: 3307
  user: target
  password: targetpass
  database: history

ledger:
  driver: sqlite
  path: /var/lib/gomigrator/ledger.db

legacy_api:
  base_url: http://legacy:8080/engine-rest
  timeout: 10s
  requests_per_second: 20

target_api:
  base_url: http://target:8080
  bearer_token: abc

processing:
  page_size: 250
  sleep_seconds: 0.5
  partition_id: 3

migration:
  entity_types: process_definition,process_instance
  disabled_interceptors:
    - tenant

runtime:
  job_type: transplant
  job_activation_timeout: 2s
  max_jobs_to_activate: 10
  max_process_instances: 100
  tenant_ids: [tenant-a, tenant-b]

logging:
  level: debug
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Legacy.Host != "legacy-db" {
		t.Errorf("expected legacy host 'legacy-db', got %s", cfg.Legacy.Host)
	}
	if cfg.Legacy.MaxConnections != 5 {
		t.Errorf("expected legacy max_connections 5, got %d", cfg.Legacy.MaxConnections)
	}
	if cfg.Target.Port != 3307 {
		t.Errorf("expected target port 3307, got %d", cfg.Target.Port)
	}
	if cfg.Ledger.Path != "/var/lib/gomigrator/ledger.db" {
		t.Errorf("unexpected ledger path %q", cfg.Ledger.Path)
	}
	// Ledger table keeps its default when not set.
	if cfg.Ledger.Table != "migration_ledger" {
		t.Errorf("expected default ledger table, got %q", cfg.Ledger.Table)
	}
	if cfg.LegacyAPI.Timeout != 10*time.Second {
		t.Errorf("expected legacy_api timeout 10s, got %s", cfg.LegacyAPI.Timeout)
	}
	if cfg.LegacyAPI.RequestsPerSecond != 20 {
		t.Errorf("expected 20 requests per second, got %v", cfg.LegacyAPI.RequestsPerSecond)
	}
	if cfg.Processing.PageSize != 250 {
		t.Errorf("expected page_size 250, got %d", cfg.Processing.PageSize)
	}
	if cfg.Processing.PartitionID != 3 {
		t.Errorf("expected partition_id 3, got %d", cfg.Processing.PartitionID)
	}
	if len(cfg.Migration.EntityTypes) != 2 || cfg.Migration.EntityTypes[1] != "process_instance" {
		t.Errorf("expected comma separated entity types to be split, got %v", cfg.Migration.EntityTypes)
	}
	if len(cfg.Migration.DisabledInterceptors) != 1 {
		t.Errorf("expected one disabled interceptor, got %v", cfg.Migration.DisabledInterceptors)
	}
	if cfg.Runtime.JobType != "transplant" {
		t.Errorf("expected job type 'transplant', got %q", cfg.Runtime.JobType)
	}
	if cfg.Runtime.JobActivationTimeout != 2*time.Second {
		t.Errorf("expected activation timeout 2s, got %s", cfg.Runtime.JobActivationTimeout)
	}
	// Not set in file, default survives.
	if cfg.Runtime.JobLockTimeout != 5*time.Minute {
		t.Errorf("expected default job lock timeout, got %s", cfg.Runtime.JobLockTimeout)
	}
	if len(cfg.Runtime.TenantIDs) != 2 {
		t.Errorf("expected two tenants, got %v", cfg.Runtime.TenantIDs)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected logging level debug, got %s", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	if err := os.WriteFile(configPath, []byte("legacy: [unclosed"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestEnvVarSubstitution(t *testing.T) {
	t.Setenv("GOMIGRATOR_TEST_PASSWORD", "s3cret")
	t.Setenv("GOMIGRATOR_TEST_TOKEN", "tok")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "env.yaml")

	configContent := `
legacy:
  host: localhost
  user: root
  password: ${GOMIGRATOR_TEST_PASSWORD}
  database: engine
target_api:
  base_url: http://target
  bearer_token: $GOMIGRATOR_TEST_TOKEN
ledger:
  driver: mysql
  database:
    host: ledger-host
    user: ledger
    password: ${GOMIGRATOR_UNSET_VARIABLE}
    database: ledger
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Legacy.Password != "s3cret" {
		t.Errorf("expected password from env, got %q", cfg.Legacy.Password)
	}
	if cfg.TargetAPI.BearerToken != "tok" {
		t.Errorf("expected token from env, got %q", cfg.TargetAPI.BearerToken)
	}
	if cfg.Ledger.Database.Password != "${GOMIGRATOR_UNSET_VARIABLE}" {
		t.Errorf("expected unset variable to be kept verbatim, got %q", cfg.Ledger.Database.Password)
	}
}

func TestLoadFromViper(t *testing.T) {
	v := viper.New()
	v.Set("processing.page_size", 42)
	v.Set("runtime.job_activation_timeout", "750ms")

	cfg, err := LoadFromViper(v)
	if err != nil {
		t.Fatalf("LoadFromViper failed: %v", err)
	}

	if cfg.Processing.PageSize != 42 {
		t.Errorf("expected page size 42, got %d", cfg.Processing.PageSize)
	}
	if cfg.Runtime.JobActivationTimeout != 750*time.Millisecond {
		t.Errorf("expected 750ms, got %s", cfg.Runtime.JobActivationTimeout)
	}
	if cfg.Runtime.JobType != "migrator" {
		t.Errorf("expected default job type, got %q", cfg.Runtime.JobType)
	}
}

func TestExpandEnvVar(t *testing.T) {
	t.Setenv("GOMIGRATOR_HOST", "db.internal")

	tests := []struct {
		input string
		want  string
	}{
		{"${GOMIGRATOR_HOST}", "db.internal"},
		{"$GOMIGRATOR_HOST", "db.internal"},
		{"prefix-${GOMIGRATOR_HOST}-suffix", "prefix-db.internal-suffix"},
		{"no vars", "no vars"},
		{"${GOMIGRATOR_DOES_NOT_EXIST}", "${GOMIGRATOR_DOES_NOT_EXIST}"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := expandEnvVar(tt.input); got != tt.want {
				t.Errorf("expandEnvVar(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

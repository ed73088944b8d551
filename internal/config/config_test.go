package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Legacy.Port != 3306 {
		t.Errorf("expected default legacy port 3306, got %d", cfg.Legacy.Port)
	}
	if cfg.Ledger.Driver != LedgerDriverSQLite {
		t.Errorf("expected sqlite ledger by default, got %q", cfg.Ledger.Driver)
	}
	if cfg.Ledger.Table != "migration_ledger" {
		t.Errorf("expected default ledger table, got %q", cfg.Ledger.Table)
	}
	if cfg.Processing.PageSize != 500 {
		t.Errorf("expected default page size 500, got %d", cfg.Processing.PageSize)
	}
	if cfg.Runtime.JobType != "migrator" {
		t.Errorf("expected default job type 'migrator', got %q", cfg.Runtime.JobType)
	}
	if cfg.Runtime.JobActivationTimeout != 5*time.Second {
		t.Errorf("expected default activation timeout 5s, got %s", cfg.Runtime.JobActivationTimeout)
	}
	if cfg.Runtime.AllowParallelMultiInstance {
		t.Error("parallel multi-instance should be rejected by default")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected json logging by default, got %q", cfg.Logging.Format)
	}
}

func TestApplyOverrides(t *testing.T) {
	tests := []struct {
		name         string
		logLevel     string
		logFormat    string
		pageSize     int
		sleepSeconds float64
		maxInstances int
		check        func(t *testing.T, cfg *Config)
	}{
		{
			name: "no overrides keeps defaults",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Processing.PageSize != 500 || cfg.Logging.Level != "info" {
					t.Errorf("defaults changed: %+v %+v", cfg.Processing, cfg.Logging)
				}
			},
		},
		{
			name:         "all overrides",
			logLevel:     "debug",
			logFormat:    "text",
			pageSize:     10,
			sleepSeconds: 0.25,
			maxInstances: 7,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
					t.Errorf("logging overrides not applied: %+v", cfg.Logging)
				}
				if cfg.Processing.PageSize != 10 || cfg.Processing.SleepSeconds != 0.25 {
					t.Errorf("processing overrides not applied: %+v", cfg.Processing)
				}
				if cfg.Runtime.MaxProcessInstances != 7 {
					t.Errorf("expected max instances 7, got %d", cfg.Runtime.MaxProcessInstances)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ApplyOverrides(tt.logLevel, tt.logFormat, tt.pageSize, tt.sleepSeconds, tt.maxInstances)
			tt.check(t, cfg)
		})
	}
}

func TestTenantAllowed(t *testing.T) {
	open := RuntimeConfig{}
	if !open.TenantAllowed("anything") {
		t.Error("empty allow-list should admit every tenant")
	}

	restricted := RuntimeConfig{TenantIDs: []string{"a", "b"}}
	if !restricted.TenantAllowed("b") {
		t.Error("expected tenant b to be allowed")
	}
	if restricted.TenantAllowed("c") {
		t.Error("expected tenant c to be rejected")
	}
	if restricted.TenantAllowed("") {
		t.Error("expected the default tenant to be rejected by a non-empty allow-list")
	}
}

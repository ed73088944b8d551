package database

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dbsmedya/gomigrator/internal/config"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *config.DatabaseConfig
		expected string
	}{
		{
			name: "basic DSN",
			cfg: &config.DatabaseConfig{
				Host:     "localhost",
				Port:     3306,
				User:     "root",
				Password: "secret",
				Database: "engine",
				TLS:      "preferred",
			},
			expected: "root:secret@tcp(localhost:3306)/engine?parseTime=true&tls=preferred",
		},
		{
			name: "DSN without database",
			cfg: &config.DatabaseConfig{
				Host:     "localhost",
				Port:     3306,
				User:     "root",
				Password: "secret",
				TLS:      "preferred",
			},
			expected: "root:secret@tcp(localhost:3306)/?parseTime=true&tls=preferred",
		},
		{
			name: "DSN with TLS disabled",
			cfg: &config.DatabaseConfig{
				Host:     "localhost",
				Port:     3306,
				User:     "root",
				Password: "secret",
				Database: "engine",
				TLS:      "disable",
			},
			expected: "root:secret@tcp(localhost:3306)/engine?parseTime=true&tls=false",
		},
		{
			name: "DSN with TLS required",
			cfg: &config.DatabaseConfig{
				Host:     "localhost",
				Port:     3306,
				User:     "root",
				Password: "secret",
				Database: "engine",
				TLS:      "required",
			},
			expected: "root:secret@tcp(localhost:3306)/engine?parseTime=true&tls=true",
		},
		{
			name: "Special characters in password",
			cfg: &config.DatabaseConfig{
				Host:     "remote-host",
				Port:     3307,
				User:     "admin",
				Password: "p@ss!w0rd#123",
				Database: "history",
				TLS:      "preferred",
			},
			expected: "admin:p@ss!w0rd#123@tcp(remote-host:3307)/history?parseTime=true&tls=preferred",
		},
		{
			name: "Empty password",
			cfg: &config.DatabaseConfig{
				Host:     "localhost",
				Port:     3306,
				User:     "root",
				Database: "engine",
			},
			expected: "root:@tcp(localhost:3306)/engine?parseTime=true&tls=preferred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := BuildDSN(tt.cfg)
			if result != tt.expected {
				t.Errorf("BuildDSN() = %q, expected %q", result, tt.expected)
			}
		})
	}
}

func TestNewManager(t *testing.T) {
	cfg := &config.Config{
		Legacy: config.DatabaseConfig{
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "secret",
			Database: "engine",
		},
		Target: config.DatabaseConfig{
			Host:     "target-host",
			Port:     3306,
			User:     "root",
			Password: "secret",
			Database: "history",
		},
	}

	manager := NewManager(cfg)
	if manager == nil {
		t.Fatal("NewManager() returned nil")
	}

	if manager.config != cfg {
		t.Error("manager.config should point to provided config")
	}

	if manager.Legacy != nil || manager.Target != nil || manager.Ledger != nil {
		t.Error("connections should be nil before connecting")
	}
}

func TestNewManager_NilConfig(t *testing.T) {
	manager := NewManager(nil)
	if manager == nil {
		t.Fatal("NewManager() should not return nil even with nil config")
	}
	if manager.config != nil {
		t.Error("manager.config should be nil when provided nil config")
	}
}

func TestManagerCloseWithoutConnect(t *testing.T) {
	manager := NewManager(config.DefaultConfig())

	// Should not panic when closing unconnected manager
	if err := manager.Close(); err != nil {
		t.Errorf("Close() returned error for unconnected manager: %v", err)
	}
}

func TestConnectLedger_SQLite(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "nested", "ledger.db")

	manager := NewManager(cfg)
	if err := manager.ConnectLedger(context.Background()); err != nil {
		t.Fatalf("ConnectLedger() failed: %v", err)
	}
	defer manager.Close()

	if manager.Ledger == nil {
		t.Fatal("Ledger should be set after ConnectLedger()")
	}
	if _, err := manager.Ledger.Exec("CREATE TABLE writable_check (id INTEGER)"); err != nil {
		t.Errorf("sqlite ledger is not writable: %v", err)
	}
	if err := manager.Ping(context.Background()); err != nil {
		t.Errorf("Ping() failed: %v", err)
	}
}

func TestConnectLedger_UnknownDriver(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Ledger.Driver = "postgres"

	err := NewManager(cfg).ConnectLedger(context.Background())
	if err == nil || !strings.Contains(err.Error(), "unsupported ledger driver") {
		t.Errorf("expected unsupported driver error, got %v", err)
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{":memory:", "file::memory:?_pragma=busy_timeout(30000)"},
		{"file:custom.db?mode=ro", "file:custom.db?mode=ro"},
		{"/var/lib/ledger.db", "file:/var/lib/ledger.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(30000)"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := SQLiteDSN(tt.path); got != tt.expected {
				t.Errorf("SQLiteDSN(%q) = %q, expected %q", tt.path, got, tt.expected)
			}
		})
	}
}

func TestOpenSQLite_Memory(t *testing.T) {
	db, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE TABLE t (v INTEGER)"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := db.Exec("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM t").Scan(&n); err != nil || n != 1 {
		t.Errorf("expected one row on the single shared connection, got %d (%v)", n, err)
	}
}

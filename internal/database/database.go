// Package database provides connection management for the legacy, target and
// ledger databases of gomigrator.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"       // MySQL driver
	_ "github.com/ncruces/go-sqlite3/driver" // SQLite driver
	_ "github.com/ncruces/go-sqlite3/embed"  // embedded SQLite build

	"github.com/dbsmedya/gomigrator/internal/config"
)

// Manager handles database connections for the legacy engine, the target
// engine and the migration ledger.
type Manager struct {
	Legacy *sql.DB
	Target *sql.DB
	Ledger *sql.DB
	config *config.Config
}

// NewManager creates a new database manager from configuration.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		config: cfg,
	}
}

// ConnectHistory establishes connections to the legacy and target databases.
func (m *Manager) ConnectHistory(ctx context.Context) error {
	var err error

	m.Legacy, err = m.connectWithRetry(ctx, "legacy", &m.config.Legacy)
	if err != nil {
		return fmt.Errorf("failed to connect to legacy database: %w", err)
	}

	m.Target, err = m.connectWithRetry(ctx, "target", &m.config.Target)
	if err != nil {
		m.Legacy.Close()
		m.Legacy = nil
		return fmt.Errorf("failed to connect to target database: %w", err)
	}

	return nil
}

// ConnectLedger opens the ledger database selected by ledger.driver.
func (m *Manager) ConnectLedger(ctx context.Context) error {
	var err error

	switch m.config.Ledger.Driver {
	case config.LedgerDriverMySQL:
		m.Ledger, err = m.connectWithRetry(ctx, "ledger", &m.config.Ledger.Database)
	case config.LedgerDriverSQLite:
		m.Ledger, err = OpenSQLite(ctx, m.config.Ledger.Path)
	default:
		err = fmt.Errorf("unsupported ledger driver %q", m.config.Ledger.Driver)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to ledger database: %w", err)
	}

	return nil
}

// connectWithRetry attempts to connect with exponential backoff.
func (m *Manager) connectWithRetry(ctx context.Context, name string, cfg *config.DatabaseConfig) (*sql.DB, error) {
	var db *sql.DB
	var err error

	maxRetries := 3
	backoff := time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = m.connect(cfg)
		if err == nil {
			if pingErr := db.PingContext(ctx); pingErr == nil {
				return db, nil
			} else {
				db.Close()
				err = pingErr
			}
		}

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}

	return nil, fmt.Errorf("%s: failed after %d retries: %w", name, maxRetries, err)
}

// connect creates a MySQL database connection.
func (m *Manager) connect(cfg *config.DatabaseConfig) (*sql.DB, error) {
	dsn := BuildDSN(cfg)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConnections)
	}
	db.SetConnMaxLifetime(10 * time.Minute)

	return db, nil
}

// BuildDSN constructs a MySQL DSN from configuration.
func BuildDSN(cfg *config.DatabaseConfig) string {
	// Format: user:password@tcp(host:port)/database?params
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
	)

	if cfg.Database != "" {
		dsn += cfg.Database
	}

	params := "?parseTime=true"
	switch cfg.TLS {
	case "disable":
		params += "&tls=false"
	case "required":
		params += "&tls=true"
	case "preferred", "":
		params += "&tls=preferred"
	}

	return dsn + params
}

// SQLiteDSN builds the connection string for a SQLite ledger file.
// ":memory:" yields a private in-memory database.
func SQLiteDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?_pragma=busy_timeout(30000)"
	}
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(30000)"
}

// OpenSQLite opens (and creates if needed) a SQLite database.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite allows one writer; in-memory databases are private per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return db, nil
}

// Close closes all database connections gracefully.
func (m *Manager) Close() error {
	var errs []error

	if m.Ledger != nil {
		if err := m.Ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("ledger close: %w", err))
		}
	}

	if m.Target != nil {
		if err := m.Target.Close(); err != nil {
			errs = append(errs, fmt.Errorf("target close: %w", err))
		}
	}

	if m.Legacy != nil {
		if err := m.Legacy.Close(); err != nil {
			errs = append(errs, fmt.Errorf("legacy close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing connections: %v", errs)
	}
	return nil
}

// Ping verifies all open connections are alive.
func (m *Manager) Ping(ctx context.Context) error {
	if m.Legacy != nil {
		if err := m.Legacy.PingContext(ctx); err != nil {
			return fmt.Errorf("legacy ping failed: %w", err)
		}
	}

	if m.Target != nil {
		if err := m.Target.PingContext(ctx); err != nil {
			return fmt.Errorf("target ping failed: %w", err)
		}
	}

	if m.Ledger != nil {
		if err := m.Ledger.PingContext(ctx); err != nil {
			return fmt.Errorf("ledger ping failed: %w", err)
		}
	}

	return nil
}

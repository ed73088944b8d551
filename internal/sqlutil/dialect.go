package sqlutil

import "fmt"

// Dialect captures the statement differences between the ledger backends.
// Both MySQL and SQLite accept backtick quoted identifiers and "?" placeholders.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch Dialect(driver) {
	case MySQL, SQLite:
		return Dialect(driver), nil
	default:
		return "", fmt.Errorf("unsupported SQL dialect: %q", driver)
	}
}

// InsertIgnore returns the statement prefix that turns a duplicate key
// insert into a no-op.
func (d Dialect) InsertIgnore() string {
	if d == SQLite {
		return "INSERT OR IGNORE INTO"
	}
	return "INSERT IGNORE INTO"
}

// AutoIncrementPK returns the column definition of a surrogate primary key.
func (d Dialect) AutoIncrementPK() string {
	if d == SQLite {
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return "BIGINT AUTO_INCREMENT PRIMARY KEY"
}

// TableOptions returns the trailing CREATE TABLE options.
func (d Dialect) TableOptions() string {
	if d == SQLite {
		return ""
	}
	return " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"
}

// String implements fmt.Stringer.
func (d Dialect) String() string {
	return string(d)
}

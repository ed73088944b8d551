// Package sqlutil holds the SQL helpers shared by the ledger store, the
// target history writer and the verifier.
package sqlutil

import (
	"regexp"
	"strings"
)

// QuoteIdentifier quotes a table, column or index name with backticks,
// doubling embedded backticks. MySQL and SQLite both accept the result.
//
//	"migration_ledger" -> "`migration_ledger`"
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Configured table names are limited to letters, digits and underscores,
// so a schema-qualified name such as "ops.ledger" is rejected.
var validIdentifierRegex = regexp.MustCompile("^[a-zA-Z0-9_]+$")

// IsValidIdentifier reports whether name may be used as a ledger or target
// table or column name.
func IsValidIdentifier(name string) bool {
	return validIdentifierRegex.MatchString(name)
}

// QuoteIdentifierSafe validates and quotes a name taken from configuration,
// such as the ledger table, or from a target history record.
func QuoteIdentifierSafe(name string) (string, error) {
	if !IsValidIdentifier(name) {
		return "", &InvalidIdentifierError{Name: name}
	}
	return QuoteIdentifier(name), nil
}

// InvalidIdentifierError reports a table or column name that cannot be used.
type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return "invalid identifier: " + e.Name + " (must contain only alphanumeric characters and underscores)"
}

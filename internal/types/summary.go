package types

import "time"

// SkippedRecord is one skipped ledger row as shown to operators.
type SkippedRecord struct {
	LegacyID   string
	Type       EntityType
	CreateTime time.Time
	Reason     string
}

// TypeStats holds ledger counts for one entity type.
type TypeStats struct {
	Type     EntityType
	Migrated int64
	Skipped  int64
}

// Total returns the number of ledger rows for the type.
func (s TypeStats) Total() int64 {
	return s.Migrated + s.Skipped
}

// Package target writes converted entities to the target engine.
package target

import (
	"github.com/elliotchance/orderedmap/v2"
)

// Record is one row of a target history table. Columns keep the order in
// which they were first set.
type Record struct {
	Table     string
	KeyColumn string
	Key       int64
	columns   *orderedmap.OrderedMap[string, interface{}]
}

// NewRecord creates an empty row for a table.
func NewRecord(table, keyColumn string) *Record {
	return &Record{
		Table:     table,
		KeyColumn: keyColumn,
		columns:   orderedmap.NewOrderedMap[string, interface{}](),
	}
}

// Set writes a column unless it already holds a value. It reports whether
// the value was written.
func (r *Record) Set(column string, value interface{}) bool {
	if _, exists := r.columns.Get(column); exists {
		return false
	}
	r.columns.Set(column, value)
	return true
}

// Override writes a column even if an earlier step set it.
func (r *Record) Override(column string, value interface{}) {
	r.columns.Set(column, value)
}

// Get returns a column value.
func (r *Record) Get(column string) (interface{}, bool) {
	return r.columns.Get(column)
}

// Len returns the number of columns set.
func (r *Record) Len() int {
	return r.columns.Len()
}

// Columns returns the column names and values in insertion order.
func (r *Record) Columns() ([]string, []interface{}) {
	names := make([]string, 0, r.columns.Len())
	values := make([]interface{}, 0, r.columns.Len())
	for el := r.columns.Front(); el != nil; el = el.Next() {
		names = append(names, el.Key)
		values = append(values, el.Value)
	}
	return names, values
}

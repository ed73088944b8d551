package target

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dbsmedya/gomigrator/internal/sqlutil"
	"github.com/dbsmedya/gomigrator/internal/types"
)

// Table names a target history table and its key column.
type Table struct {
	Name      string
	KeyColumn string
}

var tables = map[types.EntityType]Table{
	types.ProcessDefinition:              {Name: "process_definition", KeyColumn: "process_definition_key"},
	types.ProcessInstance:                {Name: "process_instance", KeyColumn: "process_instance_key"},
	types.DecisionRequirementsDefinition: {Name: "decision_requirements", KeyColumn: "decision_requirements_key"},
	types.DecisionDefinition:             {Name: "decision_definition", KeyColumn: "decision_definition_key"},
	types.DecisionInstance:               {Name: "decision_instance", KeyColumn: "decision_instance_key"},
	types.Incident:                       {Name: "incident", KeyColumn: "incident_key"},
	types.FlowNode:                       {Name: "flow_node_instance", KeyColumn: "flow_node_instance_key"},
	types.UserTask:                       {Name: "user_task", KeyColumn: "user_task_key"},
	types.Variable:                       {Name: "variable", KeyColumn: "variable_key"},
}

// TableFor returns the target table of a history entity type.
func TableFor(t types.EntityType) (Table, bool) {
	tbl, ok := tables[t]
	return tbl, ok
}

// NewRecordFor creates an empty row for the entity type's table.
func NewRecordFor(t types.EntityType) (*Record, error) {
	tbl, ok := TableFor(t)
	if !ok {
		return nil, fmt.Errorf("no target table for entity type %q", t)
	}
	return NewRecord(tbl.Name, tbl.KeyColumn), nil
}

// HistoryWriter persists converted history rows.
type HistoryWriter interface {
	Insert(ctx context.Context, rec *Record) error
}

// SQLHistoryWriter writes rows into the target relational store.
type SQLHistoryWriter struct {
	db *sql.DB
}

// NewSQLHistoryWriter creates a writer on the target database.
func NewSQLHistoryWriter(db *sql.DB) (*SQLHistoryWriter, error) {
	if db == nil {
		return nil, fmt.Errorf("target database is nil")
	}
	return &SQLHistoryWriter{db: db}, nil
}

// Insert writes one row. The key column comes first.
func (w *SQLHistoryWriter) Insert(ctx context.Context, rec *Record) error {
	query, args, err := buildInsert(rec)
	if err != nil {
		return err
	}
	if _, err := w.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", rec.Table, err)
	}
	return nil
}

func buildInsert(rec *Record) (string, []interface{}, error) {
	table, err := sqlutil.QuoteIdentifierSafe(rec.Table)
	if err != nil {
		return "", nil, err
	}
	keyCol, err := sqlutil.QuoteIdentifierSafe(rec.KeyColumn)
	if err != nil {
		return "", nil, err
	}

	names, values := rec.Columns()
	quoted := make([]string, 0, len(names)+1)
	args := make([]interface{}, 0, len(values)+1)
	quoted = append(quoted, keyCol)
	args = append(args, rec.Key)

	for i, name := range names {
		if name == rec.KeyColumn {
			continue
		}
		q, err := sqlutil.QuoteIdentifierSafe(name)
		if err != nil {
			return "", nil, err
		}
		quoted = append(quoted, q)
		args = append(args, values[i])
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(quoted)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(quoted, ", "), placeholders)
	return query, args, nil
}

package sqlite

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/asaidimu/go-docstore/core/schema"
)

// recordQuery generates the statements the catalog runs against one table,
// driven by the definition of the records it holds.
type recordQuery struct {
	table   string
	schema  *schema.SchemaDefinition
	columns []string
}

func newRecordQuery(table string, sc *schema.SchemaDefinition) (*recordQuery, error) {
	if sc == nil {
		return nil, fmt.Errorf("SchemaDefinition cannot be nil")
	}
	if table == "" {
		return nil, fmt.Errorf("schema must define a table name")
	}
	return &recordQuery{table: table, schema: sc, columns: schema.SortedFieldNames(sc.Fields)}, nil
}

// upsertSQL inserts a record, replacing the non-conflict columns of an
// existing record with the same conflict columns.
func (q *recordQuery) upsertSQL(doc schema.Document, conflict []string) (string, []any, error) {
	quoted := make([]string, len(q.columns))
	placeholders := make([]string, len(q.columns))
	params := make([]any, len(q.columns))
	for i, col := range q.columns {
		v, err := q.prepareValue(col, doc[col])
		if err != nil {
			return "", nil, err
		}
		quoted[i] = quoteIdentifier(col)
		placeholders[i] = "?"
		params[i] = v
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (%s)", quoteIdentifier(q.table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	if len(conflict) > 0 {
		target := make([]string, len(conflict))
		for i, c := range conflict {
			target[i] = quoteIdentifier(c)
		}
		var sets []string
		for _, col := range q.columns {
			if !slices.Contains(conflict, col) {
				sets = append(sets, fmt.Sprintf("%s = excluded.%s", quoteIdentifier(col), quoteIdentifier(col)))
			}
		}
		fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(target, ", "), strings.Join(sets, ", "))
	}
	return sb.String(), params, nil
}

// selectSQL selects every column of the records matching the equalities in
// where, in column order.
func (q *recordQuery) selectSQL(where schema.D, orderBy ...string) (string, []any, error) {
	quoted := make([]string, len(q.columns))
	for i, col := range q.columns {
		quoted[i] = quoteIdentifier(col)
	}
	clause, params, err := q.whereSQL(where)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s%s", strings.Join(quoted, ", "), quoteIdentifier(q.table), clause)
	if len(orderBy) > 0 {
		order := make([]string, len(orderBy))
		for i, col := range orderBy {
			order[i] = quoteIdentifier(col) + " ASC"
		}
		sb.WriteString(" ORDER BY " + strings.Join(order, ", "))
	}
	return sb.String(), params, nil
}

// deleteSQL deletes the records matching the equalities in where.
func (q *recordQuery) deleteSQL(where schema.D) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, fmt.Errorf("refusing to delete every record of %s", q.table)
	}
	clause, params, err := q.whereSQL(where)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("DELETE FROM %s%s", quoteIdentifier(q.table), clause), params, nil
}

func (q *recordQuery) whereSQL(where schema.D) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	conditions := make([]string, len(where))
	params := make([]any, len(where))
	for i, e := range where {
		v, err := q.prepareValue(e.Key, e.Value)
		if err != nil {
			return "", nil, err
		}
		conditions[i] = quoteIdentifier(e.Key) + " = ?"
		params[i] = v
	}
	return " WHERE " + strings.Join(conditions, " AND "), params, nil
}

// prepareValue converts a Go value to the storage class of the field's
// column: booleans become integers and structured values JSON text.
func (q *recordQuery) prepareValue(fieldName string, value any) (any, error) {
	field, exists := q.schema.Fields[fieldName]
	if !exists {
		return nil, fmt.Errorf("field '%s' not found in schema for value preparation", fieldName)
	}
	if value == nil {
		return nil, nil
	}

	switch field.Type {
	case schema.FieldTypeBoolean:
		if b, ok := value.(bool); ok {
			if b {
				return 1, nil
			}
			return 0, nil
		}
	case schema.FieldTypeObject, schema.FieldTypeArray, schema.FieldTypeSet, schema.FieldTypeRecord:
		if raw, ok := value.(json.RawMessage); ok {
			return string(raw), nil
		}
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal field '%s' to JSON: %w", fieldName, err)
		}
		return string(b), nil
	}
	return value, nil
}

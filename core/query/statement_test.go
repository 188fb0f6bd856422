package query

import (
	"testing"

	"github.com/asaidimu/go-docstore/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementBuilder_Select(t *testing.T) {
	tests := []struct {
		name     string
		table    Table
		filter   any
		opts     FindOptions
		expected string
	}{
		{
			name:     "whole table",
			table:    Table{Name: "users"},
			expected: `SELECT * FROM users t`,
		},
		{
			name:   "range with sort and limit",
			table:  Table{Name: "users"},
			filter: schema.D{{Key: "age", Value: schema.D{{Key: OpGte, Value: 18}, {Key: OpLt, Value: 65}}}},
			opts:   FindOptions{Sort: schema.D{{Key: "age", Value: 1}}, Limit: 10},
			expected: `DECLARE $age NUMBER; $age_1 NUMBER; ` +
				`SELECT * FROM users t WHERE (t."age"[] >=any $age AND t."age"[] <any $age_1) ORDER BY t."age" ASC LIMIT 10`,
		},
		{
			name:   "projection with offset",
			table:  Table{Name: "users"},
			filter: schema.D{{Key: "name", Value: "al"}},
			opts:   FindOptions{Projection: schema.D{{Key: "name", Value: 1}}, Skip: 5, Sort: []SortConfiguration{{Field: "name", Direction: SortDirectionDesc}}},
			expected: `DECLARE $name STRING; ` +
				`SELECT t."id" AS "id", t."name" AS "name" FROM users t WHERE t."name"[] =any $name ORDER BY t."name" DESC OFFSET 5`,
		},
		{
			name:     "sort on the identity uses key columns",
			table:    Table{Name: "events", Keys: compositeKeys},
			opts:     FindOptions{Sort: schema.D{{Key: "_id", Value: -1}, {Key: "at", Value: "asc"}}},
			expected: `SELECT * FROM events t ORDER BY t."tenant" DESC, t."user" DESC, t."at" ASC`,
		},
		{
			name:     "exclusion needs the catalog",
			table:    Table{Name: "users", Catalog: testCatalog()},
			opts:     FindOptions{Projection: schema.D{{Key: "addr", Value: 0}, {Key: "items", Value: 0}, {Key: "tags", Value: 0}}},
			expected: `SELECT t."id" AS "id", t."a" AS "a", t."b" AS "b" FROM users t`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := NewStatementBuilder().Select(tt.table, tt.filter, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, stmt.Text)
		})
	}
}

func TestStatementBuilder_EndToEndBindings(t *testing.T) {
	stmt, err := NewStatementBuilder().Select(
		Table{Name: "users"},
		schema.D{{Key: "age", Value: schema.D{{Key: OpGte, Value: 18}, {Key: OpLt, Value: 65}}}},
		FindOptions{Sort: schema.D{{Key: "age", Value: 1}}, Limit: 10},
	)
	require.NoError(t, err)

	bindings := stmt.Bindings.Bindings()
	require.Len(t, bindings, 2)
	assert.Equal(t, Binding{Name: "$age", Type: BindingNumber, Value: 18}, bindings[0])
	assert.Equal(t, Binding{Name: "$age_1", Type: BindingNumber, Value: 65}, bindings[1])
}

func TestStatementBuilder_Count(t *testing.T) {
	stmt, err := NewStatementBuilder().Count(Table{Name: "users"}, schema.D{{Key: "active", Value: true}})
	require.NoError(t, err)
	assert.Equal(t, `DECLARE $active BOOLEAN; SELECT count(*) AS "count" FROM users t WHERE t."active"[] =any $active`, stmt.Text)

	stmt, err = NewStatementBuilder().Count(Table{Name: "users"}, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT count(*) AS "count" FROM users t`, stmt.Text)
}

func TestStatementBuilder_Update(t *testing.T) {
	stmt, err := NewStatementBuilder().Update(
		Table{Name: "users"},
		schema.D{{Key: "_id", Value: "u1"}},
		schema.D{{Key: OpSet, Value: schema.D{{Key: "name", Value: "al"}}}, {Key: OpInc, Value: schema.D{{Key: "logins", Value: 1}}}},
	)
	require.NoError(t, err)
	assert.Equal(t,
		`DECLARE $name STRING; $id STRING; UPDATE users t PUT t {"name": $name}, SET t."logins" = t."logins" + 1 WHERE t."id" = $id`,
		stmt.Text)
	assert.Equal(t, map[string]any{"$name": "al", "$id": "u1"}, stmt.Bindings.Values())
}

func TestStatementBuilder_UpdateSharesBindingNames(t *testing.T) {
	stmt, err := NewStatementBuilder().Update(
		Table{Name: "users"},
		schema.D{{Key: "_id", Value: "u1"}, {Key: "name", Value: "old"}},
		schema.D{{Key: OpSet, Value: schema.D{{Key: "name", Value: "new"}}}},
	)
	require.NoError(t, err)
	assert.Contains(t, stmt.Text, `PUT t {"name": $name}`)
	assert.Contains(t, stmt.Text, `t."name"[] =any $name_1`)

	v, ok := stmt.Bindings.Get("$name")
	require.True(t, ok)
	assert.Equal(t, "new", v)
	v, ok = stmt.Bindings.Get("$name_1")
	require.True(t, ok)
	assert.Equal(t, "old", v)
}

func TestStatementBuilder_UpdateRequiresFilter(t *testing.T) {
	_, err := NewStatementBuilder().Update(Table{Name: "users"}, nil, schema.D{{Key: OpSet, Value: schema.D{{Key: "a", Value: 1}}}})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestStatementBuilder_Delete(t *testing.T) {
	stmt, err := NewStatementBuilder().Delete(Table{Name: "users"}, schema.D{{Key: "age", Value: schema.D{{Key: OpLt, Value: 18}}}})
	require.NoError(t, err)
	assert.Equal(t, `DECLARE $age NUMBER; DELETE FROM users t WHERE t."age"[] <any $age`, stmt.Text)

	stmt, err = NewStatementBuilder().Delete(Table{Name: "users"}, schema.D{})
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM users t`, stmt.Text)
}

func TestStatementBuilder_InvalidTableName(t *testing.T) {
	for _, name := range []string{"", "1users", "users; DROP", "a-b", `"x"`} {
		_, err := NewStatementBuilder().Select(Table{Name: name}, nil, FindOptions{})
		assert.Error(t, err, name)
	}
	assert.NoError(t, ValidateTableName("parent.child_1"))
}

func TestParseSort(t *testing.T) {
	configs, err := ParseSort(map[string]any{"b": "desc", "a": 1})
	require.NoError(t, err)
	assert.Equal(t, []SortConfiguration{
		{Field: "a", Direction: SortDirectionAsc},
		{Field: "b", Direction: SortDirectionDesc},
	}, configs)

	configs, err = ParseSort(nil)
	require.NoError(t, err)
	assert.Nil(t, configs)

	_, err = ParseSort(schema.D{{Key: "a", Value: 2}})
	assert.Error(t, err)
	_, err = ParseSort(schema.D{{Key: "a", Value: "up"}})
	assert.Error(t, err)
	_, err = ParseSort("a")
	assert.Error(t, err)
	_, err = ParseSort([]SortConfiguration{{Field: "a", Direction: "sideways"}})
	assert.Error(t, err)
}

package query

import (
	"testing"
	"time"

	"github.com/asaidimu/go-docstore/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateCompiler_Compile(t *testing.T) {
	tests := []struct {
		name     string
		update   any
		expected string
		values   map[string]any
	}{
		{
			name:     "$set top-level field",
			update:   schema.D{{Key: OpSet, Value: schema.D{{Key: "a", Value: 1}}}},
			expected: `PUT t {"a": $a}`,
			values:   map[string]any{"$a": 1},
		},
		{
			name:     "$set nested paths merge into one object",
			update:   schema.D{{Key: OpSet, Value: schema.D{{Key: "a.b", Value: 1}, {Key: "a.c", Value: "x"}, {Key: "d", Value: true}}}},
			expected: `PUT t {"a": {"b": $a_b, "c": $a_c}, "d": $d}`,
			values:   map[string]any{"$a_b": 1, "$a_c": "x", "$d": true},
		},
		{
			name:     "$set array element",
			update:   schema.D{{Key: OpSet, Value: schema.D{{Key: "arr.0", Value: "x"}}}},
			expected: `SET t."arr"[0] = $arr_0`,
			values:   map[string]any{"$arr_0": "x"},
		},
		{
			name:     "$set mixes plain and indexed paths",
			update:   schema.D{{Key: OpSet, Value: schema.D{{Key: "arr.1", Value: 2}, {Key: "x", Value: 1}}}},
			expected: `PUT t {"x": $x}, SET t."arr"[1] = $arr_1`,
			values:   map[string]any{"$x": 1, "$arr_1": 2},
		},
		{
			name:     "$set date is stored as a string",
			update:   schema.D{{Key: OpSet, Value: schema.D{{Key: "at", Value: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}}}},
			expected: `PUT t {"at": $at}`,
			values:   map[string]any{"$at": "2024-01-02T03:04:05.000Z"},
		},
		{
			name:     "$unset",
			update:   schema.D{{Key: OpUnset, Value: schema.D{{Key: "a", Value: ""}, {Key: "b.c", Value: 1}}}},
			expected: `REMOVE t."a", REMOVE t."b"."c"`,
			values:   map[string]any{},
		},
		{
			name:     "$currentDate",
			update:   schema.D{{Key: OpCurrentDate, Value: schema.D{{Key: "at", Value: true}, {Key: "meta.seen", Value: schema.D{{Key: "$type", Value: "date"}}}}}},
			expected: `PUT t {"at": cast(current_time() AS STRING), "meta": {"seen": cast(current_time() AS STRING)}}`,
			values:   map[string]any{},
		},
		{
			name:     "$inc",
			update:   schema.D{{Key: OpInc, Value: schema.D{{Key: "n", Value: 5}}}},
			expected: `SET t."n" = t."n" + 5`,
			values:   map[string]any{},
		},
		{
			name:     "$mul",
			update:   schema.D{{Key: OpMul, Value: schema.D{{Key: "p", Value: 1.5}}}},
			expected: `SET t."p" = t."p" * 1.5`,
			values:   map[string]any{},
		},
		{
			name:     "$min",
			update:   schema.D{{Key: OpMin, Value: schema.D{{Key: "n", Value: 3}}}},
			expected: `SET t."n" = CASE WHEN t."n" > 3 THEN 3 ELSE t."n" END`,
			values:   map[string]any{},
		},
		{
			name:     "$max on a string",
			update:   schema.D{{Key: OpMax, Value: schema.D{{Key: "s", Value: "b"}}}},
			expected: `SET t."s" = CASE WHEN t."s" < "b" THEN "b" ELSE t."s" END`,
			values:   map[string]any{},
		},
		{
			name:     "$max on a date",
			update:   schema.D{{Key: OpMax, Value: schema.D{{Key: "at", Value: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}}}},
			expected: `SET t."at" = CASE WHEN t."at" < "2024-01-02T00:00:00.000Z" THEN "2024-01-02T00:00:00.000Z" ELSE t."at" END`,
			values:   map[string]any{},
		},
		{
			name:     "$rename top-level",
			update:   schema.D{{Key: OpRename, Value: schema.D{{Key: "old", Value: "new"}}}},
			expected: `PUT t {"new": t."old"}, REMOVE t."old"`,
			values:   map[string]any{},
		},
		{
			name:     "$rename nested",
			update:   schema.D{{Key: OpRename, Value: schema.D{{Key: "a.b", Value: "a.c"}}}},
			expected: `PUT t."a" {"c": t."a"."b"}, REMOVE t."a"."b"`,
			values:   map[string]any{},
		},
		{
			name:     "$rename nested with a bare new name",
			update:   schema.D{{Key: OpRename, Value: schema.D{{Key: "a.b", Value: "c"}}}},
			expected: `PUT t."a" {"c": t."a"."b"}, REMOVE t."a"."b"`,
			values:   map[string]any{},
		},
		{
			name: "operators apply in document order",
			update: schema.D{
				{Key: OpInc, Value: schema.D{{Key: "n", Value: 1}}},
				{Key: OpSet, Value: schema.D{{Key: "a", Value: 1}}},
				{Key: OpUnset, Value: schema.D{{Key: "z", Value: 1}}},
			},
			expected: `SET t."n" = t."n" + 1, PUT t {"a": $a}, REMOVE t."z"`,
			values:   map[string]any{"$a": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bindings := NewBindingTable()
			text, err := NewUpdateCompiler(nil, bindings, nil).Compile(tt.update)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, text)
			assert.Equal(t, tt.values, bindings.Values())
		})
	}
}

func TestUpdateCompiler_Errors(t *testing.T) {
	tests := []struct {
		name        string
		update      any
		unsupported bool
	}{
		{name: "unknown operator", update: schema.D{{Key: "$push", Value: schema.D{{Key: "a", Value: 1}}}}, unsupported: true},
		{name: "not a document", update: []any{1}},
		{name: "empty update", update: schema.D{}},
		{name: "plain field at the top level", update: schema.D{{Key: "a", Value: 1}}},
		{name: "operand is not a document", update: schema.D{{Key: OpSet, Value: 1}}},
		{name: "$set identity", update: schema.D{{Key: OpSet, Value: schema.D{{Key: "_id", Value: 1}}}}},
		{name: "$set key column", update: schema.D{{Key: OpSet, Value: schema.D{{Key: "id", Value: 1}}}}},
		{name: "$set conflicting paths", update: schema.D{{Key: OpSet, Value: schema.D{{Key: "a", Value: 1}, {Key: "a.b", Value: 2}}}}},
		{name: "$inc with a string", update: schema.D{{Key: OpInc, Value: schema.D{{Key: "n", Value: "1"}}}}},
		{name: "$min with a document", update: schema.D{{Key: OpMin, Value: schema.D{{Key: "n", Value: schema.D{}}}}}},
		{name: "$currentDate with a string", update: schema.D{{Key: OpCurrentDate, Value: schema.D{{Key: "at", Value: "now"}}}}},
		{name: "$rename across nesting levels", update: schema.D{{Key: OpRename, Value: schema.D{{Key: "a.b", Value: "c.d"}}}}},
		{name: "$rename array element", update: schema.D{{Key: OpRename, Value: schema.D{{Key: "a.0", Value: "b"}}}}},
		{name: "$rename onto the identity", update: schema.D{{Key: OpRename, Value: schema.D{{Key: "a", Value: "_id"}}}}},
		{name: "$rename to nothing", update: schema.D{{Key: OpRename, Value: schema.D{{Key: "a", Value: ""}}}}},
		{name: "only empty operators", update: schema.D{{Key: OpSet, Value: schema.D{}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewUpdateCompiler(nil, NewBindingTable(), nil).Compile(tt.update)
			require.Error(t, err)
			if tt.unsupported {
				assert.ErrorIs(t, err, ErrUnsupportedOperator)
				assert.Contains(t, err.Error(), "$push")
				return
			}
			assert.ErrorIs(t, err, ErrInvalidUpdate)
		})
	}
}

func TestUpdateCompiler_CompositeKeyColumnsAreProtected(t *testing.T) {
	_, err := NewUpdateCompiler(compositeKeys, NewBindingTable(), nil).Compile(
		schema.D{{Key: OpInc, Value: schema.D{{Key: "tenant", Value: 1}}}})
	assert.ErrorIs(t, err, ErrInvalidUpdate)
}

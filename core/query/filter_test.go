package query

import (
	"regexp"
	"testing"

	"github.com/asaidimu/go-docstore/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var compositeKeys = schema.NewCompositeKey([]string{"tenant", "user"}, nil)

func compileFilter(t *testing.T, keys *schema.KeySchema, filter any) (string, *BindingTable) {
	t.Helper()
	bindings := NewBindingTable()
	text, err := CompileFilter(filter, keys, bindings)
	require.NoError(t, err)
	return text, bindings
}

func TestCompileFilter(t *testing.T) {
	tests := []struct {
		name     string
		keys     *schema.KeySchema
		filter   any
		expected string
		values   map[string]any
	}{
		{
			name:     "nil filter",
			filter:   nil,
			expected: "",
			values:   map[string]any{},
		},
		{
			name:     "empty filter",
			filter:   schema.D{},
			expected: "",
			values:   map[string]any{},
		},
		{
			name:     "scalar equality flattens",
			filter:   schema.D{{Key: "name", Value: "al"}},
			expected: `t."name"[] =any $name`,
			values:   map[string]any{"$name": "al"},
		},
		{
			name:     "nested path with array index",
			filter:   schema.D{{Key: "a.b.0", Value: "x"}},
			expected: `t."a"."b"[0][] =any $a_b_0`,
			values:   map[string]any{"$a_b_0": "x"},
		},
		{
			name:     "null equality tests absence",
			filter:   schema.D{{Key: "a", Value: nil}},
			expected: `NOT (EXISTS t."a")`,
			values:   map[string]any{},
		},
		{
			name:     "document equality is exact",
			filter:   schema.D{{Key: "addr", Value: schema.D{{Key: "city", Value: "Nairobi"}}}},
			expected: `t."addr" = $addr`,
			values:   map[string]any{"$addr": map[string]any{"city": "Nairobi"}},
		},
		{
			name:     "two fields AND-join",
			filter:   schema.D{{Key: "a", Value: 1}, {Key: "b", Value: true}},
			expected: `(t."a"[] =any $a AND t."b"[] =any $b)`,
			values:   map[string]any{"$a": 1, "$b": true},
		},
		{
			name:     "range on one field",
			filter:   schema.D{{Key: "a", Value: schema.D{{Key: OpGt, Value: 1}, {Key: OpLt, Value: 5}}}},
			expected: `(t."a"[] >any $a AND t."a"[] <any $a_1)`,
			values:   map[string]any{"$a": 1, "$a_1": 5},
		},
		{
			name: "$and of two comparisons on one path",
			filter: schema.D{{Key: OpAnd, Value: []any{
				schema.D{{Key: "a", Value: schema.D{{Key: OpGt, Value: 1}}}},
				schema.D{{Key: "a", Value: schema.D{{Key: OpLt, Value: 5}}}},
			}}},
			expected: `(t."a"[] >any $a AND t."a"[] <any $a_1)`,
			values:   map[string]any{"$a": 1, "$a_1": 5},
		},
		{
			name: "$or",
			filter: schema.D{{Key: OpOr, Value: []any{
				schema.D{{Key: "a", Value: 1}},
				schema.D{{Key: "b", Value: 2}},
			}}},
			expected: `(t."a"[] =any $a OR t."b"[] =any $b)`,
			values:   map[string]any{"$a": 1, "$b": 2},
		},
		{
			name: "$nor",
			filter: schema.D{{Key: OpNor, Value: []any{
				schema.D{{Key: "a", Value: 1}},
				schema.D{{Key: "b", Value: 2}},
			}}},
			expected: `NOT (t."a"[] =any $a OR t."b"[] =any $b)`,
			values:   map[string]any{"$a": 1, "$b": 2},
		},
		{
			name:     "$not with one child",
			filter:   schema.D{{Key: OpNot, Value: schema.D{{Key: "a", Value: 1}}}},
			expected: `NOT (t."a"[] =any $a)`,
			values:   map[string]any{"$a": 1},
		},
		{
			name: "$not with an array of children",
			filter: schema.D{{Key: OpNot, Value: []any{
				schema.D{{Key: "a", Value: 1}},
				schema.D{{Key: "b", Value: 2}},
			}}},
			expected: `NOT (t."a"[] =any $a AND t."b"[] =any $b)`,
			values:   map[string]any{"$a": 1, "$b": 2},
		},
		{
			name:     "$not over an empty $in contributes nothing",
			filter:   schema.D{{Key: OpNot, Value: schema.D{{Key: "a", Value: schema.D{{Key: OpIn, Value: []any{}}}}}}, {Key: "b", Value: 1}},
			expected: `t."b"[] =any $b`,
			values:   map[string]any{"$b": 1},
		},
		{
			name:     "$not over an empty document contributes nothing",
			filter:   schema.D{{Key: OpNot, Value: schema.D{}}},
			expected: ``,
			values:   map[string]any{},
		},
		{
			name: "$not drops children that add no predicate",
			filter: schema.D{{Key: OpNot, Value: []any{
				schema.D{{Key: "a", Value: schema.D{{Key: OpIn, Value: []any{}}}}},
				schema.D{{Key: "b", Value: 2}},
			}}},
			expected: `NOT (t."b"[] =any $b)`,
			values:   map[string]any{"$b": 2},
		},
		{
			name:     "empty child document matches all",
			filter:   schema.D{{Key: OpOr, Value: []any{schema.D{}, schema.D{{Key: "a", Value: 1}}}}},
			expected: `(true OR t."a"[] =any $a)`,
			values:   map[string]any{"$a": 1},
		},
		{
			name:     "$ne",
			filter:   schema.D{{Key: "a", Value: schema.D{{Key: OpNe, Value: "x"}}}},
			expected: `NOT (t."a"[] =any $a)`,
			values:   map[string]any{"$a": "x"},
		},
		{
			name:     "$ne null tests presence",
			filter:   schema.D{{Key: "a", Value: schema.D{{Key: OpNe, Value: nil}}}},
			expected: `EXISTS t."a"`,
			values:   map[string]any{},
		},
		{
			name:     "$eq with a document operand",
			filter:   schema.D{{Key: "a", Value: schema.D{{Key: OpEq, Value: map[string]any{"x": 1}}}}},
			expected: `t."a" = $a`,
			values:   map[string]any{"$a": map[string]any{"x": 1}},
		},
		{
			name:     "$exists true",
			filter:   schema.D{{Key: "a", Value: schema.D{{Key: OpExists, Value: true}}}},
			expected: `EXISTS t."a"`,
			values:   map[string]any{},
		},
		{
			name:     "$exists false",
			filter:   schema.D{{Key: "a", Value: schema.D{{Key: OpExists, Value: false}}}},
			expected: `NOT (EXISTS t."a")`,
			values:   map[string]any{},
		},
		{
			name:     "$in with null",
			filter:   schema.D{{Key: "a", Value: schema.D{{Key: OpIn, Value: []any{1, nil, 2}}}}},
			expected: `(t."a"[] =any $a OR t."a"[] =any $a_1 OR NOT (EXISTS t."a"))`,
			values:   map[string]any{"$a": 1, "$a_1": 2},
		},
		{
			name:     "$in with only null",
			filter:   schema.D{{Key: "a", Value: schema.D{{Key: OpIn, Value: []any{nil}}}}},
			expected: `NOT (EXISTS t."a")`,
			values:   map[string]any{},
		},
		{
			name:     "empty $in contributes nothing",
			filter:   schema.D{{Key: "a", Value: schema.D{{Key: OpIn, Value: []any{}}}}, {Key: "b", Value: 1}},
			expected: `t."b"[] =any $b`,
			values:   map[string]any{"$b": 1},
		},
		{
			name:     "$nin",
			filter:   schema.D{{Key: "a", Value: schema.D{{Key: OpNin, Value: []string{"x", "y"}}}}},
			expected: `NOT (t."a"[] =any $a OR t."a"[] =any $a_1)`,
			values:   map[string]any{"$a": "x", "$a_1": "y"},
		},
		{
			name:     "$regex with $options",
			filter:   schema.D{{Key: "name", Value: schema.D{{Key: OpRegex, Value: "^al"}, {Key: OpOptions, Value: "ix"}}}},
			expected: `regex_like(t."name", $name, "i")`,
			values:   map[string]any{"$name": "^al"},
		},
		{
			name:     "$regex without options",
			filter:   schema.D{{Key: "name", Value: schema.D{{Key: OpRegex, Value: "^al"}}}},
			expected: `regex_like(t."name", $name)`,
			values:   map[string]any{"$name": "^al"},
		},
		{
			name:     "inline regex value",
			filter:   schema.D{{Key: "name", Value: Regex{Pattern: "a.b", Options: "si"}}},
			expected: `regex_like(t."name", $name, "is")`,
			values:   map[string]any{"$name": "a.b"},
		},
		{
			name:     "compiled regexp value",
			filter:   schema.D{{Key: "name", Value: regexp.MustCompile("^x")}},
			expected: `regex_like(t."name", $name)`,
			values:   map[string]any{"$name": "^x"},
		},
		{
			name:     "field $not with regex",
			filter:   schema.D{{Key: "name", Value: schema.D{{Key: OpNot, Value: Regex{Pattern: "^x"}}}}},
			expected: `NOT (regex_like(t."name", $name))`,
			values:   map[string]any{"$name": "^x"},
		},
		{
			name:     "field $not with operators",
			filter:   schema.D{{Key: "age", Value: schema.D{{Key: OpNot, Value: schema.D{{Key: OpGt, Value: 5}}}}}},
			expected: `NOT (t."age"[] >any $age)`,
			values:   map[string]any{"$age": 5},
		},
		{
			name:     "$size embeds the literal",
			filter:   schema.D{{Key: "tags", Value: schema.D{{Key: OpSize, Value: 3}}}},
			expected: `size(t."tags") = 3`,
			values:   map[string]any{},
		},
		{
			name:     "simple identity",
			filter:   schema.D{{Key: "_id", Value: "abc"}},
			expected: `t."id" = $id`,
			values:   map[string]any{"$id": "abc"},
		},
		{
			name:     "simple identity is stringified",
			filter:   map[string]any{"_id": 42},
			expected: `t."id" = $id`,
			values:   map[string]any{"$id": "42"},
		},
		{
			name:     "identity with operators uses the key column",
			filter:   schema.D{{Key: "_id", Value: schema.D{{Key: OpIn, Value: []any{"a", 7}}}}},
			expected: `(t."id" = $id OR t."id" = $id_1)`,
			values:   map[string]any{"$id": "a", "$id_1": "7"},
		},
		{
			name:     "identity combined with another field",
			filter:   schema.D{{Key: "_id", Value: "abc"}, {Key: "v", Value: 2}},
			expected: `(t."id" = $id AND t."v"[] =any $v)`,
			values:   map[string]any{"$id": "abc", "$v": 2},
		},
		{
			name:     "custom key column",
			keys:     schema.NewSimpleKey("pk"),
			filter:   schema.D{{Key: "_id", Value: "abc"}},
			expected: `t."pk" = $pk`,
			values:   map[string]any{"$pk": "abc"},
		},
		{
			name:     "composite identity with every key field",
			keys:     compositeKeys,
			filter:   schema.D{{Key: "_id", Value: schema.D{{Key: "user", Value: "u1"}, {Key: "tenant", Value: "t1"}}}},
			expected: `(t."tenant" = $tenant AND t."user" = $user)`,
			values:   map[string]any{"$tenant": "t1", "$user": "u1"},
		},
		{
			name:     "composite identity skips absent key fields",
			keys:     compositeKeys,
			filter:   schema.D{{Key: "_id", Value: map[string]any{"tenant": "t1"}}},
			expected: `t."tenant" = $tenant`,
			values:   map[string]any{"$tenant": "t1"},
		},
		{
			name:     "composite identity subfield with operators",
			keys:     compositeKeys,
			filter:   schema.D{{Key: "_id.user", Value: schema.D{{Key: OpGt, Value: "m"}}}},
			expected: `t."user" > $user`,
			values:   map[string]any{"$user": "m"},
		},
		{
			name:     "composite key column addressed directly",
			keys:     compositeKeys,
			filter:   schema.D{{Key: "_id.tenant", Value: "t1"}},
			expected: `t."tenant" = $tenant`,
			values:   map[string]any{"$tenant": "t1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, bindings := compileFilter(t, tt.keys, tt.filter)
			assert.Equal(t, tt.expected, text)
			assert.Equal(t, tt.values, bindings.Values())
		})
	}
}

func TestCompileFilter_InWithNullAddsOneExistenceBranch(t *testing.T) {
	for n := 0; n <= 4; n++ {
		items := []any{nil}
		for i := 0; i < n; i++ {
			items = append(items, i)
		}
		expr, err := NewFilterCompiler(nil, NewBindingTable(), nil).Compile(schema.D{{Key: "a", Value: schema.D{{Key: OpIn, Value: items}}}})
		require.NoError(t, err)

		terms := []Expr{expr}
		if j, ok := expr.(Junction); ok {
			assert.Equal(t, "OR", j.Op)
			terms = j.Terms
		}
		require.Len(t, terms, n+1)
		assert.Equal(t, Not{X: Exists{X: FieldColumn("a", false)}}, terms[n])
		for _, term := range terms[:n] {
			assert.IsType(t, Binary{}, term)
		}
	}
}

func TestCompileFilter_BindingTypes(t *testing.T) {
	_, bindings := compileFilter(t, nil, schema.D{
		{Key: "s", Value: "x"},
		{Key: "n", Value: 2.5},
		{Key: "b", Value: false},
		{Key: "o", Value: schema.D{{Key: "k", Value: 1}}},
	})
	assert.Equal(t, "DECLARE $s STRING; $n NUMBER; $b BOOLEAN; $o JSON; ", bindings.Declarations())
}

func TestCompileFilter_ObjectIDIdentity(t *testing.T) {
	id := schema.NewObjectID()
	keys := schema.NewSimpleKey("id")
	bindings := NewBindingTable()
	values := schema.NewRowMarshaller(keys, schema.MarshalOptions{TagObjectIDs: true})

	expr, err := NewFilterCompiler(keys, bindings, values).Compile(schema.D{{Key: "_id", Value: id}})
	require.NoError(t, err)
	assert.Equal(t, `t."id" = $id`, Render(expr))

	v, ok := bindings.Get("$id")
	require.True(t, ok)
	assert.Equal(t, schema.ObjectIDTag+id.Hex(), v)
}

func TestCompileFilter_Errors(t *testing.T) {
	tests := []struct {
		name        string
		keys        *schema.KeySchema
		filter      any
		unsupported bool
	}{
		{name: "filter is not a document", filter: "name"},
		{name: "unknown top-level operator", filter: schema.D{{Key: "$where", Value: "1"}}},
		{name: "unknown field operator", filter: schema.D{{Key: "a", Value: schema.D{{Key: "$near", Value: 1}}}}, unsupported: true},
		{name: "$or needs an array", filter: schema.D{{Key: OpOr, Value: schema.D{{Key: "a", Value: 1}}}}},
		{name: "$and needs a non-empty array", filter: schema.D{{Key: OpAnd, Value: []any{}}}},
		{name: "$or child must be a document", filter: schema.D{{Key: OpOr, Value: []any{"x"}}}},
		{name: "$in needs an array", filter: schema.D{{Key: "a", Value: schema.D{{Key: OpIn, Value: 1}}}}},
		{name: "$exists needs a boolean", filter: schema.D{{Key: "a", Value: schema.D{{Key: OpExists, Value: "yes"}}}}},
		{name: "$size must be a non-negative integer", filter: schema.D{{Key: "a", Value: schema.D{{Key: OpSize, Value: -1}}}}},
		{name: "$options without $regex", filter: schema.D{{Key: "a", Value: schema.D{{Key: OpOptions, Value: "i"}}}}},
		{name: "$regex with a number", filter: schema.D{{Key: "a", Value: schema.D{{Key: OpRegex, Value: 5}}}}},
		{name: "comparison against a document", filter: schema.D{{Key: "a", Value: schema.D{{Key: OpGt, Value: schema.D{{Key: "x", Value: 1}}}}}}},
		{name: "null identity", filter: schema.D{{Key: "_id", Value: nil}}},
		{name: "empty field path", filter: schema.D{{Key: "", Value: 1}}},
		{name: "composite identity must be a document", keys: compositeKeys, filter: schema.D{{Key: "_id", Value: "x"}}},
		{name: "composite identity with a foreign field", keys: compositeKeys, filter: schema.D{{Key: "_id", Value: schema.D{{Key: "other", Value: 1}}}}},
		{name: "composite identity with no key field", keys: compositeKeys, filter: schema.D{{Key: "_id", Value: schema.D{}}}},
		{name: "composite identity with operators", keys: compositeKeys, filter: schema.D{{Key: "_id", Value: schema.D{{Key: OpIn, Value: []any{"a"}}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileFilter(tt.filter, tt.keys, NewBindingTable())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidFilter)
			if tt.unsupported {
				assert.ErrorIs(t, err, ErrUnsupportedOperator)
			}
		})
	}
}

func TestCompileFilter_ErrorNamesFragment(t *testing.T) {
	_, err := CompileFilter(schema.D{{Key: "$where", Value: "sleep"}}, nil, NewBindingTable())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$where")
	assert.Contains(t, err.Error(), "sleep")
}

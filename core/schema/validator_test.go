package schema

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profileSchema() *SchemaDefinition {
	required := true
	str := FieldTypeString
	obj := FieldTypeObject
	return &SchemaDefinition{
		Name: "profiles",
		Fields: map[string]*FieldDefinition{
			"name":   {Name: "name", Type: FieldTypeString, Required: &required},
			"age":    {Name: "age", Type: FieldTypeInteger},
			"score":  {Name: "score", Type: FieldTypeNumber},
			"active": {Name: "active", Type: FieldTypeBoolean},
			"joined": {Name: "joined", Type: FieldTypeDate},
			"ref":    {Name: "ref", Type: FieldTypeObjectID},
			"plan":   {Name: "plan", Type: FieldTypeEnum, Values: []any{"free", "pro"}},
			"tags":   {Name: "tags", Type: FieldTypeSet, ItemsType: &str},
			"address": {Name: "address", Type: FieldTypeObject, Fields: map[string]*FieldDefinition{
				"city": {Name: "city", Type: FieldTypeString, Required: &required},
			}},
			"contacts": {Name: "contacts", Type: FieldTypeArray, ItemsType: &obj, Fields: map[string]*FieldDefinition{
				"email": {Name: "email", Type: FieldTypeString},
			}},
		},
	}
}

func TestValidator_Validate(t *testing.T) {
	tests := []struct {
		name  string
		doc   map[string]any
		loose bool
		codes []string
		paths []string
	}{
		{
			name: "valid",
			doc: map[string]any{
				"name":     "al",
				"age":      json.Number("30"),
				"score":    1.5,
				"active":   true,
				"joined":   "2024-01-02T03:04:05Z",
				"ref":      NewObjectID(),
				"plan":     "pro",
				"tags":     []any{"a", "b"},
				"address":  D{{Key: "city", Value: "Nairobi"}},
				"contacts": []any{map[string]any{"email": "a@b.c"}},
				"extra":    "undeclared fields are allowed",
			},
		},
		{
			name: "null values are accepted",
			doc:  map[string]any{"name": "al", "age": nil},
		},
		{
			name:  "missing required",
			doc:   map[string]any{"age": 3},
			codes: []string{IssueRequiredFieldMissing},
			paths: []string{"name"},
		},
		{
			name:  "loose ignores missing required",
			doc:   map[string]any{"age": 3},
			loose: true,
		},
		{
			name:  "type mismatches",
			doc:   map[string]any{"name": 1, "age": 2.5, "joined": "yesterday", "ref": "nope"},
			codes: []string{IssueTypeMismatch, IssueTypeMismatch, IssueTypeMismatch, IssueTypeMismatch},
			paths: []string{"age", "joined", "name", "ref"},
		},
		{
			name:  "enum",
			doc:   map[string]any{"name": "al", "plan": "gold"},
			codes: []string{IssueInvalidEnumValue},
			paths: []string{"plan"},
		},
		{
			name:  "set uniqueness",
			doc:   map[string]any{"name": "al", "tags": []any{"a", "b", "a"}},
			codes: []string{IssueDuplicateSetItem},
			paths: []string{"tags[2]"},
		},
		{
			name:  "nested object",
			doc:   map[string]any{"name": "al", "address": map[string]any{"zip": "00100"}},
			codes: []string{IssueRequiredFieldMissing},
			paths: []string{"address.city"},
		},
		{
			name:  "array items",
			doc:   map[string]any{"name": "al", "contacts": []any{map[string]any{"email": 5}, "x"}},
			codes: []string{IssueTypeMismatch, IssueTypeMismatch},
			paths: []string{"contacts[0].email", "contacts[1]"},
		},
	}

	v := NewValidator(profileSchema())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, issues := v.Validate(tt.doc, tt.loose)
			assert.Equal(t, len(tt.codes) == 0, ok)
			var codes, paths []string
			for _, issue := range issues {
				codes = append(codes, issue.Code)
				paths = append(paths, issue.Path)
			}
			assert.Equal(t, tt.codes, codes)
			assert.Equal(t, tt.paths, paths)
		})
	}
}

func TestValidator_Check(t *testing.T) {
	v := NewValidator(profileSchema())

	require.NoError(t, v.Check(map[string]any{"name": "al", "joined": time.Now()}))

	err := v.Check(map[string]any{"plan": "gold"})
	require.ErrorIs(t, err, ErrInvalidDocument)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Issues, 2)
	assert.Contains(t, err.Error(), "required field 'name' is missing")
}

func TestLooseEqual(t *testing.T) {
	assert.True(t, looseEqual(1, 1.0))
	assert.True(t, looseEqual(json.Number("2"), int64(2)))
	assert.False(t, looseEqual("1", 1))
	assert.True(t, looseEqual([]any{"a"}, []any{"a"}))
}

package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"
)

// ErrInvalidDocument matches every *ValidationError.
var ErrInvalidDocument = errors.New("document does not match its catalog")

// Issue codes reported by Validator.
const (
	IssueRequiredFieldMissing = "REQUIRED_FIELD_MISSING"
	IssueTypeMismatch         = "TYPE_MISMATCH"
	IssueInvalidEnumValue     = "INVALID_ENUM_VALUE"
	IssueDuplicateSetItem     = "DUPLICATE_SET_ITEM"
)

// Issue is one problem found in a document.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// ValidationError carries the issues of a rejected document.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Message
	}
	return fmt.Sprintf("%s: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidDocument
}

// Validator checks documents against the field types a catalog declares.
// Fields the catalog does not declare are accepted: a catalog describes a
// JSON collection, it does not close it.
type Validator struct {
	schema *SchemaDefinition
}

// NewValidator creates a validator for def. It keeps no per-call state and
// may be shared.
func NewValidator(def *SchemaDefinition) *Validator {
	return &Validator{schema: def}
}

// Validate reports whether data conforms, and the issues found when it does
// not. loose ignores missing required fields, for partial documents.
func (v *Validator) Validate(data map[string]any, loose bool) (bool, []Issue) {
	var issues []Issue
	v.validateFields(data, v.schema.Fields, "", loose, &issues)
	return len(issues) == 0, issues
}

// Check is Validate returning a *ValidationError.
func (v *Validator) Check(data map[string]any) error {
	if ok, issues := v.Validate(data, false); !ok {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func (v *Validator) validateFields(data map[string]any, fields map[string]*FieldDefinition, path string, loose bool, issues *[]Issue) {
	for _, name := range SortedFieldNames(fields) {
		def := fields[name]
		fieldPath := buildPath(path, name)
		value, exists := data[name]
		if !exists {
			if !loose && def.Required != nil && *def.Required {
				*issues = append(*issues, Issue{
					Code:    IssueRequiredFieldMissing,
					Message: fmt.Sprintf("required field '%s' is missing", fieldPath),
					Path:    fieldPath,
				})
			}
			continue
		}
		v.validateValue(value, def, fieldPath, loose, issues)
	}
}

func (v *Validator) validateValue(value any, def *FieldDefinition, path string, loose bool, issues *[]Issue) {
	if value == nil {
		return
	}
	if !matchesType(value, def.Type) {
		*issues = append(*issues, Issue{
			Code:    IssueTypeMismatch,
			Message: fmt.Sprintf("field '%s' expected %s, got %T", path, def.Type, value),
			Path:    path,
		})
		return
	}

	switch def.Type {
	case FieldTypeEnum:
		if len(def.Values) > 0 && !slices.ContainsFunc(def.Values, func(allowed any) bool { return looseEqual(allowed, value) }) {
			*issues = append(*issues, Issue{
				Code:    IssueInvalidEnumValue,
				Message: fmt.Sprintf("field '%s' value %v is not one of %v", path, value, def.Values),
				Path:    path,
			})
		}
	case FieldTypeObject:
		if len(def.Fields) > 0 {
			v.validateFields(asMap(value), def.Fields, path, loose, issues)
		}
	case FieldTypeArray, FieldTypeSet:
		items := asSlice(value)
		if def.Type == FieldTypeSet {
			for i := range items {
				for j := 0; j < i; j++ {
					if looseEqual(items[i], items[j]) {
						*issues = append(*issues, Issue{
							Code:    IssueDuplicateSetItem,
							Message: fmt.Sprintf("field '%s' repeats item %v", path, items[i]),
							Path:    fmt.Sprintf("%s[%d]", path, i),
						})
						break
					}
				}
			}
		}
		if def.ItemsType == nil {
			return
		}
		item := &FieldDefinition{Type: *def.ItemsType, Fields: def.Fields}
		for i, x := range items {
			v.validateValue(x, item, fmt.Sprintf("%s[%d]", path, i), loose, issues)
		}
	}
}

func matchesType(value any, t FieldType) bool {
	switch t {
	case FieldTypeString:
		_, ok := value.(string)
		return ok
	case FieldTypeNumber, FieldTypeDecimal:
		return isNumeric(value)
	case FieldTypeInteger:
		return isInteger(value)
	case FieldTypeBoolean:
		_, ok := value.(bool)
		return ok
	case FieldTypeDate:
		switch d := value.(type) {
		case time.Time:
			return true
		case string:
			_, err := time.Parse(time.RFC3339Nano, d)
			return err == nil
		}
		return false
	case FieldTypeObjectID:
		switch id := value.(type) {
		case ObjectID:
			return true
		case string:
			return IsObjectIDHex(id)
		}
		return false
	case FieldTypeArray, FieldTypeSet:
		return asSlice(value) != nil
	case FieldTypeObject, FieldTypeRecord:
		return asMap(value) != nil
	}
	// Enums and unknown types accept any value; enums check Values separately.
	return true
}

func isNumeric(value any) bool {
	switch value.(type) {
	case json.Number:
		return true
	}
	switch reflect.ValueOf(value).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isInteger(value any) bool {
	switch n := value.(type) {
	case json.Number:
		_, err := n.Int64()
		return err == nil
	case float64:
		return n == float64(int64(n))
	case float32:
		return n == float32(int64(n))
	}
	return isNumeric(value)
}

func asMap(value any) map[string]any {
	switch m := value.(type) {
	case map[string]any:
		return m
	case Document:
		return m
	case D:
		return m.Map()
	}
	return nil
}

func asSlice(value any) []any {
	if s, ok := value.([]any); ok {
		return s
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// looseEqual compares scalars by value so that 1, 1.0 and json.Number("1")
// are the same enum member or set item.
func looseEqual(a, b any) bool {
	if isNumeric(a) && isNumeric(b) {
		return numericValue(a) == numericValue(b)
	}
	return reflect.DeepEqual(a, b)
}

func numericValue(v any) float64 {
	if n, ok := v.(json.Number); ok {
		f, _ := n.Float64()
		return f
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		return float64(rv.Int())
	case rv.CanUint():
		return float64(rv.Uint())
	case rv.CanFloat():
		return rv.Float()
	}
	return 0
}

func buildPath(base, field string) string {
	if base == "" {
		return field
	}
	return base + "." + field
}

package schema

import (
	"sort"
	"strings"
)

// FindField resolves a dot-separated path against the declared fields,
// descending into nested object and array-item declarations.
func (s *SchemaDefinition) FindField(path string) *FieldDefinition {
	if s == nil {
		return nil
	}
	fields := s.Fields
	var found *FieldDefinition
	for _, segment := range strings.Split(path, ".") {
		if fields == nil {
			return nil
		}
		found = fields[segment]
		if found == nil {
			return nil
		}
		fields = found.Fields
	}
	return found
}

// SortedFieldNames returns the keys of a field map in lexical order.
func SortedFieldNames(fields map[string]*FieldDefinition) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

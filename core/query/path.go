package query

import (
	"strconv"
	"strings"

	"github.com/asaidimu/go-docstore/core/schema"
)

const (
	// TableAlias is the alias every generated statement gives its table.
	TableAlias = "t"
	// ContextRoot is the implicit element variable of seq_transform.
	ContextRoot = "$"
	// PathReference marks a string operand as a field reference in projections.
	PathReference = "$"
)

// ParsePath splits a dot-notation path. Pure-digit segments are array indices.
func ParsePath(path string) []Segment {
	parts := strings.Split(path, ".")
	segments := make([]Segment, 0, len(parts))
	for _, p := range parts {
		if isDigits(p) {
			n, err := strconv.Atoi(p)
			if err == nil {
				segments = append(segments, Segment{Index: n, IsIndex: true})
				continue
			}
		}
		segments = append(segments, Segment{Name: p})
	}
	return segments
}

// FieldColumn translates a document path into a column rooted at the table alias.
func FieldColumn(path string, flatten bool) Column {
	return Column{Root: TableAlias, Segments: ParsePath(path), Flatten: flatten}
}

// KeyColumn references a physical key column.
func KeyColumn(column string) Column {
	return Column{Root: TableAlias, Segments: []Segment{{Name: column}}}
}

// IdentityColumns returns the key columns the identity field maps to.
func IdentityColumns(keys *schema.KeySchema) []Column {
	cols := make([]Column, 0, len(keys.KeyColumns()))
	for _, c := range keys.KeyColumns() {
		cols = append(cols, KeyColumn(c))
	}
	return cols
}

// hasIndex reports whether a path addresses an array element.
func hasIndex(segments []Segment) bool {
	for _, s := range segments {
		if s.IsIndex {
			return true
		}
	}
	return false
}

// identitySubfield returns the key column an "_id.<field>" path names on a
// composite key.
func identitySubfield(keys *schema.KeySchema, path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, schema.IdentityField+".")
	if !ok || !keys.IsComposite || !keys.IsKeyColumn(rest) {
		return "", false
	}
	return rest, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

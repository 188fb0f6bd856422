package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/asaidimu/go-docstore/core/schema"
)

var indexPathPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*(\[\])?$`)

// IndexField is one indexed path and the direction it was requested with.
type IndexField struct {
	Path      string
	Direction SortDirection
}

// CreateTableSQL generates the DDL creating a JSON collection table keyed
// by keys.
func CreateTableSQL(table string, keys *schema.KeySchema) (string, error) {
	if err := ValidateTableName(table); err != nil {
		return "", err
	}
	if err := keys.Validate(); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("CREATE TABLE IF NOT EXISTS ")
	sb.WriteString(table)
	sb.WriteString(" (")
	for _, col := range keys.KeyColumns() {
		sb.WriteString(col)
		sb.WriteByte(' ')
		sb.WriteString(keys.ColumnType(col))
		sb.WriteString(", ")
	}

	shard := keys.ShardKeyFields
	if len(shard) == 0 {
		shard = keys.KeyColumns()[:1]
	}
	sb.WriteString("PRIMARY KEY(SHARD(")
	sb.WriteString(strings.Join(shard, ", "))
	sb.WriteByte(')')
	for _, col := range keys.KeyColumns()[len(shard):] {
		sb.WriteString(", ")
		sb.WriteString(col)
	}
	sb.WriteString(")) AS JSON COLLECTION")
	return sb.String(), nil
}

// DefaultIndexName derives an index name from its fields, e.g. age_1_name__1.
func DefaultIndexName(fields []IndexField) string {
	parts := make([]string, 0, 2*len(fields))
	for _, f := range fields {
		dir := "1"
		if f.Direction == SortDirectionDesc {
			dir = "-1"
		}
		parts = append(parts, f.Path, dir)
	}
	return sanitizeIndexName(strings.Join(parts, "_"))
}

// IndexName returns the name an index is created under: the sanitized
// name, or the default derived from fields when name is empty.
func IndexName(name string, fields []IndexField) string {
	if name == "" {
		return DefaultIndexName(fields)
	}
	return sanitizeIndexName(name)
}

func sanitizeIndexName(name string) string {
	var sb strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				sb.WriteString("idx_")
			}
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// CreateIndexSQL generates the DDL for a secondary index on JSON paths. The
// identity field indexes nothing, it is the primary key already.
func CreateIndexSQL(table, name string, fields []IndexField) (string, error) {
	if err := ValidateTableName(table); err != nil {
		return "", err
	}
	if len(fields) == 0 {
		return "", fmt.Errorf("index on %q has no fields", table)
	}
	name = IndexName(name, fields)

	paths := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Path == schema.IdentityField {
			return "", fmt.Errorf("cannot create a secondary index on %s", schema.IdentityField)
		}
		if !indexPathPattern.MatchString(f.Path) {
			return "", fmt.Errorf("invalid index path %q", f.Path)
		}
		paths = append(paths, f.Path+" AS ANYATOMIC")
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", name, table, strings.Join(paths, ", ")), nil
}

// DropIndexSQL generates the DDL removing an index.
func DropIndexSQL(table, name string) (string, error) {
	if err := ValidateTableName(table); err != nil {
		return "", err
	}
	if name == "" {
		return "", fmt.Errorf("index name is required")
	}
	return fmt.Sprintf("DROP INDEX IF EXISTS %s ON %s", sanitizeIndexName(name), table), nil
}

// ParseIndexKeys turns an index key document ({field: 1|-1}) into fields.
func ParseIndexKeys(keys any) ([]IndexField, error) {
	configs, err := ParseSort(keys)
	if err != nil {
		return nil, fmt.Errorf("invalid index keys: %w", err)
	}
	fields := make([]IndexField, len(configs))
	for i, cfg := range configs {
		fields[i] = IndexField{Path: cfg.Field, Direction: cfg.Direction}
	}
	return fields, nil
}

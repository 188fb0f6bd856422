package schema

import (
	"fmt"
	"slices"
)

const (
	// IdentityField is the document field holding the primary identifier.
	IdentityField = "_id"
	// VersionField is the document version field, never projected implicitly.
	VersionField = "__v"
	// DefaultKeyColumn is the physical column of a simple key.
	DefaultKeyColumn = "id"
	// DefaultKeyType is the declared type of key columns without an override.
	DefaultKeyType = "STRING"
)

// KeySchema describes the primary and shard key shape of a table. It is
// built once when the table is resolved and never mutated afterwards.
type KeySchema struct {
	IsComposite      bool              `json:"isComposite" yaml:"isComposite"`
	PrimaryKeyFields []string          `json:"primaryKeyFields" yaml:"primaryKeyFields"`
	ShardKeyFields   []string          `json:"shardKeyFields,omitempty" yaml:"shardKeyFields"`
	Types            map[string]string `json:"types,omitempty" yaml:"types"`
}

// NewSimpleKey returns a single string key stored in column.
func NewSimpleKey(column string) *KeySchema {
	if column == "" {
		column = DefaultKeyColumn
	}
	return &KeySchema{
		PrimaryKeyFields: []string{column},
		ShardKeyFields:   []string{column},
	}
}

// NewCompositeKey returns a multi-field key. When shard is empty the first
// primary field is the shard key.
func NewCompositeKey(primary []string, shard []string) *KeySchema {
	if len(shard) == 0 && len(primary) > 0 {
		shard = primary[:1]
	}
	return &KeySchema{
		IsComposite:      true,
		PrimaryKeyFields: slices.Clone(primary),
		ShardKeyFields:   slices.Clone(shard),
	}
}

// Validate checks that the key declares at least one field and that the
// shard fields are a prefix of the primary fields.
func (k *KeySchema) Validate() error {
	if len(k.PrimaryKeyFields) == 0 {
		return fmt.Errorf("key schema declares no primary key fields")
	}
	if !k.IsComposite && len(k.PrimaryKeyFields) != 1 {
		return fmt.Errorf("simple key must have exactly one field, got %d", len(k.PrimaryKeyFields))
	}
	if len(k.ShardKeyFields) > len(k.PrimaryKeyFields) {
		return fmt.Errorf("shard key has more fields than the primary key")
	}
	for i, f := range k.ShardKeyFields {
		if k.PrimaryKeyFields[i] != f {
			return fmt.Errorf("shard key field %q is not a prefix of the primary key", f)
		}
	}
	return nil
}

// KeyColumns returns the physical key columns in primary-key order.
func (k *KeySchema) KeyColumns() []string {
	return k.PrimaryKeyFields
}

// SimpleColumn returns the single key column of a simple key.
func (k *KeySchema) SimpleColumn() string {
	if len(k.PrimaryKeyFields) == 0 {
		return DefaultKeyColumn
	}
	return k.PrimaryKeyFields[0]
}

// IsShardKey reports whether field belongs to the shard key.
func (k *KeySchema) IsShardKey(field string) bool {
	return slices.Contains(k.ShardKeyFields, field)
}

// IsKeyColumn reports whether column is one of the primary key columns.
func (k *KeySchema) IsKeyColumn(column string) bool {
	return slices.Contains(k.PrimaryKeyFields, column)
}

// ColumnType returns the declared type of a key column.
func (k *KeySchema) ColumnType(column string) string {
	if t, ok := k.Types[column]; ok && t != "" {
		return t
	}
	return DefaultKeyType
}

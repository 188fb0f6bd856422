package schema

// FieldType represents the basic field types supported by the field catalog.
type FieldType string

const (
	FieldTypeString   FieldType = "string"   // Text data
	FieldTypeNumber   FieldType = "number"   // Numeric data
	FieldTypeInteger  FieldType = "integer"  // Numeric data
	FieldTypeDecimal  FieldType = "decimal"  // Numeric data
	FieldTypeBoolean  FieldType = "boolean"  // True/false values
	FieldTypeDate     FieldType = "date"     // Stored as an ISO-8601 string
	FieldTypeObjectID FieldType = "objectId" // 12-byte identifier
	FieldTypeArray    FieldType = "array"    // Ordered list of items
	FieldTypeSet      FieldType = "set"      // Unordered list with unique items
	FieldTypeEnum     FieldType = "enum"     // One out of a set of pre-defined items
	FieldTypeObject   FieldType = "object"   // Structured data with nested fields
	FieldTypeRecord   FieldType = "record"   // Unorganized key-value object, resolves to map[string]any
)

// IsScalar reports whether values of this type are selected as a single column
// rather than walked into.
func (t FieldType) IsScalar() bool {
	switch t {
	case FieldTypeArray, FieldTypeSet, FieldTypeObject:
		return false
	}
	return true
}

// IndexType represents index types for optimizing different query patterns.
type IndexType string

const (
	IndexTypeNormal  IndexType = "normal"  // General-purpose index
	IndexTypeUnique  IndexType = "unique"  // Unique index
	IndexTypePrimary IndexType = "primary" // Primary key index (implies unique)
)

// FieldDefinition defines a field within a schema, including its type and nesting.
type FieldDefinition struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
	// Required indicates if the field is mandatory.
	Required *bool `json:"required,omitempty"`
	// Default provides a default value for the field.
	Default any `json:"default,omitempty"`
	// Values specifies the allowed values for an 'enum' type field.
	Values []any `json:"values,omitempty"`
	// ItemsType specifies the type of items in 'array' or 'set' fields.
	ItemsType *FieldType `json:"itemsType,omitempty"`
	// Fields declares the nested fields of an 'object' field, or of the items
	// of an 'array' field whose ItemsType is 'object'.
	Fields map[string]*FieldDefinition `json:"fields,omitempty"`
	// Description provides a brief explanation of the field.
	Description *string `json:"description,omitempty"`
}

// IsEmbedded reports whether the field declares nested fields that a
// projection can walk into.
func (f *FieldDefinition) IsEmbedded() bool {
	return !f.Type.IsScalar() && len(f.Fields) > 0
}

// IsArray reports whether the field holds a sequence of values.
func (f *FieldDefinition) IsArray() bool {
	return f.Type == FieldTypeArray || f.Type == FieldTypeSet
}

// IndexDefinition defines a secondary index over one or more field paths.
type IndexDefinition struct {
	Fields      []string  `json:"fields"`
	Type        IndexType `json:"type"`
	Unique      *bool     `json:"unique,omitempty"`
	Description *string   `json:"description,omitempty"`
	Order       *string   `json:"order,omitempty"` // "asc" | "desc"
	Name        string    `json:"name"`
}

// SchemaDefinition is the field-type catalog of one collection. The compiler
// only needs Fields; the rest is carried for the catalog store.
type SchemaDefinition struct {
	Name        string                      `json:"name"`
	Version     string                      `json:"version"`
	Description *string                     `json:"description,omitempty"`
	Fields      map[string]*FieldDefinition `json:"fields"` // Map of field names to FieldDefinition
	Indexes     []IndexDefinition           `json:"indexes,omitempty"`
	// Key overrides the table's key schema when the table is created.
	Key      *KeySchema     `json:"key,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

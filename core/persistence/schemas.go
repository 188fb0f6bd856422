package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/asaidimu/go-docstore/core/schema"
	"github.com/asaidimu/go-docstore/utils"
)

// SchemaCollectionName is the name under which catalogs keep the definition
// of their own record layout.
const SchemaCollectionName = "_schemas"

// SchemaCatalog supplies the field-type catalog of a collection. Exclusion
// projections need one; every other operation works without.
type SchemaCatalog interface {
	// Schema returns the definition of the named collection, or nil without
	// an error when none is registered.
	Schema(ctx context.Context, name string) (*schema.SchemaDefinition, error)
}

// StaticCatalog is an in-memory SchemaCatalog keyed by collection name.
type StaticCatalog map[string]*schema.SchemaDefinition

// Schema implements SchemaCatalog.
func (c StaticCatalog) Schema(_ context.Context, name string) (*schema.SchemaDefinition, error) {
	return c[name], nil
}

// SchemaRecord is the stored form of one collection definition.
type SchemaRecord struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Version     string          `json:"version"`
	Schema      json.RawMessage `json:"schema"`
}

// schemasCollectionSchema describes SchemaRecord itself.
var schemasCollectionSchema = []byte(`
{
  "name": "_schemas",
  "version": "1.0.0",
  "description": "Stores schema definitions for all collections in the database.",
  "fields": {
    "name": {
      "name": "name",
      "type": "string",
      "required": true,
      "description": "The name of the collection this schema defines."
    },
    "version": {
      "name": "version",
      "type": "string",
      "required": true,
      "description": "The version of the schema."
    },
    "description": {
      "name": "description",
      "type": "string",
      "description": "A description of the schema."
    },
    "schema": {
      "name": "schema",
      "type": "record",
      "required": true,
      "description": "The full schema definition as a JSON object."
    }
  },
  "indexes": [
    {
      "name": "name_version_unique",
      "fields": ["name", "version"],
      "type": "unique",
      "description": "Ensures unique combination of schema name and version."
    }
  ]
}`)

// CatalogSchema returns the definition of the catalog's own records.
func CatalogSchema() (*schema.SchemaDefinition, error) {
	var s schema.SchemaDefinition
	if err := json.Unmarshal(schemasCollectionSchema, &s); err != nil {
		return nil, fmt.Errorf("error unmarshaling schemas collection schema: %w", err)
	}
	return &s, nil
}

// NewSchemaRecord wraps a definition for storage.
func NewSchemaRecord(s *schema.SchemaDefinition) (*SchemaRecord, error) {
	if s == nil || s.Name == "" {
		return nil, fmt.Errorf("schema definition must have a name")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal SchemaDefinition to JSON: %w", err)
	}
	record := &SchemaRecord{Name: s.Name, Version: s.Version, Schema: raw}
	if s.Description != nil {
		record.Description = *s.Description
	}
	return record, nil
}

// Definition decodes the stored definition.
func (r *SchemaRecord) Definition() (*schema.SchemaDefinition, error) {
	var s schema.SchemaDefinition
	if err := json.Unmarshal(r.Schema, &s); err != nil {
		return nil, fmt.Errorf("failed to decode schema %q: %w", r.Name, err)
	}
	return &s, nil
}

// SchemaRecordFromDocument converts a document carrying the record fields.
func SchemaRecordFromDocument(data schema.Document) (*SchemaRecord, error) {
	record, err := utils.FromDocument[*SchemaRecord](data)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema record: %w", err)
	}
	return record, nil
}

// Document converts the record into a generic document.
func (r *SchemaRecord) Document() (schema.Document, error) {
	doc, err := utils.ToDocument(r)
	if err != nil {
		return nil, fmt.Errorf("failed to convert schema record %q: %w", r.Name, err)
	}
	return doc, nil
}

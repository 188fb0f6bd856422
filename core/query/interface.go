package query

import (
	"github.com/asaidimu/go-docstore/core/schema"
)

// Statement is generated statement text together with its bind variables.
type Statement struct {
	Text     string
	Bindings *BindingTable
}

// Table carries what the generator needs to know about the target table.
type Table struct {
	Name string
	Keys *schema.KeySchema
	// Catalog declares field types; exclusion projections need it.
	Catalog *schema.SchemaDefinition
	// Values normalizes bound literals; nil uses default options.
	Values *schema.RowMarshaller
}

// StatementGenerator translates document operations into statements for one
// SQL dialect. StatementBuilder is the implementation for JSON collection
// tables.
type StatementGenerator interface {
	// Select creates a query returning the documents matching filter.
	Select(table Table, filter any, opts FindOptions) (*Statement, error)

	// Count creates a query returning a single row with the match count.
	Count(table Table, filter any) (*Statement, error)

	// Update creates a statement applying update to the rows matching
	// filter. The store requires filter to address one full primary key.
	Update(table Table, filter any, update any) (*Statement, error)

	// Delete creates a statement deleting the rows matching filter.
	Delete(table Table, filter any) (*Statement, error)
}

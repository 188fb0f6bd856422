package query

import (
	"github.com/asaidimu/go-docstore/core/schema"
)

// Logical operators for combining filter documents.
const (
	OpAnd = "$and"
	OpOr  = "$or"
	OpNot = "$not"
	OpNor = "$nor"
)

// Field operators.
const (
	OpEq      = "$eq"
	OpNe      = "$ne"
	OpGt      = "$gt"
	OpGte     = "$gte"
	OpLt      = "$lt"
	OpLte     = "$lte"
	OpIn      = "$in"
	OpNin     = "$nin"
	OpExists  = "$exists"
	OpRegex   = "$regex"
	OpOptions = "$options"
	OpSize    = "$size"
)

// Update operators.
const (
	OpSet         = "$set"
	OpUnset       = "$unset"
	OpCurrentDate = "$currentDate"
	OpInc         = "$inc"
	OpMul         = "$mul"
	OpMin         = "$min"
	OpMax         = "$max"
	OpRename      = "$rename"
)

// SortDirection specifies the direction for sorting.
type SortDirection string

// Supported sort directions.
const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// SortConfiguration defines the sorting order for a specific field.
type SortConfiguration struct {
	Field     string        // The field to sort by.
	Direction SortDirection // The direction of the sort (ascending or descending).
}

// FindOptions shapes a read.
type FindOptions struct {
	// Projection is an inclusion/exclusion document; nil selects whole rows.
	Projection any
	// Sort is a document of field to 1/-1, or a []SortConfiguration.
	Sort any
	// Limit caps the rows the statement returns; 0 means no LIMIT clause.
	Limit int64
	// Skip is emitted as OFFSET.
	Skip int64
	// MaxResults overrides the cursor cap for this read; 0 keeps the table default.
	MaxResults int
	// BatchSize overrides the rows requested per round-trip.
	BatchSize int
}

// Query is a complete read: a filter document plus options. QueryBuilder
// produces it.
type Query struct {
	Filter  schema.D
	Options FindOptions
}

// UpdateOptions shapes updateOne/updateMany/replaceOne.
type UpdateOptions struct {
	Upsert bool
}

// IndexOptions shapes createIndex.
type IndexOptions struct {
	Name string
}

package query

import (
	"encoding/json"
	"slices"

	"github.com/asaidimu/go-docstore/core/schema"
)

// QueryBuilder provides a fluent API for building filter documents and find
// options. Conditions on the same field merge into one operator document.
type QueryBuilder struct {
	query Query
}

// NewQueryBuilder creates a new, empty query builder instance.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

// Build returns the constructed query.
func (qb *QueryBuilder) Build() Query {
	return qb.query
}

// Clone copies the builder so the copy can diverge from the original.
func (qb *QueryBuilder) Clone() *QueryBuilder {
	clone := &QueryBuilder{query: qb.query}
	clone.query.Filter = cloneD(qb.query.Filter)
	if sort, ok := qb.query.Options.Sort.(schema.D); ok {
		clone.query.Options.Sort = cloneD(sort)
	}
	if projection, ok := qb.query.Options.Projection.(schema.D); ok {
		clone.query.Options.Projection = cloneD(projection)
	}
	return clone
}

// Reset clears all configurations from the query builder.
func (qb *QueryBuilder) Reset() *QueryBuilder {
	qb.query = Query{}
	return qb
}

// String renders the filter document as JSON, mostly for logging.
func (qb *QueryBuilder) String() string {
	b, err := json.Marshal(qb.query.Filter)
	if err != nil {
		return "<invalid filter>"
	}
	return string(b)
}

// Where begins a condition on field.
func (qb *QueryBuilder) Where(field string) *FilterConditionBuilder {
	return &FilterConditionBuilder{parent: qb, field: field}
}

// WhereGroup begins a group of conditions joined by operator ($and, $or or $nor).
func (qb *QueryBuilder) WhereGroup(operator string) *FilterGroupBuilder {
	return &FilterGroupBuilder{operator: operator, root: qb, done: func(child schema.D) {
		qb.query.Filter = append(qb.query.Filter, child...)
	}}
}

// FilterConditionBuilder builds one condition on a field.
type FilterConditionBuilder struct {
	parent *QueryBuilder
	field  string
}

// Eq adds a bare equality.
func (fcb *FilterConditionBuilder) Eq(value any) *QueryBuilder {
	fcb.parent.query.Filter = setField(fcb.parent.query.Filter, fcb.field, value)
	return fcb.parent
}

// Ne adds a not-equal condition.
func (fcb *FilterConditionBuilder) Ne(value any) *QueryBuilder { return fcb.add(OpNe, value) }

// Lt adds a less-than condition.
func (fcb *FilterConditionBuilder) Lt(value any) *QueryBuilder { return fcb.add(OpLt, value) }

// Lte adds a less-than-or-equal condition.
func (fcb *FilterConditionBuilder) Lte(value any) *QueryBuilder { return fcb.add(OpLte, value) }

// Gt adds a greater-than condition.
func (fcb *FilterConditionBuilder) Gt(value any) *QueryBuilder { return fcb.add(OpGt, value) }

// Gte adds a greater-than-or-equal condition.
func (fcb *FilterConditionBuilder) Gte(value any) *QueryBuilder { return fcb.add(OpGte, value) }

// In matches any of values.
func (fcb *FilterConditionBuilder) In(values ...any) *QueryBuilder { return fcb.add(OpIn, values) }

// Nin matches none of values.
func (fcb *FilterConditionBuilder) Nin(values ...any) *QueryBuilder { return fcb.add(OpNin, values) }

// Exists requires the field to be present.
func (fcb *FilterConditionBuilder) Exists() *QueryBuilder { return fcb.add(OpExists, true) }

// NotExists requires the field to be absent.
func (fcb *FilterConditionBuilder) NotExists() *QueryBuilder { return fcb.add(OpExists, false) }

// Size matches arrays of exactly n elements.
func (fcb *FilterConditionBuilder) Size(n int) *QueryBuilder { return fcb.add(OpSize, n) }

// Regex matches a pattern; options may contain i and s.
func (fcb *FilterConditionBuilder) Regex(pattern, options string) *QueryBuilder {
	fcb.add(OpRegex, pattern)
	if options != "" {
		fcb.add(OpOptions, options)
	}
	return fcb.parent
}

func (fcb *FilterConditionBuilder) add(op string, value any) *QueryBuilder {
	fcb.parent.query.Filter = addOperator(fcb.parent.query.Filter, fcb.field, op, value)
	return fcb.parent
}

// FilterGroupBuilder collects child conditions of a logical operator. Every
// condition added to a group becomes its own child document.
type FilterGroupBuilder struct {
	operator string
	children []any
	root     *QueryBuilder
	outer    *FilterGroupBuilder
	done     func(schema.D)
}

// Where adds a condition as the next child of the group.
func (fgb *FilterGroupBuilder) Where(field string) *FilterConditionBuilderInGroup {
	return &FilterConditionBuilderInGroup{group: fgb, field: field}
}

// WhereGroup nests a group as one child of this group.
func (fgb *FilterGroupBuilder) WhereGroup(operator string) *FilterGroupBuilder {
	return &FilterGroupBuilder{operator: operator, root: fgb.root, outer: fgb, done: func(child schema.D) {
		fgb.children = append(fgb.children, child)
	}}
}

// End closes a top-level group and returns to the query builder.
func (fgb *FilterGroupBuilder) End() *QueryBuilder {
	fgb.close()
	return fgb.root
}

// EndGroup closes a nested group and returns to the enclosing group.
func (fgb *FilterGroupBuilder) EndGroup() *FilterGroupBuilder {
	fgb.close()
	if fgb.outer == nil {
		return fgb
	}
	return fgb.outer
}

func (fgb *FilterGroupBuilder) close() {
	if len(fgb.children) > 0 {
		fgb.done(schema.D{{Key: fgb.operator, Value: fgb.children}})
	}
	fgb.children = nil
}

// FilterConditionBuilderInGroup builds one condition inside a group.
type FilterConditionBuilderInGroup struct {
	group *FilterGroupBuilder
	field string
}

// Eq adds a bare equality.
func (fcbg *FilterConditionBuilderInGroup) Eq(value any) *FilterGroupBuilder {
	fcbg.group.children = append(fcbg.group.children, schema.D{{Key: fcbg.field, Value: value}})
	return fcbg.group
}

// Ne adds a not-equal condition.
func (fcbg *FilterConditionBuilderInGroup) Ne(value any) *FilterGroupBuilder {
	return fcbg.add(OpNe, value)
}

// Lt adds a less-than condition.
func (fcbg *FilterConditionBuilderInGroup) Lt(value any) *FilterGroupBuilder {
	return fcbg.add(OpLt, value)
}

// Lte adds a less-than-or-equal condition.
func (fcbg *FilterConditionBuilderInGroup) Lte(value any) *FilterGroupBuilder {
	return fcbg.add(OpLte, value)
}

// Gt adds a greater-than condition.
func (fcbg *FilterConditionBuilderInGroup) Gt(value any) *FilterGroupBuilder {
	return fcbg.add(OpGt, value)
}

// Gte adds a greater-than-or-equal condition.
func (fcbg *FilterConditionBuilderInGroup) Gte(value any) *FilterGroupBuilder {
	return fcbg.add(OpGte, value)
}

// In matches any of values.
func (fcbg *FilterConditionBuilderInGroup) In(values ...any) *FilterGroupBuilder {
	return fcbg.add(OpIn, values)
}

// Exists requires the field to be present.
func (fcbg *FilterConditionBuilderInGroup) Exists() *FilterGroupBuilder {
	return fcbg.add(OpExists, true)
}

// NotExists requires the field to be absent.
func (fcbg *FilterConditionBuilderInGroup) NotExists() *FilterGroupBuilder {
	return fcbg.add(OpExists, false)
}

func (fcbg *FilterConditionBuilderInGroup) add(op string, value any) *FilterGroupBuilder {
	child := schema.D{{Key: fcbg.field, Value: schema.D{{Key: op, Value: value}}}}
	fcbg.group.children = append(fcbg.group.children, child)
	return fcbg.group
}

// OrderBy appends a sort key.
func (qb *QueryBuilder) OrderBy(field string, direction SortDirection) *QueryBuilder {
	dir := 1
	if direction == SortDirectionDesc {
		dir = -1
	}
	sort, _ := qb.query.Options.Sort.(schema.D)
	qb.query.Options.Sort = append(sort, schema.E{Key: field, Value: dir})
	return qb
}

// OrderByAsc appends an ascending sort key.
func (qb *QueryBuilder) OrderByAsc(field string) *QueryBuilder {
	return qb.OrderBy(field, SortDirectionAsc)
}

// OrderByDesc appends a descending sort key.
func (qb *QueryBuilder) OrderByDesc(field string) *QueryBuilder {
	return qb.OrderBy(field, SortDirectionDesc)
}

// Limit sets the maximum number of rows returned.
func (qb *QueryBuilder) Limit(limit int64) *QueryBuilder {
	qb.query.Options.Limit = limit
	return qb
}

// Offset sets the number of rows skipped.
func (qb *QueryBuilder) Offset(offset int64) *QueryBuilder {
	qb.query.Options.Skip = offset
	return qb
}

// Include adds fields to an inclusion projection.
func (qb *QueryBuilder) Include(fields ...string) *QueryBuilder {
	return qb.project(fields, 1)
}

// Exclude adds fields to an exclusion projection.
func (qb *QueryBuilder) Exclude(fields ...string) *QueryBuilder {
	return qb.project(fields, 0)
}

// Computed adds a computed field, e.g. Computed("total", schema.D{{Key: "$multiply", Value: []any{"$price", "$qty"}}}).
func (qb *QueryBuilder) Computed(alias string, expression any) *QueryBuilder {
	projection, _ := qb.query.Options.Projection.(schema.D)
	qb.query.Options.Projection = append(projection, schema.E{Key: alias, Value: expression})
	return qb
}

func (qb *QueryBuilder) project(fields []string, flag int) *QueryBuilder {
	projection, _ := qb.query.Options.Projection.(schema.D)
	for _, f := range fields {
		projection = append(projection, schema.E{Key: f, Value: flag})
	}
	qb.query.Options.Projection = projection
	return qb
}

// setField sets a bare value for field, replacing any earlier condition.
func setField(doc schema.D, field string, value any) schema.D {
	for i := range doc {
		if doc[i].Key == field {
			doc[i].Value = value
			return doc
		}
	}
	return append(doc, schema.E{Key: field, Value: value})
}

// addOperator merges op into the operator document of field.
func addOperator(doc schema.D, field, op string, value any) schema.D {
	for i := range doc {
		if doc[i].Key != field {
			continue
		}
		ops, isOps := doc[i].Value.(schema.D)
		if !isOps {
			// A bare equality becomes $eq so further operators can join it.
			ops = schema.D{{Key: OpEq, Value: doc[i].Value}}
		}
		doc[i].Value = setField(ops, op, value)
		return doc
	}
	return append(doc, schema.E{Key: field, Value: schema.D{{Key: op, Value: value}}})
}

func cloneD(d schema.D) schema.D {
	if d == nil {
		return nil
	}
	out := slices.Clone(d)
	for i, e := range out {
		if nested, ok := e.Value.(schema.D); ok {
			out[i].Value = cloneD(nested)
		}
	}
	return out
}

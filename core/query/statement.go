package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/asaidimu/go-docstore/core/schema"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)*$`)

// ValidateTableName rejects names that cannot appear unquoted in a statement.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// StatementBuilder assembles compiled fragments into complete statements.
type StatementBuilder struct{}

// Ensure StatementBuilder implements the StatementGenerator interface.
var _ StatementGenerator = (*StatementBuilder)(nil)

// NewStatementBuilder creates a StatementBuilder.
func NewStatementBuilder() *StatementBuilder {
	return &StatementBuilder{}
}

// Select builds DECLARE ...; SELECT <columns> FROM <table> t [WHERE] [ORDER BY] [LIMIT] [OFFSET].
func (b *StatementBuilder) Select(table Table, filter any, opts FindOptions) (*Statement, error) {
	if err := ValidateTableName(table.Name); err != nil {
		return nil, err
	}
	bindings := NewBindingTable()

	where, err := NewFilterCompiler(table.Keys, bindings, table.Values).Compile(filter)
	if err != nil {
		return nil, err
	}
	columns, err := NewProjectionCompiler(table.Keys, table.Catalog).Compile(opts.Projection)
	if err != nil {
		return nil, err
	}
	orderBy, err := b.orderBy(table, opts.Sort)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(bindings.Declarations())
	sb.WriteString("SELECT ")
	sb.WriteString(columns)
	writeFrom(&sb, table.Name)
	writeWhere(&sb, where)
	if len(orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(orderBy, ", "))
	}
	if opts.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.FormatInt(opts.Limit, 10))
	}
	if opts.Skip > 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.FormatInt(opts.Skip, 10))
	}
	return &Statement{Text: sb.String(), Bindings: bindings}, nil
}

// Count builds a SELECT count(*) over the matching rows.
func (b *StatementBuilder) Count(table Table, filter any) (*Statement, error) {
	if err := ValidateTableName(table.Name); err != nil {
		return nil, err
	}
	bindings := NewBindingTable()
	where, err := NewFilterCompiler(table.Keys, bindings, table.Values).Compile(filter)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(bindings.Declarations())
	sb.WriteString("SELECT count(*) AS ")
	sb.WriteString(quote(CountColumn))
	writeFrom(&sb, table.Name)
	writeWhere(&sb, where)
	return &Statement{Text: sb.String(), Bindings: bindings}, nil
}

// CountColumn is the column Count statements return the count in.
const CountColumn = "count"

// Update builds UPDATE <table> t <clauses> WHERE <filter>.
func (b *StatementBuilder) Update(table Table, filter any, update any) (*Statement, error) {
	if err := ValidateTableName(table.Name); err != nil {
		return nil, err
	}
	bindings := NewBindingTable()
	clauses, err := NewUpdateCompiler(table.Keys, bindings, table.Values).Compile(update)
	if err != nil {
		return nil, err
	}
	where, err := NewFilterCompiler(table.Keys, bindings, table.Values).Compile(filter)
	if err != nil {
		return nil, err
	}
	if where == nil {
		return nil, invalidFilter("update requires a filter on the primary key")
	}

	var sb strings.Builder
	sb.WriteString(bindings.Declarations())
	sb.WriteString("UPDATE ")
	sb.WriteString(table.Name)
	sb.WriteByte(' ')
	sb.WriteString(TableAlias)
	sb.WriteByte(' ')
	sb.WriteString(clauses)
	writeWhere(&sb, where)
	return &Statement{Text: sb.String(), Bindings: bindings}, nil
}

// Delete builds DELETE FROM <table> t [WHERE <filter>].
func (b *StatementBuilder) Delete(table Table, filter any) (*Statement, error) {
	if err := ValidateTableName(table.Name); err != nil {
		return nil, err
	}
	bindings := NewBindingTable()
	where, err := NewFilterCompiler(table.Keys, bindings, table.Values).Compile(filter)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(bindings.Declarations())
	sb.WriteString("DELETE")
	writeFrom(&sb, table.Name)
	writeWhere(&sb, where)
	return &Statement{Text: sb.String(), Bindings: bindings}, nil
}

func writeFrom(sb *strings.Builder, table string) {
	sb.WriteString(" FROM ")
	sb.WriteString(table)
	sb.WriteByte(' ')
	sb.WriteString(TableAlias)
}

func writeWhere(sb *strings.Builder, where Expr) {
	if where == nil {
		return
	}
	sb.WriteString(" WHERE ")
	where.writeTo(sb)
}

// orderBy renders sort terms. The identity field sorts by the key columns.
func (b *StatementBuilder) orderBy(table Table, sort any) ([]string, error) {
	configs, err := ParseSort(sort)
	if err != nil {
		return nil, err
	}
	keys := table.Keys
	if keys == nil {
		keys = schema.NewSimpleKey(schema.DefaultKeyColumn)
	}

	var terms []string
	for _, cfg := range configs {
		dir := " ASC"
		if cfg.Direction == SortDirectionDesc {
			dir = " DESC"
		}
		if cfg.Field == schema.IdentityField {
			for _, col := range IdentityColumns(keys) {
				terms = append(terms, Render(col)+dir)
			}
			continue
		}
		terms = append(terms, Render(FieldColumn(cfg.Field, false))+dir)
	}
	return terms, nil
}

// ParseSort accepts a sort document ({field: 1|-1|"asc"|"desc"}) or a
// []SortConfiguration.
func ParseSort(sort any) ([]SortConfiguration, error) {
	if sort == nil {
		return nil, nil
	}
	if configs, ok := sort.([]SortConfiguration); ok {
		for _, cfg := range configs {
			if cfg.Field == "" || (cfg.Direction != SortDirectionAsc && cfg.Direction != SortDirectionDesc) {
				return nil, fmt.Errorf("invalid sort configuration %+v", cfg)
			}
		}
		return configs, nil
	}
	entries, ok := schema.Entries(sort)
	if !ok {
		return nil, fmt.Errorf("sort must be a document, got %T", sort)
	}
	configs := make([]SortConfiguration, 0, len(entries))
	for _, e := range entries {
		dir, err := sortDirection(e.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid sort on %q: %w", e.Key, err)
		}
		configs = append(configs, SortConfiguration{Field: e.Key, Direction: dir})
	}
	return configs, nil
}

func sortDirection(v any) (SortDirection, error) {
	if s, ok := v.(string); ok {
		switch strings.ToLower(s) {
		case "asc", "ascending":
			return SortDirectionAsc, nil
		case "desc", "descending":
			return SortDirectionDesc, nil
		}
		return "", fmt.Errorf("unknown direction %q", s)
	}
	n, ok := ToInt(v)
	switch {
	case ok && n == 1:
		return SortDirectionAsc, nil
	case ok && n == -1:
		return SortDirectionDesc, nil
	}
	return "", fmt.Errorf("direction must be 1 or -1, got %v", v)
}

package main

import (
	"fmt"

	"github.com/asaidimu/go-docstore/core/query"
	"github.com/asaidimu/go-docstore/core/schema"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type compileFlags struct {
	table      string
	filter     string
	projection string
	sort       string
	update     string
	limit      int64
	skip       int64
	keyColumns []string
	shardKey   []string
	catalog    string
}

type compiledBinding struct {
	Name  string            `json:"name"`
	Type  query.BindingType `json:"type"`
	Value any               `json:"value"`
}

type compiledStatement struct {
	Statement string            `json:"statement"`
	Bindings  []compiledBinding `json:"bindings"`
}

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Print the statement an operation compiles to, without contacting a store",
}

func init() {
	f := &compileFlags{}

	findCmd := &cobra.Command{
		Use:   "find",
		Short: "Compile a query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, f, func(b *query.StatementBuilder, table query.Table, filter any) (*query.Statement, error) {
				projection, err := parseFlagJSON("projection", f.projection)
				if err != nil {
					return nil, err
				}
				sort, err := parseFlagJSON("sort", f.sort)
				if err != nil {
					return nil, err
				}
				return b.Select(table, filter, query.FindOptions{
					Projection: projection,
					Sort:       sort,
					Limit:      f.limit,
					Skip:       f.skip,
				})
			})
		},
	}
	findCmd.Flags().StringVar(&f.projection, "projection", "", "Projection document")
	findCmd.Flags().StringVar(&f.sort, "sort", "", "Sort document, field to 1 or -1")
	findCmd.Flags().Int64Var(&f.limit, "limit", 0, "Maximum rows returned")
	findCmd.Flags().Int64Var(&f.skip, "skip", 0, "Rows skipped")

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Compile a count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, f, func(b *query.StatementBuilder, table query.Table, filter any) (*query.Statement, error) {
				return b.Count(table, filter)
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Compile a delete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, f, func(b *query.StatementBuilder, table query.Table, filter any) (*query.Statement, error) {
				return b.Delete(table, filter)
			})
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Compile a keyed update",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, f, func(b *query.StatementBuilder, table query.Table, filter any) (*query.Statement, error) {
				update, err := parseFlagJSON("update", f.update)
				if err != nil {
					return nil, err
				}
				if update == nil {
					return nil, fmt.Errorf("--update is required")
				}
				return b.Update(table, filter, update)
			})
		},
	}
	updateCmd.Flags().StringVar(&f.update, "update", "", "Update document")

	for _, c := range []*cobra.Command{findCmd, countCmd, deleteCmd, updateCmd} {
		c.Flags().StringVar(&f.table, "table", "", "Table name")
		c.Flags().StringVar(&f.filter, "filter", "", "Filter document (default {})")
		c.Flags().StringSliceVar(&f.keyColumns, "key-column", nil, "Primary key columns; more than one makes a composite key")
		c.Flags().StringSliceVar(&f.shardKey, "shard-key", nil, "Shard key columns of a composite key (default: the first key column)")
		c.Flags().StringVar(&f.catalog, "catalog", "", "SQLite schema catalog supplying the table's field types")
		_ = c.MarkFlagRequired("table")
		compileCmd.AddCommand(c)
	}

	rootCmd.AddCommand(compileCmd)
}

type compileFunc func(b *query.StatementBuilder, table query.Table, filter any) (*query.Statement, error)

func runCompile(cmd *cobra.Command, f *compileFlags, compile compileFunc) error {
	opts, err := loadOptions()
	if err != nil {
		return err
	}
	keys, err := keySchemaFromFlags(f.keyColumns, f.shardKey, opts.KeysFor(f.table))
	if err != nil {
		return err
	}
	table := query.Table{Name: f.table, Keys: keys}

	if f.catalog != "" {
		catalog, closeCatalog, err := openCatalog(cmd.Context(), f.catalog)
		if err != nil {
			return err
		}
		defer closeCatalog()
		table.Catalog, err = catalog.Schema(cmd.Context(), f.table)
		if err != nil {
			return err
		}
	}

	filter, err := parseFilter(f.filter)
	if err != nil {
		return err
	}
	stmt, err := compile(query.NewStatementBuilder(), table, filter)
	if err != nil {
		return err
	}
	logger.Debug("Compiled statement", zap.String("table", f.table), zap.String("statement", stmt.Text))

	out := compiledStatement{Statement: stmt.Text, Bindings: []compiledBinding{}}
	for _, b := range stmt.Bindings.Bindings() {
		out.Bindings = append(out.Bindings, compiledBinding{Name: b.Name, Type: b.Type, Value: b.Value})
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

// keySchemaFromFlags prefers explicit --key-column flags over the configured
// key of the table.
func keySchemaFromFlags(columns, shard []string, configured *schema.KeySchema) (*schema.KeySchema, error) {
	var keys *schema.KeySchema
	switch {
	case len(columns) == 0:
		keys = configured
	case len(columns) == 1 && len(shard) == 0:
		keys = schema.NewSimpleKey(columns[0])
	default:
		keys = schema.NewCompositeKey(columns, shard)
	}
	if err := keys.Validate(); err != nil {
		return nil, fmt.Errorf("invalid key: %w", err)
	}
	return keys, nil
}

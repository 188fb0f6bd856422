package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/asaidimu/go-docstore/core/schema"
	"github.com/asaidimu/go-docstore/sqlite"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// openCatalog opens the SQLite schema catalog at path, creating it if needed.
func openCatalog(ctx context.Context, path string) (*sqlite.SchemaStore, func() error, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open catalog %s: %w", path, err)
	}
	store, err := sqlite.NewSchemaStore(ctx, db, logger.Named("catalog"))
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, db.Close, nil
}

func init() {
	var (
		dbPath  string
		file    string
		version string
	)

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the field-type catalog",
	}
	schemaCmd.PersistentFlags().StringVar(&dbPath, "db", "catalog.db", "SQLite catalog file")

	withCatalog := func(cmd *cobra.Command, fn func(ctx context.Context, store *sqlite.SchemaStore) error) error {
		store, closeCatalog, err := openCatalog(cmd.Context(), dbPath)
		if err != nil {
			return err
		}
		defer closeCatalog()
		return fn(cmd.Context(), store)
	}

	putCmd := &cobra.Command{
		Use:   "put",
		Short: "Store a schema definition read from a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}
			var def schema.SchemaDefinition
			if err := json.Unmarshal(data, &def); err != nil {
				return fmt.Errorf("failed to parse schema %s: %w", file, err)
			}
			return withCatalog(cmd, func(ctx context.Context, store *sqlite.SchemaStore) error {
				if err := store.Put(ctx, &def); err != nil {
					return err
				}
				logger.Info("Schema stored", zap.String("name", def.Name), zap.String("version", def.Version))
				return nil
			})
		},
	}
	putCmd.Flags().StringVar(&file, "file", "", "Schema definition JSON file")
	_ = putCmd.MarkFlagRequired("file")

	getCmd := &cobra.Command{
		Use:   "get NAME",
		Short: "Print the latest version of a schema, or --version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(ctx context.Context, store *sqlite.SchemaStore) error {
				var (
					def *schema.SchemaDefinition
					err error
				)
				if version != "" {
					def, err = store.Version(ctx, args[0], version)
				} else {
					def, err = store.Schema(ctx, args[0])
				}
				if err != nil {
					return err
				}
				if def == nil {
					return fmt.Errorf("schema %q not found", args[0])
				}
				return writeJSON(cmd.OutOrStdout(), def)
			})
		},
	}
	getCmd.Flags().StringVar(&version, "version", "", "Exact version")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored schema versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(ctx context.Context, store *sqlite.SchemaStore) error {
				records, err := store.List(ctx)
				if err != nil {
					return err
				}
				for _, r := range records {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", r.Name, r.Version, r.Description)
				}
				return nil
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete every version of a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(ctx context.Context, store *sqlite.SchemaStore) error {
				n, err := store.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				logger.Info("Schema deleted", zap.String("name", args[0]), zap.Int64("versions", n))
				return nil
			})
		},
	}

	schemaCmd.AddCommand(putCmd, getCmd, listCmd, deleteCmd)
	rootCmd.AddCommand(schemaCmd)
}
